// Package resolver translates developer-facing selectors into scoped CSS selectors
// and locates the matching elements through a schemas.ElementFinder.
//
// A selector may be plain CSS, a key of the active alias map (page or component
// elements such as "@modal" => "#modal"), or an implicit "@name" shortcut that
// targets elements carrying a dusk="name" attribute. Every selector is evaluated
// inside the resolver's prefix, which is the CSS context of the current scope.
package resolver

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dusk/api/schemas"
)

// DefaultPrefix is the scope used by a top-level browser.
const DefaultPrefix = "body"

// DuskAttribute is the data attribute addressed by "@name" shortcuts.
const DuskAttribute = "dusk"

var idShortcutPattern = regexp.MustCompile(`^#[\w\-:]+$`)

// buttonFinder is one strategy in the button resolution chain.
type buttonFinder func(ctx context.Context, button string) (schemas.Element, bool)

// Resolver is owned by exactly one browser scope and is not safe for concurrent mutation.
type Resolver struct {
	finder   schemas.ElementFinder
	prefix   string
	elements map[string]string
	logger   *zap.Logger

	buttonFinders []buttonFinder
}

// New creates a resolver scoped to prefix. An empty prefix is kept empty so that
// Format("") yields "" for unscoped resolvers.
func New(finder schemas.ElementFinder, prefix string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		finder:   finder,
		prefix:   strings.TrimSpace(prefix),
		elements: make(map[string]string),
		logger:   logger.Named("resolver"),
	}
	// Order is the tie-break: the first strategy that matches wins.
	r.buttonFinders = []buttonFinder{
		r.findByID,
		r.findButtonByName,
		r.findButtonByValue,
		r.findButtonByText,
	}
	return r
}

// Prefix returns the CSS context of this scope.
func (r *Resolver) Prefix() string { return r.prefix }

// SetPrefix replaces the CSS context of this scope.
func (r *Resolver) SetPrefix(prefix string) { r.prefix = strings.TrimSpace(prefix) }

// Elements returns a copy of the active alias map.
func (r *Resolver) Elements() map[string]string {
	out := make(map[string]string, len(r.elements))
	for k, v := range r.elements {
		out[k] = v
	}
	return out
}

// SetElements installs the alias map of the active page or component.
func (r *Resolver) SetElements(elements map[string]string) {
	r.elements = make(map[string]string, len(elements))
	for k, v := range elements {
		r.elements[k] = v
	}
}

// Format expands aliases in selector and prefixes it with the scope.
func (r *Resolver) Format(selector string) string {
	original := selector

	// Longest keys first so "@btn" never eats the front of "@btn-submit".
	for _, key := range r.sortedAliasKeys() {
		selector = strings.ReplaceAll(selector, key, r.elements[key])
	}

	if selector == original && strings.HasPrefix(selector, "@") {
		name := strings.SplitN(selector[1:], "@", 2)[0]
		selector = fmt.Sprintf(`[%s="%s"]`, DuskAttribute, name)
	}

	return strings.TrimSpace(r.prefix + " " + selector)
}

func (r *Resolver) sortedAliasKeys() []string {
	keys := make([]string, 0, len(r.elements))
	for k := range r.elements {
		if k == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Find is the best-effort lookup: any failure yields (nil, false).
func (r *Resolver) Find(ctx context.Context, selector string) (schemas.Element, bool) {
	el, err := r.FindOrFail(ctx, selector)
	if err != nil {
		return nil, false
	}
	return el, true
}

// FindOrFail resolves selector to a single element. "#id" shortcuts are looked up by ID
// document-wide; everything else is looked up by the formatted CSS selector.
func (r *Resolver) FindOrFail(ctx context.Context, selector string) (schemas.Element, error) {
	if isIDShortcut(selector) {
		el, err := r.finder.FindElement(ctx, schemas.ByID, selector[1:])
		if err != nil {
			return nil, &schemas.NotFoundError{Selector: selector, Err: err}
		}
		return el, nil
	}

	full := r.Format(selector)
	el, err := r.finder.FindElement(ctx, schemas.ByCSSSelector, full)
	if err != nil {
		return nil, &schemas.NotFoundError{Selector: full, Err: err}
	}
	return el, nil
}

// FirstOrFail tries each candidate in order and returns the first match.
// When every candidate fails, the error of the last one is returned.
func (r *Resolver) FirstOrFail(ctx context.Context, selectors []string) (schemas.Element, error) {
	if len(selectors) == 0 {
		return nil, schemas.NewInvalidArgument("no candidates supplied")
	}

	var lastErr error
	for _, selector := range selectors {
		el, err := r.FindOrFail(ctx, selector)
		if err == nil {
			return el, nil
		}
		lastErr = err
	}
	r.logger.Debug("No candidate selector matched.", zap.Strings("candidates", selectors), zap.Error(lastErr))
	return nil, lastErr
}

// All returns every element matching selector. Failures yield an empty slice.
func (r *Resolver) All(ctx context.Context, selector string) []schemas.Element {
	els, err := r.finder.FindElements(ctx, schemas.ByCSSSelector, r.Format(selector))
	if err != nil {
		r.logger.Debug("Lookup of all elements failed.", zap.String("selector", selector), zap.Error(err))
		return []schemas.Element{}
	}
	if els == nil {
		return []schemas.Element{}
	}
	return els
}

// ResolveForTyping resolves a text input or textarea by ID, name, or selector.
func (r *Resolver) ResolveForTyping(ctx context.Context, field string) (schemas.Element, error) {
	if el, ok := r.findByID(ctx, field); ok {
		return el, nil
	}
	return r.FirstOrFail(ctx, []string{
		fmt.Sprintf("input[name=%s]", quote(field)),
		fmt.Sprintf("textarea[name=%s]", quote(field)),
		field,
	})
}

// ResolveForSelection resolves a select box by ID, name, or selector.
func (r *Resolver) ResolveForSelection(ctx context.Context, field string) (schemas.Element, error) {
	if el, ok := r.findByID(ctx, field); ok {
		return el, nil
	}
	return r.FirstOrFail(ctx, []string{
		fmt.Sprintf("select[name=%s]", quote(field)),
		field,
	})
}

// ResolveSelectOptions returns the options of the select box whose value is one of values.
func (r *Resolver) ResolveSelectOptions(ctx context.Context, field string, values []string) ([]schemas.Element, error) {
	if len(values) == 0 {
		return []schemas.Element{}, nil
	}

	sel, err := r.ResolveForSelection(ctx, field)
	if err != nil {
		return nil, err
	}
	options, err := sel.FindElements(ctx, schemas.ByTagName, "option")
	if err != nil {
		return nil, fmt.Errorf("failed to list options of [%s]: %w", field, err)
	}

	wanted := make(map[string]struct{}, len(values))
	for _, v := range values {
		wanted[v] = struct{}{}
	}

	matched := make([]schemas.Element, 0, len(options))
	for _, option := range options {
		value, _, err := option.Attribute(ctx, "value")
		if err != nil {
			continue
		}
		if _, ok := wanted[value]; ok {
			matched = append(matched, option)
		}
	}
	return matched, nil
}

// ResolveForRadioSelection resolves a radio button. The value is required and is
// checked before any lookup happens.
func (r *Resolver) ResolveForRadioSelection(ctx context.Context, field string, value ...string) (schemas.Element, error) {
	if len(value) == 0 {
		return nil, schemas.NewInvalidArgument("No value was provided for radio button [%s].", field)
	}

	if el, ok := r.findByID(ctx, field); ok {
		return el, nil
	}
	return r.FirstOrFail(ctx, []string{
		fmt.Sprintf("input[type=radio][name=%s][value=%s]", quote(field), quote(value[0])),
		field,
	})
}

// ResolveForChecking resolves a checkbox. Both field and value narrow the match when given;
// an empty field matches any checkbox.
func (r *Resolver) ResolveForChecking(ctx context.Context, field string, value ...string) (schemas.Element, error) {
	if el, ok := r.findByID(ctx, field); ok {
		return el, nil
	}

	selector := "input[type=checkbox]"
	if field != "" {
		selector += fmt.Sprintf("[name=%s]", quote(field))
	}
	if len(value) > 0 {
		selector += fmt.Sprintf("[value=%s]", quote(value[0]))
	}

	candidates := []string{selector}
	if field != "" {
		candidates = append(candidates, field)
	}
	return r.FirstOrFail(ctx, candidates)
}

// ResolveForAttachment resolves a file input.
func (r *Resolver) ResolveForAttachment(ctx context.Context, field string) (schemas.Element, error) {
	if el, ok := r.findByID(ctx, field); ok {
		return el, nil
	}
	return r.FirstOrFail(ctx, []string{
		fmt.Sprintf("input[type=file][name=%s]", quote(field)),
		field,
	})
}

// ResolveForField resolves any form control.
func (r *Resolver) ResolveForField(ctx context.Context, field string) (schemas.Element, error) {
	if el, ok := r.findByID(ctx, field); ok {
		return el, nil
	}
	return r.FirstOrFail(ctx, []string{
		fmt.Sprintf("input[name=%s]", quote(field)),
		fmt.Sprintf("textarea[name=%s]", quote(field)),
		fmt.Sprintf("select[name=%s]", quote(field)),
		fmt.Sprintf("button[name=%s]", quote(field)),
		field,
	})
}

// ResolveForButtonPress resolves a button by ID, name, submit value, or visible text.
func (r *Resolver) ResolveForButtonPress(ctx context.Context, button string) (schemas.Element, error) {
	for _, find := range r.buttonFinders {
		if el, ok := find(ctx, button); ok {
			return el, nil
		}
	}
	return nil, schemas.NewInvalidArgument("Unable to locate button [%s].", button)
}

func (r *Resolver) findButtonByName(ctx context.Context, button string) (schemas.Element, bool) {
	for _, selector := range []string{
		fmt.Sprintf("input[type=submit][name=%s]", quote(button)),
		fmt.Sprintf("input[type=button][value=%s]", quote(button)),
		fmt.Sprintf("button[name=%s]", quote(button)),
	} {
		if el, ok := r.Find(ctx, selector); ok {
			return el, true
		}
	}
	return nil, false
}

func (r *Resolver) findButtonByValue(ctx context.Context, button string) (schemas.Element, bool) {
	for _, el := range r.All(ctx, "input[type=submit]") {
		value, ok, err := el.Attribute(ctx, "value")
		if err == nil && ok && value == button {
			return el, true
		}
	}
	return nil, false
}

func (r *Resolver) findButtonByText(ctx context.Context, button string) (schemas.Element, bool) {
	for _, el := range r.All(ctx, "button") {
		text, err := el.Text(ctx)
		if err == nil && strings.Contains(text, button) {
			return el, true
		}
	}
	return nil, false
}

// findByID looks up "#id" shortcuts directly. Selectors of any other shape, and
// IDs that do not exist, report false so callers fall through to their candidates.
func (r *Resolver) findByID(ctx context.Context, selector string) (schemas.Element, bool) {
	if !isIDShortcut(selector) {
		return nil, false
	}
	el, err := r.finder.FindElement(ctx, schemas.ByID, selector[1:])
	if err != nil {
		return nil, false
	}
	return el, true
}

func isIDShortcut(selector string) bool {
	return idShortcutPattern.MatchString(selector)
}

// quote renders s as a single-quoted CSS string.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}
