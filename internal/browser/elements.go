package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dusk/api/schemas"
	"github.com/xkilldash9x/dusk/internal/browser/wait"
)

// DefaultTypingPause is the delay between keystrokes of TypeSlowly and AppendSlowly.
const DefaultTypingPause = 100 * time.Millisecond

// Elements returns every element matching selector in the current scope.
func (b *Browser) Elements(ctx context.Context, selector string) []schemas.Element {
	return b.resolver.All(ctx, selector)
}

// Element returns the first element matching selector, or nil.
func (b *Browser) Element(ctx context.Context, selector string) schemas.Element {
	el, _ := b.resolver.Find(ctx, selector)
	return el
}

// Click clicks the element matching selector.
func (b *Browser) Click(ctx context.Context, selector string) error {
	el, err := b.resolver.FindOrFail(ctx, selector)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

// ClickAtXPath clicks the first element matching an XPath expression.
// The expression is not scoped.
func (b *Browser) ClickAtXPath(ctx context.Context, expression string) error {
	el, err := b.driver.FindElement(ctx, schemas.ByXPath, expression)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

// ClickLink clicks the first visible link whose text contains link.
func (b *Browser) ClickLink(ctx context.Context, link string) error {
	return b.ClickLinkIn(ctx, link, "a")
}

// ClickLinkIn is ClickLink for elements other than anchors.
func (b *Browser) ClickLinkIn(ctx context.Context, link, element string) error {
	el, ok := b.findLink(ctx, link, element)
	if !ok {
		return &schemas.NotFoundError{Selector: b.resolver.Format(element) + " containing [" + link + "]"}
	}
	return el.Click(ctx)
}

func (b *Browser) findLink(ctx context.Context, link, element string) (schemas.Element, bool) {
	for _, el := range b.resolver.All(ctx, element) {
		if visible, err := el.IsDisplayed(ctx); err != nil || !visible {
			continue
		}
		text, err := el.Text(ctx)
		if err != nil {
			continue
		}
		if strings.Contains(text, link) {
			return el, true
		}
	}
	return nil, false
}

// Value returns the value attribute of the element matching selector.
func (b *Browser) Value(ctx context.Context, selector string) (string, error) {
	el, err := b.resolver.FindOrFail(ctx, selector)
	if err != nil {
		return "", err
	}
	v, _, err := el.Attribute(ctx, "value")
	return v, err
}

// SetValue assigns the value property of the element matching selector directly,
// without firing input events.
func (b *Browser) SetValue(ctx context.Context, selector, value string) error {
	script := fmt.Sprintf("document.querySelector(%s).value = %s;", jsString(b.resolver.Format(selector)), jsString(value))
	_, err := b.driver.ExecuteScript(ctx, script, nil)
	return err
}

// Text returns the visible text of the element matching selector.
func (b *Browser) Text(ctx context.Context, selector string) (string, error) {
	el, err := b.resolver.FindOrFail(ctx, selector)
	if err != nil {
		return "", err
	}
	return el.Text(ctx)
}

// Attribute returns attribute of the element matching selector.
func (b *Browser) Attribute(ctx context.Context, selector, attribute string) (string, error) {
	el, err := b.resolver.FindOrFail(ctx, selector)
	if err != nil {
		return "", err
	}
	v, _, err := el.Attribute(ctx, attribute)
	return v, err
}

// Keys sends keys to the element matching selector. Tokens such as {enter}
// or {shift} are translated to WebDriver key codes.
func (b *Browser) Keys(ctx context.Context, selector string, keys ...string) error {
	el, err := b.resolver.FindOrFail(ctx, selector)
	if err != nil {
		return err
	}
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(ParseKey(k))
	}
	return el.SendKeys(ctx, sb.String())
}

// Type replaces the content of a text field.
func (b *Browser) Type(ctx context.Context, field, value string) error {
	el, err := b.resolver.ResolveForTyping(ctx, field)
	if err != nil {
		return err
	}
	if err := el.Clear(ctx); err != nil {
		return err
	}
	return el.SendKeys(ctx, value)
}

// TypeSlowly clears a text field and types value one character at a time.
// A zero pause selects DefaultTypingPause.
func (b *Browser) TypeSlowly(ctx context.Context, field, value string, pause time.Duration) error {
	if err := b.Clear(ctx, field); err != nil {
		return err
	}
	return b.AppendSlowly(ctx, field, value, pause)
}

// Append adds value to the end of a text field.
func (b *Browser) Append(ctx context.Context, field, value string) error {
	el, err := b.resolver.ResolveForTyping(ctx, field)
	if err != nil {
		return err
	}
	return el.SendKeys(ctx, value)
}

// AppendSlowly appends value one character at a time.
func (b *Browser) AppendSlowly(ctx context.Context, field, value string, pause time.Duration) error {
	if pause <= 0 {
		pause = DefaultTypingPause
	}
	for _, r := range value {
		if err := b.Append(ctx, field, string(r)); err != nil {
			return err
		}
		if err := b.Pause(ctx, pause); err != nil {
			return err
		}
	}
	return nil
}

// Clear empties a text field.
func (b *Browser) Clear(ctx context.Context, field string) error {
	el, err := b.resolver.ResolveForTyping(ctx, field)
	if err != nil {
		return err
	}
	return el.Clear(ctx)
}

// Select chooses the enabled option whose value is value. Nothing happens
// when no option matches.
func (b *Browser) Select(ctx context.Context, field, value string) error {
	options, err := b.enabledOptions(ctx, field)
	if err != nil {
		return err
	}
	for _, option := range options {
		v, _, err := option.Attribute(ctx, "value")
		if err != nil {
			continue
		}
		if v == value {
			return option.Click(ctx)
		}
	}
	b.logger.Debug("No option matched, selection unchanged.", zap.String("field", field), zap.String("value", value))
	return nil
}

// SelectRandom chooses one of the enabled options at random.
func (b *Browser) SelectRandom(ctx context.Context, field string) error {
	options, err := b.enabledOptions(ctx, field)
	if err != nil {
		return err
	}
	if len(options) == 0 {
		return schemas.NewInvalidArgument("Selection field [%s] has no enabled options.", field)
	}
	return options[rand.Intn(len(options))].Click(ctx)
}

func (b *Browser) enabledOptions(ctx context.Context, field string) ([]schemas.Element, error) {
	el, err := b.resolver.ResolveForSelection(ctx, field)
	if err != nil {
		return nil, err
	}
	return el.FindElements(ctx, schemas.ByCSSSelector, "option:not([disabled])")
}

// Radio selects the radio button named field with the given value.
func (b *Browser) Radio(ctx context.Context, field, value string) error {
	el, err := b.resolver.ResolveForRadioSelection(ctx, field, value)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

// Check ticks a checkbox unless it already is. value optionally narrows the match.
func (b *Browser) Check(ctx context.Context, field string, value ...string) error {
	return b.setChecked(ctx, true, field, value...)
}

// Uncheck clears a checkbox unless it already is.
func (b *Browser) Uncheck(ctx context.Context, field string, value ...string) error {
	return b.setChecked(ctx, false, field, value...)
}

func (b *Browser) setChecked(ctx context.Context, want bool, field string, value ...string) error {
	el, err := b.resolver.ResolveForChecking(ctx, field, value...)
	if err != nil {
		return err
	}
	selected, err := el.IsSelected(ctx)
	if err != nil {
		return err
	}
	if selected == want {
		return nil
	}
	return el.Click(ctx)
}

// Attach sets the path of a file input.
func (b *Browser) Attach(ctx context.Context, field, path string) error {
	el, err := b.resolver.ResolveForAttachment(ctx, field)
	if err != nil {
		return err
	}
	return el.SendKeys(ctx, path)
}

// Press clicks the button identified by its text, name, value or selector.
func (b *Browser) Press(ctx context.Context, button string) error {
	el, err := b.resolver.ResolveForButtonPress(ctx, button)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

// PressAndWaitFor presses a button and waits until it is enabled again.
// A zero timeout selects five seconds.
func (b *Browser) PressAndWaitFor(ctx context.Context, button string, timeout time.Duration) error {
	el, err := b.resolver.ResolveForButtonPress(ctx, button)
	if err != nil {
		return err
	}
	if err := el.Click(ctx); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = wait.DefaultTimeout
	}
	return b.waiter.WaitUsing(ctx, timeout, wait.DefaultInterval, el.IsEnabled, "")
}

// ScrollIntoView scrolls the element matching selector into the viewport.
func (b *Browser) ScrollIntoView(ctx context.Context, selector string) error {
	script := fmt.Sprintf("document.querySelector(%s).scrollIntoView();", jsString(b.resolver.Format(selector)))
	_, err := b.driver.ExecuteScript(ctx, script, nil)
	return err
}

// AcceptDialog accepts the open JavaScript dialog.
func (b *Browser) AcceptDialog(ctx context.Context) error { return b.driver.AcceptAlert(ctx) }

// TypeInDialog enters value into the open prompt dialog.
func (b *Browser) TypeInDialog(ctx context.Context, value string) error {
	return b.driver.SetAlertText(ctx, value)
}

// DismissDialog dismisses the open JavaScript dialog.
func (b *Browser) DismissDialog(ctx context.Context) error { return b.driver.DismissAlert(ctx) }

// Script runs each script and returns their JSON encoded results in order.
func (b *Browser) Script(ctx context.Context, scripts ...string) ([]json.RawMessage, error) {
	results := make([]json.RawMessage, 0, len(scripts))
	for _, script := range scripts {
		raw, err := b.driver.ExecuteScript(ctx, script, nil)
		if err != nil {
			return results, err
		}
		results = append(results, raw)
	}
	return results, nil
}

func (b *Browser) scriptInto(ctx context.Context, out interface{}, script string) error {
	raw, err := b.driver.ExecuteScript(ctx, script, nil)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return errors.New("script returned no value")
	}
	return json.Unmarshal(raw, out)
}

// truthy applies JavaScript truthiness to a JSON encoded value.
func truthy(raw json.RawMessage) bool {
	var v interface{}
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
