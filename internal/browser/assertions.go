package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/xkilldash9x/dusk/api/schemas"
)

// ErrAssertionFailed is matched by every AssertionError.
var ErrAssertionFailed = errors.New("assertion failed")

// AssertionError is a failed expectation about the page. Lookup and driver
// failures are returned as they are, never as an AssertionError.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string { return e.Message }

func (e *AssertionError) Is(target error) bool { return target == ErrAssertionFailed }

func failf(format string, args ...interface{}) error {
	return &AssertionError{Message: fmt.Sprintf(format, args...)}
}

// AssertTitle asserts the page title equals title.
func (b *Browser) AssertTitle(ctx context.Context, title string) error {
	actual, err := b.driver.Title(ctx)
	if err != nil {
		return err
	}
	if actual != title {
		return failf("Expected title [%s] does not equal actual title [%s].", title, actual)
	}
	return nil
}

// AssertTitleContains asserts the page title contains title.
func (b *Browser) AssertTitleContains(ctx context.Context, title string) error {
	actual, err := b.driver.Title(ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(actual, title) {
		return failf("Did not see expected text [%s] within title [%s].", title, actual)
	}
	return nil
}

// AssertHasCookie asserts the named cookie exists.
func (b *Browser) AssertHasCookie(ctx context.Context, name string) error {
	_, ok, err := b.PlainCookie(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return failf("Did not find expected cookie [%s].", name)
	}
	return nil
}

// AssertCookieMissing asserts the named cookie does not exist.
func (b *Browser) AssertCookieMissing(ctx context.Context, name string) error {
	_, ok, err := b.PlainCookie(ctx, name)
	if err != nil {
		return err
	}
	if ok {
		return failf("Found unexpected cookie [%s].", name)
	}
	return nil
}

// AssertCookieValue asserts the decoded value of the named cookie.
func (b *Browser) AssertCookieValue(ctx context.Context, name, value string) error {
	actual, _, err := b.PlainCookie(ctx, name)
	if err != nil {
		return err
	}
	if actual != value {
		return failf("Cookie [%s] had value [%s], but expected [%s].", name, actual, value)
	}
	return nil
}

// AssertSee asserts the scope's text contains text.
func (b *Browser) AssertSee(ctx context.Context, text string) error {
	return b.AssertSeeIn(ctx, "", text)
}

// AssertDontSee asserts the scope's text does not contain text.
func (b *Browser) AssertDontSee(ctx context.Context, text string) error {
	return b.AssertDontSeeIn(ctx, "", text)
}

// AssertSeeIn asserts the element matching selector contains text.
func (b *Browser) AssertSeeIn(ctx context.Context, selector, text string) error {
	actual, err := b.Text(ctx, selector)
	if err != nil {
		return err
	}
	if !strings.Contains(actual, text) {
		return failf("Did not see expected text [%s] within element [%s].", text, b.resolver.Format(selector))
	}
	return nil
}

// AssertDontSeeIn asserts the element matching selector does not contain text.
func (b *Browser) AssertDontSeeIn(ctx context.Context, selector, text string) error {
	actual, err := b.Text(ctx, selector)
	if err != nil {
		return err
	}
	if strings.Contains(actual, text) {
		return failf("Saw unexpected text [%s] within element [%s].", text, b.resolver.Format(selector))
	}
	return nil
}

// AssertSeeAnythingIn asserts the element matching selector has some text.
func (b *Browser) AssertSeeAnythingIn(ctx context.Context, selector string) error {
	actual, err := b.Text(ctx, selector)
	if err != nil {
		return err
	}
	if actual == "" {
		return failf("Saw unexpected text [''] within element [%s].", b.resolver.Format(selector))
	}
	return nil
}

// AssertSeeNothingIn asserts the element matching selector has no text.
func (b *Browser) AssertSeeNothingIn(ctx context.Context, selector string) error {
	actual, err := b.Text(ctx, selector)
	if err != nil {
		return err
	}
	if actual != "" {
		return failf("Did not see expected text [''] within element [%s].", b.resolver.Format(selector))
	}
	return nil
}

// AssertScript asserts a JavaScript expression evaluates to expected, or to
// true when expected is omitted. Values are compared by their JSON form.
func (b *Browser) AssertScript(ctx context.Context, expression string, expected ...interface{}) error {
	if !strings.HasPrefix(expression, "return ") {
		expression = "return " + expression
	}
	var want interface{} = true
	if len(expected) > 0 {
		want = expected[0]
	}

	raw, err := b.driver.ExecuteScript(ctx, expression, nil)
	if err != nil {
		return err
	}
	var actual interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &actual); err != nil {
			return fmt.Errorf("failed to decode result of [%s]: %w", expression, err)
		}
	}
	normalized, err := normalizeJSON(want)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(normalized, actual) {
		return failf("JavaScript expression [%s] mismatched.", expression)
	}
	return nil
}

func normalizeJSON(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	err = json.Unmarshal(raw, &out)
	return out, err
}

// AssertSourceHas asserts the page source contains code.
func (b *Browser) AssertSourceHas(ctx context.Context, code string) error {
	b.madeSourceAssertion = true
	source, err := b.driver.PageSource(ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(source, code) {
		return failf("Did not find expected source code [%s].", code)
	}
	return nil
}

// AssertSourceMissing asserts the page source does not contain code.
func (b *Browser) AssertSourceMissing(ctx context.Context, code string) error {
	b.madeSourceAssertion = true
	source, err := b.driver.PageSource(ctx)
	if err != nil {
		return err
	}
	if strings.Contains(source, code) {
		return failf("Found unexpected source code [%s].", code)
	}
	return nil
}

// SeeLink reports whether a visible link containing link exists in the scope.
func (b *Browser) SeeLink(ctx context.Context, link string) bool {
	_, ok := b.findLink(ctx, link, "a")
	return ok
}

// AssertSeeLink asserts a visible link containing link exists in the scope.
func (b *Browser) AssertSeeLink(ctx context.Context, link string) error {
	if b.SeeLink(ctx, link) {
		return nil
	}
	if prefix := b.resolver.Prefix(); prefix != "" {
		return failf("Did not see expected link [%s] within [%s].", link, prefix)
	}
	return failf("Did not see expected link [%s].", link)
}

// AssertDontSeeLink asserts no visible link containing link exists in the scope.
func (b *Browser) AssertDontSeeLink(ctx context.Context, link string) error {
	if !b.SeeLink(ctx, link) {
		return nil
	}
	if prefix := b.resolver.Prefix(); prefix != "" {
		return failf("Saw unexpected link [%s] within [%s].", link, prefix)
	}
	return failf("Saw unexpected link [%s].", link)
}

// InputValue returns the value of a text field, or the text of any other element.
func (b *Browser) InputValue(ctx context.Context, field string) (string, error) {
	el, err := b.resolver.ResolveForTyping(ctx, field)
	if err != nil {
		return "", err
	}
	tag, err := el.TagName(ctx)
	if err != nil {
		return "", err
	}
	if tag = strings.ToLower(tag); tag == "input" || tag == "textarea" {
		v, _, err := el.Attribute(ctx, "value")
		return v, err
	}
	return el.Text(ctx)
}

// AssertInputValue asserts the value of a text field.
func (b *Browser) AssertInputValue(ctx context.Context, field, value string) error {
	actual, err := b.InputValue(ctx, field)
	if err != nil {
		return err
	}
	if actual != value {
		return failf("Expected value [%s] for the [%s] input does not equal the actual value [%s].", value, field, actual)
	}
	return nil
}

// AssertInputValueIsNot asserts a text field does not hold value.
func (b *Browser) AssertInputValueIsNot(ctx context.Context, field, value string) error {
	actual, err := b.InputValue(ctx, field)
	if err != nil {
		return err
	}
	if actual == value {
		return failf("Value [%s] for the [%s] input should not equal the actual value.", value, field)
	}
	return nil
}

// AssertChecked asserts a checkbox is ticked.
func (b *Browser) AssertChecked(ctx context.Context, field string, value ...string) error {
	selected, err := b.isSelected(ctx, b.resolver.ResolveForChecking, field, value...)
	if err != nil {
		return err
	}
	if !selected {
		return failf("Expected checkbox [%s] to be checked, but it wasn't.", field)
	}
	return nil
}

// AssertNotChecked asserts a checkbox is not ticked.
func (b *Browser) AssertNotChecked(ctx context.Context, field string, value ...string) error {
	selected, err := b.isSelected(ctx, b.resolver.ResolveForChecking, field, value...)
	if err != nil {
		return err
	}
	if selected {
		return failf("Checkbox [%s] was unexpectedly checked.", field)
	}
	return nil
}

// AssertRadioSelected asserts the radio button with value is selected.
func (b *Browser) AssertRadioSelected(ctx context.Context, field, value string) error {
	selected, err := b.isSelected(ctx, b.resolver.ResolveForRadioSelection, field, value)
	if err != nil {
		return err
	}
	if !selected {
		return failf("Expected radio [%s] to be selected, but it wasn't.", field)
	}
	return nil
}

// AssertRadioNotSelected asserts the radio button with value is not selected.
func (b *Browser) AssertRadioNotSelected(ctx context.Context, field, value string) error {
	selected, err := b.isSelected(ctx, b.resolver.ResolveForRadioSelection, field, value)
	if err != nil {
		return err
	}
	if selected {
		return failf("Radio [%s] was unexpectedly selected.", field)
	}
	return nil
}

type checkResolver func(ctx context.Context, field string, value ...string) (schemas.Element, error)

func (b *Browser) isSelected(ctx context.Context, resolve checkResolver, field string, value ...string) (bool, error) {
	el, err := resolve(ctx, field, value...)
	if err != nil {
		return false, err
	}
	return el.IsSelected(ctx)
}

// Selected reports whether the option with value is selected in the select box field.
func (b *Browser) Selected(ctx context.Context, field, value string) (bool, error) {
	options, err := b.resolver.ResolveSelectOptions(ctx, field, []string{value})
	if err != nil {
		return false, err
	}
	for _, option := range options {
		if ok, err := option.IsSelected(ctx); err == nil && ok {
			return true, nil
		}
	}
	return false, nil
}

// AssertSelected asserts value is selected in the select box field.
func (b *Browser) AssertSelected(ctx context.Context, field, value string) error {
	selected, err := b.Selected(ctx, field, value)
	if err != nil {
		return err
	}
	if !selected {
		return failf("Expected value [%s] to be selected for [%s], but it wasn't.", value, field)
	}
	return nil
}

// AssertNotSelected asserts value is not selected in the select box field.
func (b *Browser) AssertNotSelected(ctx context.Context, field, value string) error {
	selected, err := b.Selected(ctx, field, value)
	if err != nil {
		return err
	}
	if selected {
		return failf("Unexpected value [%s] selected for [%s].", value, field)
	}
	return nil
}

// AssertSelectHasOptions asserts every value is offered by the select box field.
func (b *Browser) AssertSelectHasOptions(ctx context.Context, field string, values ...string) error {
	options, err := b.resolver.ResolveSelectOptions(ctx, field, values)
	if err != nil {
		return err
	}
	unique := make(map[string]struct{}, len(options))
	for _, option := range options {
		v, _, err := option.Attribute(ctx, "value")
		if err != nil {
			return err
		}
		unique[v] = struct{}{}
	}
	if len(unique) != len(values) {
		return failf("Expected options [%s] for selection field [%s] to be available.", strings.Join(values, ","), field)
	}
	return nil
}

// AssertSelectMissingOptions asserts none of values is offered by the select box field.
func (b *Browser) AssertSelectMissingOptions(ctx context.Context, field string, values ...string) error {
	options, err := b.resolver.ResolveSelectOptions(ctx, field, values)
	if err != nil {
		return err
	}
	if len(options) != 0 {
		return failf("Unexpected options [%s] for selection field [%s].", strings.Join(values, ","), field)
	}
	return nil
}

// AssertValue asserts the value attribute of the element matching selector.
func (b *Browser) AssertValue(ctx context.Context, selector, value string) error {
	actual, err := b.Value(ctx, selector)
	if err != nil {
		return err
	}
	if actual != value {
		return failf("Did not see expected value [%s] within element [%s].", value, b.resolver.Format(selector))
	}
	return nil
}

// AssertAttribute asserts attribute is present on the element matching selector with value.
func (b *Browser) AssertAttribute(ctx context.Context, selector, attribute, value string) error {
	el, err := b.resolver.FindOrFail(ctx, selector)
	if err != nil {
		return err
	}
	actual, ok, err := el.Attribute(ctx, attribute)
	if err != nil {
		return err
	}
	if !ok {
		return failf("Did not see expected attribute [%s] within element [%s].", attribute, b.resolver.Format(selector))
	}
	if actual != value {
		return failf("Expected '%s' attribute [%s] does not equal actual value [%s].", attribute, value, actual)
	}
	return nil
}

// AssertAriaAttribute asserts an aria-* attribute.
func (b *Browser) AssertAriaAttribute(ctx context.Context, selector, attribute, value string) error {
	return b.AssertAttribute(ctx, selector, "aria-"+attribute, value)
}

// AssertDataAttribute asserts a data-* attribute.
func (b *Browser) AssertDataAttribute(ctx context.Context, selector, attribute, value string) error {
	return b.AssertAttribute(ctx, selector, "data-"+attribute, value)
}

// AssertVisible asserts the element matching selector is displayed.
func (b *Browser) AssertVisible(ctx context.Context, selector string) error {
	el, err := b.resolver.FindOrFail(ctx, selector)
	if err != nil {
		return err
	}
	visible, err := el.IsDisplayed(ctx)
	if err != nil {
		return err
	}
	if !visible {
		return failf("Element [%s] is not visible.", b.resolver.Format(selector))
	}
	return nil
}

// AssertPresent asserts selector matches an element, visible or not.
func (b *Browser) AssertPresent(ctx context.Context, selector string) error {
	if _, ok := b.resolver.Find(ctx, selector); !ok {
		return failf("Element [%s] is not present.", b.resolver.Format(selector))
	}
	return nil
}

// AssertMissing asserts selector matches nothing visible.
func (b *Browser) AssertMissing(ctx context.Context, selector string) error {
	el, err := b.resolver.FindOrFail(ctx, selector)
	if errors.Is(err, schemas.ErrNoSuchElement) {
		return nil
	}
	if err != nil {
		return err
	}
	visible, err := el.IsDisplayed(ctx)
	if err != nil {
		return err
	}
	if visible {
		return failf("Saw unexpected element [%s].", b.resolver.Format(selector))
	}
	return nil
}

// AssertDialogOpened asserts an open dialog shows message.
func (b *Browser) AssertDialogOpened(ctx context.Context, message string) error {
	actual, err := b.driver.AlertText(ctx)
	if err != nil {
		return err
	}
	if actual != message {
		return failf("Expected dialog message [%s] does not equal actual message [%s].", message, actual)
	}
	return nil
}

// AssertEnabled asserts the form field is enabled.
func (b *Browser) AssertEnabled(ctx context.Context, field string) error {
	return b.assertEnabled(ctx, b.resolver.ResolveForField, field, true, "Expected element [%s] to be enabled, but it wasn't.")
}

// AssertDisabled asserts the form field is disabled.
func (b *Browser) AssertDisabled(ctx context.Context, field string) error {
	return b.assertEnabled(ctx, b.resolver.ResolveForField, field, false, "Expected element [%s] to be disabled, but it wasn't.")
}

// AssertButtonEnabled asserts the button is enabled.
func (b *Browser) AssertButtonEnabled(ctx context.Context, button string) error {
	return b.assertEnabled(ctx, b.resolver.ResolveForButtonPress, button, true, "Expected button [%s] to be enabled, but it wasn't.")
}

// AssertButtonDisabled asserts the button is disabled.
func (b *Browser) AssertButtonDisabled(ctx context.Context, button string) error {
	return b.assertEnabled(ctx, b.resolver.ResolveForButtonPress, button, false, "Expected button [%s] to be disabled, but it wasn't.")
}

func (b *Browser) assertEnabled(ctx context.Context, resolve func(context.Context, string) (schemas.Element, error), field string, want bool, message string) error {
	el, err := resolve(ctx, field)
	if err != nil {
		return err
	}
	enabled, err := el.IsEnabled(ctx)
	if err != nil {
		return err
	}
	if enabled != want {
		return failf(message, field)
	}
	return nil
}
