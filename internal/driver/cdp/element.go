package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/dusk/api/schemas"
)

// Functions evaluated with the element bound to this.
const (
	jsDisplayed = `function() {
	if (!this.isConnected) return false;
	var el = this;
	if (el.tagName === 'OPTION' && el.closest('select')) el = el.closest('select');
	for (var n = el; n && n.nodeType === 1; n = n.parentElement) {
		var style = window.getComputedStyle(n);
		if (style.display === 'none') return false;
	}
	if (window.getComputedStyle(el).visibility === 'hidden') return false;
	return el.getClientRects().length > 0 || el.tagName === 'OPTION';
}`
	jsText = `function() {
	return (this.innerText || '').replace(/\s+/g, ' ').trim();
}`
	jsClear = `function() {
	if ('value' in this) this.value = '';
	else if (this.isContentEditable) this.textContent = '';
	this.dispatchEvent(new Event('input', {bubbles: true}));
	this.dispatchEvent(new Event('change', {bubbles: true}));
}`
	jsAttribute = `function(name) {
	var lower = name.toLowerCase();
	if (lower === 'value' && 'value' in this) return {value: String(this.value), present: true};
	if (lower === 'checked' || lower === 'selected') {
		return this[lower] ? {value: 'true', present: true} : {value: '', present: false};
	}
	if (['disabled', 'readonly', 'required', 'multiple', 'hidden'].indexOf(lower) >= 0) {
		return this.hasAttribute(lower) ? {value: 'true', present: true} : {value: '', present: false};
	}
	var v = this.getAttribute(name);
	return v === null ? {value: '', present: false} : {value: v, present: true};
}`
	jsTagName   = `function() { return this.tagName.toLowerCase(); }`
	jsInputType = `function() { return (this.type || '').toLowerCase(); }`
	jsEnabled   = `function() { return !this.disabled && !this.closest('fieldset[disabled]'); }`
	jsSelected  = `function() { return !!(this.checked || this.selected); }`
)

// element is a node handle. Handles go stale when the document is replaced.
type element struct {
	d    *Driver
	node *cdp.Node
}

var _ schemas.Element = (*element)(nil)

// call runs fn with this bound to the node and decodes its return value into res.
func (e *element) call(ctx context.Context, fn string, res interface{}, args ...interface{}) error {
	declaration, err := callDeclaration(fn, args)
	if err != nil {
		return err
	}
	return e.d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(e.node.BackendNodeID).Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve node: %w", err)
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

		result, exception, err := runtime.CallFunctionOn(declaration).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			WithAwaitPromise(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exception != nil {
			return fmt.Errorf("javascript error: %s", exceptionText(exception))
		}
		if res == nil || result == nil || len(result.Value) == 0 {
			return nil
		}
		return json.Unmarshal([]byte(result.Value), res)
	}))
}

// callDeclaration wraps fn so the JSON-encoded args are applied to it with
// the node as receiver.
func callDeclaration(fn string, args []interface{}) (string, error) {
	if len(args) == 0 {
		return fn, nil
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode function arguments: %w", err)
	}
	return "function() { return (" + fn + ").apply(this, " + string(encoded) + "); }", nil
}

func exceptionText(details *runtime.ExceptionDetails) string {
	if details.Exception != nil && details.Exception.Description != "" {
		return strings.SplitN(details.Exception.Description, "\n", 2)[0]
	}
	return details.Text
}

func (e *element) Click(ctx context.Context) error {
	return e.d.run(ctx, chromedp.MouseClickNode(e.node))
}

func (e *element) SendKeys(ctx context.Context, keys string) error {
	tag, err := e.TagName(ctx)
	if err != nil {
		return err
	}
	if tag == "input" {
		var kind string
		if err := e.call(ctx, jsInputType, &kind); err != nil {
			return err
		}
		if kind == "file" {
			return e.d.run(ctx, chromedp.SetUploadFiles([]cdp.NodeID{e.node.NodeID}, []string{keys}, chromedp.ByNodeID))
		}
	}
	return e.d.run(ctx, chromedp.KeyEventNode(e.node, keys))
}

func (e *element) Clear(ctx context.Context) error {
	return e.call(ctx, jsClear, nil)
}

func (e *element) Text(ctx context.Context) (string, error) {
	shown, err := e.IsDisplayed(ctx)
	if err != nil || !shown {
		return "", err
	}
	var text string
	err = e.call(ctx, jsText, &text)
	return text, err
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var res struct {
		Value   string `json:"value"`
		Present bool   `json:"present"`
	}
	if err := e.call(ctx, jsAttribute, &res, name); err != nil {
		return "", false, err
	}
	return res.Value, res.Present, nil
}

func (e *element) TagName(ctx context.Context) (string, error) {
	var tag string
	err := e.call(ctx, jsTagName, &tag)
	return tag, err
}

func (e *element) IsDisplayed(ctx context.Context) (bool, error) {
	var shown bool
	err := e.call(ctx, jsDisplayed, &shown)
	return shown, err
}

func (e *element) IsEnabled(ctx context.Context) (bool, error) {
	var on bool
	err := e.call(ctx, jsEnabled, &on)
	return on, err
}

func (e *element) IsSelected(ctx context.Context) (bool, error) {
	var on bool
	err := e.call(ctx, jsSelected, &on)
	return on, err
}

func (e *element) FindElements(ctx context.Context, by schemas.By, value string) ([]schemas.Element, error) {
	return e.d.query(ctx, e.node, by, value)
}
