package htmldom

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"github.com/tebeka/selenium"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/dusk/api/schemas"
)

var (
	// ErrNotInteractable is returned when clicking or typing into an element
	// that is not displayed.
	ErrNotInteractable = errors.New("element not interactable")
	// ErrStaleElement is returned for elements no longer attached to the current document.
	ErrStaleElement = errors.New("stale element reference")
)

type element struct {
	s    *Session
	node *html.Node
}

// acquire locks the session and checks the element still belongs to its document.
func (e *element) acquire() error {
	if err := e.s.lock(); err != nil {
		return err
	}
	if documentRoot(e.node) != e.s.doc {
		e.s.mu.Unlock()
		return ErrStaleElement
	}
	return nil
}

func (e *element) Click(ctx context.Context) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.s.mu.Unlock()
	if !displayed(e.node) {
		return fmt.Errorf("click <%s>: %w", e.node.Data, ErrNotInteractable)
	}
	e.s.scriptCtx = ctx
	return e.s.activate(e.node)
}

// activate performs the default action of a click on n.
func (s *Session) activate(n *html.Node) error {
	if !enabled(n) {
		return nil
	}
	if handler, ok := getAttr(n, "onclick"); ok && handler != "" {
		prevented, err := s.runHandler(n, handler)
		if err != nil {
			s.consoleEntry("SEVERE", err.Error())
		}
		if prevented {
			return nil
		}
	}

	switch tagOf(n) {
	case "input":
		switch inputType(n) {
		case "checkbox":
			if hasAttr(n, "checked") {
				removeAttr(n, "checked")
			} else {
				setAttr(n, "checked", "checked")
			}
			return nil
		case "radio":
			s.checkRadio(n)
			return nil
		}
	case "option":
		selectOption(n)
		return nil
	case "label":
		if target := labelTarget(n); target != nil && target != n {
			return s.activate(target)
		}
	}

	if anchor := closest(n, "a"); anchor != nil {
		if href, ok := getAttr(anchor, "href"); ok && href != "" {
			if script, isJS := strings.CutPrefix(href, "javascript:"); isJS {
				_, err := s.vm.RunString(script)
				return err
			}
			return s.navigate(s.ctx(), href, true)
		}
	}

	if isSubmitter(n) {
		if form := findParentForm(n); form != nil {
			return s.submitForm(form, n)
		}
	}
	return nil
}

// runHandler runs an inline event handler with this bound to n and reports
// whether it returned false.
func (s *Session) runHandler(n *html.Node, handler string) (bool, error) {
	fnValue, err := s.vm.RunString("(function() {\n" + handler + "\n})")
	if err != nil {
		return false, scriptError(err)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return false, nil
	}
	vm := s.vm
	result, err := fn(s.wrapNode(vm, n))
	if err != nil {
		return false, scriptError(err)
	}
	return result != nil && result.StrictEquals(vm.ToValue(false)), nil
}

func (s *Session) checkRadio(n *html.Node) {
	if name, ok := getAttr(n, "name"); ok && name != "" {
		scope := findParentForm(n)
		if scope == nil {
			scope = documentRoot(n)
		}
		for _, radio := range htmlquery.Find(scope, fmt.Sprintf(".//input[@type='radio' and @name=%s]", xpathLiteral(name))) {
			removeAttr(radio, "checked")
		}
	}
	setAttr(n, "checked", "checked")
}

func labelTarget(label *html.Node) *html.Node {
	if id, ok := getAttr(label, "for"); ok && id != "" {
		nodes, _ := query(documentRoot(label), schemas.ByID, id)
		if len(nodes) > 0 {
			return nodes[0]
		}
		return nil
	}
	return htmlquery.FindOne(label, ".//input | .//select | .//textarea | .//button")
}

func isSubmitter(n *html.Node) bool {
	switch tagOf(n) {
	case "button":
		t, _ := getAttr(n, "type")
		t = strings.ToLower(t)
		return t == "" || t == "submit"
	case "input":
		t := inputType(n)
		return t == "submit" || t == "image"
	}
	return false
}

// submitForm serializes form the way a browser would and loads the response.
func (s *Session) submitForm(form, submitter *html.Node) error {
	action, _ := getAttr(form, "action")
	method, _ := getAttr(form, "method")
	method = strings.ToUpper(method)
	if method != http.MethodPost {
		method = http.MethodGet
	}
	if enctype, ok := getAttr(form, "enctype"); ok && enctype != "" && enctype != "application/x-www-form-urlencoded" {
		s.logger.Warn("Unsupported form enctype, submitting as urlencoded.", zap.String("enctype", enctype))
	}

	formData := url.Values{}
	for _, input := range htmlquery.Find(form, ".//input | .//textarea | .//select | .//button") {
		name, _ := getAttr(input, "name")
		if name == "" || !enabled(input) {
			continue
		}
		switch tagOf(input) {
		case "input":
			switch inputType(input) {
			case "checkbox", "radio":
				if hasAttr(input, "checked") {
					formData.Add(name, fieldValue(input))
				}
			case "submit", "image":
				if input == submitter {
					formData.Add(name, fieldValue(input))
				}
			case "reset", "button":
			default:
				formData.Add(name, fieldValue(input))
			}
		case "button":
			if input == submitter {
				formData.Add(name, fieldValue(input))
			}
		case "textarea":
			formData.Add(name, textContent(input))
		case "select":
			if hasAttr(input, "multiple") {
				for _, opt := range htmlquery.Find(input, ".//option") {
					if hasAttr(opt, "selected") {
						formData.Add(name, optionValue(opt))
					}
				}
			} else if opt := firstSelectedOption(input); opt != nil {
				formData.Add(name, optionValue(opt))
			}
		}
	}

	target, err := s.resolve(action)
	if err != nil {
		return err
	}
	ctx := s.ctx()
	var req *http.Request
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, target.String(), strings.NewReader(formData.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		submitURL := *target
		submitURL.RawQuery = formData.Encode()
		submitURL.Fragment = ""
		req, err = http.NewRequestWithContext(ctx, method, submitURL.String(), nil)
		if err != nil {
			return err
		}
	}
	return s.do(ctx, req, true)
}

func (e *element) SendKeys(ctx context.Context, keys string) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.s.mu.Unlock()
	if !displayed(e.node) {
		return fmt.Errorf("send keys to <%s>: %w", e.node.Data, ErrNotInteractable)
	}
	e.s.scriptCtx = ctx

	n := e.node
	if tagOf(n) == "input" && inputType(n) == "file" {
		setAttr(n, "value", keys)
		return nil
	}
	if tagOf(n) != "input" && tagOf(n) != "textarea" {
		return nil
	}

	value := []rune(fieldValue(n))
	for _, r := range keys {
		switch string(r) {
		case selenium.EnterKey, selenium.ReturnKey:
			if tagOf(n) == "textarea" {
				value = append(value, '\n')
				continue
			}
			setFieldValue(n, string(value))
			if form := findParentForm(n); form != nil {
				return e.s.submitForm(form, nil)
			}
			continue
		case selenium.BackspaceKey:
			if len(value) > 0 {
				value = value[:len(value)-1]
			}
			continue
		}
		// Remaining WebDriver keys live in the private use area and carry no text.
		if r >= 0xE000 && r <= 0xF8FF {
			continue
		}
		value = append(value, r)
	}
	setFieldValue(n, string(value))
	return nil
}

func (e *element) Clear(context.Context) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.s.mu.Unlock()
	switch tagOf(e.node) {
	case "input", "textarea":
		setFieldValue(e.node, "")
	}
	return nil
}

func (e *element) Text(context.Context) (string, error) {
	if err := e.acquire(); err != nil {
		return "", err
	}
	defer e.s.mu.Unlock()
	if !displayed(e.node) {
		return "", nil
	}
	return renderedText(e.node), nil
}

// Attribute follows WebDriver's "get element attribute" conventions: form
// state properties win over the markup, and boolean attributes read "true".
func (e *element) Attribute(_ context.Context, name string) (string, bool, error) {
	if err := e.acquire(); err != nil {
		return "", false, err
	}
	defer e.s.mu.Unlock()

	n := e.node
	switch strings.ToLower(name) {
	case "value":
		switch tagOf(n) {
		case "input", "textarea", "select", "option", "button":
			return fieldValue(n), true, nil
		}
	case "checked", "selected":
		if checked(n) {
			return "true", true, nil
		}
		return "", false, nil
	case "disabled", "readonly", "required", "multiple", "hidden":
		if hasAttr(n, strings.ToLower(name)) {
			return "true", true, nil
		}
		return "", false, nil
	}
	v, ok := getAttr(n, name)
	return v, ok, nil
}

func (e *element) TagName(context.Context) (string, error) {
	if err := e.acquire(); err != nil {
		return "", err
	}
	defer e.s.mu.Unlock()
	return tagOf(e.node), nil
}

func (e *element) IsDisplayed(context.Context) (bool, error) {
	if err := e.acquire(); err != nil {
		return false, err
	}
	defer e.s.mu.Unlock()
	if tagOf(e.node) == "option" {
		if sel := closest(e.node, "select"); sel != nil {
			return displayed(sel), nil
		}
	}
	return displayed(e.node), nil
}

func (e *element) IsEnabled(context.Context) (bool, error) {
	if err := e.acquire(); err != nil {
		return false, err
	}
	defer e.s.mu.Unlock()
	return enabled(e.node), nil
}

func (e *element) IsSelected(context.Context) (bool, error) {
	if err := e.acquire(); err != nil {
		return false, err
	}
	defer e.s.mu.Unlock()
	return checked(e.node), nil
}

func (e *element) FindElements(_ context.Context, by schemas.By, value string) ([]schemas.Element, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.s.mu.Unlock()
	return e.s.wrapAll(e.node, by, value)
}

var _ schemas.Element = (*element)(nil)
