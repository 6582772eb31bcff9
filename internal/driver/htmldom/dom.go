package htmldom

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/dusk/api/schemas"
)

// query evaluates a locator against the subtree rooted at root.
// The root itself is never part of the result.
func query(root *html.Node, by schemas.By, value string) ([]*html.Node, error) {
	switch by {
	case schemas.ByCSSSelector:
		matcher, err := cascadia.Compile(value)
		if err != nil {
			return nil, schemas.NewInvalidArgument("invalid selector %q: %v", value, err)
		}
		return goquery.NewDocumentFromNode(root).FindMatcher(matcher).Nodes, nil
	case schemas.ByTagName:
		return query(root, schemas.ByCSSSelector, value)
	case schemas.ByID:
		return htmlquery.QueryAll(root, fmt.Sprintf(".//*[@id=%s]", xpathLiteral(value)))
	case schemas.ByXPath:
		nodes, err := htmlquery.QueryAll(root, value)
		if err != nil {
			return nil, schemas.NewInvalidArgument("invalid xpath %q: %v", value, err)
		}
		elements := nodes[:0]
		for _, n := range nodes {
			if n.Type == html.ElementNode {
				elements = append(elements, n)
			}
		}
		return elements, nil
	default:
		return nil, schemas.NewInvalidArgument("unsupported locator strategy %q", by)
	}
}

// xpathLiteral quotes s for use inside an XPath 1.0 expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}

func getAttr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := getAttr(n, key)
	return ok
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	attrs := n.Attr[:0]
	for _, attr := range n.Attr {
		if attr.Key != key {
			attrs = append(attrs, attr)
		}
	}
	n.Attr = attrs
}

func tagOf(n *html.Node) string {
	return strings.ToLower(n.Data)
}

func inputType(n *html.Node) string {
	t, _ := getAttr(n, "type")
	if t == "" {
		return "text"
	}
	return strings.ToLower(t)
}

// closest returns the nearest ancestor-or-self element with the given tag.
func closest(n *html.Node, tag string) *html.Node {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && tagOf(p) == tag {
			return p
		}
	}
	return nil
}

func documentRoot(n *html.Node) *html.Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

func findParentForm(element *html.Node) *html.Node {
	if formID, ok := getAttr(element, "form"); ok && formID != "" {
		root := documentRoot(element)
		if form := htmlquery.FindOne(root, fmt.Sprintf("//form[@id=%s]", xpathLiteral(formID))); form != nil {
			return form
		}
	}
	if element.Parent == nil {
		return nil
	}
	return closest(element.Parent, "form")
}

// textContent concatenates every descendant text node.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		for child := c.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return b.String()
}

// renderedText approximates innerText: hidden subtrees are skipped and
// whitespace is collapsed.
func renderedText(n *html.Node) string {
	var words []string
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			words = append(words, strings.Fields(c.Data)...)
			return
		case html.ElementNode:
			if !selfDisplayed(c) {
				return
			}
		}
		for child := c.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.Join(words, " ")
}

func setTextContent(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

var neverRendered = map[string]bool{
	"head": true, "script": true, "style": true, "template": true,
	"noscript": true, "meta": true, "link": true, "title": true,
}

// selfDisplayed applies the visibility rules that depend on the node alone.
func selfDisplayed(n *html.Node) bool {
	if neverRendered[tagOf(n)] || hasAttr(n, "hidden") {
		return false
	}
	if tagOf(n) == "input" && inputType(n) == "hidden" {
		return false
	}
	style, _ := getAttr(n, "style")
	for _, decl := range strings.Split(style, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.ToLower(strings.TrimSpace(val))
		if (prop == "display" && val == "none") || (prop == "visibility" && val == "hidden") {
			return false
		}
	}
	return true
}

// displayed reports whether n and every ancestor are rendered.
func displayed(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && !selfDisplayed(p) {
			return false
		}
	}
	return n.Parent != nil
}

func enabled(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		switch tagOf(p) {
		case "input", "button", "select", "textarea", "option", "optgroup", "fieldset":
			if hasAttr(p, "disabled") {
				return false
			}
		}
	}
	return true
}

// fieldValue returns the current value of a form control.
func fieldValue(n *html.Node) string {
	switch tagOf(n) {
	case "textarea":
		return textContent(n)
	case "select":
		if opt := firstSelectedOption(n); opt != nil {
			return optionValue(opt)
		}
		return ""
	case "option":
		return optionValue(n)
	}
	v, ok := getAttr(n, "value")
	if !ok && tagOf(n) == "input" && (inputType(n) == "checkbox" || inputType(n) == "radio") {
		return "on"
	}
	return v
}

func setFieldValue(n *html.Node, value string) {
	if tagOf(n) == "textarea" {
		setTextContent(n, value)
		return
	}
	if tagOf(n) == "select" {
		for _, opt := range htmlquery.Find(n, ".//option") {
			if optionValue(opt) == value {
				selectOption(opt)
				return
			}
		}
		return
	}
	setAttr(n, "value", value)
}

func optionValue(opt *html.Node) string {
	if v, ok := getAttr(opt, "value"); ok {
		return v
	}
	return strings.Join(strings.Fields(textContent(opt)), " ")
}

func firstSelectedOption(sel *html.Node) *html.Node {
	options := htmlquery.Find(sel, ".//option")
	for _, opt := range options {
		if hasAttr(opt, "selected") {
			return opt
		}
	}
	if len(options) > 0 && !hasAttr(sel, "multiple") {
		return options[0]
	}
	return nil
}

// selectOption marks opt selected, clearing its siblings for single selects.
func selectOption(opt *html.Node) {
	sel := closest(opt, "select")
	if sel != nil && hasAttr(sel, "multiple") {
		if hasAttr(opt, "selected") {
			removeAttr(opt, "selected")
		} else {
			setAttr(opt, "selected", "selected")
		}
		return
	}
	if sel != nil {
		for _, other := range htmlquery.Find(sel, ".//option") {
			removeAttr(other, "selected")
		}
	}
	setAttr(opt, "selected", "selected")
}

func checked(n *html.Node) bool {
	switch tagOf(n) {
	case "option":
		if hasAttr(n, "selected") {
			return true
		}
		if sel := closest(n, "select"); sel != nil {
			return firstSelectedOption(sel) == n
		}
		return false
	case "input":
		return hasAttr(n, "checked")
	}
	return false
}
