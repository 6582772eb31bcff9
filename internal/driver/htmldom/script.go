package htmldom

import (
	"bytes"
	"context"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/dusk/api/schemas"
)

// consolePrinter routes console.* calls into the session's browser log.
type consolePrinter struct {
	s *Session
}

func (p *consolePrinter) Log(msg string)   { p.s.consoleEntry("INFO", msg) }
func (p *consolePrinter) Warn(msg string)  { p.s.consoleEntry("WARNING", msg) }
func (p *consolePrinter) Error(msg string) { p.s.consoleEntry("SEVERE", msg) }

// newRuntime builds a runtime bound to the current document.
func (s *Session) newRuntime() *goja.Runtime {
	vm := goja.New()

	registry := new(require.Registry)
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(&consolePrinter{s: s}))
	registry.Enable(vm)
	console.Enable(vm)

	global := vm.GlobalObject()
	_ = global.Set("window", global)
	_ = global.Set("innerWidth", s.width)
	_ = global.Set("innerHeight", s.height)
	_ = global.Set("location", s.locationObject(vm))
	_ = global.Set("document", s.documentObject(vm))

	_ = global.Set("alert", func(call goja.FunctionCall) goja.Value {
		s.openDialog("alert", call.Argument(0).String(), "")
		return goja.Undefined()
	})
	_ = global.Set("confirm", func(call goja.FunctionCall) goja.Value {
		s.openDialog("confirm", call.Argument(0).String(), "")
		return vm.ToValue(false)
	})
	_ = global.Set("prompt", func(call goja.FunctionCall) goja.Value {
		def := ""
		if len(call.Arguments) > 1 {
			def = call.Argument(1).String()
		}
		s.openDialog("prompt", call.Argument(0).String(), def)
		return goja.Null()
	})
	return vm
}

// openDialog records a dialog. Dialogs never block the script; the test
// inspects them after the fact.
func (s *Session) openDialog(kind, text, input string) {
	s.logger.Debug("Dialog opened.", zap.String("kind", kind), zap.String("text", text))
	s.dialog = &dialog{kind: kind, text: text, input: input}
}

func (s *Session) ctx() context.Context {
	if s.scriptCtx != nil {
		return s.scriptCtx
	}
	return context.Background()
}

func (s *Session) scriptNavigate(vm *goja.Runtime, target string) {
	if err := s.navigate(s.ctx(), target, true); err != nil {
		panic(vm.NewGoError(err))
	}
}

func accessor(vm *goja.Runtime, obj *goja.Object, name string, get func() interface{}, set func(goja.Value)) {
	getter := vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(get()) })
	var setter goja.Value
	if set != nil {
		setter = vm.ToValue(func(call goja.FunctionCall) goja.Value {
			set(call.Argument(0))
			return goja.Undefined()
		})
	}
	_ = obj.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

func (s *Session) locationObject(vm *goja.Runtime) *goja.Object {
	loc := vm.NewObject()
	accessor(vm, loc, "href", func() interface{} { return s.current.String() }, func(v goja.Value) {
		s.scriptNavigate(vm, v.String())
	})
	accessor(vm, loc, "pathname", func() interface{} {
		if s.current.Scheme == "about" {
			return "blank"
		}
		if s.current.Path == "" {
			return "/"
		}
		return s.current.EscapedPath()
	}, nil)
	accessor(vm, loc, "search", func() interface{} {
		if s.current.RawQuery == "" {
			return ""
		}
		return "?" + s.current.RawQuery
	}, nil)
	accessor(vm, loc, "hash", func() interface{} {
		if s.current.Fragment == "" {
			return ""
		}
		return "#" + s.current.Fragment
	}, func(v goja.Value) {
		s.scriptNavigate(vm, "#"+strings.TrimPrefix(v.String(), "#"))
	})
	accessor(vm, loc, "host", func() interface{} { return s.current.Host }, nil)
	accessor(vm, loc, "hostname", func() interface{} { return s.current.Hostname() }, nil)
	accessor(vm, loc, "protocol", func() interface{} { return s.current.Scheme + ":" }, nil)
	accessor(vm, loc, "origin", func() interface{} { return s.current.Scheme + "://" + s.current.Host }, nil)

	_ = loc.Set("assign", func(call goja.FunctionCall) goja.Value {
		s.scriptNavigate(vm, call.Argument(0).String())
		return goja.Undefined()
	})
	_ = loc.Set("replace", func(call goja.FunctionCall) goja.Value {
		if err := s.navigate(s.ctx(), call.Argument(0).String(), false); err != nil {
			panic(vm.NewGoError(err))
		}
		return goja.Undefined()
	})
	_ = loc.Set("reload", func(goja.FunctionCall) goja.Value {
		if err := s.load(s.ctx(), s.current, false); err != nil {
			panic(vm.NewGoError(err))
		}
		return goja.Undefined()
	})
	_ = loc.Set("toString", func(goja.FunctionCall) goja.Value { return vm.ToValue(s.current.String()) })
	return loc
}

func (s *Session) documentObject(vm *goja.Runtime) *goja.Object {
	// The runtime belongs to exactly one document; later navigations build a new one.
	doc := s.doc
	obj := vm.NewObject()
	_ = obj.Set("readyState", "complete")
	accessor(vm, obj, "title", func() interface{} { return s.title() }, nil)
	accessor(vm, obj, "body", func() interface{} { return s.wrapFirst(vm, doc, "body") }, nil)
	accessor(vm, obj, "documentElement", func() interface{} { return s.wrapFirst(vm, doc, "html") }, nil)
	s.bindQueries(vm, obj, doc)
	_ = obj.Set("getElementById", func(call goja.FunctionCall) goja.Value {
		nodes, _ := query(doc, schemas.ByID, call.Argument(0).String())
		if len(nodes) == 0 {
			return goja.Null()
		}
		return s.wrapNode(vm, nodes[0])
	})
	return obj
}

func (s *Session) wrapFirst(vm *goja.Runtime, root *html.Node, css string) goja.Value {
	nodes, _ := query(root, schemas.ByCSSSelector, css)
	if len(nodes) == 0 {
		return goja.Null()
	}
	return s.wrapNode(vm, nodes[0])
}

func (s *Session) bindQueries(vm *goja.Runtime, obj *goja.Object, root *html.Node) {
	_ = obj.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		nodes, err := query(root, schemas.ByCSSSelector, call.Argument(0).String())
		if err != nil {
			panic(vm.NewGoError(err))
		}
		if len(nodes) == 0 {
			return goja.Null()
		}
		return s.wrapNode(vm, nodes[0])
	})
	_ = obj.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		nodes, err := query(root, schemas.ByCSSSelector, call.Argument(0).String())
		if err != nil {
			panic(vm.NewGoError(err))
		}
		wrapped := make([]interface{}, len(nodes))
		for i, n := range nodes {
			wrapped[i] = s.wrapNode(vm, n)
		}
		return vm.NewArray(wrapped...)
	})
	_ = obj.Set("getElementsByTagName", func(call goja.FunctionCall) goja.Value {
		nodes, _ := query(root, schemas.ByTagName, call.Argument(0).String())
		wrapped := make([]interface{}, len(nodes))
		for i, n := range nodes {
			wrapped[i] = s.wrapNode(vm, n)
		}
		return vm.NewArray(wrapped...)
	})
}

// wrapNode exposes n to scripts with the slice of the DOM API tests rely on.
func (s *Session) wrapNode(vm *goja.Runtime, n *html.Node) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("tagName", strings.ToUpper(n.Data))
	id, _ := getAttr(n, "id")
	_ = obj.Set("id", id)

	accessor(vm, obj, "textContent", func() interface{} { return textContent(n) }, func(v goja.Value) {
		setTextContent(n, v.String())
	})
	accessor(vm, obj, "innerText", func() interface{} { return renderedText(n) }, func(v goja.Value) {
		setTextContent(n, v.String())
	})
	accessor(vm, obj, "innerHTML", func() interface{} { return innerHTML(n) }, func(v goja.Value) {
		setTextContent(n, "")
		appendHTML(n, v.String())
	})
	accessor(vm, obj, "value", func() interface{} { return fieldValue(n) }, func(v goja.Value) {
		setFieldValue(n, v.String())
	})
	accessor(vm, obj, "checked", func() interface{} { return checked(n) }, func(v goja.Value) {
		if v.ToBoolean() {
			setAttr(n, "checked", "checked")
		} else {
			removeAttr(n, "checked")
		}
	})
	accessor(vm, obj, "disabled", func() interface{} { return hasAttr(n, "disabled") }, func(v goja.Value) {
		if v.ToBoolean() {
			setAttr(n, "disabled", "disabled")
		} else {
			removeAttr(n, "disabled")
		}
	})
	accessor(vm, obj, "scrollWidth", func() interface{} { return s.width }, nil)
	accessor(vm, obj, "scrollHeight", func() interface{} { return s.height }, nil)

	style := vm.NewObject()
	for _, prop := range []string{"display", "visibility"} {
		prop := prop
		accessor(vm, style, prop, func() interface{} { return inlineStyle(n, prop) }, func(v goja.Value) {
			setInlineStyle(n, prop, v.String())
		})
	}
	_ = obj.Set("style", style)

	_ = obj.Set("getAttribute", func(call goja.FunctionCall) goja.Value {
		v, ok := getAttr(n, call.Argument(0).String())
		if !ok {
			return goja.Null()
		}
		return vm.ToValue(v)
	})
	_ = obj.Set("hasAttribute", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(hasAttr(n, call.Argument(0).String()))
	})
	_ = obj.Set("setAttribute", func(call goja.FunctionCall) goja.Value {
		setAttr(n, call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	_ = obj.Set("removeAttribute", func(call goja.FunctionCall) goja.Value {
		removeAttr(n, call.Argument(0).String())
		return goja.Undefined()
	})
	_ = obj.Set("insertAdjacentHTML", func(call goja.FunctionCall) goja.Value {
		switch strings.ToLower(call.Argument(0).String()) {
		case "afterbegin":
			prependHTML(n, call.Argument(1).String())
		default:
			appendHTML(n, call.Argument(1).String())
		}
		return goja.Undefined()
	})
	_ = obj.Set("remove", func(goja.FunctionCall) goja.Value {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		return goja.Undefined()
	})
	_ = obj.Set("click", func(goja.FunctionCall) goja.Value {
		if err := s.activate(n); err != nil {
			panic(vm.NewGoError(err))
		}
		return goja.Undefined()
	})
	for _, noop := range []string{"focus", "blur", "scrollIntoView"} {
		_ = obj.Set(noop, func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	}
	s.bindQueries(vm, obj, n)
	return obj
}

func innerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

func parseFragment(parent *html.Node, markup string) []*html.Node {
	nodes, err := html.ParseFragment(strings.NewReader(markup), parent)
	if err != nil {
		return nil
	}
	return nodes
}

func appendHTML(n *html.Node, markup string) {
	for _, child := range parseFragment(n, markup) {
		n.AppendChild(child)
	}
}

func prependHTML(n *html.Node, markup string) {
	first := n.FirstChild
	for _, child := range parseFragment(n, markup) {
		if first == nil {
			n.AppendChild(child)
		} else {
			n.InsertBefore(child, first)
		}
	}
}

func inlineStyle(n *html.Node, prop string) string {
	style, _ := getAttr(n, "style")
	for _, decl := range strings.Split(style, ";") {
		p, v, ok := strings.Cut(decl, ":")
		if ok && strings.EqualFold(strings.TrimSpace(p), prop) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func setInlineStyle(n *html.Node, prop, value string) {
	style, _ := getAttr(n, "style")
	var decls []string
	for _, decl := range strings.Split(style, ";") {
		p, _, ok := strings.Cut(decl, ":")
		if !ok || strings.EqualFold(strings.TrimSpace(p), prop) {
			continue
		}
		decls = append(decls, strings.TrimSpace(decl))
	}
	if value != "" {
		decls = append(decls, prop+": "+value)
	}
	if len(decls) == 0 {
		removeAttr(n, "style")
		return
	}
	setAttr(n, "style", strings.Join(decls, "; "))
}
