// Package htmldom is a pure Go browser backend. It fetches documents over
// net/http, keeps the DOM as a golang.org/x/net/html tree and runs page and
// test scripts in a goja runtime bound to that tree.
//
// There is no layout engine: visibility follows the hidden attribute, hidden
// inputs and inline display/visibility styles, and screenshots are not
// available. In exchange it needs no browser binary, which makes it the
// backend of choice for unit tests and CI sanity checks.
package htmldom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dop251/goja"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/dusk/api/schemas"
)

const (
	defaultWidth  = 1920
	defaultHeight = 1080
	blankURL      = "about:blank"
)

// dialog is an open alert, confirm or prompt.
type dialog struct {
	kind  string
	text  string
	input string
}

// Session is a single headless browsing context.
//
// All exported methods, including those of the elements it hands out, are
// serialized on one mutex. Code running inside the goja runtime re-enters the
// session through the unexported helpers, which assume the lock is held.
type Session struct {
	mu     sync.Mutex
	id     string
	logger *zap.Logger
	client *http.Client
	jar    http.CookieJar

	doc        *html.Node
	current    *url.URL
	history    []*url.URL
	historyIdx int

	vm        *goja.Runtime
	scriptCtx context.Context
	dialog    *dialog
	logs      []schemas.LogEntry

	width, height int
	closed        bool
}

// Option customizes a Session.
type Option func(*Session)

// WithHTTPClient replaces the HTTP client. A cookie jar is attached when the
// client has none.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Session) { s.client = client }
}

// WithWindowSize sets the initial viewport reported to scripts.
func WithWindowSize(width, height int) Option {
	return func(s *Session) {
		if width > 0 && height > 0 {
			s.width, s.height = width, height
		}
	}
}

// New creates a session showing about:blank.
func New(logger *zap.Logger, opts ...Option) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		id:     uuid.NewString(),
		client: &http.Client{Timeout: 30 * time.Second},
		width:  defaultWidth,
		height: defaultHeight,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.Named("htmldom").With(zap.String("session_id", s.id))

	if s.client.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		client := *s.client
		client.Jar = jar
		s.client = &client
	}
	s.jar = s.client.Jar

	blank, _ := url.Parse(blankURL)
	s.loadDocument(blank, blankDocument(), true)
	return s, nil
}

func blankDocument() *html.Node {
	doc, _ := html.Parse(strings.NewReader("<html><head></head><body></body></html>"))
	return doc
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

func (s *Session) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("htmldom: session has been closed")
	}
	return nil
}

// SetContent replaces the current document with markup as if it had been
// served from pageURL. An empty pageURL keeps the current address.
func (s *Session) SetContent(ctx context.Context, pageURL, markup string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	u := s.current
	if pageURL != "" {
		parsed, err := s.resolve(pageURL)
		if err != nil {
			return err
		}
		u = parsed
	}
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	s.scriptCtx = ctx
	s.loadDocument(u, doc, pageURL != "")
	return nil
}

// -- Navigation --

func (s *Session) Navigate(ctx context.Context, target string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.navigate(ctx, target, true)
}

func (s *Session) Refresh(ctx context.Context) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.load(ctx, s.current, false)
}

func (s *Session) Back(ctx context.Context) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if s.historyIdx == 0 {
		return nil
	}
	s.historyIdx--
	return s.load(ctx, s.history[s.historyIdx], false)
}

func (s *Session) Forward(ctx context.Context) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if s.historyIdx >= len(s.history)-1 {
		return nil
	}
	s.historyIdx++
	return s.load(ctx, s.history[s.historyIdx], false)
}

func (s *Session) CurrentURL(context.Context) (string, error) {
	if err := s.lock(); err != nil {
		return "", err
	}
	defer s.mu.Unlock()
	return s.current.String(), nil
}

func (s *Session) Title(context.Context) (string, error) {
	if err := s.lock(); err != nil {
		return "", err
	}
	defer s.mu.Unlock()
	return s.title(), nil
}

func (s *Session) title() string {
	return strings.TrimSpace(goquery.NewDocumentFromNode(s.doc).Find("title").First().Text())
}

func (s *Session) resolve(target string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return nil, schemas.NewInvalidArgument("invalid URL %q: %v", target, err)
	}
	if s.current == nil || s.current.Scheme == "about" {
		return ref, nil
	}
	return s.current.ResolveReference(ref), nil
}

func (s *Session) navigate(ctx context.Context, target string, push bool) error {
	u, err := s.resolve(target)
	if err != nil {
		return err
	}
	// Fragment-only changes do not reload the document.
	if s.current != nil && u.Fragment != "" && stripFragment(u) == stripFragment(s.current) {
		s.current = u
		s.pushHistory(u, push)
		return nil
	}
	return s.load(ctx, u, push)
}

func stripFragment(u *url.URL) string {
	c := *u
	c.Fragment = ""
	return c.String()
}

// load fetches u and installs the response as the current document.
func (s *Session) load(ctx context.Context, u *url.URL, push bool) error {
	if u.Scheme == "about" {
		s.loadDocument(u, blankDocument(), push)
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return s.do(ctx, req, push)
}

func (s *Session) do(ctx context.Context, req *http.Request, push bool) error {
	if s.current != nil && s.current.Scheme != "about" {
		req.Header.Set("Referer", s.current.String())
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	s.logger.Debug("Loading document.", zap.String("method", req.Method), zap.String("url", req.URL.String()))
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	s.scriptCtx = ctx
	// resp.Request is the final request after redirects.
	s.loadDocument(resp.Request.URL, doc, push)
	return nil
}

func (s *Session) pushHistory(u *url.URL, push bool) {
	if !push {
		if len(s.history) > 0 {
			s.history[s.historyIdx] = u
		}
		return
	}
	if len(s.history) > 0 {
		s.history = s.history[:s.historyIdx+1]
	}
	s.history = append(s.history, u)
	s.historyIdx = len(s.history) - 1
}

// loadDocument swaps in doc, resets the script runtime and runs page scripts.
func (s *Session) loadDocument(u *url.URL, doc *html.Node, push bool) {
	s.doc = doc
	s.current = u
	s.dialog = nil
	s.pushHistory(u, push)
	s.vm = s.newRuntime()
	s.runPageScripts()
}

func (s *Session) runPageScripts() {
	goquery.NewDocumentFromNode(s.doc).Find("script").Each(func(_ int, sel *goquery.Selection) {
		if t, ok := sel.Attr("type"); ok && t != "" && !strings.Contains(t, "javascript") {
			return
		}
		code := sel.Text()
		if src, ok := sel.Attr("src"); ok && src != "" {
			fetched, err := s.fetchScript(src)
			if err != nil {
				s.consoleEntry("SEVERE", err.Error())
				return
			}
			code = fetched
		}
		if _, err := s.vm.RunString(code); err != nil {
			s.consoleEntry("SEVERE", fmt.Sprintf("Uncaught %v", err))
		}
	})
}

func (s *Session) fetchScript(src string) (string, error) {
	u, err := s.resolve(src)
	if err != nil {
		return "", err
	}
	ctx := s.scriptCtx
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to load script %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("failed to load script %s: status %d", u, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	return string(b), err
}

// -- Elements --

func (s *Session) FindElement(ctx context.Context, by schemas.By, value string) (schemas.Element, error) {
	elements, err := s.FindElements(ctx, by, value)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, &schemas.NotFoundError{Selector: value, Err: schemas.ErrNoSuchElement}
	}
	return elements[0], nil
}

func (s *Session) FindElements(_ context.Context, by schemas.By, value string) ([]schemas.Element, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	return s.wrapAll(s.doc, by, value)
}

func (s *Session) wrapAll(root *html.Node, by schemas.By, value string) ([]schemas.Element, error) {
	nodes, err := query(root, by, value)
	if err != nil {
		return nil, err
	}
	elements := make([]schemas.Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &element{s: s, node: n})
	}
	return elements, nil
}

// -- Scripts --

// ExecuteScript runs script as a function body. Elements among args are
// passed to the script as DOM wrappers.
func (s *Session) ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	s.scriptCtx = ctx
	vm := s.vm
	fnValue, err := vm.RunString("(function() {\n" + script + "\n})")
	if err != nil {
		return nil, scriptError(err)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, errors.New("javascript error: script did not compile to a function")
	}

	jsArgs := make([]goja.Value, len(args))
	for i, arg := range args {
		if el, ok := arg.(*element); ok && el.s == s {
			jsArgs[i] = s.wrapNode(vm, el.node)
			continue
		}
		jsArgs[i] = vm.ToValue(arg)
	}

	result, err := fn(vm.GlobalObject(), jsArgs...)
	if err != nil {
		return nil, scriptError(err)
	}
	return stringify(vm, result)
}

func scriptError(err error) error {
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return fmt.Errorf("javascript exception: %s", exception.Value().String())
	}
	return fmt.Errorf("javascript error: %w", err)
}

// stringify JSON-encodes a script result with the runtime's own JSON object,
// so functions are dropped the way a browser would drop them.
func stringify(vm *goja.Runtime, value goja.Value) (json.RawMessage, error) {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return json.RawMessage("null"), nil
	}
	stringifyFn, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify"))
	if !ok {
		return nil, errors.New("javascript error: JSON.stringify unavailable")
	}
	encoded, err := stringifyFn(goja.Undefined(), value)
	if err != nil {
		return nil, scriptError(err)
	}
	if goja.IsUndefined(encoded) {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(encoded.String()), nil
}

// -- Window --

func (s *Session) ResizeWindow(_ context.Context, width, height int) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if width <= 0 || height <= 0 {
		return schemas.NewInvalidArgument("window size must be positive, got %dx%d", width, height)
	}
	s.width, s.height = width, height
	return nil
}

func (s *Session) MaximizeWindow(ctx context.Context) error {
	return s.ResizeWindow(ctx, defaultWidth, defaultHeight)
}

// -- Cookies --

func (s *Session) Cookies(context.Context) ([]schemas.Cookie, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	var cookies []schemas.Cookie
	for _, c := range s.jar.Cookies(s.current) {
		cookies = append(cookies, schemas.Cookie{Name: c.Name, Value: c.Value, Domain: s.current.Hostname(), Path: "/"})
	}
	return cookies, nil
}

func (s *Session) AddCookie(_ context.Context, cookie schemas.Cookie) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if s.current.Scheme == "about" {
		return schemas.NewInvalidArgument("cannot set cookie %q on %s", cookie.Name, blankURL)
	}
	path := cookie.Path
	if path == "" {
		path = "/"
	}
	s.jar.SetCookies(s.current, []*http.Cookie{{
		Name:     cookie.Name,
		Value:    cookie.Value,
		Path:     path,
		Domain:   cookie.Domain,
		Secure:   cookie.Secure,
		HttpOnly: cookie.HTTPOnly,
		Expires:  cookie.Expiry,
	}})
	return nil
}

func (s *Session) DeleteCookie(_ context.Context, name string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if s.current.Scheme == "about" {
		return nil
	}
	s.jar.SetCookies(s.current, []*http.Cookie{{Name: name, Path: "/", MaxAge: -1}})
	return nil
}

// -- Dialogs --

func (s *Session) AlertText(context.Context) (string, error) {
	if err := s.lock(); err != nil {
		return "", err
	}
	defer s.mu.Unlock()
	if s.dialog == nil {
		return "", schemas.ErrNoAlertOpen
	}
	return s.dialog.text, nil
}

func (s *Session) AcceptAlert(context.Context) error {
	return s.closeDialog(true)
}

func (s *Session) DismissAlert(context.Context) error {
	return s.closeDialog(false)
}

func (s *Session) closeDialog(accept bool) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if s.dialog == nil {
		return schemas.ErrNoAlertOpen
	}
	s.logger.Debug("Closing dialog.", zap.String("kind", s.dialog.kind), zap.Bool("accepted", accept))
	s.dialog = nil
	return nil
}

func (s *Session) SetAlertText(_ context.Context, text string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if s.dialog == nil {
		return schemas.ErrNoAlertOpen
	}
	if s.dialog.kind != "prompt" {
		return schemas.NewInvalidArgument("cannot type into a %s dialog", s.dialog.kind)
	}
	s.dialog.input = text
	return nil
}

// -- Artifacts --

func (s *Session) PageSource(context.Context) (string, error) {
	if err := s.lock(); err != nil {
		return "", err
	}
	defer s.mu.Unlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, s.doc); err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return buf.String(), nil
}

// Screenshot is not available without a rendering engine.
func (s *Session) Screenshot(context.Context) ([]byte, error) {
	return nil, fmt.Errorf("htmldom screenshot: %w", schemas.ErrUnsupported)
}

// BrowserLogs drains the console buffer.
func (s *Session) BrowserLogs(context.Context) ([]schemas.LogEntry, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	logs := s.logs
	s.logs = nil
	return logs, nil
}

func (s *Session) consoleEntry(level, message string) {
	s.logs = append(s.logs, schemas.LogEntry{Level: level, Message: message, Timestamp: time.Now()})
}

// Quit releases the session. Further calls fail.
func (s *Session) Quit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.client.CloseIdleConnections()
	s.vm = nil
	s.logger.Debug("Session closed.")
	return nil
}

var _ schemas.Driver = (*Session)(nil)
