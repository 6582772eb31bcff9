// Package cdp drives Chrome over the DevTools protocol with chromedp.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dusk/api/schemas"
	"github.com/xkilldash9x/dusk/internal/config"
)

const startupTimeout = 45 * time.Second

// Driver is one Chrome tab controlled through chromedp.
type Driver struct {
	id          string
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	navTimeout  time.Duration
	headless    bool

	mu     sync.Mutex
	dialog *page.EventJavascriptDialogOpening
	prompt string
	logs   []schemas.LogEntry
	closed bool
}

var _ schemas.Driver = (*Driver)(nil)

// New starts a browser process and opens a tab showing about:blank.
// The browser outlives ctx; it is released by Quit.
func New(ctx context.Context, cfg config.DriverConfig, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{
		id:         uuid.NewString(),
		navTimeout: cfg.NavigationTimeout,
		headless:   cfg.Headless,
	}
	d.logger = logger.Named("cdp").With(zap.String("session_id", d.id))

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOptions(cfg)...)
	tabCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(d.logger.Sugar().Debugf),
		chromedp.WithErrorf(d.logger.Sugar().Errorf),
	)
	d.ctx, d.cancel, d.allocCancel = tabCtx, cancel, allocCancel

	d.listen()

	startCtx, stop := context.WithTimeout(ctx, startupTimeout)
	defer stop()
	if err := d.run(startCtx, network.Enable(), runtime.Enable(), chromedp.Navigate("about:blank")); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	d.logger.Info("Browser started.", zap.Bool("headless", cfg.Headless))
	return d, nil
}

// run executes actions on the tab, bounded by the caller's context.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var stop context.CancelFunc
		runCtx, stop = context.WithDeadline(runCtx, deadline)
		defer stop()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

// -- Navigation --

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if d.navTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.navTimeout)
		defer cancel()
	}
	d.clearDialog()
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *Driver) Refresh(ctx context.Context) error {
	d.clearDialog()
	return d.run(ctx, chromedp.Reload())
}

func (d *Driver) Back(ctx context.Context) error {
	return d.run(ctx, chromedp.NavigateBack())
}

func (d *Driver) Forward(ctx context.Context) error {
	return d.run(ctx, chromedp.NavigateForward())
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var location string
	err := d.run(ctx, chromedp.Location(&location))
	return location, err
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	var title string
	err := d.run(ctx, chromedp.Title(&title))
	return title, err
}

// -- Elements --

func (d *Driver) FindElement(ctx context.Context, by schemas.By, value string) (schemas.Element, error) {
	elements, err := d.FindElements(ctx, by, value)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, &schemas.NotFoundError{Selector: value, Err: schemas.ErrNoSuchElement}
	}
	return elements[0], nil
}

func (d *Driver) FindElements(ctx context.Context, by schemas.By, value string) ([]schemas.Element, error) {
	return d.query(ctx, nil, by, value)
}

// query looks up nodes without waiting for them to appear; polling is left to the caller.
func (d *Driver) query(ctx context.Context, from *cdp.Node, by schemas.By, value string) ([]schemas.Element, error) {
	opts := []chromedp.QueryOption{chromedp.AtLeast(0)}
	sel := value
	switch by {
	case schemas.ByCSSSelector:
		opts = append(opts, chromedp.ByQueryAll)
	case schemas.ByID:
		sel = `[id="` + strings.ReplaceAll(value, `"`, `\"`) + `"]`
		opts = append(opts, chromedp.ByQueryAll)
	case schemas.ByTagName:
		opts = append(opts, chromedp.ByQueryAll)
	case schemas.ByXPath:
		if from != nil {
			return nil, fmt.Errorf("xpath lookup inside an element: %w", schemas.ErrUnsupported)
		}
		opts = append(opts, chromedp.BySearch)
	default:
		return nil, schemas.NewInvalidArgument("unknown locator strategy [%s]", by)
	}
	if from != nil {
		opts = append(opts, chromedp.FromNode(from))
	}

	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return nil, fmt.Errorf("failed to query [%s]: %w", value, err)
	}
	elements := make([]schemas.Element, 0, len(nodes))
	for _, n := range nodes {
		if n.NodeType != cdp.NodeTypeElement {
			continue
		}
		elements = append(elements, &element{d: d, node: n})
	}
	return elements, nil
}

// -- Scripts --

// ExecuteScript runs script as a function body with args as its arguments.
// Promises are awaited.
func (d *Driver) ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	for _, arg := range args {
		if _, ok := arg.(schemas.Element); ok {
			return nil, schemas.NewInvalidArgument("element arguments are not supported by the cdp driver")
		}
	}
	if args == nil {
		args = []interface{}{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode script arguments: %w", err)
	}
	expr := "(function() {\n" + script + "\n}).apply(window, " + string(encoded) + ")"

	var result *runtime.RemoteObject
	err = d.run(ctx, chromedp.Evaluate(expr, &result, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return nil, fmt.Errorf("javascript error: %w", err)
	}
	if result == nil || result.Type == runtime.TypeUndefined || len(result.Value) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(result.Value), nil
}

// -- Window --

func (d *Driver) ResizeWindow(ctx context.Context, width, height int) error {
	if d.headless {
		// Headless windows ignore bounds, so the viewport is emulated instead.
		return d.run(ctx, chromedp.EmulateViewport(int64(width), int64(height)))
	}
	return d.setBounds(ctx, &browser.Bounds{
		Width:       int64(width),
		Height:      int64(height),
		WindowState: browser.WindowStateNormal,
	})
}

func (d *Driver) MaximizeWindow(ctx context.Context) error {
	if d.headless {
		d.logger.Debug("Maximize ignored for headless browser.")
		return nil
	}
	return d.setBounds(ctx, &browser.Bounds{WindowState: browser.WindowStateMaximized})
}

func (d *Driver) setBounds(ctx context.Context, bounds *browser.Bounds) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		windowID, current, err := browser.GetWindowForTarget().Do(ctx)
		if err != nil {
			return err
		}
		// Bounds cannot change while the window is maximized.
		if current != nil && current.WindowState != browser.WindowStateNormal && bounds.WindowState == browser.WindowStateNormal {
			if err := browser.SetWindowBounds(windowID, &browser.Bounds{WindowState: browser.WindowStateNormal}).Do(ctx); err != nil {
				return err
			}
		}
		return browser.SetWindowBounds(windowID, bounds).Do(ctx)
	}))
}

// -- Cookies --

func (d *Driver) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	var cookies []*network.Cookie
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	out := make([]schemas.Cookie, 0, len(cookies))
	for _, c := range cookies {
		cookie := schemas.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if !c.Session && c.Expires > 0 {
			cookie.Expiry = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, cookie)
	}
	return out, nil
}

func (d *Driver) AddCookie(ctx context.Context, cookie schemas.Cookie) error {
	current, err := d.CurrentURL(ctx)
	if err != nil {
		return err
	}
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := network.SetCookie(cookie.Name, cookie.Value).
			WithURL(current).
			WithSecure(cookie.Secure).
			WithHTTPOnly(cookie.HTTPOnly)
		if cookie.Path != "" {
			params = params.WithPath(cookie.Path)
		}
		if cookie.Domain != "" {
			params = params.WithDomain(cookie.Domain)
		}
		if !cookie.Expiry.IsZero() {
			expires := cdp.TimeSinceEpoch(cookie.Expiry)
			params = params.WithExpires(&expires)
		}
		return params.Do(ctx)
	}))
}

func (d *Driver) DeleteCookie(ctx context.Context, name string) error {
	current, err := d.CurrentURL(ctx)
	if err != nil {
		return err
	}
	return d.run(ctx, network.DeleteCookies(name).WithURL(current))
}

// -- Dialogs --

func (d *Driver) AlertText(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialog == nil {
		return "", schemas.ErrNoAlertOpen
	}
	return d.dialog.Message, nil
}

func (d *Driver) AcceptAlert(ctx context.Context) error {
	return d.closeDialog(ctx, true)
}

func (d *Driver) DismissAlert(ctx context.Context) error {
	return d.closeDialog(ctx, false)
}

func (d *Driver) closeDialog(ctx context.Context, accept bool) error {
	d.mu.Lock()
	if d.dialog == nil {
		d.mu.Unlock()
		return schemas.ErrNoAlertOpen
	}
	prompt := d.prompt
	d.mu.Unlock()

	handle := page.HandleJavaScriptDialog(accept)
	if accept && prompt != "" {
		handle = handle.WithPromptText(prompt)
	}
	if err := d.run(ctx, handle); err != nil {
		return fmt.Errorf("failed to close dialog: %w", err)
	}
	d.clearDialog()
	return nil
}

func (d *Driver) SetAlertText(_ context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialog == nil {
		return schemas.ErrNoAlertOpen
	}
	if d.dialog.Type != page.DialogTypePrompt {
		return schemas.NewInvalidArgument("cannot type into a %s dialog", d.dialog.Type)
	}
	d.prompt = text
	return nil
}

func (d *Driver) clearDialog() {
	d.mu.Lock()
	d.dialog, d.prompt = nil, ""
	d.mu.Unlock()
}

// -- Artifacts --

func (d *Driver) PageSource(ctx context.Context) (string, error) {
	var source string
	err := d.run(ctx, chromedp.Evaluate(`document.documentElement ? document.documentElement.outerHTML : ""`, &source))
	return source, err
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// BrowserLogs drains the console messages and uncaught exceptions seen so far.
func (d *Driver) BrowserLogs(context.Context) ([]schemas.LogEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	logs := d.logs
	d.logs = nil
	return logs, nil
}

// Quit closes the tab and terminates the browser process.
func (d *Driver) Quit(context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	err := chromedp.Cancel(d.ctx)
	d.cancel()
	d.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("Browser did not close cleanly.", zap.Error(err))
		return err
	}
	d.logger.Debug("Browser closed.")
	return nil
}
