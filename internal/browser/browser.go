// Package browser implements the scoped browser handle test code drives:
// navigation, element interaction, waits and assertions on top of a
// schemas.Driver, a selector resolver and a polling waiter.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dusk/api/schemas"
	"github.com/xkilldash9x/dusk/internal/browser/resolver"
	"github.com/xkilldash9x/dusk/internal/browser/wait"
	"github.com/xkilldash9x/dusk/internal/config"
)

// ElementResolver turns user selectors into elements of the current scope.
type ElementResolver interface {
	Prefix() string
	SetPrefix(prefix string)
	Elements() map[string]string
	SetElements(elements map[string]string)
	Format(selector string) string

	Find(ctx context.Context, selector string) (schemas.Element, bool)
	FindOrFail(ctx context.Context, selector string) (schemas.Element, error)
	FirstOrFail(ctx context.Context, selectors []string) (schemas.Element, error)
	All(ctx context.Context, selector string) []schemas.Element

	ResolveForTyping(ctx context.Context, field string) (schemas.Element, error)
	ResolveForSelection(ctx context.Context, field string) (schemas.Element, error)
	ResolveSelectOptions(ctx context.Context, field string, values []string) ([]schemas.Element, error)
	ResolveForRadioSelection(ctx context.Context, field string, value ...string) (schemas.Element, error)
	ResolveForChecking(ctx context.Context, field string, value ...string) (schemas.Element, error)
	ResolveForAttachment(ctx context.Context, field string) (schemas.Element, error)
	ResolveForField(ctx context.Context, field string) (schemas.Element, error)
	ResolveForButtonPress(ctx context.Context, button string) (schemas.Element, error)
}

// Waiter is the poll loop used by every Wait* helper.
type Waiter interface {
	WaitUsing(ctx context.Context, timeout, interval time.Duration, predicate wait.Predicate, message string) error
	DefaultTimeout() time.Duration
}

var (
	_ ElementResolver = (*resolver.Resolver)(nil)
	_ Waiter          = (*wait.Waiter)(nil)
)

// ResolverFactory builds the resolver for a new scope with the given prefix.
type ResolverFactory func(prefix string) ElementResolver

// Browser is one scope over a driver. Scoped children created by With share
// the driver, waiter, macros and configuration of their parent.
type Browser struct {
	driver      schemas.Driver
	resolver    ElementResolver
	newResolver ResolverFactory
	waiter      Waiter
	cfg         config.BrowserConfig
	logger      *zap.Logger
	macros      *Macros

	page      Page
	component Component

	// FitOnFailure resizes the window to the page before a failure screenshot.
	FitOnFailure bool

	madeSourceAssertion bool
}

// Option configures a Browser.
type Option func(*Browser)

// WithResolverFactory overrides how resolvers are built for the root and every child scope.
func WithResolverFactory(f ResolverFactory) Option {
	return func(b *Browser) { b.newResolver = f }
}

// WithWaiter overrides the poll loop.
func WithWaiter(w Waiter) Option {
	return func(b *Browser) { b.waiter = w }
}

// WithMacros shares a macro registry between browsers.
func WithMacros(m *Macros) Option {
	return func(b *Browser) { b.macros = m }
}

// New creates a root browser scope over driver.
func New(driver schemas.Driver, cfg config.BrowserConfig, logger *zap.Logger, opts ...Option) *Browser {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Browser{
		driver:       driver,
		cfg:          cfg,
		logger:       logger.Named("browser"),
		FitOnFailure: cfg.FitOnFailure,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.newResolver == nil {
		b.newResolver = func(prefix string) ElementResolver {
			return resolver.New(driver, prefix, logger)
		}
	}
	if b.waiter == nil {
		b.waiter = wait.New(cfg.WaitTimeout, logger)
	}
	if b.macros == nil {
		b.macros = DefaultMacros
	}
	b.resolver = b.newResolver(resolver.DefaultPrefix)
	return b
}

// Driver exposes the underlying driver.
func (b *Browser) Driver() schemas.Driver { return b.driver }

// Resolver exposes the scope's selector resolver.
func (b *Browser) Resolver() ElementResolver { return b.resolver }

// Page returns the page the browser is on, if one was set.
func (b *Browser) Page() Page { return b.page }

// Component returns the component this scope was created for, if any.
func (b *Browser) Component() Component { return b.component }

// MadeSourceAssertion reports whether a page source assertion ran in this scope.
func (b *Browser) MadeSourceAssertion() bool { return b.madeSourceAssertion }

// Visit navigates to url. Relative URLs are joined to the configured base URL.
func (b *Browser) Visit(ctx context.Context, url string) error {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = strings.TrimRight(b.cfg.BaseURL, "/") + "/" + strings.TrimLeft(url, "/")
	}
	b.logger.Debug("Visiting URL.", zap.String("url", url))
	if err := b.driver.Navigate(ctx, url); err != nil {
		return fmt.Errorf("failed to visit %s: %w", url, err)
	}
	return nil
}

// VisitPage navigates to the page's URL and then applies it with On.
func (b *Browser) VisitPage(ctx context.Context, page Page) error {
	if err := b.Visit(ctx, page.URL()); err != nil {
		return err
	}
	return b.On(ctx, page)
}

// VisitRoute navigates to a named route.
func (b *Browser) VisitRoute(ctx context.Context, name string, params map[string]string) error {
	path, err := b.Route(name, params)
	if err != nil {
		return err
	}
	return b.Visit(ctx, path)
}

// Blank navigates to about:blank.
func (b *Browser) Blank(ctx context.Context) error {
	return b.driver.Navigate(ctx, "about:blank")
}

// On installs the page's selector aliases and asserts the browser is on it.
func (b *Browser) On(ctx context.Context, page Page) error {
	b.OnWithoutAssert(page)
	return page.Assert(ctx, b)
}

// OnWithoutAssert installs the page's selector aliases. Site elements are
// merged underneath the page's own.
func (b *Browser) OnWithoutAssert(page Page) {
	b.page = page
	elements := map[string]string{}
	if site, ok := page.(SiteElementProvider); ok {
		for k, v := range site.SiteElements() {
			elements[k] = v
		}
	}
	for k, v := range page.Elements() {
		elements[k] = v
	}
	b.resolver.SetElements(elements)
}

// Refresh reloads the current page.
func (b *Browser) Refresh(ctx context.Context) error { return b.driver.Refresh(ctx) }

// Back navigates one entry back in history.
func (b *Browser) Back(ctx context.Context) error { return b.driver.Back(ctx) }

// Forward navigates one entry forward in history.
func (b *Browser) Forward(ctx context.Context) error { return b.driver.Forward(ctx) }

// Maximize maximizes the window.
func (b *Browser) Maximize(ctx context.Context) error { return b.driver.MaximizeWindow(ctx) }

// Resize sets the window size.
func (b *Browser) Resize(ctx context.Context, width, height int) error {
	return b.driver.ResizeWindow(ctx, width, height)
}

// FitContent resizes the window to the size of the document's html element.
func (b *Browser) FitContent(ctx context.Context) error {
	if fs, ok := b.driver.(schemas.FrameSwitcher); ok {
		if err := fs.SwitchToDefaultContent(ctx); err != nil {
			return err
		}
	}
	var size struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if err := b.scriptInto(ctx, &size, "var html = document.documentElement; return {width: html.scrollWidth, height: html.scrollHeight};"); err != nil {
		return fmt.Errorf("failed to measure document: %w", err)
	}
	if size.Width <= 0 || size.Height <= 0 {
		return nil
	}
	return b.driver.ResizeWindow(ctx, int(size.Width), int(size.Height))
}

// DisableFitOnFailure turns off window fitting before failure screenshots.
func (b *Browser) DisableFitOnFailure() { b.FitOnFailure = false }

// EnableFitOnFailure turns on window fitting before failure screenshots.
func (b *Browser) EnableFitOnFailure() { b.FitOnFailure = true }

// Pause sleeps for d, returning early when ctx is done.
func (b *Browser) Pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Quit ends the driver session.
func (b *Browser) Quit(ctx context.Context) error { return b.driver.Quit(ctx) }

// child builds a scope with prefix that shares everything but the resolver.
func (b *Browser) child(prefix string) *Browser {
	return &Browser{
		driver:       b.driver,
		resolver:     b.newResolver(prefix),
		newResolver:  b.newResolver,
		waiter:       b.waiter,
		cfg:          b.cfg,
		logger:       b.logger,
		macros:       b.macros,
		FitOnFailure: b.FitOnFailure,
	}
}

// With runs fn with a browser scoped to selector within the current scope.
func (b *Browser) With(ctx context.Context, selector string, fn func(*Browser) error) error {
	scoped := b.child(b.resolver.Format(selector))
	if b.page != nil {
		scoped.OnWithoutAssert(b.page)
	}
	return b.runScoped(scoped, fn)
}

// Within is an alias of With.
func (b *Browser) Within(ctx context.Context, selector string, fn func(*Browser) error) error {
	return b.With(ctx, selector, fn)
}

// WithComponent runs fn with a browser scoped to component. The component's
// aliases take precedence over the current scope's and its Assert runs first.
func (b *Browser) WithComponent(ctx context.Context, component Component, fn func(*Browser) error) error {
	scoped := b.child(b.resolver.Prefix())
	if b.page != nil {
		scoped.OnWithoutAssert(b.page)
	}
	if err := scoped.onComponent(ctx, component, b.resolver); err != nil {
		return err
	}
	return b.runScoped(scoped, fn)
}

func (b *Browser) onComponent(ctx context.Context, component Component, parent ElementResolver) error {
	b.component = component
	elements := map[string]string{}
	for k, v := range parent.Elements() {
		elements[k] = v
	}
	for k, v := range component.Elements() {
		elements[k] = v
	}
	b.resolver.SetElements(elements)
	if err := component.Assert(ctx, b); err != nil {
		return err
	}
	b.resolver.SetPrefix(b.resolver.Format(component.Selector()))
	return nil
}

// Elsewhere runs fn with a browser scoped to "body <selector>", ignoring the current scope.
func (b *Browser) Elsewhere(ctx context.Context, selector string, fn func(*Browser) error) error {
	scoped := b.child(strings.TrimSpace("body " + selector))
	if b.page != nil {
		scoped.OnWithoutAssert(b.page)
	}
	return b.runScoped(scoped, fn)
}

// ElsewhereWhenAvailable waits for selector anywhere in the page and then scopes to it.
func (b *Browser) ElsewhereWhenAvailable(ctx context.Context, selector string, fn func(*Browser) error, timeout ...time.Duration) error {
	return b.Elsewhere(ctx, "", func(root *Browser) error {
		return root.WhenAvailable(ctx, selector, fn, timeout...)
	})
}

func (b *Browser) runScoped(scoped *Browser, fn func(*Browser) error) error {
	err := fn(scoped)
	if scoped.madeSourceAssertion {
		b.madeSourceAssertion = true
	}
	return err
}

// WithinFrame switches into the iframe matched by selector for the duration of fn.
func (b *Browser) WithinFrame(ctx context.Context, selector string, fn func(*Browser) error) error {
	fs, ok := b.driver.(schemas.FrameSwitcher)
	if !ok {
		return fmt.Errorf("switching frames: %w", schemas.ErrUnsupported)
	}
	frame, err := b.resolver.FindOrFail(ctx, selector)
	if err != nil {
		return err
	}
	if err := fs.SwitchFrame(ctx, frame); err != nil {
		return fmt.Errorf("failed to switch to frame [%s]: %w", selector, err)
	}
	fnErr := fn(b)
	if err := fs.SwitchToDefaultContent(ctx); err != nil && fnErr == nil {
		return fmt.Errorf("failed to leave frame [%s]: %w", selector, err)
	}
	return fnErr
}
