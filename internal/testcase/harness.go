// Package testcase runs browser tests: it hands out browsers, keeps the
// primary one alive between tests and stores screenshots, console logs and
// page source when a test fails.
package testcase

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dusk/api/schemas"
	"github.com/xkilldash9x/dusk/internal/browser"
	"github.com/xkilldash9x/dusk/internal/config"
	"github.com/xkilldash9x/dusk/internal/driver"
)

const (
	driverAttempts   = 5
	driverRetryDelay = 50 * time.Millisecond
	nameLimit        = 70
)

// errTestFailed marks a callback that returned nil after failing its testing.TB.
var errTestFailed = errors.New("test failed inside browser callback")

// BrowseFunc receives the browsers requested from Browse.
type BrowseFunc func(browsers ...*browser.Browser) error

// Harness owns the browsers shared by the tests of one package.
type Harness struct {
	cfg         config.BrowserConfig
	factory     driver.Factory
	logger      *zap.Logger
	browserOpts []browser.Option
	class       string

	mu         sync.Mutex
	browsers   []*browser.Browser
	afterClass []func()
}

// Option customizes a Harness.
type Option func(*Harness)

// WithBrowserOptions is applied to every browser the harness creates.
func WithBrowserOptions(opts ...browser.Option) Option {
	return func(h *Harness) { h.browserOpts = append(h.browserOpts, opts...) }
}

// WithClass fixes the prefix of artifact names instead of deriving it from
// the calling test's package.
func WithClass(class string) Option {
	return func(h *Harness) { h.class = class }
}

// New creates a harness. Drivers are opened lazily by factory.
func New(cfg config.BrowserConfig, factory driver.Factory, logger *zap.Logger, opts ...Option) *Harness {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Harness{cfg: cfg, factory: factory, logger: logger.Named("testcase")}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AfterClass registers a callback for Close.
func (h *Harness) AfterClass(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.afterClass = append(h.afterClass, fn)
}

// Browse runs fn with n browsers and fails t when fn returns an error.
// Failures triggered through t inside fn are captured as well.
func (h *Harness) Browse(t testing.TB, n int, fn BrowseFunc) {
	t.Helper()

	class := h.class
	if class == "" {
		if pc, _, _, ok := runtime.Caller(1); ok {
			if f := runtime.FuncForPC(pc); f != nil {
				class = packageOf(f.Name())
			}
		}
	}
	name := CallerName(class, t.Name())

	failedBefore := t.Failed()
	err := h.Run(context.Background(), name, n, func(browsers ...*browser.Browser) error {
		if err := fn(browsers...); err != nil {
			return err
		}
		if !failedBefore && t.Failed() {
			return errTestFailed
		}
		return nil
	})
	switch {
	case errors.Is(err, errTestFailed):
		t.FailNow()
	case err != nil:
		t.Fatal(err)
	}
}

// Run is Browse without testing.TB. name prefixes every stored artifact.
// A panic in fn is re-raised after the artifacts are stored.
func (h *Harness) Run(ctx context.Context, name string, n int, fn BrowseFunc) (err error) {
	browsers, err := h.browsersFor(ctx, n)
	if err != nil {
		return err
	}

	completed := false
	defer func() {
		r := recover()
		// completed stays false on panic and on runtime.Goexit from t.FailNow.
		if !completed || err != nil {
			h.captureFailures(ctx, name, browsers)
			h.storeSourceLogs(ctx, name, browsers)
		}
		h.storeConsoleLogs(ctx, name, browsers)
		h.closeAllButPrimary(ctx)
		if r != nil {
			panic(r)
		}
	}()

	err = fn(browsers...)
	completed = true
	return err
}

// browsersFor reuses the primary browser and opens the rest.
func (h *Harness) browsersFor(ctx context.Context, n int) ([]*browser.Browser, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.browsers) == 0 {
		b, err := h.newBrowser(ctx)
		if err != nil {
			return nil, err
		}
		h.browsers = []*browser.Browser{b}
	}
	for len(h.browsers) < n {
		b, err := h.newBrowser(ctx)
		if err != nil {
			return nil, err
		}
		h.browsers = append(h.browsers, b)
	}
	return append([]*browser.Browser(nil), h.browsers...), nil
}

func (h *Harness) newBrowser(ctx context.Context) (*browser.Browser, error) {
	d, err := h.createDriver(ctx)
	if err != nil {
		return nil, err
	}
	return browser.New(d, h.cfg, h.logger, h.browserOpts...), nil
}

// createDriver tries the factory up to five times, 50ms apart.
func (h *Harness) createDriver(ctx context.Context) (schemas.Driver, error) {
	var lastErr error
	for attempt := 1; attempt <= driverAttempts; attempt++ {
		d, err := h.factory(ctx)
		if err == nil {
			return d, nil
		}
		lastErr = err
		h.logger.Debug("Driver creation failed.", zap.Int("attempt", attempt), zap.Error(err))
		if attempt == driverAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(driverRetryDelay):
		}
	}
	return nil, fmt.Errorf("failed to create driver after %d attempts: %w", driverAttempts, lastErr)
}

func (h *Harness) captureFailures(ctx context.Context, name string, browsers []*browser.Browser) {
	for i, b := range browsers {
		if b.FitOnFailure {
			if err := b.FitContent(ctx); err != nil {
				h.logger.Debug("Could not fit window to content.", zap.Error(err))
			}
		}
		if _, err := b.Screenshot(ctx, "failure-"+name+"-"+strconv.Itoa(i)); err != nil {
			h.logArtifactError("screenshot", err)
		}
	}
}

func (h *Harness) storeSourceLogs(ctx context.Context, name string, browsers []*browser.Browser) {
	for i, b := range browsers {
		if !b.MadeSourceAssertion() {
			continue
		}
		if _, err := b.StoreSource(ctx, name+"-"+strconv.Itoa(i)); err != nil {
			h.logArtifactError("source", err)
		}
	}
}

func (h *Harness) storeConsoleLogs(ctx context.Context, name string, browsers []*browser.Browser) {
	for i, b := range browsers {
		if _, err := b.StoreConsoleLog(ctx, name+"-"+strconv.Itoa(i)); err != nil {
			h.logArtifactError("console log", err)
		}
	}
}

func (h *Harness) logArtifactError(kind string, err error) {
	if errors.Is(err, schemas.ErrUnsupported) {
		h.logger.Debug("Driver cannot produce artifact.", zap.String("kind", kind))
		return
	}
	h.logger.Warn("Failed to store failure artifact.", zap.String("kind", kind), zap.Error(err))
}

// closeAllButPrimary quits every browser except the first one.
func (h *Harness) closeAllButPrimary(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.browsers) <= 1 {
		return
	}
	for _, b := range h.browsers[1:] {
		if err := b.Quit(ctx); err != nil {
			h.logger.Warn("Failed to quit browser.", zap.Error(err))
		}
	}
	h.browsers = h.browsers[:1]
}

// Close quits every browser and runs the AfterClass callbacks.
func (h *Harness) Close(ctx context.Context) error {
	h.mu.Lock()
	browsers := h.browsers
	callbacks := h.afterClass
	h.browsers = nil
	h.mu.Unlock()

	var errs []error
	for _, b := range browsers {
		if err := b.Quit(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, fn := range callbacks {
		fn()
	}
	return errors.Join(errs...)
}

// CallerName builds the artifact name of a test: the class with path
// separators replaced, then the test name, each cut to at most 70 bytes
// on a rune boundary.
func CallerName(class, test string) string {
	replacer := strings.NewReplacer("\\", "_", "/", "_", ".", "_")
	return replacer.Replace(truncate(class, nameLimit)) + "_" + strings.ReplaceAll(truncate(test, nameLimit), "/", "_")
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// packageOf returns the import path of a function name reported by runtime.FuncForPC.
func packageOf(funcName string) string {
	slash := strings.LastIndex(funcName, "/")
	if dot := strings.Index(funcName[slash+1:], "."); dot >= 0 {
		return funcName[:slash+1+dot]
	}
	return funcName
}
