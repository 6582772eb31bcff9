package testcase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/dusk/api/schemas"
	"github.com/xkilldash9x/dusk/internal/browser"
	"github.com/xkilldash9x/dusk/internal/config"
	"github.com/xkilldash9x/dusk/internal/driver/htmldom"
)

const page = `<!DOCTYPE html>
<html><head><title>Dashboard</title></head>
<body>
  <h1>Dashboard</h1>
  <script>console.log('dashboard ready');</script>
</body></html>`

type fixture struct {
	harness *Harness
	cfg     config.BrowserConfig
	opened  *atomic.Int32
	server  *httptest.Server
}

func newFixture(t *testing.T, failures int) *fixture {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	cfg := config.BrowserConfig{
		BaseURL:        server.URL,
		WaitTimeout:    300 * time.Millisecond,
		ScreenshotsDir: filepath.Join(dir, "screenshots"),
		ConsoleLogDir:  filepath.Join(dir, "console"),
		SourceDir:      filepath.Join(dir, "source"),
	}

	logger := zaptest.NewLogger(t)
	var attempts, opened atomic.Int32
	factory := func(ctx context.Context) (schemas.Driver, error) {
		if int(attempts.Add(1)) <= failures {
			return nil, errors.New("connection refused")
		}
		opened.Add(1)
		return htmldom.New(logger)
	}

	h := New(cfg, factory, logger, WithClass("acme/shop.Tests"), WithBrowserOptions(browser.WithMacros(browser.NewMacros())))
	t.Cleanup(func() { _ = h.Close(context.Background()) })
	return &fixture{harness: h, cfg: cfg, opened: &opened, server: server}
}

func TestCallerName(t *testing.T) {
	assert.Equal(t, "acme_shop_Tests_TestLogin_valid_user", CallerName("acme/shop.Tests", "TestLogin/valid_user"))
	assert.Equal(t, `Mantle_Tests_Case_TestX`, CallerName(`Mantle\Tests\Case`, "TestX"))

	long := strings.Repeat("a", 90)
	name := CallerName(long, long)
	assert.Equal(t, strings.Repeat("a", 70)+"_"+strings.Repeat("a", 70), name)

	// 69 ASCII bytes leave one byte of room; the two-byte rune after them is dropped whole.
	accented := strings.Repeat("a", 69) + "é" + "tail"
	name = CallerName("Tests", accented)
	assert.True(t, utf8.ValidString(name))
	assert.Equal(t, "Tests_"+strings.Repeat("a", 69), name)
	assert.Equal(t, "ééé", truncate("éééé", 7))
}

func TestPackageOf(t *testing.T) {
	assert.Equal(t, "github.com/acme/shop/tests", packageOf("github.com/acme/shop/tests.TestLogin.func1"))
	assert.Equal(t, "main", packageOf("main.TestSomething"))
	assert.Equal(t, "weird", packageOf("weird"))
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("ReusesPrimaryBrowser", func(t *testing.T) {
		f := newFixture(t, 0)

		var first, second *browser.Browser
		err := f.harness.Run(ctx, "multi", 2, func(browsers ...*browser.Browser) error {
			require.Len(t, browsers, 2)
			first, second = browsers[0], browsers[1]
			return browsers[0].Visit(ctx, "/")
		})
		require.NoError(t, err)
		assert.EqualValues(t, 2, f.opened.Load())

		_, err = second.Driver().CurrentURL(ctx)
		assert.Error(t, err, "secondary browsers are closed after each run")

		err = f.harness.Run(ctx, "single", 1, func(browsers ...*browser.Browser) error {
			require.Len(t, browsers, 1)
			assert.Same(t, first, browsers[0])
			return nil
		})
		require.NoError(t, err)
		assert.EqualValues(t, 2, f.opened.Load(), "the primary browser is reused")
	})

	t.Run("ZeroBrowsersStillOpensPrimary", func(t *testing.T) {
		f := newFixture(t, 0)
		err := f.harness.Run(ctx, "none", 0, func(browsers ...*browser.Browser) error {
			assert.Len(t, browsers, 1)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("StoresConsoleLogAlways", func(t *testing.T) {
		f := newFixture(t, 0)
		err := f.harness.Run(ctx, "console", 1, func(browsers ...*browser.Browser) error {
			return browsers[0].Visit(ctx, "/")
		})
		require.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(f.cfg.ConsoleLogDir, "console-0.log"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "dashboard ready")

		_, err = os.Stat(f.cfg.SourceDir)
		assert.True(t, os.IsNotExist(err), "source is only stored on failure")
	})

	t.Run("FailureStoresSource", func(t *testing.T) {
		f := newFixture(t, 0)
		boom := errors.New("assertion failed")
		err := f.harness.Run(ctx, "failing", 1, func(browsers ...*browser.Browser) error {
			b := browsers[0]
			require.NoError(t, b.Visit(ctx, "/"))
			require.NoError(t, b.AssertSourceHas(ctx, "<h1>Dashboard</h1>"))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		source, err := os.ReadFile(filepath.Join(f.cfg.SourceDir, "failing-0.txt"))
		require.NoError(t, err)
		assert.Contains(t, string(source), "<h1>Dashboard</h1>")

		// htmldom has no renderer, so no screenshot is written.
		_, err = os.Stat(filepath.Join(f.cfg.ScreenshotsDir, "failure-failing-0.png"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("PanicIsReraisedAfterCapture", func(t *testing.T) {
		f := newFixture(t, 0)
		assert.PanicsWithValue(t, "kaboom", func() {
			_ = f.harness.Run(ctx, "panicky", 1, func(browsers ...*browser.Browser) error {
				require.NoError(t, browsers[0].Visit(ctx, "/"))
				require.NoError(t, browsers[0].AssertSourceHas(ctx, "Dashboard"))
				panic("kaboom")
			})
		})
		_, err := os.Stat(filepath.Join(f.cfg.SourceDir, "panicky-0.txt"))
		assert.NoError(t, err)
	})

	t.Run("RetriesDriverCreation", func(t *testing.T) {
		f := newFixture(t, 3)
		err := f.harness.Run(ctx, "retry", 1, func(browsers ...*browser.Browser) error { return nil })
		require.NoError(t, err)
		assert.EqualValues(t, 1, f.opened.Load())
	})

	t.Run("GivesUpAfterFiveAttempts", func(t *testing.T) {
		f := newFixture(t, 5)
		called := false
		err := f.harness.Run(ctx, "down", 1, func(browsers ...*browser.Browser) error {
			called = true
			return nil
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 5 attempts")
		assert.Contains(t, err.Error(), "connection refused")
		assert.False(t, called)
	})
}

func TestBrowse(t *testing.T) {
	f := newFixture(t, 0)
	f.harness.Browse(t, 1, func(browsers ...*browser.Browser) error {
		b := browsers[0]
		if err := b.Visit(context.Background(), "/"); err != nil {
			return err
		}
		return b.AssertTitle(context.Background(), "Dashboard")
	})

	_, err := os.Stat(filepath.Join(f.cfg.ConsoleLogDir, "acme_shop_Tests_TestBrowse-0.log"))
	assert.NoError(t, err)
}

func TestClose(t *testing.T) {
	f := newFixture(t, 0)
	var primary *browser.Browser
	require.NoError(t, f.harness.Run(context.Background(), "close", 1, func(browsers ...*browser.Browser) error {
		primary = browsers[0]
		return nil
	}))

	ran := false
	f.harness.AfterClass(func() { ran = true })
	require.NoError(t, f.harness.Close(context.Background()))
	assert.True(t, ran)

	_, err := primary.Driver().CurrentURL(context.Background())
	assert.Error(t, err)
}
