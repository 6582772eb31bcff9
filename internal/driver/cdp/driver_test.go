package cdp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/dusk/api/schemas"
	"github.com/xkilldash9x/dusk/internal/config"
)

func TestSplitArg(t *testing.T) {
	tests := []struct {
		arg, name, value string
	}{
		{"--lang=en-GB", "lang", "en-GB"},
		{"--mute-audio", "mute-audio", ""},
		{"window-position=0,0", "window-position", "0,0"},
		{"--", "", ""},
	}
	for _, tt := range tests {
		name, value := splitArg(tt.arg)
		assert.Equal(t, tt.name, name, tt.arg)
		assert.Equal(t, tt.value, value, tt.arg)
	}
}

func TestCallDeclaration(t *testing.T) {
	decl, err := callDeclaration(jsTagName, nil)
	require.NoError(t, err)
	assert.Equal(t, jsTagName, decl)

	decl, err = callDeclaration(jsAttribute, []interface{}{`data-"x"`})
	require.NoError(t, err)
	assert.Equal(t, "function() { return ("+jsAttribute+`).apply(this, ["data-\"x\""]); }`, decl)
}

func TestExceptionText(t *testing.T) {
	details := &runtime.ExceptionDetails{
		Text:      "Uncaught",
		Exception: &runtime.RemoteObject{Description: "TypeError: x is not a function\n    at <anonymous>:1:1"},
	}
	assert.Equal(t, "TypeError: x is not a function", exceptionText(details))
	assert.Equal(t, "Uncaught", exceptionText(&runtime.ExceptionDetails{Text: "Uncaught"}))
}

func TestConsoleMapping(t *testing.T) {
	assert.Equal(t, "SEVERE", consoleLevel(runtime.APITypeError))
	assert.Equal(t, "SEVERE", consoleLevel(runtime.APITypeAssert))
	assert.Equal(t, "WARNING", consoleLevel(runtime.APITypeWarning))
	assert.Equal(t, "DEBUG", consoleLevel(runtime.APITypeDebug))
	assert.Equal(t, "INFO", consoleLevel(runtime.APITypeLog))

	text := consoleText([]*runtime.RemoteObject{
		{Type: runtime.TypeString, Value: []byte(`"saved"`)},
		{Type: runtime.TypeNumber, Value: []byte(`3`)},
		{Type: runtime.TypeObject, Description: "HTMLDivElement"},
		{Type: runtime.TypeFunction},
	})
	assert.Equal(t, "saved 3 HTMLDivElement [function]", text)

	assert.WithinDuration(t, time.Now(), eventTime(nil), time.Second)
}

func TestHandleEvents(t *testing.T) {
	d := &Driver{logger: zaptest.NewLogger(t)}

	d.handleExceptionThrown(&runtime.EventExceptionThrown{
		ExceptionDetails: &runtime.ExceptionDetails{
			Text:      "Uncaught",
			Exception: &runtime.RemoteObject{Description: "ReferenceError: nope is not defined"},
		},
	})
	d.handleConsoleAPICalled(&runtime.EventConsoleAPICalled{
		Type: runtime.APITypeWarning,
		Args: []*runtime.RemoteObject{{Type: runtime.TypeString, Value: []byte(`"careful"`)}},
	})

	logs, err := d.BrowserLogs(context.Background())
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "SEVERE", logs[0].Level)
	assert.Equal(t, "ReferenceError: nope is not defined", logs[0].Message)
	assert.Equal(t, "WARNING", logs[1].Level)
	assert.Equal(t, "careful", logs[1].Message)

	logs, err = d.BrowserLogs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, logs, "logs are drained")

	_, err = d.AlertText(context.Background())
	assert.ErrorIs(t, err, schemas.ErrNoAlertOpen)
	assert.ErrorIs(t, d.SetAlertText(context.Background(), "x"), schemas.ErrNoAlertOpen)
}

// newChrome starts a real browser, skipping when none is installed.
func newChrome(t *testing.T) *Driver {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	found := false
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell", "chrome"} {
		if _, err := exec.LookPath(name); err == nil {
			found = true
			break
		}
	}
	if !found {
		t.Skip("no chrome binary on PATH")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()
	d, err := New(ctx, config.DriverConfig{
		Headless:          true,
		Window:            config.WindowConfig{Width: 1024, Height: 768},
		NavigationTimeout: 15 * time.Second,
		Args:              []string{"--no-sandbox"},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Quit(context.Background()) })
	return d
}

const fixture = `<!doctype html>
<html><head><title>Fixture</title></head>
<body>
	<h1 id="heading">Hello <em>there</em></h1>
	<input id="name" name="name" value="Taylor">
	<input id="agree" type="checkbox" checked>
	<button id="off" disabled>Off</button>
	<p id="ghost" style="display:none">Boo</p>
	<script>console.warn('loaded');</script>
</body></html>`

func TestChrome(t *testing.T) {
	d := newChrome(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(fixture))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, d.Navigate(ctx, server.URL+"/page"))

	title, err := d.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Fixture", title)

	location, err := d.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/page", location)

	t.Run("Elements", func(t *testing.T) {
		heading, err := d.FindElement(ctx, schemas.ByID, "heading")
		require.NoError(t, err)
		text, err := heading.Text(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Hello there", text)

		ems, err := heading.FindElements(ctx, schemas.ByCSSSelector, "em")
		require.NoError(t, err)
		assert.Len(t, ems, 1)

		_, err = d.FindElement(ctx, schemas.ByCSSSelector, ".missing")
		assert.ErrorIs(t, err, schemas.ErrNoSuchElement)

		input, err := d.FindElement(ctx, schemas.ByXPath, "//input[@name='name']")
		require.NoError(t, err)
		require.NoError(t, input.Clear(ctx))
		require.NoError(t, input.SendKeys(ctx, "Jordan"))
		value, ok, err := input.Attribute(ctx, "value")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "Jordan", value)

		agree, err := d.FindElement(ctx, schemas.ByID, "agree")
		require.NoError(t, err)
		selected, err := agree.IsSelected(ctx)
		require.NoError(t, err)
		assert.True(t, selected)

		off, err := d.FindElement(ctx, schemas.ByID, "off")
		require.NoError(t, err)
		enabled, err := off.IsEnabled(ctx)
		require.NoError(t, err)
		assert.False(t, enabled)

		ghost, err := d.FindElement(ctx, schemas.ByID, "ghost")
		require.NoError(t, err)
		shown, err := ghost.IsDisplayed(ctx)
		require.NoError(t, err)
		assert.False(t, shown)
	})

	t.Run("Scripts", func(t *testing.T) {
		raw, err := d.ExecuteScript(ctx, "return arguments[0] + arguments[1];", []interface{}{2, 3})
		require.NoError(t, err)
		assert.JSONEq(t, "5", string(raw))

		raw, err = d.ExecuteScript(ctx, "document.title = 'Changed';", nil)
		require.NoError(t, err)
		assert.Equal(t, json.RawMessage("null"), raw)

		_, err = d.ExecuteScript(ctx, "throw new Error('boom');", nil)
		assert.Error(t, err)
	})

	t.Run("Cookies", func(t *testing.T) {
		cookies, err := d.Cookies(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, cookies)
		assert.Equal(t, "session", cookies[0].Name)

		require.NoError(t, d.AddCookie(ctx, schemas.Cookie{Name: "theme", Value: "dark"}))
		require.NoError(t, d.DeleteCookie(ctx, "session"))
		cookies, err = d.Cookies(ctx)
		require.NoError(t, err)
		require.Len(t, cookies, 1)
		assert.Equal(t, "theme", cookies[0].Name)
	})

	t.Run("Dialogs", func(t *testing.T) {
		_, err := d.ExecuteScript(ctx, "setTimeout(function() { window.answer = prompt('Name?'); }, 0);", nil)
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			_, err := d.AlertText(ctx)
			return err == nil
		}, 5*time.Second, 50*time.Millisecond)

		text, err := d.AlertText(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Name?", text)
		require.NoError(t, d.SetAlertText(ctx, "Riley"))
		require.NoError(t, d.AcceptAlert(ctx))

		raw, err := d.ExecuteScript(ctx, "return window.answer;", nil)
		require.NoError(t, err)
		assert.JSONEq(t, `"Riley"`, string(raw))
	})

	t.Run("Artifacts", func(t *testing.T) {
		png, err := d.Screenshot(ctx)
		require.NoError(t, err)
		assert.Greater(t, len(png), 8)

		source, err := d.PageSource(ctx)
		require.NoError(t, err)
		assert.Contains(t, source, `id="heading"`)

		logs, err := d.BrowserLogs(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, logs)
		assert.Equal(t, "loaded", logs[0].Message)
	})

	require.NoError(t, d.ResizeWindow(ctx, 800, 600))
	raw, err := d.ExecuteScript(ctx, "return window.innerWidth;", nil)
	require.NoError(t, err)
	assert.JSONEq(t, "800", string(raw))
}
