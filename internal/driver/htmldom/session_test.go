package htmldom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tebeka/selenium"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/dusk/api/schemas"
)

const formPage = `<!DOCTYPE html>
<html><head><title>Sign up</title></head>
<body>
  <h1 id="heading">Create account</h1>
  <p id="secret" hidden>top secret</p>
  <div style="display: none"><span id="nested">buried</span></div>
  <form action="/echo" method="post">
    <input type="hidden" name="token" value="abc">
    <input id="email" name="email" type="email">
    <input name="terms" type="checkbox" value="yes">
    <input name="plan" type="radio" value="free" checked>
    <input name="plan" type="radio" value="pro">
    <select name="country">
      <option value="ca">Canada</option>
      <option value="us">United States</option>
    </select>
    <textarea name="bio">hello</textarea>
    <input type="submit" name="action" value="Register">
    <button type="button" id="greet" onclick="alert('Hi ' + this.tagName)">Greet</button>
    <button type="button" id="log" onclick="console.log('clicked'); console.error('boom')">Log</button>
  </form>
  <a id="next" href="/next">Next page</a>
</body></html>`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/form", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "s3cr3t", Path: "/"})
		fmt.Fprint(w, formPage)
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		var parts []string
		for _, key := range []string{"token", "email", "terms", "plan", "country", "bio", "action"} {
			parts = append(parts, key+"="+strings.Join(r.Form[key], ","))
		}
		fmt.Fprintf(w, `<html><head><title>Echo</title></head><body><pre id="out">%s</pre></body></html>`, strings.Join(parts, "&"))
	})
	mux.HandleFunc("/next", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Next</title><script>document.title; console.log("loaded " + location.pathname)</script></head><body>Second</body></html>`)
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/next", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newSession(t *testing.T) *Session {
	t.Helper()
	s, err := New(zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Quit(context.Background()) })
	return s
}

func TestNavigation(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	s := newSession(t)

	current, err := s.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "about:blank", current)

	require.NoError(t, s.Navigate(ctx, srv.URL+"/form"))
	title, err := s.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Sign up", title)

	// Relative URLs resolve against the current document; redirects are followed.
	require.NoError(t, s.Navigate(ctx, "/redirect"))
	current, _ = s.CurrentURL(ctx)
	assert.Equal(t, srv.URL+"/next", current)

	require.NoError(t, s.Back(ctx))
	current, _ = s.CurrentURL(ctx)
	assert.Equal(t, srv.URL+"/form", current)

	require.NoError(t, s.Forward(ctx))
	title, _ = s.Title(ctx)
	assert.Equal(t, "Next", title)

	logs, err := s.BrowserLogs(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "loaded /next", logs[len(logs)-1].Message)
}

func TestFindElements(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	s := newSession(t)
	require.NoError(t, s.Navigate(ctx, srv.URL+"/form"))

	testCases := []struct {
		name  string
		by    schemas.By
		value string
		count int
	}{
		{"css", schemas.ByCSSSelector, "body form input[name='plan']", 2},
		{"id", schemas.ByID, "email", 1},
		{"xpath", schemas.ByXPath, "//option", 2},
		{"tag", schemas.ByTagName, "textarea", 1},
		{"none", schemas.ByCSSSelector, "#missing", 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			elements, err := s.FindElements(ctx, tc.by, tc.value)
			require.NoError(t, err)
			assert.Len(t, elements, tc.count)
		})
	}

	_, err := s.FindElement(ctx, schemas.ByCSSSelector, "#missing")
	assert.ErrorIs(t, err, schemas.ErrNoSuchElement)

	_, err = s.FindElements(ctx, schemas.ByCSSSelector, "input[")
	assert.ErrorIs(t, err, schemas.ErrInvalidArgument)

	form, err := s.FindElement(ctx, schemas.ByTagName, "form")
	require.NoError(t, err)
	radios, err := form.FindElements(ctx, schemas.ByCSSSelector, "input[type=radio]")
	require.NoError(t, err)
	assert.Len(t, radios, 2)
}

func TestVisibilityAndText(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	s := newSession(t)
	require.NoError(t, s.Navigate(ctx, srv.URL+"/form"))

	for selector, want := range map[string]bool{
		"#heading":             true,
		"#secret":              false,
		"#nested":              false,
		"input[name='token']":  false,
		"select option[value]": true,
	} {
		el, err := s.FindElement(ctx, schemas.ByCSSSelector, selector)
		require.NoError(t, err, selector)
		visible, err := el.IsDisplayed(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, visible, selector)
	}

	secret, _ := s.FindElement(ctx, schemas.ByID, "secret")
	text, err := secret.Text(ctx)
	require.NoError(t, err)
	assert.Empty(t, text, "hidden elements have no rendered text")

	body, _ := s.FindElement(ctx, schemas.ByTagName, "body")
	text, _ = body.Text(ctx)
	assert.Contains(t, text, "Create account")
	assert.NotContains(t, text, "top secret")

	hidden, _ := s.FindElement(ctx, schemas.ByCSSSelector, "input[name='token']")
	assert.ErrorIs(t, hidden.Click(ctx), ErrNotInteractable)
}

func TestFormSubmission(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	s := newSession(t)
	require.NoError(t, s.Navigate(ctx, srv.URL+"/form"))

	find := func(css string) schemas.Element {
		el, err := s.FindElement(ctx, schemas.ByCSSSelector, css)
		require.NoError(t, err, css)
		return el
	}

	email := find("#email")
	require.NoError(t, email.SendKeys(ctx, "taylor@example.comx"+selenium.BackspaceKey))
	value, ok, err := email.Attribute(ctx, "value")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "taylor@example.com", value)

	require.NoError(t, find("input[name='terms']").Click(ctx))
	require.NoError(t, find("input[value='pro']").Click(ctx))
	require.NoError(t, find("option[value='us']").Click(ctx))

	free := find("input[value='free']")
	selected, err := free.IsSelected(ctx)
	require.NoError(t, err)
	assert.False(t, selected, "checking a radio clears its group")
	_, present, _ := free.Attribute(ctx, "checked")
	assert.False(t, present)

	bio := find("textarea")
	require.NoError(t, bio.Clear(ctx))
	require.NoError(t, bio.SendKeys(ctx, "bye"))

	submit := find("input[type=submit]")
	require.NoError(t, submit.Click(ctx))

	out := find("#out")
	text, err := out.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token=abc&email=taylor@example.com&terms=yes&plan=pro&country=us&bio=bye&action=Register", text)

	_, err = submit.Text(ctx)
	assert.ErrorIs(t, err, ErrStaleElement)
}

func TestEnterSubmitsForm(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	s := newSession(t)
	require.NoError(t, s.Navigate(ctx, srv.URL+"/form"))

	email, err := s.FindElement(ctx, schemas.ByID, "email")
	require.NoError(t, err)
	require.NoError(t, email.SendKeys(ctx, "a@b.c"+selenium.EnterKey))

	title, _ := s.Title(ctx)
	assert.Equal(t, "Echo", title)
}

func TestExecuteScript(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	s := newSession(t)
	require.NoError(t, s.Navigate(ctx, srv.URL+"/form"))

	testCases := []struct {
		name   string
		script string
		args   []interface{}
		want   string
	}{
		{"number", "return 1 + 1;", nil, "2"},
		{"undefined", "var x = 1;", nil, "null"},
		{"string", "return document.querySelector('#heading').textContent;", nil, `"Create account"`},
		{"arguments", "return arguments[0] + arguments[1];", []interface{}{2, 3}, "5"},
		{"pathname", "return window.location.pathname == '/form';", nil, "true"},
		{"array", "return document.querySelectorAll('option').map(function (o) { return o.value; });", nil, `["ca","us"]`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := s.ExecuteScript(ctx, tc.script, tc.args)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(raw))
		})
	}

	heading, err := s.FindElement(ctx, schemas.ByID, "heading")
	require.NoError(t, err)
	raw, err := s.ExecuteScript(ctx, "arguments[0].textContent = 'Changed'; return arguments[0].tagName;", []interface{}{heading})
	require.NoError(t, err)
	var tag string
	require.NoError(t, json.Unmarshal(raw, &tag))
	assert.Equal(t, "H1", tag)
	text, _ := heading.Text(ctx)
	assert.Equal(t, "Changed", text)

	_, err = s.ExecuteScript(ctx, "throw new Error('nope');", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")

	_, err = s.ExecuteScript(ctx, "document.body.insertAdjacentHTML('beforeend', '<div id=\"late\">Late</div>');", nil)
	require.NoError(t, err)
	late, err := s.FindElement(ctx, schemas.ByID, "late")
	require.NoError(t, err)
	text, _ = late.Text(ctx)
	assert.Equal(t, "Late", text)
}

func TestDialogs(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	s := newSession(t)
	require.NoError(t, s.Navigate(ctx, srv.URL+"/form"))

	_, err := s.AlertText(ctx)
	assert.ErrorIs(t, err, schemas.ErrNoAlertOpen)

	greet, err := s.FindElement(ctx, schemas.ByID, "greet")
	require.NoError(t, err)
	require.NoError(t, greet.Click(ctx))

	text, err := s.AlertText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hi BUTTON", text)
	assert.ErrorIs(t, s.SetAlertText(ctx, "x"), schemas.ErrInvalidArgument)
	require.NoError(t, s.AcceptAlert(ctx))
	assert.ErrorIs(t, s.DismissAlert(ctx), schemas.ErrNoAlertOpen)

	_, err = s.ExecuteScript(ctx, "prompt('Name?', 'anon');", nil)
	require.NoError(t, err)
	require.NoError(t, s.SetAlertText(ctx, "Taylor"))
	require.NoError(t, s.DismissAlert(ctx))
}

func TestConsoleLogs(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	s := newSession(t)
	require.NoError(t, s.Navigate(ctx, srv.URL+"/form"))

	logButton, err := s.FindElement(ctx, schemas.ByID, "log")
	require.NoError(t, err)
	require.NoError(t, logButton.Click(ctx))

	logs, err := s.BrowserLogs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "INFO", logs[0].Level)
	assert.Equal(t, "clicked", logs[0].Message)
	assert.Equal(t, "SEVERE", logs[1].Level)

	logs, _ = s.BrowserLogs(ctx)
	assert.Empty(t, logs, "reading the log drains it")
}

func TestCookies(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	s := newSession(t)

	assert.ErrorIs(t, s.AddCookie(ctx, schemas.Cookie{Name: "x", Value: "y"}), schemas.ErrInvalidArgument)

	require.NoError(t, s.Navigate(ctx, srv.URL+"/form"))
	cookies, err := s.Cookies(ctx)
	require.NoError(t, err)
	require.Len(t, cookies, 1)
	assert.Equal(t, "session", cookies[0].Name)
	assert.Equal(t, "s3cr3t", cookies[0].Value)

	require.NoError(t, s.AddCookie(ctx, schemas.Cookie{Name: "theme", Value: "dark"}))
	require.NoError(t, s.DeleteCookie(ctx, "session"))

	cookies, _ = s.Cookies(ctx)
	require.Len(t, cookies, 1)
	assert.Equal(t, "theme", cookies[0].Name)
}

func TestLinksAndArtifacts(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)
	s := newSession(t)
	require.NoError(t, s.Navigate(ctx, srv.URL+"/form"))

	link, err := s.FindElement(ctx, schemas.ByID, "next")
	require.NoError(t, err)
	require.NoError(t, link.Click(ctx))
	current, _ := s.CurrentURL(ctx)
	assert.Equal(t, srv.URL+"/next", current)

	source, err := s.PageSource(ctx)
	require.NoError(t, err)
	assert.Contains(t, source, "<title>Next</title>")

	_, err = s.Screenshot(ctx)
	assert.ErrorIs(t, err, schemas.ErrUnsupported)

	require.NoError(t, s.ResizeWindow(ctx, 800, 600))
	raw, err := s.ExecuteScript(ctx, "return [window.innerWidth, document.body.scrollHeight];", nil)
	require.NoError(t, err)
	// innerWidth is captured when the document loads.
	assert.JSONEq(t, "[1920, 600]", string(raw))
	assert.ErrorIs(t, s.ResizeWindow(ctx, 0, 600), schemas.ErrInvalidArgument)
}

func TestSetContentAndQuit(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)

	require.NoError(t, s.SetContent(ctx, "http://app.test/modal", `<body><div dusk="modal">Open</div></body>`))
	current, _ := s.CurrentURL(ctx)
	assert.Equal(t, "http://app.test/modal", current)

	el, err := s.FindElement(ctx, schemas.ByCSSSelector, `body [dusk="modal"]`)
	require.NoError(t, err)
	tag, err := el.TagName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "div", tag)

	require.NoError(t, s.Quit(ctx))
	require.NoError(t, s.Quit(ctx))
	_, err = s.Title(ctx)
	assert.Error(t, err)
}
