package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/dusk/api/schemas"
	"github.com/xkilldash9x/dusk/internal/browser/wait"
)

// A zero timeout passed to any Wait helper selects the waiter's default.

// WaitUsing polls predicate every interval until it holds or timeout elapses.
func (b *Browser) WaitUsing(ctx context.Context, timeout, interval time.Duration, predicate wait.Predicate, message string) error {
	return b.waiter.WaitUsing(ctx, timeout, interval, predicate, message)
}

// WaitFor waits until the element matching selector is visible.
func (b *Browser) WaitFor(ctx context.Context, selector string, timeout ...time.Duration) error {
	return b.waiter.WaitUsing(ctx, first(timeout), wait.DefaultInterval, func(ctx context.Context) (bool, error) {
		el, err := b.resolver.FindOrFail(ctx, selector)
		if err != nil {
			return false, err
		}
		return el.IsDisplayed(ctx)
	}, wait.FormatTimeoutMessage("Waited %s seconds for selector", selector))
}

// WhenAvailable waits for selector and then runs fn scoped to it.
func (b *Browser) WhenAvailable(ctx context.Context, selector string, fn func(*Browser) error, timeout ...time.Duration) error {
	if err := b.WaitFor(ctx, selector, timeout...); err != nil {
		return err
	}
	return b.With(ctx, selector, fn)
}

// WaitUntilMissing waits until selector matches nothing visible.
func (b *Browser) WaitUntilMissing(ctx context.Context, selector string, timeout ...time.Duration) error {
	return b.waiter.WaitUsing(ctx, first(timeout), wait.DefaultInterval, func(ctx context.Context) (bool, error) {
		el, err := b.resolver.FindOrFail(ctx, selector)
		if errors.Is(err, schemas.ErrNoSuchElement) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		visible, err := el.IsDisplayed(ctx)
		return !visible, err
	}, wait.FormatTimeoutMessage("Waited %s seconds for removal of selector", selector))
}

// WaitForText waits until the scope's text contains any of texts.
func (b *Browser) WaitForText(ctx context.Context, texts []string, timeout ...time.Duration) error {
	return b.waiter.WaitUsing(ctx, first(timeout), wait.DefaultInterval, func(ctx context.Context) (bool, error) {
		return b.scopeContainsAny(ctx, texts)
	}, wait.FormatTimeoutMessage("Waited %s seconds for text", strings.Join(texts, "', '")))
}

// WaitUntilMissingText waits until the scope's text contains none of texts.
func (b *Browser) WaitUntilMissingText(ctx context.Context, texts []string, timeout ...time.Duration) error {
	return b.waiter.WaitUsing(ctx, first(timeout), wait.DefaultInterval, func(ctx context.Context) (bool, error) {
		found, err := b.scopeContainsAny(ctx, texts)
		return !found, err
	}, wait.FormatTimeoutMessage("Waited %s seconds for removal of text", strings.Join(texts, "', '")))
}

func (b *Browser) scopeContainsAny(ctx context.Context, texts []string) (bool, error) {
	el, err := b.resolver.FindOrFail(ctx, "")
	if err != nil {
		return false, err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return false, err
	}
	for _, needle := range texts {
		if needle != "" && strings.Contains(text, needle) {
			return true, nil
		}
	}
	return false, nil
}

// WaitForTextIn waits until the element matching selector contains text.
func (b *Browser) WaitForTextIn(ctx context.Context, selector, text string, timeout ...time.Duration) error {
	message := `Waited %s seconds for text "` + escapePercent(text) + `" in selector ` + escapePercent(selector)
	return b.waiter.WaitUsing(ctx, first(timeout), wait.DefaultInterval, func(ctx context.Context) (bool, error) {
		return b.AssertSeeIn(ctx, selector, text) == nil, nil
	}, message)
}

// WaitForLink waits until a visible link containing link appears.
func (b *Browser) WaitForLink(ctx context.Context, link string, timeout ...time.Duration) error {
	return b.waiter.WaitUsing(ctx, first(timeout), wait.DefaultInterval, func(ctx context.Context) (bool, error) {
		return b.SeeLink(ctx, link), nil
	}, wait.FormatTimeoutMessage("Waited %s seconds for link", link))
}

// WaitForLocation waits until window.location.pathname equals path.
func (b *Browser) WaitForLocation(ctx context.Context, path string, timeout ...time.Duration) error {
	return b.WaitUntil(ctx, fmt.Sprintf("window.location.pathname == %s", jsString(path)),
		wait.FormatTimeoutMessage("Waited %s seconds for location", path), timeout...)
}

// WaitForRoute waits for the location of a named route.
func (b *Browser) WaitForRoute(ctx context.Context, name string, params map[string]string, timeout ...time.Duration) error {
	path, err := b.Route(name, params)
	if err != nil {
		return err
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return b.WaitForLocation(ctx, path, timeout...)
}

// WaitUntil waits until the JavaScript expression is truthy. The script is
// made into a return statement when it is not one already. An empty message
// selects the generic callback message.
func (b *Browser) WaitUntil(ctx context.Context, script, message string, timeout ...time.Duration) error {
	if !strings.HasPrefix(script, "return ") {
		script = "return " + script
	}
	if !strings.HasSuffix(script, ";") {
		script += ";"
	}
	return b.waiter.WaitUsing(ctx, first(timeout), wait.DefaultInterval, func(ctx context.Context) (bool, error) {
		raw, err := b.driver.ExecuteScript(ctx, script, nil)
		if err != nil {
			return false, err
		}
		return truthy(raw), nil
	}, message)
}

// WaitForDialog waits until a JavaScript dialog is open.
func (b *Browser) WaitForDialog(ctx context.Context, timeout ...time.Duration) error {
	return b.waiter.WaitUsing(ctx, first(timeout), wait.DefaultInterval, func(ctx context.Context) (bool, error) {
		if _, err := b.driver.AlertText(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, "Waited %s seconds for dialog.")
}

// WaitForReload marks the current window, runs fn, and waits until the mark
// is gone because a new document was loaded.
func (b *Browser) WaitForReload(ctx context.Context, fn func(*Browser) error, timeout ...time.Duration) error {
	token := "dusk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := b.driver.ExecuteScript(ctx, fmt.Sprintf("window['%s'] = {};", token), nil); err != nil {
		return fmt.Errorf("failed to mark window before reload: %w", err)
	}
	if fn != nil {
		if err := fn(b); err != nil {
			return err
		}
	}
	script := fmt.Sprintf("return typeof window['%s'] === 'undefined';", token)
	return b.waiter.WaitUsing(ctx, first(timeout), wait.DefaultInterval, func(ctx context.Context) (bool, error) {
		raw, err := b.driver.ExecuteScript(ctx, script, nil)
		if err != nil {
			return false, err
		}
		return truthy(raw), nil
	}, "Waited %s seconds for page reload.")
}

func first(timeout []time.Duration) time.Duration {
	if len(timeout) == 0 {
		return 0
	}
	return timeout[0]
}

func escapePercent(s string) string { return strings.ReplaceAll(s, "%", "%%") }

// jsString quotes s as a single-quoted JavaScript string literal.
func jsString(s string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`).Replace(s) + "'"
}
