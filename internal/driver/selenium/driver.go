// Package selenium adapts a W3C WebDriver session from github.com/tebeka/selenium.
//
// The tebeka client has no context support, so contexts are only checked
// before each command is sent.
package selenium

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"github.com/tebeka/selenium/log"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dusk/api/schemas"
	"github.com/xkilldash9x/dusk/internal/config"
)

// Driver wraps a selenium.WebDriver, and the local ChromeDriver service it
// started, if any.
type Driver struct {
	wd      selenium.WebDriver
	service *selenium.Service
	logger  *zap.Logger
}

var (
	_ schemas.Driver        = (*Driver)(nil)
	_ schemas.FrameSwitcher = (*Driver)(nil)
)

// New opens a WebDriver session. With a RemoteURL it connects to that
// endpoint; otherwise it starts ChromeDriver on the configured port.
func New(ctx context.Context, cfg config.DriverConfig, logger *zap.Logger) (*Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("selenium")

	var service *selenium.Service
	remote := cfg.Selenium.RemoteURL
	if remote == "" {
		var err error
		service, err = selenium.NewChromeDriverService(cfg.Selenium.ChromeDriverPath, cfg.Selenium.Port)
		if err != nil {
			return nil, fmt.Errorf("failed to start chromedriver: %w", err)
		}
		remote = fmt.Sprintf("http://127.0.0.1:%d/wd/hub", cfg.Selenium.Port)
	}

	wd, err := selenium.NewRemote(capabilities(cfg), remote)
	if err != nil {
		if service != nil {
			_ = service.Stop()
		}
		return nil, fmt.Errorf("failed to open webdriver session at %s: %w", remote, err)
	}

	d := &Driver{wd: wd, service: service, logger: logger.With(zap.String("session_id", wd.SessionID()))}
	if cfg.Window.Width > 0 && cfg.Window.Height > 0 {
		if err := wd.ResizeWindow("", cfg.Window.Width, cfg.Window.Height); err != nil {
			d.logger.Warn("Failed to size the browser window.", zap.Error(err))
		}
	}
	if cfg.NavigationTimeout > 0 {
		if err := wd.SetPageLoadTimeout(cfg.NavigationTimeout); err != nil {
			d.logger.Warn("Failed to set page load timeout.", zap.Error(err))
		}
	}
	d.logger.Info("WebDriver session opened.", zap.String("remote", remote))
	return d, nil
}

// NewWithWebDriver wraps an existing session. Quit still ends it.
func NewWithWebDriver(wd selenium.WebDriver, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{wd: wd, logger: logger.Named("selenium")}
}

func capabilities(cfg config.DriverConfig) selenium.Capabilities {
	name := cfg.Selenium.BrowserName
	if name == "" {
		name = "chrome"
	}
	caps := selenium.Capabilities{"browserName": name}
	if name != "chrome" {
		return caps
	}

	args := []string{"--disable-gpu", "--no-first-run", "--disable-extensions"}
	if cfg.Headless {
		args = append(args, "--headless=new")
	}
	if cfg.Window.Width > 0 && cfg.Window.Height > 0 {
		args = append(args, fmt.Sprintf("--window-size=%d,%d", cfg.Window.Width, cfg.Window.Height))
	}
	if cfg.IgnoreTLSErrors {
		args = append(args, "--ignore-certificate-errors")
	}
	args = append(args, cfg.Args...)
	caps.AddChrome(chrome.Capabilities{Args: args, W3C: true})
	caps.SetLogLevel(log.Browser, log.All)
	return caps
}

// mapError translates WebDriver error codes into the schemas sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var wdErr *selenium.Error
	if errors.As(err, &wdErr) {
		switch {
		case wdErr.Err == "no such element" || wdErr.LegacyCode == 7:
			return fmt.Errorf("%w: %s", schemas.ErrNoSuchElement, wdErr.Message)
		case wdErr.Err == "no such alert" || wdErr.LegacyCode == 27:
			return schemas.ErrNoAlertOpen
		case wdErr.Err == "invalid argument":
			return &schemas.InvalidArgumentError{Message: wdErr.Message}
		case wdErr.Err == "timeout" || wdErr.Err == "script timeout":
			return fmt.Errorf("%w: %s", schemas.ErrTimeout, wdErr.Message)
		}
	}
	return err
}

// -- Navigation --

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(d.wd.Get(url))
}

func (d *Driver) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(d.wd.Refresh())
}

func (d *Driver) Back(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(d.wd.Back())
}

func (d *Driver) Forward(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(d.wd.Forward())
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	u, err := d.wd.CurrentURL()
	return u, mapError(err)
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	title, err := d.wd.Title()
	return title, mapError(err)
}

// -- Elements --

func (d *Driver) FindElement(ctx context.Context, by schemas.By, value string) (schemas.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	we, err := d.wd.FindElement(string(by), value)
	if err != nil {
		return nil, &schemas.NotFoundError{Selector: value, Err: mapError(err)}
	}
	return &element{we: we}, nil
}

func (d *Driver) FindElements(ctx context.Context, by schemas.By, value string) ([]schemas.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found, err := d.wd.FindElements(string(by), value)
	if err != nil {
		if errors.Is(mapError(err), schemas.ErrNoSuchElement) {
			return nil, nil
		}
		return nil, mapError(err)
	}
	return wrap(found), nil
}

// -- Scripts --

func (d *Driver) ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if args == nil {
		args = []interface{}{}
	}
	wireArgs := make([]interface{}, len(args))
	for i, arg := range args {
		if el, ok := arg.(*element); ok {
			wireArgs[i] = el.we
			continue
		}
		wireArgs[i] = arg
	}
	result, err := d.wd.ExecuteScript(script, wireArgs)
	if err != nil {
		return nil, fmt.Errorf("javascript error: %w", mapError(err))
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode script result: %w", err)
	}
	return encoded, nil
}

// -- Window --

func (d *Driver) ResizeWindow(ctx context.Context, width, height int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(d.wd.ResizeWindow("", width, height))
}

func (d *Driver) MaximizeWindow(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(d.wd.MaximizeWindow(""))
}

// -- Frames --

func (d *Driver) SwitchFrame(ctx context.Context, frame schemas.Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	el, ok := frame.(*element)
	if !ok {
		return schemas.NewInvalidArgument("frame element does not belong to a selenium session")
	}
	return mapError(d.wd.SwitchFrame(el.we))
}

func (d *Driver) SwitchToDefaultContent(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(d.wd.SwitchFrame(nil))
}

// -- Cookies --

func (d *Driver) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cookies, err := d.wd.GetCookies()
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]schemas.Cookie, 0, len(cookies))
	for _, c := range cookies {
		cookie := schemas.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Secure:   c.Secure,
		}
		if c.Expiry > 0 {
			cookie.Expiry = time.Unix(int64(c.Expiry), 0)
		}
		out = append(out, cookie)
	}
	return out, nil
}

// AddCookie sets a cookie on the current document. The WebDriver client has
// no httpOnly field, so HTTPOnly is not supported by this backend and is dropped.
func (d *Driver) AddCookie(ctx context.Context, cookie schemas.Cookie) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := &selenium.Cookie{
		Name:   cookie.Name,
		Value:  cookie.Value,
		Path:   cookie.Path,
		Domain: cookie.Domain,
		Secure: cookie.Secure,
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if !cookie.Expiry.IsZero() {
		c.Expiry = uint(cookie.Expiry.Unix())
	}
	return mapError(d.wd.AddCookie(c))
}

func (d *Driver) DeleteCookie(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(d.wd.DeleteCookie(name))
}

// -- Dialogs --

func (d *Driver) AlertText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := d.wd.AlertText()
	return text, mapError(err)
}

func (d *Driver) AcceptAlert(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(d.wd.AcceptAlert())
}

func (d *Driver) DismissAlert(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(d.wd.DismissAlert())
}

func (d *Driver) SetAlertText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(d.wd.SetAlertText(text))
}

// -- Artifacts --

func (d *Driver) PageSource(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	source, err := d.wd.PageSource()
	return source, mapError(err)
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	png, err := d.wd.Screenshot()
	return png, mapError(err)
}

// BrowserLogs reads the "browser" log. Remotes that do not implement the
// legacy log endpoint report ErrUnsupported.
func (d *Driver) BrowserLogs(ctx context.Context) ([]schemas.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	messages, err := d.wd.Log(log.Browser)
	if err != nil {
		var wdErr *selenium.Error
		if errors.As(err, &wdErr) && (wdErr.Err == "unknown command" || wdErr.Err == "unknown method") {
			return nil, fmt.Errorf("browser log: %w", schemas.ErrUnsupported)
		}
		return nil, mapError(err)
	}
	entries := make([]schemas.LogEntry, 0, len(messages))
	for _, m := range messages {
		entries = append(entries, schemas.LogEntry{
			Level:     strings.ToUpper(string(m.Level)),
			Message:   m.Message,
			Timestamp: m.Timestamp,
		})
	}
	return entries, nil
}

// Quit ends the session and stops the ChromeDriver service this driver started.
func (d *Driver) Quit(ctx context.Context) error {
	err := mapError(d.wd.Quit())
	if d.service != nil {
		if stopErr := d.service.Stop(); stopErr != nil {
			d.logger.Warn("Failed to stop chromedriver.", zap.Error(stopErr))
			if err == nil {
				err = stopErr
			}
		}
		d.service = nil
	}
	if err != nil {
		return fmt.Errorf("failed to quit webdriver session: %w", err)
	}
	d.logger.Debug("WebDriver session closed.")
	return nil
}
