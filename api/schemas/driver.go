package schemas

import (
	"context"
	"encoding/json"
	"time"
)

// By names a locator strategy understood by every driver adapter.
// The string values match the W3C WebDriver "using" parameter.
type By string

const (
	ByCSSSelector By = "css selector"
	ByID          By = "id"
	ByXPath       By = "xpath"
	ByTagName     By = "tag name"
)

// Element is a handle to a single node in the remote document.
type Element interface {
	Click(ctx context.Context) error
	SendKeys(ctx context.Context, keys string) error
	Clear(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	// Attribute returns the attribute value and whether the attribute is present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	TagName(ctx context.Context) (string, error)
	IsDisplayed(ctx context.Context) (bool, error)
	IsEnabled(ctx context.Context) (bool, error)
	IsSelected(ctx context.Context) (bool, error)
	// FindElements searches the element's subtree.
	FindElements(ctx context.Context, by By, value string) ([]Element, error)
}

// ElementFinder is the lookup capability the resolver is built on.
// FindElement must return an error satisfying errors.Is(err, ErrNoSuchElement) when nothing matches.
type ElementFinder interface {
	FindElement(ctx context.Context, by By, value string) (Element, error)
	FindElements(ctx context.Context, by By, value string) ([]Element, error)
}

// ScriptExecutor runs a script body (as a function body, so `return` is allowed).
// The result is the JSON encoding of the returned value.
type ScriptExecutor interface {
	ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error)
}

// Navigator controls the top-level browsing context.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
	Refresh(ctx context.Context) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
}

// WindowManager controls the browser window geometry.
type WindowManager interface {
	ResizeWindow(ctx context.Context, width, height int) error
	MaximizeWindow(ctx context.Context) error
}

// Cookie is a driver-agnostic browser cookie.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"httpOnly,omitempty"`
	Expiry   time.Time `json:"expiry,omitempty"`
}

// CookieManager reads and writes cookies for the current document.
type CookieManager interface {
	Cookies(ctx context.Context) ([]Cookie, error)
	AddCookie(ctx context.Context, cookie Cookie) error
	DeleteCookie(ctx context.Context, name string) error
}

// DialogHandler interacts with JavaScript alert/confirm/prompt dialogs.
// Every method returns an error wrapping ErrNoAlertOpen when no dialog is showing.
type DialogHandler interface {
	AlertText(ctx context.Context) (string, error)
	AcceptAlert(ctx context.Context) error
	DismissAlert(ctx context.Context) error
	SetAlertText(ctx context.Context, text string) error
}

// LogEntry is one browser console message.
type LogEntry struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ArtifactSource exposes the debugging artifacts captured on test failure.
type ArtifactSource interface {
	PageSource(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	// BrowserLogs returns the console log, or ErrUnsupported for drivers that cannot read it.
	BrowserLogs(ctx context.Context) ([]LogEntry, error)
}

// Driver is the complete remote-browser capability surface.
type Driver interface {
	ElementFinder
	ScriptExecutor
	Navigator
	WindowManager
	CookieManager
	DialogHandler
	ArtifactSource

	// Quit ends the browser session and releases its resources.
	Quit(ctx context.Context) error
}

// FrameSwitcher is implemented by drivers that can move into child browsing contexts.
type FrameSwitcher interface {
	SwitchFrame(ctx context.Context, frame Element) error
	SwitchToDefaultContent(ctx context.Context) error
}
