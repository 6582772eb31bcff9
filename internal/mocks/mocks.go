// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/dusk/api/schemas"
)

// -- Element Mock --

// MockElement mocks the schemas.Element interface.
type MockElement struct {
	mock.Mock
}

var _ schemas.Element = (*MockElement)(nil)

func (m *MockElement) Click(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockElement) SendKeys(ctx context.Context, keys string) error {
	return m.Called(ctx, keys).Error(0)
}
func (m *MockElement) Clear(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockElement) Text(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
func (m *MockElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Bool(1), args.Error(2)
}
func (m *MockElement) TagName(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
func (m *MockElement) IsDisplayed(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}
func (m *MockElement) IsEnabled(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}
func (m *MockElement) IsSelected(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}
func (m *MockElement) FindElements(ctx context.Context, by schemas.By, value string) ([]schemas.Element, error) {
	args := m.Called(ctx, by, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Element), args.Error(1)
}

// -- Element Finder Mock --

// MockElementFinder mocks the schemas.ElementFinder interface.
type MockElementFinder struct {
	mock.Mock
}

var _ schemas.ElementFinder = (*MockElementFinder)(nil)

func (m *MockElementFinder) FindElement(ctx context.Context, by schemas.By, value string) (schemas.Element, error) {
	args := m.Called(ctx, by, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(schemas.Element), args.Error(1)
}

func (m *MockElementFinder) FindElements(ctx context.Context, by schemas.By, value string) ([]schemas.Element, error) {
	args := m.Called(ctx, by, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Element), args.Error(1)
}

// -- Driver Mock --

// MockDriver mocks the full schemas.Driver surface. Element lookups are
// delegated to the embedded MockElementFinder.
type MockDriver struct {
	MockElementFinder
}

var _ schemas.Driver = (*MockDriver)(nil)

func (m *MockDriver) ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	ret := m.Called(ctx, script, args)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	switch v := ret.Get(0).(type) {
	case json.RawMessage:
		return v, ret.Error(1)
	case string:
		return json.RawMessage(v), ret.Error(1)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return raw, ret.Error(1)
	}
}

func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}
func (m *MockDriver) Refresh(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockDriver) Back(ctx context.Context) error    { return m.Called(ctx).Error(0) }
func (m *MockDriver) Forward(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockDriver) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
func (m *MockDriver) Title(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
func (m *MockDriver) ResizeWindow(ctx context.Context, width, height int) error {
	return m.Called(ctx, width, height).Error(0)
}
func (m *MockDriver) MaximizeWindow(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockDriver) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Cookie), args.Error(1)
}
func (m *MockDriver) AddCookie(ctx context.Context, cookie schemas.Cookie) error {
	return m.Called(ctx, cookie).Error(0)
}
func (m *MockDriver) DeleteCookie(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}
func (m *MockDriver) AlertText(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
func (m *MockDriver) AcceptAlert(ctx context.Context) error  { return m.Called(ctx).Error(0) }
func (m *MockDriver) DismissAlert(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockDriver) SetAlertText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}
func (m *MockDriver) PageSource(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
func (m *MockDriver) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
func (m *MockDriver) BrowserLogs(ctx context.Context) ([]schemas.LogEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.LogEntry), args.Error(1)
}
func (m *MockDriver) Quit(ctx context.Context) error { return m.Called(ctx).Error(0) }
