package browser

import "context"

// Page describes a URL-addressable screen of the application under test.
type Page interface {
	// URL is visited by VisitPage. Relative URLs are joined to the base URL.
	URL() string
	// Assert verifies the browser is on this page. It runs after On and VisitPage.
	Assert(ctx context.Context, b *Browser) error
	// Elements returns the page's selector aliases, e.g. "@submit" => "#login button".
	Elements() map[string]string
}

// SiteElementProvider is implemented by pages that share aliases across a whole site.
// Page elements win over site elements with the same key.
type SiteElementProvider interface {
	SiteElements() map[string]string
}

// Component is a reusable fragment of a page with its own root selector.
type Component interface {
	Selector() string
	Assert(ctx context.Context, b *Browser) error
	Elements() map[string]string
}

// ExtensionFunc is a named action contributed by a macro, page or component.
type ExtensionFunc func(ctx context.Context, b *Browser, args ...interface{}) error

// Extension is implemented by pages and components that expose actions to Call.
type Extension interface {
	Methods() map[string]ExtensionFunc
}

// BasePage supplies no-op defaults; embed it and implement URL.
type BasePage struct{}

func (BasePage) Assert(context.Context, *Browser) error { return nil }
func (BasePage) Elements() map[string]string          { return nil }

// BaseComponent supplies no-op defaults; embed it and implement Selector.
type BaseComponent struct{}

func (BaseComponent) Assert(context.Context, *Browser) error { return nil }
func (BaseComponent) Elements() map[string]string          { return nil }
