package browser

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// wildcardMatch reports whether actual matches pattern, where * matches any run of characters.
func wildcardMatch(pattern, actual string) bool {
	expr := strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*")
	re, err := regexp.Compile("^" + expr + "$")
	if err != nil {
		return false
	}
	return re.MatchString(actual)
}

func (b *Browser) currentURL(ctx context.Context) (string, *url.URL, error) {
	raw, err := b.driver.CurrentURL(ctx)
	if err != nil {
		return "", nil, err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw, nil, fmt.Errorf("failed to parse current URL [%s]: %w", raw, err)
	}
	return raw, u, nil
}

// AssertURLIs asserts the current URL, without query string or fragment,
// matches url. * acts as a wildcard.
func (b *Browser) AssertURLIs(ctx context.Context, expected string) error {
	raw, u, err := b.currentURL(ctx)
	if err != nil {
		return err
	}
	current := u.Scheme + "://" + u.Host + u.Path
	if !wildcardMatch(expected, current) {
		return failf("Actual URL [%s] does not equal expected URL [%s].", raw, expected)
	}
	return nil
}

// AssertSchemeIs asserts the current URL's scheme. * acts as a wildcard.
func (b *Browser) AssertSchemeIs(ctx context.Context, scheme string) error {
	_, u, err := b.currentURL(ctx)
	if err != nil {
		return err
	}
	if !wildcardMatch(scheme, u.Scheme) {
		return failf("Actual scheme [%s] does not equal expected scheme [%s].", u.Scheme, scheme)
	}
	return nil
}

// AssertSchemeIsNot asserts the current URL's scheme is not scheme.
func (b *Browser) AssertSchemeIsNot(ctx context.Context, scheme string) error {
	_, u, err := b.currentURL(ctx)
	if err != nil {
		return err
	}
	if u.Scheme == scheme {
		return failf("Scheme [%s] should not equal the actual value.", scheme)
	}
	return nil
}

// AssertHostIs asserts the current URL's host name. * acts as a wildcard.
func (b *Browser) AssertHostIs(ctx context.Context, host string) error {
	_, u, err := b.currentURL(ctx)
	if err != nil {
		return err
	}
	if !wildcardMatch(host, u.Hostname()) {
		return failf("Actual host [%s] does not equal expected host [%s].", u.Hostname(), host)
	}
	return nil
}

// AssertHostIsNot asserts the current URL's host name is not host.
func (b *Browser) AssertHostIsNot(ctx context.Context, host string) error {
	_, u, err := b.currentURL(ctx)
	if err != nil {
		return err
	}
	if u.Hostname() == host {
		return failf("Host [%s] should not equal the actual value.", host)
	}
	return nil
}

// AssertPortIs asserts the current URL's explicit port. * acts as a wildcard.
func (b *Browser) AssertPortIs(ctx context.Context, port string) error {
	_, u, err := b.currentURL(ctx)
	if err != nil {
		return err
	}
	if !wildcardMatch(port, u.Port()) {
		return failf("Actual port [%s] does not equal expected port [%s].", u.Port(), port)
	}
	return nil
}

// AssertPortIsNot asserts the current URL's explicit port is not port.
func (b *Browser) AssertPortIsNot(ctx context.Context, port string) error {
	_, u, err := b.currentURL(ctx)
	if err != nil {
		return err
	}
	if u.Port() == port {
		return failf("Port [%s] should not equal the actual value.", port)
	}
	return nil
}

// AssertPathBeginsWith asserts the current path starts with path.
func (b *Browser) AssertPathBeginsWith(ctx context.Context, path string) error {
	_, u, err := b.currentURL(ctx)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(u.Path, path) {
		return failf("Actual path [%s] does not begin with expected path [%s].", u.Path, path)
	}
	return nil
}

// AssertPathIs asserts the current path. * acts as a wildcard.
func (b *Browser) AssertPathIs(ctx context.Context, path string) error {
	_, u, err := b.currentURL(ctx)
	if err != nil {
		return err
	}
	if !wildcardMatch(path, u.Path) {
		return failf("Actual path [%s] does not equal expected path [%s].", u.Path, path)
	}
	return nil
}

// AssertPathIsNot asserts the current path is not path.
func (b *Browser) AssertPathIsNot(ctx context.Context, path string) error {
	_, u, err := b.currentURL(ctx)
	if err != nil {
		return err
	}
	if u.Path == path {
		return failf("Path [%s] should not equal the actual value.", path)
	}
	return nil
}

// AssertRouteIs asserts the current path is that of a named route.
func (b *Browser) AssertRouteIs(ctx context.Context, name string, params map[string]string) error {
	path, err := b.Route(name, params)
	if err != nil {
		return err
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return b.AssertPathIs(ctx, path)
}

// AssertQueryStringHas asserts the query string has parameter name and, when
// values are given, that its values joined by commas equal theirs.
func (b *Browser) AssertQueryStringHas(ctx context.Context, name string, values ...string) error {
	raw, u, err := b.currentURL(ctx)
	if err != nil {
		return err
	}
	if u.RawQuery == "" {
		return failf("Did not see expected query string in [%s].", raw)
	}
	query := u.Query()
	actual, ok := query[name]
	if !ok {
		actual, ok = query[name+"[]"]
	}
	if !ok {
		return failf("Did not see expected query string parameter [%s] in [%s].", name, raw)
	}
	if len(values) == 0 {
		return nil
	}
	want, got := strings.Join(values, ","), strings.Join(actual, ",")
	if want != got {
		return failf("Query string parameter [%s] had value [%s], but expected [%s].", name, got, want)
	}
	return nil
}

// AssertQueryStringMissing asserts the query string lacks parameter name.
func (b *Browser) AssertQueryStringMissing(ctx context.Context, name string) error {
	raw, u, err := b.currentURL(ctx)
	if err != nil {
		return err
	}
	query := u.Query()
	if query.Has(name) || query.Has(name+"[]") {
		return failf("Found unexpected query string parameter [%s] in [%s].", name, raw)
	}
	return nil
}

// fragment reads the fragment from the live location, which changes without navigation.
func (b *Browser) fragment(ctx context.Context) (string, error) {
	var href string
	if err := b.scriptInto(ctx, &href, "return window.location.href;"); err != nil {
		return "", err
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("failed to parse location [%s]: %w", href, err)
	}
	return u.Fragment, nil
}

// AssertFragmentIs asserts the URL fragment. * acts as a wildcard.
func (b *Browser) AssertFragmentIs(ctx context.Context, fragment string) error {
	actual, err := b.fragment(ctx)
	if err != nil {
		return err
	}
	if !wildcardMatch(fragment, actual) {
		return failf("Actual fragment [%s] does not equal expected fragment [%s].", actual, fragment)
	}
	return nil
}

// AssertFragmentBeginsWith asserts the URL fragment starts with fragment.
func (b *Browser) AssertFragmentBeginsWith(ctx context.Context, fragment string) error {
	actual, err := b.fragment(ctx)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(actual, fragment) {
		return failf("Actual fragment [%s] does not begin with expected fragment [%s].", actual, fragment)
	}
	return nil
}

// AssertFragmentIsNot asserts the URL fragment is not fragment.
func (b *Browser) AssertFragmentIsNot(ctx context.Context, fragment string) error {
	actual, err := b.fragment(ctx)
	if err != nil {
		return err
	}
	if actual == fragment {
		return failf("Fragment [%s] should not equal the actual value.", fragment)
	}
	return nil
}
