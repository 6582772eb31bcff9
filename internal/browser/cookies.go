package browser

import (
	"context"
	"net/url"
	"time"

	"github.com/xkilldash9x/dusk/api/schemas"
)

// PlainCookie returns the URL-decoded value of the named cookie and whether it exists.
func (b *Browser) PlainCookie(ctx context.Context, name string) (string, bool, error) {
	cookie, ok, err := b.cookieNamed(ctx, name)
	if err != nil || !ok {
		return "", false, err
	}
	value, err := url.PathUnescape(cookie.Value)
	if err != nil {
		value = cookie.Value
	}
	return value, true, nil
}

// AddCookie sets a cookie on the current document. A zero expiry makes it a session cookie.
func (b *Browser) AddCookie(ctx context.Context, name, value string, expiry time.Time) error {
	return b.driver.AddCookie(ctx, schemas.Cookie{Name: name, Value: value, Expiry: expiry})
}

// SetCookie stores a fully specified cookie.
func (b *Browser) SetCookie(ctx context.Context, cookie schemas.Cookie) error {
	return b.driver.AddCookie(ctx, cookie)
}

// DeleteCookie removes the named cookie.
func (b *Browser) DeleteCookie(ctx context.Context, name string) error {
	return b.driver.DeleteCookie(ctx, name)
}

func (b *Browser) cookieNamed(ctx context.Context, name string) (schemas.Cookie, bool, error) {
	cookies, err := b.driver.Cookies(ctx)
	if err != nil {
		return schemas.Cookie{}, false, err
	}
	for _, c := range cookies {
		if c.Name == name {
			return c, true, nil
		}
	}
	return schemas.Cookie{}, false, nil
}
