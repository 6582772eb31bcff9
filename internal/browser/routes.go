package browser

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/xkilldash9x/dusk/api/schemas"
)

var routeParamPattern = regexp.MustCompile(`\{(\w+)(\?)?\}`)

// Route builds the path of a configured named route. Placeholders take the
// form {name} or {name?}; parameters not consumed by a placeholder are
// appended as a query string.
func (b *Browser) Route(name string, params map[string]string) (string, error) {
	template, ok := b.cfg.Routes[name]
	if !ok {
		return "", schemas.NewInvalidArgument("Route [%s] not defined.", name)
	}

	used := make(map[string]bool)
	var missing string
	path := routeParamPattern.ReplaceAllStringFunc(template, func(placeholder string) string {
		m := routeParamPattern.FindStringSubmatch(placeholder)
		key, optional := m[1], m[2] == "?"
		value, present := params[key]
		if !present {
			if !optional && missing == "" {
				missing = key
			}
			return ""
		}
		used[key] = true
		return url.PathEscape(value)
	})
	if missing != "" {
		return "", schemas.NewInvalidArgument("Missing required parameter [%s] for route [%s].", missing, name)
	}

	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	query := url.Values{}
	for k, v := range params {
		if !used[k] {
			query.Set(k, v)
		}
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return path, nil
}
