package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached ISS response.
type Key struct {
	// Path is the ISS path relative to the base URL (e.g. "/securities.json").
	Path string

	// Query holds the request parameters, including the page offset.
	Query url.Values
}

// String generates a deterministic cache key string.
// Format: iss:path:param1=val1:param2=val2
//
// Example:
//
//	iss:securities.json:engine=stock:market=bonds:start=100
func (k Key) String() string {
	parts := []string{"iss"}

	path := strings.Trim(k.Path, "/")
	if path != "" {
		parts = append(parts, path)
	}

	if len(k.Query) > 0 {
		names := make([]string, 0, len(k.Query))
		for name := range k.Query {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			values := append([]string(nil), k.Query[name]...)
			sort.Strings(values)
			parts = append(parts, fmt.Sprintf("%s=%s", name, strings.Join(values, ",")))
		}
	}

	return strings.Join(parts, ":")
}
