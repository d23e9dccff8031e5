// Package placeholder owns the suspended-page URL contract:
// <base>/suspended.html?url=<original>&title=<title>&favicon=<favicon>.
package placeholder

import (
	"net/url"
	"strings"
)

// Path is where the placeholder page is served.
const Path = "/suspended.html"

// Params is what a placeholder URL carries about the page it replaced.
type Params struct {
	URL     string
	Title   string
	Favicon string
}

// Build returns the placeholder URL for p under base (scheme://host:port).
// Parameters are percent-encoded in a fixed order with spaces as %20.
func Build(base string, p Params) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(base, "/"))
	b.WriteString(Path)
	b.WriteString("?url=")
	b.WriteString(encode(p.URL))
	b.WriteString("&title=")
	b.WriteString(encode(p.Title))
	b.WriteString("&favicon=")
	b.WriteString(encode(p.Favicon))
	return b.String()
}

func encode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// IsPlaceholder reports whether rawURL is the placeholder page under base,
// with or without parameters.
func IsPlaceholder(rawURL, base string) bool {
	prefix := strings.TrimSuffix(base, "/") + Path
	if !strings.HasPrefix(rawURL, prefix) {
		return false
	}
	rest := rawURL[len(prefix):]
	return rest == "" || rest[0] == '?' || rest[0] == '#'
}

// Parse extracts the parameters of a placeholder URL. ok is false when
// rawURL is not a placeholder; a placeholder missing its parameters parses
// to empty fields.
func Parse(rawURL, base string) (p Params, ok bool) {
	if !IsPlaceholder(rawURL, base) {
		return Params{}, false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Params{}, true
	}
	q := u.Query()
	return Params{
		URL:     q.Get("url"),
		Title:   q.Get("title"),
		Favicon: q.Get("favicon"),
	}, true
}

// Restorable reports whether target is safe to navigate back to from the
// placeholder page.
func Restorable(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "file", "ftp":
		return true
	default:
		return false
	}
}
