package placeholder

import (
	_ "embed"
	"html"
	"html/template"
	"io"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

//go:embed page.html
var pageHTML string

var (
	pageTmpl = template.Must(template.New("suspended").Parse(pageHTML))
	strict   = bluemonday.StrictPolicy()
)

const defaultTitle = "Suspended Tab"

type pageData struct {
	Title   string
	Favicon string
	Target  string
}

// Render writes the placeholder page for p. The page navigates back to
// p.URL as soon as it becomes visible. Without a restorable URL it only
// shows a waiting notice.
func Render(w io.Writer, p Params) error {
	data := pageData{Title: cleanTitle(p.Title)}
	if Restorable(p.URL) {
		data.Target = p.URL
	}
	if safeFavicon(p.Favicon) {
		data.Favicon = p.Favicon
	}
	if data.Title == "" {
		data.Title = defaultTitle
	}
	return pageTmpl.Execute(w, data)
}

// cleanTitle strips markup a page may have put in its title.
func cleanTitle(title string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(title)))
}

func safeFavicon(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
