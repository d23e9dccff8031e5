package tabs

import "strings"

// IsSystemPage reports whether url belongs to the browser itself or to a
// foreign extension. Pages under ownOrigin are never system pages, so the
// placeholder served by this process is not mistaken for one.
func IsSystemPage(url string, prefixes []string, ownOrigin string) bool {
	if ownOrigin != "" && strings.HasPrefix(url, ownOrigin) {
		return false
	}
	lower := strings.ToLower(url)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}
