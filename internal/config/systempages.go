package config

// DefaultSystemPrefixes returns the URL prefixes of pages that are internal
// to the browser and can never be navigated away by TabTidy. Extension pages
// are included; the daemon's own origin is exempted separately.
func DefaultSystemPrefixes() []string {
	return []string{
		// Chromium family
		"chrome://",
		"chrome-untrusted://",
		"chrome-search://",
		"chrome-extension://",
		"edge://",
		"brave://",
		"opera://",
		"vivaldi://",

		// Firefox
		"about:",
		"moz-extension://",

		// Tooling and raw views
		"devtools://",
		"view-source:",
		"extensions://",
	}
}
