// Package whitelist normalizes and matches the user's never-suspend list.
// Entries are either full http(s) URLs or bare domains.
package whitelist

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidEntry is returned when an entry is neither a URL nor a domain.
var ErrInvalidEntry = errors.New("enter a valid domain (example.com) or full URL (https://example.com/page)")

var errInvalidImport = errors.New(`invalid file format: expected JSON array or {"whitelist": [...]}`)

var domainChars = regexp.MustCompile(`^[a-z0-9.-]+$`)

// Normalize canonicalizes a user-supplied entry. Full URLs lose their
// fragment but keep the query; domains are lowercased and lose a leading
// "*.". The second result is false when raw is not a valid entry.
func Normalize(raw string) (string, bool) {
	value := strings.TrimSpace(raw)
	if value == "" || strings.ContainsAny(value, " \t\r\n") {
		return "", false
	}

	if u, ok := parseHTTPURL(value); ok {
		u.Fragment = ""
		u.RawFragment = ""
		return u.String(), true
	}

	return NormalizeDomain(value)
}

// NormalizeDomain accepts only the bare-domain form of an entry.
func NormalizeDomain(raw string) (string, bool) {
	value := strings.TrimSpace(raw)
	if value == "" || strings.ContainsAny(value, " \t\r\n") {
		return "", false
	}

	domain := strings.TrimPrefix(strings.ToLower(value), "*.")
	if strings.ContainsAny(domain, "/?#") {
		return "", false
	}
	if domain == "localhost" {
		return domain, true
	}
	if !domainChars.MatchString(domain) {
		return "", false
	}
	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") || strings.Contains(domain, "..") {
		return "", false
	}
	return domain, true
}

func parseHTTPURL(value string) (*url.URL, bool) {
	u, err := url.Parse(value)
	if err != nil || u.Host == "" {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u, true
}

// Matches reports whether pageURL is covered by any entry: an exact URL
// match, a hostname equal to a domain entry, or a strict subdomain of one.
func Matches(entries []string, pageURL string) bool {
	if len(entries) == 0 {
		return false
	}

	var host, stripped string
	if u, err := url.Parse(pageURL); err == nil {
		host = strings.ToLower(u.Hostname())
		if c, ok := parseHTTPURL(pageURL); ok {
			c.Fragment = ""
			c.RawFragment = ""
			stripped = c.String()
		}
	}

	for _, entry := range entries {
		if entry == "" {
			continue
		}
		if pageURL == entry || (stripped != "" && stripped == entry) {
			return true
		}
		if host == "" || strings.Contains(entry, "/") {
			continue
		}
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

// Add normalizes raw and appends it unless already present. added is false
// for a duplicate.
func Add(entries []string, raw string) (out []string, entry string, added bool, err error) {
	entry, ok := Normalize(raw)
	if !ok {
		return entries, "", false, ErrInvalidEntry
	}
	for _, e := range entries {
		if e == entry {
			return entries, entry, false, nil
		}
	}
	return append(entries, entry), entry, true, nil
}

// Remove drops every occurrence of item. The raw form is tried too so a
// user can remove "Example.com" that was stored as "example.com".
func Remove(entries []string, item string) ([]string, bool) {
	targets := map[string]bool{item: true}
	if n, ok := Normalize(item); ok {
		targets[n] = true
	}

	out := make([]string, 0, len(entries))
	removed := false
	for _, e := range entries {
		if targets[e] {
			removed = true
			continue
		}
		out = append(out, e)
	}
	return out, removed
}

// Export is the on-disk form of an exported whitelist.
type Export struct {
	Whitelist  []string `json:"whitelist"`
	ExportedAt string   `json:"exportedAt"`
}

// MarshalExport renders entries as an indented export document.
func MarshalExport(entries []string, now time.Time) ([]byte, error) {
	if entries == nil {
		entries = []string{}
	}
	return json.MarshalIndent(Export{
		Whitelist:  entries,
		ExportedAt: now.UTC().Format("2006-01-02T15:04:05.000Z"),
	}, "", "  ")
}

// ParseImport accepts either a bare JSON array or an export document.
// Invalid entries are dropped; duplicates collapse keeping first position.
func ParseImport(data []byte) ([]string, error) {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		var doc struct {
			Whitelist []any `json:"whitelist"`
		}
		if err := json.Unmarshal(data, &doc); err != nil || doc.Whitelist == nil {
			return nil, errInvalidImport
		}
		raw = doc.Whitelist
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			s = fmt.Sprint(item)
		}
		entry, ok := Normalize(s)
		if !ok || seen[entry] {
			continue
		}
		seen[entry] = true
		out = append(out, entry)
	}
	return out, nil
}
