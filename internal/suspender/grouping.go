package suspender

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
	"github.com/google/uuid"

	"github.com/runnerr0/tabtidy/internal/state"
	"github.com/runnerr0/tabtidy/internal/tabs"
)

// Group colors, cycled by session number or by order of appearance.
var groupColors = []string{"blue", "red", "yellow", "green", "pink", "purple", "cyan", "orange"}

var patternChars = regexp.MustCompile(`^[a-z0-9.*?-]+$`)

// NormalizeGroupPattern canonicalizes a custom-group host pattern. A
// leading "*." is dropped since a plain domain already covers its
// subdomains; other wildcards are kept and matched as globs.
func NormalizeGroupPattern(raw string) (string, bool) {
	value := strings.TrimSpace(raw)
	if value == "" || strings.ContainsAny(value, " \t\r\n") {
		return "", false
	}
	p := strings.TrimPrefix(strings.ToLower(value), "*.")
	if p == "" || !patternChars.MatchString(p) {
		return "", false
	}
	if strings.HasPrefix(p, ".") || strings.HasSuffix(p, ".") || strings.Contains(p, "..") {
		return "", false
	}
	return p, true
}

type groupMatcher struct {
	name     string
	exact    []string
	patterns []glob.Glob
}

func (m groupMatcher) match(host string) bool {
	for _, d := range m.exact {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	for _, g := range m.patterns {
		if g.Match(host) {
			return true
		}
	}
	return false
}

// GroupSummary describes one group produced by Assign.
type GroupSummary struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Color string       `json:"color"`
	Tabs  []tabs.TabID `json:"tabs"`
}

// Grouper labels tabs with groups and persists the labels. Custom groups
// win; the rest follow the configured strategy.
type Grouper struct {
	store  *state.Store
	clock  Clock
	logger *slog.Logger
	newID  func() string
}

func NewGrouper(store *state.Store, clock Clock, logger *slog.Logger) *Grouper {
	return &Grouper{
		store:  store,
		clock:  clock,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// Assign groups the candidates that are not in a group yet.
func (g *Grouper) Assign(ctx context.Context, candidates []tabs.Tab, set state.Settings) ([]GroupSummary, error) {
	current, err := g.store.TabGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tab groups: %w", err)
	}

	matchers := g.compile(set.CustomGroups)
	custom := make([]*GroupSummary, len(matchers))
	var rest []tabs.Tab

	for _, tab := range candidates {
		if _, grouped := current[tab.ID]; grouped {
			continue
		}
		host := hostOf(tab.URL)
		placed := false
		for i, m := range matchers {
			if host != "" && m.match(host) {
				if custom[i] == nil {
					custom[i] = &GroupSummary{
						ID:    g.newID(),
						Name:  m.name,
						Color: groupColors[i%len(groupColors)],
					}
				}
				custom[i].Tabs = append(custom[i].Tabs, tab.ID)
				placed = true
				break
			}
		}
		if !placed {
			rest = append(rest, tab)
		}
	}

	var out []GroupSummary
	for _, s := range custom {
		if s != nil {
			out = append(out, *s)
		}
	}

	switch {
	case len(rest) == 0:
	case set.GroupingStrategy == state.StrategyDomain:
		out = append(out, g.byDomain(rest)...)
	default:
		s, err := g.bySession(ctx, rest)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	if len(out) == 0 {
		return nil, nil
	}

	now := g.clock.Now().UnixMilli()
	err = g.store.UpdateTabGroups(ctx, func(m map[tabs.TabID]state.GroupAssignment) error {
		for _, s := range out {
			for _, id := range s.Tabs {
				m[id] = state.GroupAssignment{ID: s.ID, Name: s.Name, Color: s.Color, AssignedAt: now}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save tab groups: %w", err)
	}
	return out, nil
}

// Prune drops assignments of tabs that are no longer open.
func (g *Grouper) Prune(ctx context.Context, open []tabs.Tab) (int, error) {
	live := make(map[tabs.TabID]bool, len(open))
	for _, t := range open {
		live[t.ID] = true
	}
	removed := 0
	err := g.store.UpdateTabGroups(ctx, func(m map[tabs.TabID]state.GroupAssignment) error {
		for id := range m {
			if !live[id] {
				delete(m, id)
				removed++
			}
		}
		return nil
	})
	return removed, err
}

func (g *Grouper) bySession(ctx context.Context, rest []tabs.Tab) (GroupSummary, error) {
	n, err := g.store.NextSessionNumber(ctx)
	if err != nil {
		return GroupSummary{}, fmt.Errorf("next session number: %w", err)
	}
	s := GroupSummary{
		ID:    g.newID(),
		Name:  fmt.Sprintf("Session %d", n),
		Color: groupColors[(n-1)%len(groupColors)],
	}
	for _, t := range rest {
		s.Tabs = append(s.Tabs, t.ID)
	}
	return s, nil
}

func (g *Grouper) byDomain(rest []tabs.Tab) []GroupSummary {
	var out []GroupSummary
	byHost := make(map[string]int)
	for _, t := range rest {
		host := strings.TrimPrefix(hostOf(t.URL), "www.")
		if host == "" {
			host = "other"
		}
		i, ok := byHost[host]
		if !ok {
			i = len(out)
			byHost[host] = i
			out = append(out, GroupSummary{
				ID:    g.newID(),
				Name:  host,
				Color: groupColors[i%len(groupColors)],
			})
		}
		out[i].Tabs = append(out[i].Tabs, t.ID)
	}
	return out
}

func (g *Grouper) compile(groups []state.CustomGroup) []groupMatcher {
	out := make([]groupMatcher, 0, len(groups))
	for _, cg := range groups {
		m := groupMatcher{name: cg.Name}
		for _, raw := range cg.Patterns {
			p, ok := NormalizeGroupPattern(raw)
			if !ok {
				g.logger.Debug("grouper: skipping invalid pattern", "group", cg.Name, "pattern", raw)
				continue
			}
			if !strings.ContainsAny(p, "*?") {
				m.exact = append(m.exact, p)
				continue
			}
			compiled, err := glob.Compile(p, '.')
			if err != nil {
				g.logger.Debug("grouper: skipping invalid pattern", "group", cg.Name, "pattern", raw, "error", err)
				continue
			}
			m.patterns = append(m.patterns, compiled)
		}
		out = append(out, m)
	}
	return out
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
