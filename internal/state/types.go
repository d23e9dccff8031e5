package state

import (
	"fmt"
	"time"

	"github.com/runnerr0/tabtidy/internal/tabs"
)

// SuspendedTab is what the index remembers about a placeholder tab.
type SuspendedTab struct {
	OriginalURL string `json:"originalUrl"`
	Title       string `json:"title"`
	FaviconURL  string `json:"faviconUrl"`
	SuspendedAt int64  `json:"suspendedAt"`
}

// PausedTab exempts a single tab from auto-suspend. PausedUntil is epoch ms;
// zero means until restart.
type PausedTab struct {
	PausedUntil int64  `json:"pausedUntil"`
	DurationKey string `json:"durationKey"`
	Title       string `json:"title,omitempty"`
	URL         string `json:"url,omitempty"`
}

// CustomGroup collects tabs whose host matches one of Patterns.
type CustomGroup struct {
	Name     string   `json:"name"`
	Patterns []string `json:"patterns"`
}

// GroupAssignment records which group a tab was placed in by tidy.
type GroupAssignment struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	AssignedAt int64  `json:"assignedAt"`
}

// Per-tab pause durations, keyed the way they are stored.
var pauseDurations = map[string]time.Duration{
	"30min":   30 * time.Minute,
	"1hr":     time.Hour,
	"2hr":     2 * time.Hour,
	"4hr":     4 * time.Hour,
	"session": 0,
}

// PauseDurationKeys lists the accepted per-tab pause durations.
func PauseDurationKeys() []string {
	return []string{"30min", "1hr", "2hr", "4hr", "session"}
}

// NewPausedTab builds a pause record for the given duration key.
func NewPausedTab(durationKey string, tab tabs.Tab, now time.Time) (PausedTab, error) {
	d, ok := pauseDurations[durationKey]
	if !ok {
		return PausedTab{}, fmt.Errorf("unknown pause duration %q", durationKey)
	}
	p := PausedTab{DurationKey: durationKey, Title: tab.Title, URL: tab.URL}
	if d > 0 {
		p.PausedUntil = now.Add(d).UnixMilli()
	}
	return p, nil
}

// Settings is the user-facing configuration read at the start of every
// reconciliation pass.
type Settings struct {
	AutoSuspendDelay int // minutes; <= 0 disables auto-suspend
	Whitelist        []string
	GlobalPauseUntil int64
	PausedTabs       map[tabs.TabID]PausedTab
	PinnedTabs       map[tabs.TabID]bool
	GroupOnSuspend   bool
	GroupingStrategy string
	CustomGroups     []CustomGroup
	DebugMode        bool
}

// DefaultSettings returns the values used when nothing is stored.
func DefaultSettings() Settings {
	return Settings{
		GroupingStrategy: StrategySession,
		PausedTabs:       map[tabs.TabID]PausedTab{},
		PinnedTabs:       map[tabs.TabID]bool{},
	}
}

// Delay is the auto-suspend delay as a duration.
func (s Settings) Delay() time.Duration {
	return time.Duration(s.AutoSuspendDelay) * time.Minute
}

// GloballyPaused reports whether auto-suspend is paused for every tab.
func (s Settings) GloballyPaused(now time.Time) bool {
	switch {
	case s.GlobalPauseUntil == PauseUntilRestart:
		return true
	case s.GlobalPauseUntil <= 0:
		return false
	default:
		return now.UnixMilli() < s.GlobalPauseUntil
	}
}

// TabPaused reports whether id has an unexpired per-tab pause.
func (s Settings) TabPaused(id tabs.TabID, now time.Time) bool {
	p, ok := s.PausedTabs[id]
	if !ok {
		return false
	}
	return p.PausedUntil == 0 || now.UnixMilli() < p.PausedUntil
}
