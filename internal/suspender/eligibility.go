package suspender

import (
	"time"

	"github.com/runnerr0/tabtidy/internal/placeholder"
	"github.com/runnerr0/tabtidy/internal/state"
	"github.com/runnerr0/tabtidy/internal/tabs"
	"github.com/runnerr0/tabtidy/internal/whitelist"
)

// Reason explains a Verdict.
type Reason string

const (
	ReasonEligible      Reason = "eligible"
	ReasonGlobalPause   Reason = "global-pause"
	ReasonTabPaused     Reason = "tab-paused"
	ReasonPinned        Reason = "pinned"
	ReasonAudible       Reason = "audible"
	ReasonSystemPage    Reason = "system-page"
	ReasonUnrestorable  Reason = "unrestorable-url"
	ReasonAlreadyParked Reason = "already-suspended"
	ReasonWhitelisted   Reason = "whitelisted"
	ReasonDisabled      Reason = "auto-suspend-disabled"
	ReasonRecent        Reason = "recently-active"
	ReasonNoActivity    Reason = "no-activity-record"
)

// Verdict is the outcome of evaluating one tab.
type Verdict struct {
	Eligible bool
	Reason   Reason
}

// Deferred means the tab has no activity record yet. The caller records
// activity now and the tab is looked at again on the next pass.
func (v Verdict) Deferred() bool { return v.Reason == ReasonNoActivity }

// ActivitySource answers when a tab was last used.
type ActivitySource interface {
	LastActive(id tabs.TabID) (time.Time, bool)
}

// ActivityMap is a fixed ActivitySource.
type ActivityMap map[tabs.TabID]time.Time

func (m ActivityMap) LastActive(id tabs.TabID) (time.Time, bool) {
	t, ok := m[id]
	return t, ok
}

// Filter decides whether a tab may be suspended. Origin is the base URL of
// the placeholder server; SystemPrefixes lists URL prefixes never touched.
type Filter struct {
	Origin         string
	SystemPrefixes []string
}

// Evaluate applies the auto-suspend rules in order; the first rule that
// matches decides.
func (f Filter) Evaluate(tab tabs.Tab, set state.Settings, activity ActivitySource, now time.Time) Verdict {
	if set.GloballyPaused(now) {
		return Verdict{Reason: ReasonGlobalPause}
	}
	return f.evaluate(tab, set, set.Delay(), activity, now)
}

// EvaluateTidy is Evaluate for a user-requested tidy: the global pause is
// ignored and threshold replaces the configured delay.
func (f Filter) EvaluateTidy(tab tabs.Tab, set state.Settings, threshold time.Duration, activity ActivitySource, now time.Time) Verdict {
	return f.evaluate(tab, set, threshold, activity, now)
}

// IsEligible is Evaluate reduced to its decision.
func (f Filter) IsEligible(tab tabs.Tab, set state.Settings, activity ActivitySource, now time.Time) bool {
	return f.Evaluate(tab, set, activity, now).Eligible
}

func (f Filter) evaluate(tab tabs.Tab, set state.Settings, delay time.Duration, activity ActivitySource, now time.Time) Verdict {
	switch {
	case set.TabPaused(tab.ID, now):
		return Verdict{Reason: ReasonTabPaused}
	case tab.Pinned || set.PinnedTabs[tab.ID]:
		return Verdict{Reason: ReasonPinned}
	case tab.Audible:
		return Verdict{Reason: ReasonAudible}
	case f.IsSystemPage(tab.URL):
		return Verdict{Reason: ReasonSystemPage}
	case placeholder.IsPlaceholder(tab.URL, f.Origin):
		return Verdict{Reason: ReasonAlreadyParked}
	case !placeholder.Restorable(tab.URL):
		// The placeholder only navigates back to these schemes.
		return Verdict{Reason: ReasonUnrestorable}
	case whitelist.Matches(set.Whitelist, tab.URL):
		return Verdict{Reason: ReasonWhitelisted}
	case delay <= 0:
		return Verdict{Reason: ReasonDisabled}
	}

	last, ok := activity.LastActive(tab.ID)
	if !ok {
		return Verdict{Reason: ReasonNoActivity}
	}
	if now.Sub(last) >= delay {
		return Verdict{Eligible: true, Reason: ReasonEligible}
	}
	return Verdict{Reason: ReasonRecent}
}

// IsSystemPage reports whether url is a browser or foreign extension page.
func (f Filter) IsSystemPage(url string) bool {
	return tabs.IsSystemPage(url, f.SystemPrefixes, f.Origin)
}
