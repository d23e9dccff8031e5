package suspender

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/runnerr0/tabtidy/internal/placeholder"
	"github.com/runnerr0/tabtidy/internal/state"
	"github.com/runnerr0/tabtidy/internal/tabs"
	"github.com/runnerr0/tabtidy/internal/testutil"
)

var filter = Filter{Origin: origin, SystemPrefixes: systemPrefixes}

func settingsWithDelay(minutes int) state.Settings {
	set := state.DefaultSettings()
	set.AutoSuspendDelay = minutes
	return set
}

func TestEvaluate_InactiveTabIsEligible(t *testing.T) {
	now := testutil.FixedClock().Now()
	tab := tabs.Tab{ID: 5, URL: "https://example.com"}
	activity := ActivityMap{5: now.Add(-6 * time.Minute)}

	v := filter.Evaluate(tab, settingsWithDelay(5), activity, now)
	assert.True(t, v.Eligible)
	assert.Equal(t, ReasonEligible, v.Reason)
	assert.True(t, filter.IsEligible(tab, settingsWithDelay(5), activity, now))
}

func TestEvaluate_WhitelistedDomain(t *testing.T) {
	now := testutil.FixedClock().Now()
	tab := tabs.Tab{ID: 5, URL: "https://example.com"}
	activity := ActivityMap{5: now.Add(-6 * time.Minute)}
	set := settingsWithDelay(5)
	set.Whitelist = []string{"example.com"}

	v := filter.Evaluate(tab, set, activity, now)
	assert.False(t, v.Eligible)
	assert.Equal(t, ReasonWhitelisted, v.Reason)
}

func TestEvaluate_RuleOrder(t *testing.T) {
	now := testutil.FixedClock().Now()
	old := now.Add(-time.Hour)
	placeholderURL := placeholder.Build(origin, placeholder.Params{URL: "https://a.com"})

	cases := []struct {
		name   string
		tab    tabs.Tab
		mutate func(*state.Settings)
		want   Reason
	}{
		{"global pause beats everything", tabs.Tab{ID: 1, URL: "chrome://settings", Pinned: true}, func(s *state.Settings) {
			s.GlobalPauseUntil = now.Add(time.Minute).UnixMilli()
		}, ReasonGlobalPause},
		{"tab pause", tabs.Tab{ID: 1, URL: "https://a.com", Pinned: true}, func(s *state.Settings) {
			s.PausedTabs[1] = state.PausedTab{PausedUntil: 0}
		}, ReasonTabPaused},
		{"pinned before audible", tabs.Tab{ID: 1, URL: "https://a.com", Pinned: true, Audible: true}, nil, ReasonPinned},
		{"pinned through settings", tabs.Tab{ID: 1, URL: "https://a.com"}, func(s *state.Settings) {
			s.PinnedTabs[1] = true
		}, ReasonPinned},
		{"audible before system", tabs.Tab{ID: 1, URL: "chrome://newtab", Audible: true}, nil, ReasonAudible},
		{"system page", tabs.Tab{ID: 1, URL: "chrome://newtab"}, nil, ReasonSystemPage},
		{"foreign extension page", tabs.Tab{ID: 1, URL: "chrome-extension://other/page.html"}, nil, ReasonSystemPage},
		{"placeholder is not a system page but is already parked", tabs.Tab{ID: 1, URL: placeholderURL}, nil, ReasonAlreadyParked},
		{"placeholder before whitelist", tabs.Tab{ID: 1, URL: placeholderURL}, func(s *state.Settings) {
			s.Whitelist = []string{"127.0.0.1"}
		}, ReasonAlreadyParked},
		{"whitelist before disabled", tabs.Tab{ID: 1, URL: "https://mail.a.com"}, func(s *state.Settings) {
			s.Whitelist = []string{"a.com"}
			s.AutoSuspendDelay = 0
		}, ReasonWhitelisted},
		{"disabled", tabs.Tab{ID: 1, URL: "https://a.com"}, func(s *state.Settings) {
			s.AutoSuspendDelay = 0
		}, ReasonDisabled},
		{"negative delay disabled", tabs.Tab{ID: 1, URL: "https://a.com"}, func(s *state.Settings) {
			s.AutoSuspendDelay = -3
		}, ReasonDisabled},
		{"no activity record", tabs.Tab{ID: 2, URL: "https://a.com"}, nil, ReasonNoActivity},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			set := settingsWithDelay(5)
			if tc.mutate != nil {
				tc.mutate(&set)
			}
			v := filter.Evaluate(tc.tab, set, ActivityMap{1: old}, now)
			assert.False(t, v.Eligible)
			assert.Equal(t, tc.want, v.Reason)
		})
	}
}

func TestEvaluate_RecentlyActive(t *testing.T) {
	now := testutil.FixedClock().Now()
	tab := tabs.Tab{ID: 5, URL: "https://example.com"}

	v := filter.Evaluate(tab, settingsWithDelay(5), ActivityMap{5: now.Add(-4 * time.Minute)}, now)
	assert.Equal(t, ReasonRecent, v.Reason)

	v = filter.Evaluate(tab, settingsWithDelay(5), ActivityMap{5: now.Add(-5 * time.Minute)}, now)
	assert.True(t, v.Eligible, "the threshold itself is inclusive")
}

func TestEvaluate_MissingActivityDefers(t *testing.T) {
	now := testutil.FixedClock().Now()
	v := filter.Evaluate(tabs.Tab{ID: 9, URL: "https://example.com"}, settingsWithDelay(1), ActivityMap{}, now)
	assert.False(t, v.Eligible)
	assert.True(t, v.Deferred())
}

func TestEvaluate_PinnedWhitelistedInactiveNeverEligible(t *testing.T) {
	now := testutil.FixedClock().Now()
	tab := tabs.Tab{ID: 5, URL: "https://example.com", Pinned: true}
	set := settingsWithDelay(1)
	set.Whitelist = []string{"example.com"}

	v := filter.Evaluate(tab, set, ActivityMap{5: now.Add(-24 * time.Hour)}, now)
	assert.False(t, v.Eligible)
	assert.Equal(t, ReasonPinned, v.Reason)

	tab.Pinned = false
	v = filter.Evaluate(tab, set, ActivityMap{5: now.Add(-24 * time.Hour)}, now)
	assert.False(t, v.Eligible, "the outcome does not depend on which rule fires")
	assert.Equal(t, ReasonWhitelisted, v.Reason)
}

func TestEvaluate_PauseExpiresOnItsOwn(t *testing.T) {
	clock := testutil.FixedClock()
	tab := tabs.Tab{ID: 5, URL: "https://example.com"}
	activity := ActivityMap{5: clock.Now().Add(-time.Hour)}
	set := settingsWithDelay(5)
	set.GlobalPauseUntil = clock.Now().Add(time.Hour).UnixMilli()

	assert.Equal(t, ReasonGlobalPause, filter.Evaluate(tab, set, activity, clock.Now()).Reason)

	clock.Advance(59 * time.Minute)
	assert.False(t, filter.IsEligible(tab, set, activity, clock.Now()))

	clock.Advance(time.Minute)
	assert.True(t, filter.IsEligible(tab, set, activity, clock.Now()))
}

func TestEvaluate_PauseUntilRestart(t *testing.T) {
	now := testutil.FixedClock().Now()
	set := settingsWithDelay(5)
	set.GlobalPauseUntil = state.PauseUntilRestart

	v := filter.Evaluate(tabs.Tab{ID: 5, URL: "https://example.com"}, set, ActivityMap{5: now.Add(-time.Hour)}, now.Add(1000*time.Hour))
	assert.Equal(t, ReasonGlobalPause, v.Reason)
}

func TestEvaluate_ExpiredTabPauseIgnored(t *testing.T) {
	now := testutil.FixedClock().Now()
	set := settingsWithDelay(5)
	set.PausedTabs[5] = state.PausedTab{PausedUntil: now.Add(-time.Second).UnixMilli(), DurationKey: "30min"}

	assert.True(t, filter.IsEligible(tabs.Tab{ID: 5, URL: "https://example.com"}, set, ActivityMap{5: now.Add(-time.Hour)}, now))
}

func TestEvaluateTidy_IgnoresGlobalPauseAndDelay(t *testing.T) {
	now := testutil.FixedClock().Now()
	tab := tabs.Tab{ID: 5, URL: "https://example.com"}
	set := settingsWithDelay(0)
	set.GlobalPauseUntil = state.PauseUntilRestart

	v := filter.EvaluateTidy(tab, set, time.Minute, ActivityMap{5: now.Add(-61 * time.Second)}, now)
	assert.True(t, v.Eligible)

	v = filter.EvaluateTidy(tab, set, time.Minute, ActivityMap{5: now.Add(-30 * time.Second)}, now)
	assert.Equal(t, ReasonRecent, v.Reason)

	tab.Pinned = true
	v = filter.EvaluateTidy(tab, set, time.Minute, ActivityMap{5: now.Add(-time.Hour)}, now)
	assert.Equal(t, ReasonPinned, v.Reason)
}

func TestEvaluate_UnrestorableSchemes(t *testing.T) {
	now := testutil.FixedClock().Now()
	activity := ActivityMap{5: now.Add(-time.Hour)}

	for _, url := range []string{
		"data:text/html,<h1>draft</h1>",
		"blob:https://a.com/123",
		"chrome-devtools://devtools/bundled/inspector.html",
		"view-source:https://a.com",
	} {
		t.Run(url, func(t *testing.T) {
			tab := tabs.Tab{ID: 5, URL: url}

			v := filter.Evaluate(tab, settingsWithDelay(5), activity, now)
			assert.False(t, v.Eligible)
			assert.Equal(t, ReasonUnrestorable, v.Reason)

			v = filter.EvaluateTidy(tab, settingsWithDelay(5), time.Minute, activity, now)
			assert.False(t, v.Eligible)
			assert.Equal(t, ReasonUnrestorable, v.Reason)
		})
	}

	assert.True(t, filter.IsEligible(tabs.Tab{ID: 5, URL: "file:///home/me/notes.html"}, settingsWithDelay(5), activity, now))
}
