// Package suspender decides which tabs to park on the placeholder page and
// keeps the durable record of parked tabs in step with the browser.
package suspender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/runnerr0/tabtidy/internal/placeholder"
	"github.com/runnerr0/tabtidy/internal/state"
	"github.com/runnerr0/tabtidy/internal/tabs"
)

var (
	// ErrBrowserGone is returned by Run when the browser's event stream ends.
	ErrBrowserGone = errors.New("browser event stream closed")
	// ErrStopped is returned for a request that reached the loop after Run
	// returned.
	ErrStopped = errors.New("service stopped")
)

// Options configures a Service.
type Options struct {
	// Origin is the base URL of the placeholder server.
	Origin         string
	SystemPrefixes []string

	ActivityFlush  time.Duration
	IndexFlush     time.Duration
	Settle         time.Duration
	DiscardTimeout time.Duration
	TidyThreshold  time.Duration
	ShortInterval  time.Duration
	LongInterval   time.Duration

	CheckUnsavedForms bool

	// Level, when set, is raised to debug while the debugMode setting is on
	// and returned to BaseLevel otherwise.
	Level     *slog.LevelVar
	BaseLevel slog.Level
}

// DefaultOptions returns the production timings.
func DefaultOptions(origin string, systemPrefixes []string) Options {
	return Options{
		Origin:            origin,
		SystemPrefixes:    systemPrefixes,
		ActivityFlush:     time.Second,
		IndexFlush:        100 * time.Millisecond,
		Settle:            time.Second,
		DiscardTimeout:    30 * time.Second,
		TidyThreshold:     60 * time.Second,
		ShortInterval:     15 * time.Second,
		LongInterval:      time.Minute,
		CheckUnsavedForms: true,
		BaseLevel:         slog.LevelInfo,
	}
}

// PassSummary describes one reconciliation pass.
type PassSummary struct {
	At        time.Time      `json:"at"`
	Checked   int            `json:"checked"`
	Suspended int            `json:"suspended"`
	Deferred  int            `json:"deferred"`
	Skipped   map[Reason]int `json:"skipped,omitempty"`
	Errors    int            `json:"errors"`
	Next      time.Duration  `json:"next"`
}

// TidyResult describes one tidy run.
type TidyResult struct {
	RunID     string         `json:"runId"`
	Groups    []GroupSummary `json:"groups"`
	Suspended []tabs.TabID   `json:"suspended"`
	Skipped   map[Reason]int `json:"skipped,omitempty"`
}

// Status is the daemon state shown by `tabtidy status` and the API.
type Status struct {
	DelayMinutes     int          `json:"delayMinutes"`
	GlobalPauseUntil int64        `json:"globalPauseUntil"`
	Paused           bool         `json:"paused"`
	PausedTabs       int          `json:"pausedTabs"`
	Whitelist        int          `json:"whitelist"`
	Tracked          int          `json:"tracked"`
	Suspended        int          `json:"suspended"`
	PendingDiscards  int          `json:"pendingDiscards"`
	DebugMode        bool         `json:"debugMode"`
	LastPass         *PassSummary `json:"lastPass,omitempty"`
}

// SuspendedEntry is one row of the suspended-tab listing.
type SuspendedEntry struct {
	TabID tabs.TabID `json:"tabId"`
	state.SuspendedTab
	Group string `json:"group,omitempty"`
}

type request struct {
	fn   func(context.Context) error
	done chan error
}

// Service is the single event loop that owns the Tracker, the Index and
// the Engine. Browser events, timer passes and user requests are handled
// one at a time on the Run goroutine.
type Service struct {
	browser tabs.Browser
	store   *state.Store
	clock   Clock
	opts    Options
	logger  *slog.Logger

	tracker *Tracker
	index   *Index
	engine  *Engine
	grouper *Grouper
	filter  Filter

	requests chan request
	running  atomic.Bool
	stopped  chan struct{}

	mu       sync.Mutex
	lastPass *PassSummary
}

// New wires a Service. Call Bootstrap, then Run.
func New(browser tabs.Browser, store *state.Store, clock Clock, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	index := NewIndex(store, opts.Origin, clock, opts.IndexFlush, logger)
	return &Service{
		browser:  browser,
		store:    store,
		clock:    clock,
		opts:     opts,
		logger:   logger,
		tracker:  NewTracker(store, clock, opts.ActivityFlush, logger),
		index:    index,
		engine:   NewEngine(browser, index, clock, opts.Origin, EngineOptions{Settle: opts.Settle, Timeout: opts.DiscardTimeout, CheckUnsavedForms: opts.CheckUnsavedForms}, logger),
		grouper:  NewGrouper(store, clock, logger),
		filter:   Filter{Origin: opts.Origin, SystemPrefixes: opts.SystemPrefixes},
		requests: make(chan request),
		stopped:  make(chan struct{}),
	}
}

func (s *Service) Tracker() *Tracker { return s.tracker }
func (s *Service) Index() *Index     { return s.index }
func (s *Service) Engine() *Engine   { return s.engine }

// Bootstrap recovers state after a (re)start: restart-scoped pauses end,
// the tracker and index are rebuilt against the open tabs, and
// placeholders that lost their parameters are repaired.
func (s *Service) Bootstrap(ctx context.Context) error {
	if n, err := s.store.ClearRestartPauses(ctx); err != nil {
		s.logger.Warn("service: clearing restart pauses failed", "error", err)
	} else if n > 0 {
		s.logger.Info("service: cleared session tab pauses", "tabs", n)
	}

	if set, err := s.store.LoadSettings(ctx); err == nil {
		s.applyDebugMode(set)
	}

	open, err := s.browser.Tabs(ctx)
	if err != nil {
		return fmt.Errorf("list tabs: %w", err)
	}

	s.tracker.Bootstrap(ctx, open, s.filter.IsSystemPage)
	s.index.RebuildFromScratch(ctx, open)

	for _, tab := range open {
		if _, err := s.engine.Repair(ctx, tab); err != nil {
			s.logger.Warn("service: placeholder repair failed", "tab", tab.ID, "error", err)
		}
	}

	if n, err := s.grouper.Prune(ctx, open); err != nil {
		s.logger.Warn("service: pruning tab groups failed", "error", err)
	} else if n > 0 {
		s.logger.Debug("service: pruned tab groups", "removed", n)
	}
	return nil
}

// Run processes events, timer passes and requests until ctx ends or the
// browser goes away. Pending writes are flushed on the way out. Run is
// called at most once per Service.
func (s *Service) Run(ctx context.Context) error {
	s.running.Store(true)
	defer close(s.stopped)
	defer s.running.Store(false)
	defer s.shutdown()

	timer := time.NewTimer(s.opts.ShortInterval)
	defer timer.Stop()

	events := s.browser.Events()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return ErrBrowserGone
			}
			s.HandleEvent(ctx, ev)

		case <-timer.C:
			// Re-armed only after the pass completes so passes never overlap.
			timer.Reset(s.CheckAutoSuspend(ctx))

		case req := <-s.requests:
			req.done <- req.fn(ctx)
		}
	}
}

func (s *Service) shutdown() {
	s.engine.Stop()
	s.tracker.Flush()
	s.index.Flush()
	s.logger.Info("service: stopped")
}

// HandleEvent applies one browser notification.
func (s *Service) HandleEvent(ctx context.Context, ev tabs.Event) {
	s.logger.Debug("service: event", "kind", ev.Kind, "tab", ev.TabID)

	switch ev.Kind {
	case tabs.EventCreated:
		if !s.filter.IsSystemPage(ev.Tab.URL) {
			s.tracker.RecordActivity(ev.TabID)
		}
		s.index.OnTabUpdated(ev.Tab)

	case tabs.EventRemoved:
		s.tracker.DropTab(ev.TabID)
		s.index.OnTabRemoved(ev.TabID)
		s.engine.Forget(ev.TabID)

	case tabs.EventUpdated:
		if !ev.URLChanged && !ev.StatusComplete {
			return
		}
		if !s.filter.IsSystemPage(ev.Tab.URL) {
			s.tracker.RecordActivity(ev.TabID)
		}
		s.index.OnTabUpdated(ev.Tab)
		if ev.StatusComplete {
			s.engine.OnLoadComplete(ev.TabID)
			if _, err := s.engine.Repair(ctx, ev.Tab); err != nil {
				s.logTabError("repair", ev.TabID, err)
			}
		}

	case tabs.EventActivated:
		s.tracker.RecordActivity(ev.TabID)
	}
}

// CheckAutoSuspend runs one reconciliation pass and returns how long to
// wait before the next: the short interval for delays of a minute or
// less, the long one otherwise.
func (s *Service) CheckAutoSuspend(ctx context.Context) time.Duration {
	now := s.clock.Now()
	sum := PassSummary{At: now, Skipped: map[Reason]int{}}
	defer func() {
		s.mu.Lock()
		s.lastPass = &sum
		s.mu.Unlock()
	}()

	set, err := s.store.LoadSettings(ctx)
	if err != nil {
		s.logger.Warn("service: loading settings failed, skipping pass", "error", err)
		sum.Errors++
		sum.Next = s.opts.LongInterval
		return sum.Next
	}
	s.applyDebugMode(set)
	sum.Next = s.interval(set)

	if set.AutoSuspendDelay <= 0 {
		s.logger.Debug("service: auto-suspend disabled")
		return sum.Next
	}

	open, err := s.browser.Tabs(ctx)
	if err != nil {
		s.logger.Warn("service: listing tabs failed", "error", err)
		sum.Errors++
		return sum.Next
	}

	var suspended []tabs.Tab
	for _, tab := range open {
		if tab.Active || tab.Status != tabs.StatusComplete {
			continue
		}
		sum.Checked++

		v := s.filter.Evaluate(tab, set, s.tracker, now)
		switch {
		case v.Deferred():
			s.tracker.RecordActivity(tab.ID)
			sum.Deferred++
			continue
		case !v.Eligible:
			sum.Skipped[v.Reason]++
			continue
		}

		ok, err := s.engine.AutoSuspend(ctx, tab)
		if err != nil {
			s.logTabError("auto-suspend", tab.ID, err)
			sum.Errors++
			continue
		}
		if ok {
			suspended = append(suspended, tab)
		}
	}
	sum.Suspended = len(suspended)

	if set.GroupOnSuspend && len(suspended) > 0 {
		if _, err := s.grouper.Assign(ctx, suspended, set); err != nil {
			s.logger.Warn("service: grouping suspended tabs failed", "error", err)
		}
	}

	s.logger.Debug("service: pass complete",
		"checked", sum.Checked, "suspended", sum.Suspended, "deferred", sum.Deferred, "next", sum.Next)
	return sum.Next
}

func (s *Service) interval(set state.Settings) time.Duration {
	if set.AutoSuspendDelay > 0 && set.AutoSuspendDelay <= 1 {
		return s.opts.ShortInterval
	}
	return s.opts.LongInterval
}

// Tidy groups the open tabs and suspends every background tab idle for at
// least the tidy threshold. The global pause does not apply.
func (s *Service) Tidy(ctx context.Context) (TidyResult, error) {
	var res TidyResult
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.tidy(ctx)
		return err
	})
	return res, err
}

func (s *Service) tidy(ctx context.Context) (TidyResult, error) {
	res := TidyResult{RunID: uuid.NewString(), Skipped: map[Reason]int{}}

	set, err := s.store.LoadSettings(ctx)
	if err != nil {
		return res, fmt.Errorf("load settings: %w", err)
	}
	open, err := s.browser.Tabs(ctx)
	if err != nil {
		return res, fmt.Errorf("list tabs: %w", err)
	}

	var groupable []tabs.Tab
	for _, tab := range open {
		if tab.Pinned || set.PinnedTabs[tab.ID] || s.filter.IsSystemPage(tab.URL) {
			continue
		}
		groupable = append(groupable, tab)
	}
	res.Groups, err = s.grouper.Assign(ctx, groupable, set)
	if err != nil {
		s.logger.Warn("service: tidy grouping failed", "run", res.RunID, "error", err)
	}

	now := s.clock.Now()
	for _, tab := range open {
		if tab.Active {
			continue
		}
		v := s.filter.EvaluateTidy(tab, set, s.opts.TidyThreshold, s.tracker, now)
		if v.Deferred() {
			s.tracker.RecordActivity(tab.ID)
		}
		if !v.Eligible {
			res.Skipped[v.Reason]++
			continue
		}
		if err := s.engine.Suspend(ctx, tab); err != nil {
			s.logTabError("tidy", tab.ID, err)
			continue
		}
		res.Suspended = append(res.Suspended, tab.ID)
	}

	s.logger.Info("service: tidy complete", "run", res.RunID, "groups", len(res.Groups), "suspended", len(res.Suspended))
	return res, nil
}

// Restore brings a suspended tab back to its original page.
func (s *Service) Restore(ctx context.Context, id tabs.TabID) (string, error) {
	var target string
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		target, err = s.engine.Restore(ctx, id)
		return err
	})
	return target, err
}

// SetPinned exempts a tab from suspension, or lifts the exemption.
func (s *Service) SetPinned(ctx context.Context, id tabs.TabID, pinned bool) error {
	return s.do(ctx, func(ctx context.Context) error {
		if _, err := s.browser.Tab(ctx, id); err != nil {
			return err
		}
		return s.store.SetPinned(ctx, id, pinned)
	})
}

// Snapshot lists the suspended tabs with their group, if any.
func (s *Service) Snapshot(ctx context.Context) []SuspendedEntry {
	groups, err := s.store.TabGroups(ctx)
	if err != nil {
		s.logger.Debug("service: loading tab groups failed", "error", err)
	}

	records := s.index.Snapshot()
	out := make([]SuspendedEntry, 0, len(records))
	for _, id := range s.index.IDs() {
		rec, ok := records[id]
		if !ok {
			continue
		}
		out = append(out, SuspendedEntry{TabID: id, SuspendedTab: rec, Group: groups[id].Name})
	}
	return out
}

// Status summarizes settings and runtime state.
func (s *Service) Status(ctx context.Context) (Status, error) {
	set, err := s.store.LoadSettings(ctx)
	if err != nil {
		return Status{}, err
	}
	now := s.clock.Now()

	st := Status{
		DelayMinutes:     set.AutoSuspendDelay,
		GlobalPauseUntil: set.GlobalPauseUntil,
		Paused:           set.GloballyPaused(now),
		Whitelist:        len(set.Whitelist),
		Tracked:          s.tracker.Len(),
		Suspended:        len(s.index.IDs()),
		PendingDiscards:  s.engine.Pending(),
		DebugMode:        set.DebugMode,
	}
	for id := range set.PausedTabs {
		if set.TabPaused(id, now) {
			st.PausedTabs++
		}
	}

	s.mu.Lock()
	if s.lastPass != nil {
		p := *s.lastPass
		st.LastPass = &p
	}
	s.mu.Unlock()
	return st, nil
}

// IsPlaceholder reports whether url is this service's placeholder page.
func (s *Service) IsPlaceholder(url string) bool {
	return placeholder.IsPlaceholder(url, s.opts.Origin)
}

// do runs fn on the Run goroutine when the loop is running, inline
// otherwise.
func (s *Service) do(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.running.Load() {
		return fn(ctx)
	}
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-s.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-s.stopped:
		// The reply is sent before Run returns.
		select {
		case err := <-req.done:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) applyDebugMode(set state.Settings) {
	if s.opts.Level == nil {
		return
	}
	if set.DebugMode {
		s.opts.Level.Set(slog.LevelDebug)
	} else {
		s.opts.Level.Set(s.opts.BaseLevel)
	}
}

func (s *Service) logTabError(op string, id tabs.TabID, err error) {
	if errors.Is(err, tabs.ErrTabNotFound) {
		s.logger.Debug("service: tab closed mid-operation", "op", op, "tab", id)
		return
	}
	s.logger.Warn("service: tab operation failed", "op", op, "tab", id, "error", err)
}
