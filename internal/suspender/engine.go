package suspender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/runnerr0/tabtidy/internal/placeholder"
	"github.com/runnerr0/tabtidy/internal/state"
	"github.com/runnerr0/tabtidy/internal/tabs"
)

var (
	// ErrNotSuspended is returned by Restore for a tab not on the placeholder.
	ErrNotSuspended = errors.New("tab is not suspended")
	// ErrNoOriginalURL is returned when neither the placeholder URL nor the
	// index knows where a tab came from.
	ErrNoOriginalURL = errors.New("original url unknown")
)

// Engine moves tabs to the placeholder page and back.
type Engine struct {
	browser tabs.Browser
	index   *Index
	clock   Clock
	origin  string
	logger  *slog.Logger

	settle     time.Duration
	timeout    time.Duration
	checkForms bool

	mu      sync.Mutex
	pending map[tabs.TabID]*time.Timer
}

// EngineOptions tunes the discard step of a suspension.
type EngineOptions struct {
	// Settle is how long to wait after the placeholder loads before
	// discarding.
	Settle time.Duration
	// Timeout bounds how long to wait for the placeholder to load at all.
	Timeout time.Duration
	// CheckUnsavedForms skips automatic suspension of tabs with unsubmitted
	// form input, when the browser can tell.
	CheckUnsavedForms bool
}

func NewEngine(browser tabs.Browser, index *Index, clock Clock, origin string, opts EngineOptions, logger *slog.Logger) *Engine {
	return &Engine{
		browser:    browser,
		index:      index,
		clock:      clock,
		origin:     origin,
		logger:     logger,
		settle:     opts.Settle,
		timeout:    opts.Timeout,
		checkForms: opts.CheckUnsavedForms,
		pending:    make(map[tabs.TabID]*time.Timer),
	}
}

// Suspend parks tab on the placeholder page. The index record is durable
// before the tab navigates. Once the placeholder has loaded and settled,
// the tab is discarded unless it has become the active tab. Suspending a
// tab already on the placeholder does nothing.
func (e *Engine) Suspend(ctx context.Context, tab tabs.Tab) error {
	if placeholder.IsPlaceholder(tab.URL, e.origin) {
		return nil
	}

	rec := state.SuspendedTab{
		OriginalURL: tab.URL,
		Title:       tab.Title,
		FaviconURL:  tab.FaviconURL,
		SuspendedAt: e.clock.Now().UnixMilli(),
	}
	if err := e.index.Record(ctx, tab.ID, rec); err != nil {
		return fmt.Errorf("record tab %d: %w", tab.ID, err)
	}

	target := placeholder.Build(e.origin, placeholder.Params{
		URL:     tab.URL,
		Title:   tab.Title,
		Favicon: tab.FaviconURL,
	})

	// Registered first so a fast load cannot slip past the observer.
	e.watchLoad(tab.ID)
	if err := e.browser.Navigate(ctx, tab.ID, target); err != nil {
		// The tab never reached the placeholder, so the record is stale.
		e.Forget(tab.ID)
		e.index.OnTabRemoved(tab.ID)
		return fmt.Errorf("navigate tab %d: %w", tab.ID, err)
	}

	e.logger.Info("engine: suspended", "tab", tab.ID, "url", tab.URL)
	return nil
}

// AutoSuspend is Suspend for the timer-driven pass. Tabs holding unsaved
// form input are left alone. It reports whether the tab was suspended.
func (e *Engine) AutoSuspend(ctx context.Context, tab tabs.Tab) (bool, error) {
	if e.checkForms {
		if fi, ok := e.browser.(tabs.FormInspector); ok {
			unsaved, err := fi.HasUnsavedForms(ctx, tab.ID)
			switch {
			case errors.Is(err, tabs.ErrTabNotFound):
				return false, err
			case err != nil:
				e.logger.Debug("engine: form check failed, suspending anyway", "tab", tab.ID, "error", err)
			case unsaved:
				e.logger.Debug("engine: skipping tab with unsaved form input", "tab", tab.ID)
				return false, nil
			}
		}
	}
	if err := e.Suspend(ctx, tab); err != nil {
		return false, err
	}
	return true, nil
}

// Restore navigates a suspended tab back to its original page. The target
// comes from the placeholder URL, else from the index.
func (e *Engine) Restore(ctx context.Context, id tabs.TabID) (string, error) {
	tab, err := e.browser.Tab(ctx, id)
	if err != nil {
		return "", err
	}
	p, ok := placeholder.Parse(tab.URL, e.origin)
	if !ok {
		return "", ErrNotSuspended
	}

	target := p.URL
	if target == "" {
		if rec, have := e.index.Get(id); have {
			target = rec.OriginalURL
		}
	}
	if target == "" {
		return "", ErrNoOriginalURL
	}

	e.Forget(id)
	if err := e.browser.Navigate(ctx, id, target); err != nil {
		return "", fmt.Errorf("navigate tab %d: %w", id, err)
	}
	e.index.OnTabUpdated(tabs.Tab{ID: id, URL: target})

	e.logger.Info("engine: restored", "tab", id, "url", target)
	return target, nil
}

// Repair re-parameterizes a placeholder tab that lost its query string,
// using the index, and discards it once the page settles. It reports
// whether the tab was re-navigated.
func (e *Engine) Repair(ctx context.Context, tab tabs.Tab) (bool, error) {
	p, ok := placeholder.Parse(tab.URL, e.origin)
	if !ok || p.URL != "" {
		return false, nil
	}
	rec, have := e.index.Get(tab.ID)
	if !have || rec.OriginalURL == "" {
		return false, nil
	}

	target := placeholder.Build(e.origin, placeholder.Params{
		URL:     rec.OriginalURL,
		Title:   rec.Title,
		Favicon: rec.FaviconURL,
	})
	e.watchLoad(tab.ID)
	if err := e.browser.Navigate(ctx, tab.ID, target); err != nil {
		e.Forget(tab.ID)
		return false, fmt.Errorf("repair tab %d: %w", tab.ID, err)
	}
	e.logger.Info("engine: repaired placeholder", "tab", tab.ID)
	return true, nil
}

// OnLoadComplete fires the pending discard for id, if any.
func (e *Engine) OnLoadComplete(id tabs.TabID) {
	e.mu.Lock()
	t, ok := e.pending[id]
	if ok {
		t.Stop()
		delete(e.pending, id)
	}
	e.mu.Unlock()

	if ok {
		time.AfterFunc(e.settle, func() { e.discardIfBackground(id) })
	}
}

// Forget drops the pending discard for id.
func (e *Engine) Forget(id tabs.TabID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.pending[id]; ok {
		t.Stop()
		delete(e.pending, id)
	}
}

// Pending is the number of suspensions still waiting for their load.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Stop drops every pending discard.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, t := range e.pending {
		t.Stop()
		delete(e.pending, id)
	}
}

func (e *Engine) watchLoad(id tabs.TabID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if old, ok := e.pending[id]; ok {
		old.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(e.timeout, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.pending[id] == t {
			delete(e.pending, id)
			e.logger.Debug("engine: placeholder load not observed, giving up on discard", "tab", id)
		}
	})
	e.pending[id] = t
}

// discardIfBackground re-fetches the tab and discards it if it is still
// on the placeholder and not in front of the user.
func (e *Engine) discardIfBackground(id tabs.TabID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tab, err := e.browser.Tab(ctx, id)
	if err != nil {
		e.logger.Debug("engine: tab gone before discard", "tab", id, "error", err)
		return
	}
	if tab.Active || tab.Discarded || !placeholder.IsPlaceholder(tab.URL, e.origin) {
		return
	}
	if err := e.browser.Discard(ctx, id); err != nil {
		e.logger.Warn("engine: discard failed", "tab", id, "error", err)
		return
	}
	e.logger.Debug("engine: discarded", "tab", id)
}
