package suspender

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/runnerr0/tabtidy/internal/state"
	"github.com/runnerr0/tabtidy/internal/tabs"
)

// Tracker remembers when each tab was last used. The in-memory map is
// authoritative; it is written through to storage after a quiet window.
type Tracker struct {
	store  *state.Store
	clock  Clock
	logger *slog.Logger

	mu       sync.Mutex
	activity map[tabs.TabID]int64

	flusher *debouncer
}

// NewTracker creates a Tracker that flushes window after the last change.
func NewTracker(store *state.Store, clock Clock, window time.Duration, logger *slog.Logger) *Tracker {
	t := &Tracker{
		store:    store,
		clock:    clock,
		logger:   logger,
		activity: make(map[tabs.TabID]int64),
	}
	t.flusher = newDebouncer(window, t.write)
	return t
}

// RecordActivity marks id as used now.
func (t *Tracker) RecordActivity(id tabs.TabID) {
	t.mu.Lock()
	t.activity[id] = t.clock.Now().UnixMilli()
	t.mu.Unlock()
	t.flusher.trigger()
}

// DropTab forgets id.
func (t *Tracker) DropTab(id tabs.TabID) {
	t.mu.Lock()
	_, ok := t.activity[id]
	delete(t.activity, id)
	t.mu.Unlock()
	if ok {
		t.flusher.trigger()
	}
}

// LastActive returns when id was last used.
func (t *Tracker) LastActive(id tabs.TabID) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ms, ok := t.activity[id]
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Len is the number of tracked tabs.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.activity)
}

// Bootstrap rebuilds the map after a restart. Persisted entries survive
// only for tabs still open; open tabs without an entry are seeded from the
// browser's last-access time, or now. System pages are never tracked.
func (t *Tracker) Bootstrap(ctx context.Context, open []tabs.Tab, isSystem func(string) bool) {
	stored, err := t.store.LoadActivity(ctx)
	if err != nil {
		t.logger.Warn("tracker: load activity failed, starting empty", "error", err)
		stored = map[tabs.TabID]int64{}
	}

	now := t.clock.Now().UnixMilli()
	next := make(map[tabs.TabID]int64, len(open))
	seeded := 0
	for _, tab := range open {
		if isSystem(tab.URL) {
			continue
		}
		if ms, ok := stored[tab.ID]; ok {
			next[tab.ID] = ms
			continue
		}
		if !tab.LastAccessed.IsZero() {
			next[tab.ID] = tab.LastAccessed.UnixMilli()
		} else {
			next[tab.ID] = now
		}
		seeded++
	}

	t.mu.Lock()
	t.activity = next
	t.mu.Unlock()

	t.logger.Info("tracker: bootstrapped", "tabs", len(next), "seeded", seeded, "dropped", len(stored)-(len(next)-seeded))
	t.flusher.trigger()
}

// Flush writes the map now if a write is pending.
func (t *Tracker) Flush() {
	t.flusher.flush()
}

// Stop cancels a pending write.
func (t *Tracker) Stop() {
	t.flusher.stop()
}

func (t *Tracker) write() {
	t.mu.Lock()
	snapshot := make(map[tabs.TabID]int64, len(t.activity))
	for id, ms := range t.activity {
		snapshot[id] = ms
	}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.store.SaveActivity(ctx, snapshot); err != nil {
		t.logger.Warn("tracker: flush failed, keeping in-memory state", "error", err)
		return
	}
	t.logger.Debug("tracker: flushed", "tabs", len(snapshot))
}
