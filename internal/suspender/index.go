package suspender

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/runnerr0/tabtidy/internal/placeholder"
	"github.com/runnerr0/tabtidy/internal/state"
	"github.com/runnerr0/tabtidy/internal/tabs"
)

// Index is the durable map from placeholder tab to the page it replaced.
// It is the only writer of the suspended-tabs key, so read-modify-write
// races between components cannot drop records.
type Index struct {
	store  *state.Store
	origin string
	clock  Clock
	logger *slog.Logger

	mu      sync.Mutex
	records map[tabs.TabID]state.SuspendedTab

	// saveMu orders writes so the last one always carries the newest map.
	saveMu sync.Mutex
	writer *debouncer
}

// NewIndex creates an empty Index; call RebuildFromScratch before use.
func NewIndex(store *state.Store, origin string, clock Clock, window time.Duration, logger *slog.Logger) *Index {
	x := &Index{
		store:   store,
		origin:  origin,
		clock:   clock,
		logger:  logger,
		records: make(map[tabs.TabID]state.SuspendedTab),
	}
	x.writer = newDebouncer(window, x.write)
	return x
}

// Record stores rec for id and persists the whole index before returning.
func (x *Index) Record(ctx context.Context, id tabs.TabID, rec state.SuspendedTab) error {
	x.mu.Lock()
	x.records[id] = rec
	x.mu.Unlock()

	// A pending debounced write would only repeat this one.
	x.writer.stop()
	return x.persist(ctx)
}

// OnTabUpdated reconciles one tab with the index: a placeholder without a
// record gains one from its parameters, and a record whose tab left the
// placeholder is dropped.
func (x *Index) OnTabUpdated(tab tabs.Tab) {
	if tab.URL == "" {
		return
	}

	x.mu.Lock()
	_, have := x.records[tab.ID]
	changed := false
	if p, ok := placeholder.Parse(tab.URL, x.origin); ok {
		if !have && p.URL != "" {
			x.records[tab.ID] = x.fromParams(p)
			changed = true
		}
	} else if have {
		delete(x.records, tab.ID)
		changed = true
	}
	x.mu.Unlock()

	if changed {
		x.writer.trigger()
	}
}

// OnTabRemoved drops any record for id.
func (x *Index) OnTabRemoved(id tabs.TabID) {
	x.mu.Lock()
	_, have := x.records[id]
	delete(x.records, id)
	x.mu.Unlock()

	if have {
		x.writer.trigger()
	}
}

// RebuildFromScratch recomputes the index from the open tabs. Stored
// records are kept for tabs still on the placeholder; placeholders without
// a stored record get one from their parameters; everything else goes.
// The result is written immediately.
func (x *Index) RebuildFromScratch(ctx context.Context, open []tabs.Tab) (kept, added, removed int) {
	stored, err := x.store.LoadSuspended(ctx)
	if err != nil {
		x.logger.Warn("index: load failed, rebuilding from open tabs only", "error", err)
		stored = map[tabs.TabID]state.SuspendedTab{}
	}

	next := make(map[tabs.TabID]state.SuspendedTab)
	for _, tab := range open {
		p, ok := placeholder.Parse(tab.URL, x.origin)
		if !ok {
			continue
		}
		if rec, have := stored[tab.ID]; have {
			next[tab.ID] = rec
			kept++
			continue
		}
		if p.URL != "" {
			next[tab.ID] = x.fromParams(p)
			added++
		}
	}
	removed = len(stored) - kept

	x.mu.Lock()
	x.records = next
	x.mu.Unlock()

	x.writer.stop()
	if err := x.persist(ctx); err != nil {
		x.logger.Warn("index: write after rebuild failed", "error", err)
	}
	x.logger.Info("index: rebuilt", "kept", kept, "added", added, "removed", removed)
	return kept, added, removed
}

// Get returns the record for id.
func (x *Index) Get(id tabs.TabID) (state.SuspendedTab, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	rec, ok := x.records[id]
	return rec, ok
}

// IDs lists indexed tab ids in ascending order.
func (x *Index) IDs() []tabs.TabID {
	x.mu.Lock()
	defer x.mu.Unlock()
	ids := make([]tabs.TabID, 0, len(x.records))
	for id := range x.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot copies the index.
func (x *Index) Snapshot() map[tabs.TabID]state.SuspendedTab {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.snapshotLocked()
}

// Flush writes the index now if a write is pending.
func (x *Index) Flush() {
	x.writer.flush()
}

// Stop cancels a pending write.
func (x *Index) Stop() {
	x.writer.stop()
}

func (x *Index) fromParams(p placeholder.Params) state.SuspendedTab {
	return state.SuspendedTab{
		OriginalURL: p.URL,
		Title:       p.Title,
		FaviconURL:  p.Favicon,
		SuspendedAt: x.clock.Now().UnixMilli(),
	}
}

func (x *Index) snapshotLocked() map[tabs.TabID]state.SuspendedTab {
	out := make(map[tabs.TabID]state.SuspendedTab, len(x.records))
	for id, rec := range x.records {
		out[id] = rec
	}
	return out
}

func (x *Index) persist(ctx context.Context) error {
	x.saveMu.Lock()
	defer x.saveMu.Unlock()
	return x.store.SaveSuspended(ctx, x.Snapshot())
}

func (x *Index) write() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := x.persist(ctx); err != nil {
		x.logger.Warn("index: write failed, keeping in-memory state", "error", err)
		return
	}
	x.logger.Debug("index: written")
}
