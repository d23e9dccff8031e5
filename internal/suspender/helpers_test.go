package suspender

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/runnerr0/tabtidy/internal/state"
	"github.com/runnerr0/tabtidy/internal/storage"
	"github.com/runnerr0/tabtidy/internal/tabs"
	"github.com/runnerr0/tabtidy/internal/testutil"
)

const origin = "http://127.0.0.1:8722"

var systemPrefixes = []string{"chrome://", "chrome-extension://", "edge://", "about:", "extensions://"}

// countingKV counts writes per key.
type countingKV struct {
	storage.KV
	mu   sync.Mutex
	sets map[string]int
	fail bool
}

func newCountingKV(kv storage.KV) *countingKV {
	return &countingKV{KV: kv, sets: map[string]int{}}
}

var errDiskFull = errors.New("disk full")

func (c *countingKV) Set(ctx context.Context, key string, value any) error {
	c.mu.Lock()
	c.sets[key]++
	fail := c.fail
	c.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return c.KV.Set(ctx, key, value)
}

func (c *countingKV) writes(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets[key]
}

func (c *countingKV) setFail(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fail
}

func testOptions() Options {
	opts := DefaultOptions(origin, systemPrefixes)
	opts.ActivityFlush = 20 * time.Millisecond
	opts.IndexFlush = 10 * time.Millisecond
	opts.Settle = 5 * time.Millisecond
	opts.DiscardTimeout = time.Second
	return opts
}

type harness struct {
	t       *testing.T
	ctx     context.Context
	kv      *countingKV
	store   *state.Store
	clock   *testutil.StubClock
	browser *testutil.FakeBrowser
	svc     *Service
}

func newHarness(t *testing.T, open ...tabs.Tab) *harness {
	t.Helper()
	kv := newCountingKV(testutil.NewStore(t))
	store := state.New(kv, testutil.NopLogger())
	clock := testutil.FixedClock()
	browser := testutil.NewFakeBrowser(open...)
	svc := New(browser, store, clock, testOptions(), testutil.NopLogger())
	t.Cleanup(func() {
		svc.engine.Stop()
		svc.tracker.Stop()
		svc.index.Stop()
	})
	return &harness{
		t:       t,
		ctx:     context.Background(),
		kv:      kv,
		store:   store,
		clock:   clock,
		browser: browser,
		svc:     svc,
	}
}

func (h *harness) suspendedIDs() []tabs.TabID {
	m, err := h.store.LoadSuspended(h.ctx)
	if err != nil {
		h.t.Fatalf("load suspended: %v", err)
	}
	ids := make([]tabs.TabID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids
}

// placeholderIDs lists the tabs currently showing the placeholder.
func (h *harness) placeholderIDs() []tabs.TabID {
	open, _ := h.browser.Tabs(h.ctx)
	var ids []tabs.TabID
	for _, t := range open {
		if h.svc.IsPlaceholder(t.URL) {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

func webTab(id tabs.TabID, url string) tabs.Tab {
	return tabs.Tab{ID: id, URL: url, Title: "Tab " + id.String(), Status: tabs.StatusComplete}
}
