package suspender

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tabtidy/internal/state"
	"github.com/runnerr0/tabtidy/internal/tabs"
	"github.com/runnerr0/tabtidy/internal/testutil"
)

func newTestTracker(t *testing.T, window time.Duration) (*Tracker, *countingKV, *state.Store, *testutil.StubClock) {
	t.Helper()
	kv := newCountingKV(testutil.NewStore(t))
	store := state.New(kv, testutil.NopLogger())
	clock := testutil.FixedClock()
	tr := NewTracker(store, clock, window, testutil.NopLogger())
	t.Cleanup(tr.Stop)
	return tr, kv, store, clock
}

func TestTracker_RecordAndLastActive(t *testing.T) {
	tr, _, _, clock := newTestTracker(t, time.Hour)

	_, ok := tr.LastActive(5)
	assert.False(t, ok)

	tr.RecordActivity(5)
	got, ok := tr.LastActive(5)
	require.True(t, ok)
	assert.Equal(t, clock.Now().UnixMilli(), got.UnixMilli())

	clock.Advance(time.Minute)
	tr.RecordActivity(5)
	got, _ = tr.LastActive(5)
	assert.Equal(t, clock.Now().UnixMilli(), got.UnixMilli())
	assert.Equal(t, 1, tr.Len())
}

func TestTracker_BurstProducesOneWrite(t *testing.T) {
	tr, kv, store, _ := newTestTracker(t, 300*time.Millisecond)

	for i := 0; i < 10; i++ {
		tr.RecordActivity(7)
		time.Sleep(20 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return kv.writes(state.KeyTabActivity) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 1, kv.writes(state.KeyTabActivity))

	m, err := store.LoadActivity(context.Background())
	require.NoError(t, err)
	assert.Contains(t, m, tabs.TabID(7))
}

func TestTracker_DropTab(t *testing.T) {
	tr, kv, store, _ := newTestTracker(t, time.Hour)

	tr.RecordActivity(1)
	tr.RecordActivity(2)
	tr.DropTab(1)
	tr.Flush()

	_, ok := tr.LastActive(1)
	assert.False(t, ok)

	m, err := store.LoadActivity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []tabs.TabID{2}, keys(m))
	assert.Equal(t, 1, kv.writes(state.KeyTabActivity))

	tr.DropTab(99)
	tr.Flush()
	assert.Equal(t, 1, kv.writes(state.KeyTabActivity), "dropping an unknown tab writes nothing")
}

func TestTracker_Bootstrap(t *testing.T) {
	tr, _, store, clock := newTestTracker(t, time.Hour)
	ctx := context.Background()
	now := clock.Now()

	require.NoError(t, store.SaveActivity(ctx, map[tabs.TabID]int64{
		1: now.Add(-10 * time.Minute).UnixMilli(), // still open
		2: now.Add(-20 * time.Minute).UnixMilli(), // closed while down
	}))

	open := []tabs.Tab{
		{ID: 1, URL: "https://a.com"},
		{ID: 3, URL: "https://b.com", LastAccessed: now.Add(-3 * time.Minute)},
		{ID: 4, URL: "https://c.com"},
		{ID: 5, URL: "chrome://settings"},
	}
	tr.Bootstrap(ctx, open, filter.IsSystemPage)

	got, ok := tr.LastActive(1)
	require.True(t, ok)
	assert.Equal(t, now.Add(-10*time.Minute).UnixMilli(), got.UnixMilli(), "persisted value wins")

	got, ok = tr.LastActive(3)
	require.True(t, ok)
	assert.Equal(t, now.Add(-3*time.Minute).UnixMilli(), got.UnixMilli(), "browser last-access time")

	got, ok = tr.LastActive(4)
	require.True(t, ok)
	assert.Equal(t, now.UnixMilli(), got.UnixMilli(), "seeded with now")

	_, ok = tr.LastActive(2)
	assert.False(t, ok, "closed tab dropped")
	_, ok = tr.LastActive(5)
	assert.False(t, ok, "system page never tracked")

	tr.Flush()
	m, err := store.LoadActivity(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []tabs.TabID{1, 3, 4}, keys(m))
}

func TestTracker_BootstrapWithCorruptStorage(t *testing.T) {
	tr, kv, _, _ := newTestTracker(t, time.Hour)
	ctx := context.Background()
	require.NoError(t, kv.KV.Set(ctx, state.KeyTabActivity, "garbage"))

	tr.Bootstrap(ctx, []tabs.Tab{{ID: 1, URL: "https://a.com"}}, filter.IsSystemPage)
	_, ok := tr.LastActive(1)
	assert.True(t, ok)
}

func TestTracker_StorageFailureIsSwallowed(t *testing.T) {
	tr, kv, store, _ := newTestTracker(t, time.Hour)
	kv.setFail(true)

	tr.RecordActivity(1)
	assert.NotPanics(t, tr.Flush)

	_, ok := tr.LastActive(1)
	assert.True(t, ok, "memory stays authoritative")

	kv.setFail(false)
	tr.RecordActivity(2)
	tr.Flush()
	m, err := store.LoadActivity(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []tabs.TabID{1, 2}, keys(m), "next write carries everything")
}

func keys[V any](m map[tabs.TabID]V) []tabs.TabID {
	out := make([]tabs.TabID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}
