package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore creates a migrated in-memory Store for testing.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db := openTestDB(t)

	require.NoError(t, NewMigrationRunner(db).Run())

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

// --- Get / Set / Delete ---

func TestSetGet_Roundtrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	in := map[int]int64{5: 1700000000000, 7: 1700000001000}
	require.NoError(t, store.Set(ctx, "tabActivity", in))

	var out map[int]int64
	ok, err := store.Get(ctx, "tabActivity", &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, in, out)
}

func TestGet_MissingKey(t *testing.T) {
	store := openTestStore(t)

	var out []string
	ok, err := store.Get(context.Background(), "nope", &out)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, out)
}

func TestGet_CorruptValue(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.DB().Exec(`INSERT INTO kv (key, value) VALUES ('suspendedTabs', '{not json')`)
	require.NoError(t, err)

	var out map[string]any
	ok, err := store.Get(ctx, "suspendedTabs", &out)
	assert.True(t, ok, "the key exists even though it cannot be decoded")
	assert.Error(t, err)
}

func TestSet_Overwrites(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "autoSuspendDelay", 5))
	require.NoError(t, store.Set(ctx, "autoSuspendDelay", 30))

	var v int
	_, err := store.Get(ctx, "autoSuspendDelay", &v)
	require.NoError(t, err)
	assert.Equal(t, 30, v)
}

func TestDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "globalPauseUntil", 123))
	require.NoError(t, store.Delete(ctx, "globalPauseUntil"))
	require.NoError(t, store.Delete(ctx, "globalPauseUntil"), "deleting twice is fine")

	_, err := store.GetRaw(ctx, "globalPauseUntil")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDeleteKeys(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", 1))
	require.NoError(t, store.Set(ctx, "b", 2))
	require.NoError(t, store.DeleteKeys(ctx, "a", "b"))

	var v int
	ok, err := store.Get(ctx, "a", &v)
	require.NoError(t, err)
	assert.False(t, ok)
}

// --- Update ---

func TestUpdate_CreatesAndModifies(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	appendItem := func(item string) func([]byte) (any, error) {
		return func(cur []byte) (any, error) {
			var list []string
			if cur != nil {
				if err := json.Unmarshal(cur, &list); err != nil {
					return nil, err
				}
			}
			return append(list, item), nil
		}
	}

	require.NoError(t, store.Update(ctx, "list", appendItem("a")))
	require.NoError(t, store.Update(ctx, "list", appendItem("b")))

	var got []string
	_, err := store.Get(ctx, "list", &got)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestUpdate_CallbackErrorRollsBack(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "before"))
	boom := errors.New("boom")
	err := store.Update(ctx, "k", func([]byte) (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	var got string
	_, err = store.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.Equal(t, "before", got)
}

func TestUpdate_ConcurrentWritersDoNotLoseUpdates(t *testing.T) {
	dir := t.TempDir()
	db, err := openFileDB(filepath.Join(dir, "race.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, NewMigrationRunner(db).Run())
	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "counter", 0))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Update(ctx, "counter", func(cur []byte) (any, error) {
				var n int
				if err := json.Unmarshal(cur, &n); err != nil {
					return nil, err
				}
				return n + 1, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var n int
	_, err = store.Get(ctx, "counter", &n)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}

// --- Tab targets ---

func TestTabIDForTarget_AllocatesStableIDs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a, err := store.TabIDForTarget(ctx, "TARGET-A")
	require.NoError(t, err)
	b, err := store.TabIDForTarget(ctx, "TARGET-B")
	require.NoError(t, err)
	again, err := store.TabIDForTarget(ctx, "TARGET-A")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, again)

	target, err := store.TargetForTab(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "TARGET-B", target)
}

func TestTabIDForTarget_EmptyTarget(t *testing.T) {
	store := openTestStore(t)
	_, err := store.TabIDForTarget(context.Background(), "")
	assert.Error(t, err)
}

func TestTargetForTab_Missing(t *testing.T) {
	store := openTestStore(t)
	_, err := store.TargetForTab(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPruneTargets_KeepsLiveAndNeverReusesIDs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a, err := store.TabIDForTarget(ctx, "A")
	require.NoError(t, err)
	_, err = store.TabIDForTarget(ctx, "B")
	require.NoError(t, err)

	removed, err := store.PruneTargets(ctx, []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = store.TargetForTab(ctx, a)
	require.NoError(t, err)

	c, err := store.TabIDForTarget(ctx, "C")
	require.NoError(t, err)
	assert.Greater(t, c, a+1, "ids of pruned targets must not be handed out again")
}

// --- Stats / Purge ---

func TestGetStats(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.TabIDForTarget(ctx, "A")
	require.NoError(t, err)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), stats.Keys, "seeded defaults")
	assert.Equal(t, int64(1), stats.TabTargets)
	assert.Equal(t, 2, stats.SchemaVersion)
	assert.False(t, stats.LastWrite.IsZero())
	assert.GreaterOrEqual(t, stats.DatabaseSizeBytes, int64(0))
}

func TestPurgeAll_ReseedsDefaults(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "suspendedTabs", map[string]any{"5": map[string]any{"originalUrl": "https://a.com"}}))
	require.NoError(t, store.Set(ctx, "sessionCounter", 9))
	_, err := store.TabIDForTarget(ctx, "A")
	require.NoError(t, err)

	require.NoError(t, store.PurgeAll(ctx))

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	assert.NotContains(t, keys, "suspendedTabs")

	var counter int
	_, err = store.Get(ctx, "sessionCounter", &counter)
	require.NoError(t, err)
	assert.Equal(t, 1, counter)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TabTargets)
}

func openFileDB(path string) (*sql.DB, error) {
	return sql.Open("sqlite3", path+"?_txlock=immediate&_busy_timeout=5000")
}
