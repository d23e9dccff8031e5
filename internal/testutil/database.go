package testutil

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tabtidy/internal/storage"
)

// NewStore creates a migrated in-memory store. It is closed when the test
// completes.
func NewStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()

	store, closeFn, err := storage.Open(storage.MemoryPath, "")
	require.NoError(t, err)
	t.Cleanup(func() { closeFn() })

	return store
}

// NopLogger discards everything.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
