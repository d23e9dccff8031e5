package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tabtidy/internal/config"
	"github.com/runnerr0/tabtidy/internal/server"
	"github.com/runnerr0/tabtidy/internal/state"
	"github.com/runnerr0/tabtidy/internal/suspender"
	"github.com/runnerr0/tabtidy/internal/tabs"
	"github.com/runnerr0/tabtidy/internal/testutil"
)

// captureOutput captures stdout during fn execution and returns it as a string.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// fakeDaemon answers like a running daemon unless down is set.
type fakeDaemon struct {
	mu        sync.Mutex
	down      bool
	status    suspender.Status
	suspended []suspender.SuspendedEntry
	tidy      suspender.TidyResult
	restoreTo map[tabs.TabID]string
	pinned    map[tabs.TabID]bool
	err       error
}

func (d *fakeDaemon) check() error {
	if d.down {
		return fmt.Errorf("%w at http://127.0.0.1:0: connection refused", server.ErrDaemonUnreachable)
	}
	return d.err
}

func (d *fakeDaemon) Status(ctx context.Context) (suspender.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status, d.check()
}

func (d *fakeDaemon) Suspended(ctx context.Context) ([]suspender.SuspendedEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.suspended, d.check()
}

func (d *fakeDaemon) Tidy(ctx context.Context) (suspender.TidyResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tidy, d.check()
}

func (d *fakeDaemon) Restore(ctx context.Context, id tabs.TabID) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return "", err
	}
	url, ok := d.restoreTo[id]
	if !ok {
		return "", fmt.Errorf("daemon: tab %d is not suspended (404)", id)
	}
	return url, nil
}

func (d *fakeDaemon) SetPinned(ctx context.Context, id tabs.TabID, pinned bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return err
	}
	if d.pinned == nil {
		d.pinned = map[tabs.TabID]bool{}
	}
	d.pinned[id] = pinned
	return nil
}

// newTestEnv returns an env over a fresh in-memory database.
func newTestEnv(t *testing.T, daemon *fakeDaemon) *env {
	t.Helper()
	db := testutil.NewStore(t)
	if daemon == nil {
		daemon = &fakeDaemon{down: true}
	}
	return &env{
		cfg:    config.DefaultConfig(),
		dbPath: ":memory:",
		db:     db,
		state:  state.New(db, testutil.NopLogger()),
		daemon: daemon,
		logger: testutil.NopLogger(),
	}
}
