package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tabtidy/internal/placeholder"
	"github.com/runnerr0/tabtidy/internal/state"
	"github.com/runnerr0/tabtidy/internal/suspender"
	"github.com/runnerr0/tabtidy/internal/tabs"
	"github.com/runnerr0/tabtidy/internal/testutil"
)

type fakeDaemon struct {
	status    suspender.Status
	entries   []suspender.SuspendedEntry
	tidy      suspender.TidyResult
	restoreTo map[tabs.TabID]string
	pinned    map[tabs.TabID]bool
	err       error
}

func newFakeDaemon() *fakeDaemon {
	return &fakeDaemon{restoreTo: map[tabs.TabID]string{}, pinned: map[tabs.TabID]bool{}}
}

func (f *fakeDaemon) Status(context.Context) (suspender.Status, error) { return f.status, f.err }

func (f *fakeDaemon) Snapshot(context.Context) []suspender.SuspendedEntry { return f.entries }

func (f *fakeDaemon) Tidy(context.Context) (suspender.TidyResult, error) { return f.tidy, f.err }

func (f *fakeDaemon) Restore(_ context.Context, id tabs.TabID) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	target, ok := f.restoreTo[id]
	if !ok {
		return "", tabs.ErrTabNotFound
	}
	return target, nil
}

func (f *fakeDaemon) SetPinned(_ context.Context, id tabs.TabID, pinned bool) error {
	if f.err != nil {
		return f.err
	}
	f.pinned[id] = pinned
	return nil
}

func newTestServer(t *testing.T, d Daemon) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(New(d, testutil.NopLogger()).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestPlaceholderPage(t *testing.T) {
	ts := newTestServer(t, newFakeDaemon())

	u := placeholder.Build(ts.URL, placeholder.Params{URL: "https://example.com/a?b=1", Title: "Example <b>page</b>"})
	resp, err := http.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "visibilitychange")
	assert.Contains(t, string(body), "Example page")
	assert.NotContains(t, string(body), "<b>page</b>")
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, newFakeDaemon())

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_StatusAndSuspended(t *testing.T) {
	d := newFakeDaemon()
	d.status = suspender.Status{DelayMinutes: 30, Suspended: 1, Tracked: 4}
	d.entries = []suspender.SuspendedEntry{{
		TabID:        7,
		SuspendedTab: state.SuspendedTab{OriginalURL: "https://a.com", Title: "A"},
		Group:        "Session 1",
	}}
	c := NewClient(newTestServer(t, d).URL)
	ctx := context.Background()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, d.status, st)

	entries, err := c.Suspended(ctx)
	require.NoError(t, err)
	assert.Equal(t, d.entries, entries)
}

func TestClient_Tidy(t *testing.T) {
	d := newFakeDaemon()
	d.tidy = suspender.TidyResult{
		RunID:     "run-1",
		Groups:    []suspender.GroupSummary{{ID: "g1", Name: "Session 1", Color: "blue", Tabs: []tabs.TabID{3, 4}}},
		Suspended: []tabs.TabID{3},
	}
	c := NewClient(newTestServer(t, d).URL)

	res, err := c.Tidy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, d.tidy, res)
}

func TestClient_Restore(t *testing.T) {
	d := newFakeDaemon()
	d.restoreTo[5] = "https://example.com"
	c := NewClient(newTestServer(t, d).URL)
	ctx := context.Background()

	target, err := c.Restore(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", target)

	_, err = c.Restore(ctx, 6)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestClient_Pin(t *testing.T) {
	d := newFakeDaemon()
	c := NewClient(newTestServer(t, d).URL)
	ctx := context.Background()

	require.NoError(t, c.SetPinned(ctx, 5, true))
	assert.True(t, d.pinned[5])
	require.NoError(t, c.SetPinned(ctx, 5, false))
	assert.False(t, d.pinned[5])
}

func TestErrorStatuses(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{tabs.ErrTabNotFound, http.StatusNotFound},
		{suspender.ErrNotSuspended, http.StatusConflict},
		{suspender.ErrNoOriginalURL, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		d := newFakeDaemon()
		d.err = tt.err
		ts := newTestServer(t, d)

		resp, err := http.Post(ts.URL+"/api/tabs/5/restore", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tt.want, resp.StatusCode, "error %v", tt.err)
	}
}

func TestInvalidTabID(t *testing.T) {
	ts := newTestServer(t, newFakeDaemon())

	resp, err := http.Post(ts.URL+"/api/tabs/abc/pin", "application/json", strings.NewReader(""))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewClient(url).Status(context.Background())
	assert.ErrorIs(t, err, ErrDaemonUnreachable)
}

func TestServe_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(newFakeDaemon(), testutil.NopLogger()).Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()

	cancel()
	assert.NoError(t, <-done)
}
