package browser

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tabtidy/internal/tabs"
	"github.com/runnerr0/tabtidy/internal/testutil"
)

func TestParseProbe(t *testing.T) {
	p, err := parseProbe(`{"visible":true,"ready":"complete","audible":false,"favicon":"https://a.com/f.ico"}`)
	require.NoError(t, err)

	tab := tabs.Tab{ID: 3, URL: "https://a.com"}
	p.apply(&tab)
	assert.True(t, tab.Active)
	assert.False(t, tab.Audible)
	assert.Equal(t, "https://a.com/f.ico", tab.FaviconURL)
	assert.Equal(t, tabs.StatusComplete, tab.Status)
}

func TestParseProbe_StillLoading(t *testing.T) {
	p, err := parseProbe(`{"visible":false,"ready":"interactive","audible":true,"favicon":""}`)
	require.NoError(t, err)

	var tab tabs.Tab
	p.apply(&tab)
	assert.Equal(t, tabs.StatusLoading, tab.Status)
	assert.True(t, tab.Audible)
}

func TestParseProbe_Garbage(t *testing.T) {
	_, err := parseProbe("undefined")
	assert.Error(t, err)
}

func TestNewlyVisible(t *testing.T) {
	before := map[tabs.TabID]bool{1: true, 2: false}
	now := map[tabs.TabID]bool{1: true, 2: true, 5: true, 4: false}

	assert.Equal(t, []tabs.TabID{2, 5}, newlyVisible(before, now))
	assert.Empty(t, newlyVisible(now, now))
}

func TestIsPage(t *testing.T) {
	assert.True(t, isPage(&proto.TargetTargetInfo{Type: "page"}))
	assert.False(t, isPage(&proto.TargetTargetInfo{Type: "service_worker"}))
	assert.False(t, isPage(nil))
}

func TestSnapshot(t *testing.T) {
	b := &Browser{logger: testutil.NopLogger()}

	tgt := &target{id: 7, url: "https://a.com", title: "A", visible: true}
	tab := b.snapshot(tgt)
	assert.Equal(t, tabs.Tab{ID: 7, URL: "https://a.com", Title: "A", Active: true, Status: tabs.StatusComplete}, tab)

	tgt.loading = true
	assert.Equal(t, tabs.StatusLoading, b.snapshot(tgt).Status)

	tgt.discarded = true
	tab = b.snapshot(tgt)
	assert.True(t, tab.Discarded)
	assert.Equal(t, tabs.StatusUnloaded, tab.Status)
}

func TestEmbeddedScripts(t *testing.T) {
	assert.Contains(t, probeJS, "visibilityState")
	assert.Contains(t, formsJS, "defaultValue")
}
