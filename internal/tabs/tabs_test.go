package tabs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var prefixes = []string{"chrome://", "chrome-extension://", "edge://", "about:", "extensions://"}

func TestIsSystemPage(t *testing.T) {
	own := "http://127.0.0.1:8722"

	assert.True(t, IsSystemPage("chrome://settings", prefixes, own))
	assert.True(t, IsSystemPage("CHROME://newtab", prefixes, own))
	assert.True(t, IsSystemPage("about:blank", prefixes, own))
	assert.True(t, IsSystemPage("edge://flags", prefixes, own))
	assert.True(t, IsSystemPage("chrome-extension://abcdef/options.html", prefixes, own))

	assert.False(t, IsSystemPage("https://example.com", prefixes, own))
	assert.False(t, IsSystemPage("", prefixes, own))
}

func TestIsSystemPage_OwnOriginExempt(t *testing.T) {
	own := "chrome-extension://ourid"
	assert.False(t, IsSystemPage("chrome-extension://ourid/suspended.html?url=x", prefixes, own))
	assert.True(t, IsSystemPage("chrome-extension://otherid/page.html", prefixes, own))
}

func TestTabIDRoundtrip(t *testing.T) {
	id, err := ParseTabID(TabID(42).String())
	require.NoError(t, err)
	assert.Equal(t, TabID(42), id)

	_, err = ParseTabID("not-a-number")
	assert.Error(t, err)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "created", EventCreated.String())
	assert.Equal(t, "removed", EventRemoved.String())
	assert.Equal(t, "updated", EventUpdated.String())
	assert.Equal(t, "activated", EventActivated.String())
	assert.Equal(t, "unknown", EventKind(0).String())
}
