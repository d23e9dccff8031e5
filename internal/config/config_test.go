package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Empty(t, cfg.Browser.RemoteURL)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 1000, cfg.Browser.ActivePollMS)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8722, cfg.Server.Port)
	assert.Equal(t, "~/.config/tabtidy", cfg.Storage.Path)
	assert.Equal(t, "tabtidy.db", cfg.Storage.SQLiteFile)
	assert.Equal(t, "wal", cfg.Storage.SQLiteJournalMode)
	assert.Equal(t, 1000, cfg.Suspend.ActivityFlushMS)
	assert.Equal(t, 100, cfg.Suspend.IndexFlushMS)
	assert.Equal(t, 1000, cfg.Suspend.SettleDelayMS)
	assert.Equal(t, 30000, cfg.Suspend.DiscardTimeoutMS)
	assert.Equal(t, 60, cfg.Suspend.TidyThresholdSec)
	assert.Equal(t, 15, cfg.Suspend.ShortIntervalSec)
	assert.Equal(t, 60, cfg.Suspend.LongIntervalSec)
	assert.True(t, cfg.Suspend.CheckUnsavedForms)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Empty(t, cfg.Logging.File)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultSystemPrefixesPopulated(t *testing.T) {
	prefixes := DefaultSystemPrefixes()
	assert.NotEmpty(t, prefixes)

	assert.Contains(t, prefixes, "chrome://")
	assert.Contains(t, prefixes, "edge://")
	assert.Contains(t, prefixes, "about:")
	assert.Contains(t, prefixes, "chrome-extension://")
}

func TestLoadValidYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yamlContent := `
browser:
  remote_url: "ws://127.0.0.1:9222/devtools/browser/abc"
  headless: true
server:
  port: 9999
suspend:
  settle_delay_ms: 250
  short_interval_sec: 5
logging:
  level: "debug"
  format: "text"
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(yamlContent), 0644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	// Overridden values
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", cfg.Browser.RemoteURL)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 250, cfg.Suspend.SettleDelayMS)
	assert.Equal(t, 5, cfg.Suspend.ShortIntervalSec)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	// Non-overridden values keep defaults
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 30000, cfg.Suspend.DiscardTimeoutMS)
	assert.Equal(t, "tabtidy.db", cfg.Storage.SQLiteFile)
}

func TestLoadInvalidYAMLReturnsError(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	require.NoError(t, os.WriteFile(cfgPath, []byte("server: [not: valid"), 0644))

	_, err := Load(cfgPath)
	assert.Error(t, err)
}

func TestLoadNonExistentFileReturnsError(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"port":    "server:\n  port: 70000\n",
		"timeout": "suspend:\n  settle_delay_ms: 5000\n  discard_timeout_ms: 1000\n",
		"format":  "logging:\n  format: xml\n",
		"poll":    "browser:\n  active_poll_ms: -5\n",
		"journal": "storage:\n  sqlite_journal_mode: off\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			cfgPath := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0644))

			_, err := Load(cfgPath)
			assert.Error(t, err)
		})
	}
}

func TestLoadOrCreateCreatesDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sub", "config.yaml")

	cfg, err := LoadOrCreateAt(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 8722, cfg.Server.Port)

	_, err = os.Stat(cfgPath)
	require.NoError(t, err, "config file should have been written")

	// The written file loads back to the same values.
	loaded, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadOrCreateLoadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("server:\n  port: 8800\n"), 0644))

	cfg, err := LoadOrCreateAt(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 8800, cfg.Server.Port)
}

func TestLoadSystemPrefixesReplaceDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yamlContent := `
suspend:
  system_page_prefixes:
    - "chrome://"
    - "intranet-admin://"
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(yamlContent), 0644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"chrome://", "intranet-admin://"}, cfg.Suspend.SystemPagePrefixes)
}

// --- Derived values ---

func TestAddrAndBaseURL(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "127.0.0.1:8722", cfg.Addr())
	assert.Equal(t, "http://127.0.0.1:8722", cfg.BaseURL())
}

func TestDBPathExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	cfg := DefaultConfig()
	path, err := cfg.DBPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "tabtidy", "tabtidy.db"), path)

	cfg.Storage.Path = "/var/lib/tabtidy"
	path, err = cfg.DBPath()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/tabtidy/tabtidy.db", path)
}

func TestMillis(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, Millis(1500))
	assert.Equal(t, time.Duration(0), Millis(0))
	assert.Equal(t, 15*time.Second, Seconds(15))
}

// --- Logging ---

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestNewLoggerHonorsLevelVar(t *testing.T) {
	var buf bytes.Buffer
	logger, level, closer, err := LoggingConfig{Level: "info", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	level.Set(slog.LevelDebug)
	logger.Debug("shown", "tab", 5)
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"tab":5`)
}

func TestNewLoggerWritesFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "tabtidy.log")
	logger, _, closer, err := LoggingConfig{Level: "info", Format: "text", File: logPath}.NewLogger(os.Stderr)
	require.NoError(t, err)

	logger.Info("daemon started")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "daemon started")
}
