package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/runnerr0/tabtidy/internal/storage"
)

// Default config file path.
const DefaultConfigPath = "~/.config/tabtidy/config.yaml"

// Config holds all TabTidy daemon configuration. User-facing preferences
// (delay, whitelist, grouping) live in the database, not here.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Suspend SuspendConfig `yaml:"suspend"`
	Logging LoggingConfig `yaml:"logging"`
}

type BrowserConfig struct {
	// RemoteURL is the DevTools WebSocket URL of a running browser.
	// Empty = launch one.
	RemoteURL string `yaml:"remote_url"`
	Headless  bool   `yaml:"headless"`
	Bin       string `yaml:"bin"`
	UserData  string `yaml:"user_data_dir"`

	// ActivePollMS is how often page visibility is sampled to notice tab
	// switches, which CDP does not report.
	ActivePollMS int `yaml:"active_poll_ms"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type StorageConfig struct {
	Path              string `yaml:"path"`
	SQLiteFile        string `yaml:"sqlite_file"`
	SQLiteJournalMode string `yaml:"sqlite_journal_mode"`
}

// SuspendConfig holds the timing knobs of the reconciliation loop.
type SuspendConfig struct {
	ActivityFlushMS    int      `yaml:"activity_flush_ms"`
	IndexFlushMS       int      `yaml:"index_flush_ms"`
	SettleDelayMS      int      `yaml:"settle_delay_ms"`
	DiscardTimeoutMS   int      `yaml:"discard_timeout_ms"`
	TidyThresholdSec   int      `yaml:"tidy_threshold_sec"`
	ShortIntervalSec   int      `yaml:"short_interval_sec"`
	LongIntervalSec    int      `yaml:"long_interval_sec"`
	CheckUnsavedForms  bool     `yaml:"check_unsaved_forms"`
	SystemPagePrefixes []string `yaml:"system_page_prefixes"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	File   string `yaml:"file"`   // empty = stderr
}

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read or contains invalid YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Browser.ActivePollMS < 0 {
		return fmt.Errorf("browser.active_poll_ms must not be negative: %d", c.Browser.ActivePollMS)
	}
	if c.Suspend.DiscardTimeoutMS > 0 && c.Suspend.DiscardTimeoutMS < c.Suspend.SettleDelayMS {
		return fmt.Errorf("suspend.discard_timeout_ms (%d) must exceed settle_delay_ms (%d)",
			c.Suspend.DiscardTimeoutMS, c.Suspend.SettleDelayMS)
	}
	if mode := c.Storage.SQLiteJournalMode; mode != "" && !slices.Contains(storage.JournalModes, strings.ToLower(mode)) {
		return fmt.Errorf("storage.sqlite_journal_mode must be one of %s, got %q",
			strings.Join(storage.JournalModes, ", "), mode)
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

// Addr is the loopback listen address of the daemon.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// BaseURL is the origin of the daemon's HTTP server.
func (c *Config) BaseURL() string {
	return "http://" + c.Addr()
}

// DBPath resolves the SQLite file path, expanding a leading ~.
func (c *Config) DBPath() (string, error) {
	dir, err := expandPath(c.Storage.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Storage.SQLiteFile), nil
}

// Millis converts one of the *MS settings into a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Seconds converts one of the *Sec settings into a duration.
func Seconds(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// LoadOrCreate loads the config from the default path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreate() (*Config, error) {
	path, err := expandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, error) {
	path, err := expandPath(path)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}
