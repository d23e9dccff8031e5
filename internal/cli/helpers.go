package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/runnerr0/tabtidy/internal/config"
	"github.com/runnerr0/tabtidy/internal/server"
	"github.com/runnerr0/tabtidy/internal/state"
	"github.com/runnerr0/tabtidy/internal/storage"
	"github.com/runnerr0/tabtidy/internal/suspender"
	"github.com/runnerr0/tabtidy/internal/tabs"
)

// daemonAPI is the running daemon as seen from the CLI.
type daemonAPI interface {
	Status(ctx context.Context) (suspender.Status, error)
	Suspended(ctx context.Context) ([]suspender.SuspendedEntry, error)
	Tidy(ctx context.Context) (suspender.TidyResult, error)
	Restore(ctx context.Context, id tabs.TabID) (string, error)
	SetPinned(ctx context.Context, id tabs.TabID, pinned bool) error
}

var _ daemonAPI = (*server.Client)(nil)

// env is everything a command may touch: the config, the shared
// database and a client for the daemon.
type env struct {
	cfg    *config.Config
	dbPath string
	db     *storage.SQLiteStore
	state  *state.Store
	daemon daemonAPI
	logger *slog.Logger
	closer func() error
}

func (e *env) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer()
}

// loadConfig reads the config named by --config, or the default one,
// writing defaults on first use.
func loadConfig(globals *GlobalFlags) (*config.Config, error) {
	path := config.DefaultConfigPath
	if globals != nil && globals.Config != "" {
		path = globals.Config
	}
	cfg, err := config.LoadOrCreateAt(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newCLILogger logs warnings to stderr, everything with --verbose.
func newCLILogger(globals *GlobalFlags) *slog.Logger {
	level := slog.LevelWarn
	if globals != nil && globals.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openEnv loads the config and opens the database it names.
func openEnv(globals *GlobalFlags) (*env, error) {
	cfg, err := loadConfig(globals)
	if err != nil {
		return nil, err
	}
	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, err
	}
	db, closeDB, err := storage.Open(dbPath, cfg.Storage.SQLiteJournalMode)
	if err != nil {
		return nil, err
	}
	logger := newCLILogger(globals)
	return &env{
		cfg:    cfg,
		dbPath: dbPath,
		db:     db,
		state:  state.New(db, logger),
		daemon: server.NewClient(cfg.BaseURL()),
		logger: logger,
		closer: closeDB,
	}, nil
}

// requireDaemon turns an unreachable daemon into an actionable error.
func requireDaemon(err error) error {
	if errors.Is(err, server.ErrDaemonUnreachable) {
		return fmt.Errorf("%w (start it with `tabtidy run`)", err)
	}
	return err
}

func printJSON(v any) error {
	return writeJSON(os.Stdout, v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseDuration parses a human-friendly duration string like "30m", "2h", "1d", "1w".
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("invalid duration: empty string")
	}

	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]

	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	switch suffix {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	default:
		return 0, fmt.Errorf("invalid duration: %q (use m, h, d, or w suffix)", s)
	}
}

// formatDurationHuman formats a duration into a human-readable string like "2 hours".
func formatDurationHuman(d time.Duration) string {
	days := int(d.Hours() / 24)
	if days > 0 {
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	hours := int(d.Hours())
	if hours > 0 {
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	minutes := int(d.Minutes())
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

// formatPause renders a globalPauseUntil value.
func formatPause(until int64, now time.Time) string {
	switch {
	case until == state.PauseUntilRestart:
		return "paused until restart"
	case until > now.UnixMilli():
		return "paused until " + time.UnixMilli(until).Local().Format("2006-01-02 15:04")
	default:
		return "active"
	}
}

// formatBytes formats a byte count into a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
