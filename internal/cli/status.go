package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/runnerr0/tabtidy/internal/suspender"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version           string            `json:"version"`
	DatabasePath      string            `json:"database_path"`
	DatabaseSizeBytes int64             `json:"database_size_bytes"`
	SchemaVersion     int               `json:"schema_version"`
	Keys              int64             `json:"keys"`
	TabTargets        int64             `json:"tab_targets"`
	LastWrite         string            `json:"last_write,omitempty"`
	DaemonRunning     bool              `json:"daemon_running"`
	Daemon            *suspender.Status `json:"daemon,omitempty"`
	DelayMinutes      int               `json:"delay_minutes"`
	GlobalPauseUntil  int64             `json:"global_pause_until"`
	Whitelist         int               `json:"whitelist"`
	Suspended         int               `json:"suspended"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWithEnv(context.Background(), e)
}

// executeWithEnv runs status against a provided environment (for testing).
func (c *StatusCommand) executeWithEnv(ctx context.Context, e *env) error {
	stats, err := e.db.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	set, err := e.state.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	suspended, err := e.state.LoadSuspended(ctx)
	if err != nil {
		return fmt.Errorf("load suspended tabs: %w", err)
	}

	out := statusJSON{
		Version:           c.version,
		DatabasePath:      e.dbPath,
		DatabaseSizeBytes: stats.DatabaseSizeBytes,
		SchemaVersion:     stats.SchemaVersion,
		Keys:              stats.Keys,
		TabTargets:        stats.TabTargets,
		DelayMinutes:      set.AutoSuspendDelay,
		GlobalPauseUntil:  set.GlobalPauseUntil,
		Whitelist:         len(set.Whitelist),
		Suspended:         len(suspended),
	}
	if !stats.LastWrite.IsZero() {
		out.LastWrite = stats.LastWrite.UTC().Format(time.RFC3339)
	}

	if st, err := e.daemon.Status(ctx); err == nil {
		out.DaemonRunning = true
		out.Daemon = &st
		out.Suspended = st.Suspended
	} else {
		e.logger.Debug("status: daemon not reachable", "error", err)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(out)
	}
	c.printStatusHuman(out, set.DebugMode)
	return nil
}

func (c *StatusCommand) printStatusHuman(out statusJSON, debug bool) {
	now := time.Now()

	fmt.Println("TabTidy Status")
	fmt.Println("==============")
	fmt.Printf("Version:       %s\n", out.Version)
	fmt.Printf("Database:      %s (%s, schema v%d)\n", out.DatabasePath, formatBytes(out.DatabaseSizeBytes), out.SchemaVersion)
	if out.DelayMinutes > 0 {
		fmt.Printf("Auto-suspend:  after %s idle (%s)\n", formatDurationHuman(time.Duration(out.DelayMinutes)*time.Minute), formatPause(out.GlobalPauseUntil, now))
	} else {
		fmt.Println("Auto-suspend:  disabled")
	}
	fmt.Printf("Whitelist:     %d entries\n", out.Whitelist)
	fmt.Printf("Suspended:     %d tabs\n", out.Suspended)
	fmt.Printf("Debug mode:    %s\n", onOff(debug))

	fmt.Println()
	if out.Daemon == nil {
		fmt.Println("Daemon:        not running")
		return
	}
	fmt.Println("Daemon:        running")
	fmt.Printf("Tracked tabs:  %d\n", out.Daemon.Tracked)
	fmt.Printf("Paused tabs:   %d\n", out.Daemon.PausedTabs)
	fmt.Printf("Discards:      %d pending\n", out.Daemon.PendingDiscards)
	if p := out.Daemon.LastPass; p != nil {
		fmt.Printf("Last pass:     %s, %d checked, %d suspended, %d errors\n",
			p.At.Local().Format("15:04:05"), p.Checked, p.Suspended, p.Errors)
	}
}
