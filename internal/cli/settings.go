package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/runnerr0/tabtidy/internal/state"
)

type settingsJSON struct {
	AutoSuspendDelay int    `json:"autoSuspendDelay"`
	GlobalPauseUntil int64  `json:"globalPauseUntil"`
	GroupOnSuspend   bool   `json:"groupOnSuspend"`
	GroupingStrategy string `json:"groupingStrategy"`
	DebugMode        bool   `json:"debugMode"`
	Whitelist        int    `json:"whitelist"`
	CustomGroups     int    `json:"customGroups"`
	PausedTabs       int    `json:"pausedTabs"`
	PinnedTabs       int    `json:"pinnedTabs"`
}

// Execute implements the go-flags Commander interface for SettingsCommand.
func (c *SettingsCommand) Execute(args []string) error {
	if c.Delay != nil && *c.Delay < 0 {
		return fmt.Errorf("--delay must not be negative")
	}

	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWithEnv(context.Background(), e)
}

func (c *SettingsCommand) executeWithEnv(ctx context.Context, e *env) error {
	if err := c.apply(ctx, e.state); err != nil {
		return err
	}

	set, err := e.state.LoadSettings(ctx)
	if err != nil {
		return err
	}
	out := settingsJSON{
		AutoSuspendDelay: set.AutoSuspendDelay,
		GlobalPauseUntil: set.GlobalPauseUntil,
		GroupOnSuspend:   set.GroupOnSuspend,
		GroupingStrategy: set.GroupingStrategy,
		DebugMode:        set.DebugMode,
		Whitelist:        len(set.Whitelist),
		CustomGroups:     len(set.CustomGroups),
		PausedTabs:       len(set.PausedTabs),
		PinnedTabs:       len(set.PinnedTabs),
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(out)
	}

	delay := "disabled"
	if out.AutoSuspendDelay > 0 {
		delay = formatDurationHuman(time.Duration(out.AutoSuspendDelay) * time.Minute)
	}
	fmt.Printf("Auto-suspend delay:  %s\n", delay)
	fmt.Printf("Pause:               %s\n", formatPause(out.GlobalPauseUntil, time.Now()))
	fmt.Printf("Grouping strategy:   %s\n", out.GroupingStrategy)
	fmt.Printf("Group on suspend:    %s\n", onOff(out.GroupOnSuspend))
	fmt.Printf("Debug mode:          %s\n", onOff(out.DebugMode))
	fmt.Printf("Whitelist:           %d entries\n", out.Whitelist)
	fmt.Printf("Custom groups:       %d\n", out.CustomGroups)
	fmt.Printf("Paused tabs:         %d\n", out.PausedTabs)
	fmt.Printf("Pinned tabs:         %d\n", out.PinnedTabs)
	return nil
}

// apply writes the settings given as flags. Each is its own key so
// concurrent changes to other settings are left alone.
func (c *SettingsCommand) apply(ctx context.Context, st *state.Store) error {
	if c.Delay != nil {
		if err := st.SetAutoSuspendDelay(ctx, *c.Delay); err != nil {
			return fmt.Errorf("set delay: %w", err)
		}
	}
	if c.Strategy != "" {
		if err := st.SetGroupingStrategy(ctx, c.Strategy); err != nil {
			return err
		}
	}
	if c.GroupOnSuspend != "" {
		if err := st.SetGroupOnSuspend(ctx, c.GroupOnSuspend == "on"); err != nil {
			return fmt.Errorf("set group-on-suspend: %w", err)
		}
	}
	if c.Debug != "" {
		if err := st.SetDebugMode(ctx, c.Debug == "on"); err != nil {
			return fmt.Errorf("set debug mode: %w", err)
		}
	}
	return nil
}
