package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/runnerr0/tabtidy/internal/state"
	"github.com/runnerr0/tabtidy/internal/tabs"
)

// Execute implements the go-flags Commander interface for PauseCommand.
func (c *PauseCommand) Execute(args []string) error {
	if err := c.validate(); err != nil {
		return err
	}

	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWithEnv(context.Background(), e, time.Now())
}

func (c *PauseCommand) validate() error {
	modes := 0
	if c.For != "" {
		modes++
	}
	if c.UntilRestart {
		modes++
	}
	if c.Tab > 0 {
		modes++
	}
	if modes != 1 {
		return fmt.Errorf("pause needs exactly one of --for, --until-restart or --tab")
	}
	return nil
}

func (c *PauseCommand) executeWithEnv(ctx context.Context, e *env, now time.Time) error {
	out := map[string]any{}
	var msg string

	switch {
	case c.Tab > 0:
		p, err := state.NewPausedTab(c.Duration, tabs.Tab{ID: tabs.TabID(c.Tab)}, now)
		if err != nil {
			return err
		}
		if err := e.state.PauseTab(ctx, tabs.TabID(c.Tab), p); err != nil {
			return fmt.Errorf("pause tab %d: %w", c.Tab, err)
		}
		out["tabId"] = c.Tab
		out["pausedUntil"] = p.PausedUntil
		if p.PausedUntil == 0 {
			msg = fmt.Sprintf("Tab %d paused until restart.", c.Tab)
		} else {
			msg = fmt.Sprintf("Tab %d paused until %s.", c.Tab, time.UnixMilli(p.PausedUntil).Local().Format("15:04"))
		}

	case c.UntilRestart:
		if err := e.state.PauseUntilRestart(ctx); err != nil {
			return fmt.Errorf("pause: %w", err)
		}
		out["globalPauseUntil"] = state.PauseUntilRestart
		msg = "Auto-suspend paused until the daemon restarts."

	default:
		d, err := parseDuration(c.For)
		if err != nil {
			return err
		}
		until, err := e.state.PauseFor(ctx, now, d)
		if err != nil {
			return fmt.Errorf("pause: %w", err)
		}
		out["globalPauseUntil"] = until
		msg = fmt.Sprintf("Auto-suspend paused for %s.", formatDurationHuman(d))
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(out)
	}
	fmt.Println(msg)
	return nil
}

// Execute implements the go-flags Commander interface for ResumeCommand.
func (c *ResumeCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWithEnv(context.Background(), e)
}

func (c *ResumeCommand) executeWithEnv(ctx context.Context, e *env) error {
	var msg string
	switch {
	case c.AllTabs:
		if err := e.state.UnpauseTab(ctx, 0, true); err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		msg = "Cleared every per-tab pause."
	case c.Tab > 0:
		if err := e.state.UnpauseTab(ctx, tabs.TabID(c.Tab), false); err != nil {
			return fmt.Errorf("resume tab %d: %w", c.Tab, err)
		}
		msg = fmt.Sprintf("Tab %d can be suspended again.", c.Tab)
	default:
		if err := e.state.Resume(ctx); err != nil {
			return fmt.Errorf("resume: %w", err)
		}
		msg = "Auto-suspend resumed."
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]any{"resumed": true, "message": msg})
	}
	fmt.Println(msg)
	return nil
}
