package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/runnerr0/tabtidy/internal/server"
	"github.com/runnerr0/tabtidy/internal/tabs"
)

// Execute implements the go-flags Commander interface for PinCommand.
func (c *PinCommand) Execute(args []string) error {
	if c.ID <= 0 {
		return fmt.Errorf("--id is required")
	}

	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWithEnv(context.Background(), e)
}

func (c *PinCommand) executeWithEnv(ctx context.Context, e *env) error {
	id := tabs.TabID(c.ID)
	pinned := !c.Off

	err := e.daemon.SetPinned(ctx, id, pinned)
	if errors.Is(err, server.ErrDaemonUnreachable) {
		// Picked up by the next pass once the daemon is back.
		err = e.state.SetPinned(ctx, id, pinned)
	}
	if err != nil {
		return fmt.Errorf("pin tab %d: %w", c.ID, err)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]any{"tabId": c.ID, "pinned": pinned})
	}
	if pinned {
		fmt.Printf("Tab %d will not be suspended.\n", c.ID)
	} else {
		fmt.Printf("Tab %d can be suspended again.\n", c.ID)
	}
	return nil
}
