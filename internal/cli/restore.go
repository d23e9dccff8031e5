package cli

import (
	"context"
	"fmt"

	"github.com/runnerr0/tabtidy/internal/tabs"
)

// Execute implements the go-flags Commander interface for RestoreCommand.
func (c *RestoreCommand) Execute(args []string) error {
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

func (c *RestoreCommand) executeWithEnv(ctx context.Context, e *env) error {
	url, err := e.daemon.Restore(ctx, tabs.TabID(c.ID))
	if err != nil {
		return fmt.Errorf("restore tab %d: %w", c.ID, requireDaemon(err))
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]any{"tabId": c.ID, "url": url})
	}
	fmt.Printf("Restored tab %d to %s\n", c.ID, url)
	return nil
}
