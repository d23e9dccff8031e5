package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/runnerr0/tabtidy/internal/suspender"
)

// Execute implements the go-flags Commander interface for TidyCommand.
func (c *TidyCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWithEnv(context.Background(), e)
}

func (c *TidyCommand) executeWithEnv(ctx context.Context, e *env) error {
	res, err := e.daemon.Tidy(ctx)
	if err != nil {
		return fmt.Errorf("tidy: %w", requireDaemon(err))
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(res)
	}

	if len(res.Groups) == 0 {
		fmt.Println("No tabs to group.")
	}
	for _, g := range res.Groups {
		fmt.Printf("Grouped %d tabs in %q (%s)\n", len(g.Tabs), g.Name, g.Color)
	}
	fmt.Printf("Suspended %d tabs.\n", len(res.Suspended))

	if len(res.Skipped) > 0 {
		reasons := make([]string, 0, len(res.Skipped))
		for r := range res.Skipped {
			reasons = append(reasons, string(r))
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Printf("  skipped %-14s %d\n", r+":", res.Skipped[suspender.Reason(r)])
		}
	}
	return nil
}
