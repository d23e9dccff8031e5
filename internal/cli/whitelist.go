package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/runnerr0/tabtidy/internal/whitelist"
)

// Execute implements the go-flags Commander interface for WhitelistAddCommand.
func (c *WhitelistAddCommand) Execute(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("whitelist add needs at least one domain or URL")
	}

	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWithEnv(context.Background(), e, args)
}

func (c *WhitelistAddCommand) executeWithEnv(ctx context.Context, e *env, args []string) error {
	var added, existing []string
	err := e.state.UpdateWhitelist(ctx, func(list []string) ([]string, error) {
		added, existing = nil, nil
		for _, raw := range args {
			next, entry, ok, err := whitelist.Add(list, raw)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", raw, err)
			}
			if ok {
				added = append(added, entry)
			} else {
				existing = append(existing, entry)
			}
			list = next
		}
		return list, nil
	})
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]any{"added": nonNil(added), "existing": nonNil(existing)})
	}
	for _, entry := range added {
		fmt.Printf("Added %s\n", entry)
	}
	for _, entry := range existing {
		fmt.Printf("Already whitelisted: %s\n", entry)
	}
	return nil
}

// Execute implements the go-flags Commander interface for WhitelistRemoveCommand.
func (c *WhitelistRemoveCommand) Execute(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("whitelist remove needs at least one entry")
	}

	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWithEnv(context.Background(), e, args)
}

func (c *WhitelistRemoveCommand) executeWithEnv(ctx context.Context, e *env, args []string) error {
	var removed, missing []string
	err := e.state.UpdateWhitelist(ctx, func(list []string) ([]string, error) {
		removed, missing = nil, nil
		for _, item := range args {
			next, ok := whitelist.Remove(list, item)
			if ok {
				removed = append(removed, item)
			} else {
				missing = append(missing, item)
			}
			list = next
		}
		return list, nil
	})
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]any{"removed": nonNil(removed), "missing": nonNil(missing)})
	}
	for _, item := range removed {
		fmt.Printf("Removed %s\n", item)
	}
	for _, item := range missing {
		fmt.Printf("Not in whitelist: %s\n", item)
	}
	return nil
}

// Execute implements the go-flags Commander interface for WhitelistListCommand.
func (c *WhitelistListCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWithEnv(context.Background(), e)
}

func (c *WhitelistListCommand) executeWithEnv(ctx context.Context, e *env) error {
	set, err := e.state.LoadSettings(ctx)
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(nonNil(set.Whitelist))
	}
	if len(set.Whitelist) == 0 {
		fmt.Println("Whitelist is empty.")
		return nil
	}
	for _, entry := range set.Whitelist {
		fmt.Println(entry)
	}
	return nil
}

// Execute implements the go-flags Commander interface for WhitelistImportCommand.
func (c *WhitelistImportCommand) Execute(args []string) error {
	if c.File == "" {
		return fmt.Errorf("--file is required")
	}

	var (
		data []byte
		err  error
	)
	if c.File == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(c.File)
	}
	if err != nil {
		return fmt.Errorf("read import: %w", err)
	}

	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWithEnv(context.Background(), e, data)
}

func (c *WhitelistImportCommand) executeWithEnv(ctx context.Context, e *env, data []byte) error {
	entries, err := whitelist.ParseImport(data)
	if err != nil {
		return err
	}

	var total, added int
	err = e.state.UpdateWhitelist(ctx, func(list []string) ([]string, error) {
		added = 0
		if c.Replace {
			list = nil
		}
		for _, entry := range entries {
			var ok bool
			list, _, ok, _ = whitelist.Add(list, entry)
			if ok {
				added++
			}
		}
		total = len(list)
		return list, nil
	})
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]any{"imported": added, "total": total})
	}
	fmt.Printf("Imported %d entries (%d total).\n", added, total)
	return nil
}

// Execute implements the go-flags Commander interface for WhitelistExportCommand.
func (c *WhitelistExportCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWithEnv(context.Background(), e, time.Now())
}

func (c *WhitelistExportCommand) executeWithEnv(ctx context.Context, e *env, now time.Time) error {
	set, err := e.state.LoadSettings(ctx)
	if err != nil {
		return err
	}
	data, err := whitelist.MarshalExport(set.Whitelist, now)
	if err != nil {
		return err
	}

	if c.File == "" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(c.File, data, 0644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Exported %d entries to %s\n", len(set.Whitelist), c.File)
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

