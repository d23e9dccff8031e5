package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/runnerr0/tabtidy/internal/suspender"
	"github.com/runnerr0/tabtidy/internal/whitelist"
)

// Execute implements the go-flags Commander interface for ListCommand.
func (c *ListCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWithEnv(context.Background(), e)
}

func (c *ListCommand) executeWithEnv(ctx context.Context, e *env) error {
	if c.Limit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}

	entries, err := e.daemon.Suspended(ctx)
	if err != nil {
		// The stored index is what the daemon would serve after its next
		// bootstrap.
		e.logger.Debug("list: daemon not reachable, reading database", "error", err)
		if entries, err = storedEntries(ctx, e); err != nil {
			return err
		}
	}

	entries, err = c.filter(entries)
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		if entries == nil {
			entries = []suspender.SuspendedEntry{}
		}
		return printJSON(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No suspended tabs.")
		return nil
	}
	for _, en := range entries {
		title := en.Title
		if title == "" {
			title = en.OriginalURL
		}
		fmt.Printf("%-6d %s\n", en.TabID, title)
		fmt.Printf("       %s\n", en.OriginalURL)
		line := "       suspended " + time.UnixMilli(en.SuspendedAt).Local().Format("2006-01-02 15:04")
		if en.Group != "" {
			line += " in " + en.Group
		}
		fmt.Println(line)
	}
	return nil
}

func (c *ListCommand) filter(entries []suspender.SuspendedEntry) ([]suspender.SuspendedEntry, error) {
	var domains []string
	for _, d := range c.Domain {
		n, ok := whitelist.NormalizeDomain(d)
		if !ok {
			return nil, fmt.Errorf("invalid --domain %q", d)
		}
		domains = append(domains, n)
	}

	out := entries[:0:0]
	for _, en := range entries {
		if len(domains) > 0 && !whitelist.Matches(domains, en.OriginalURL) {
			continue
		}
		out = append(out, en)
		if c.Limit > 0 && len(out) == c.Limit {
			break
		}
	}
	return out, nil
}

// storedEntries builds the listing from the database alone.
func storedEntries(ctx context.Context, e *env) ([]suspender.SuspendedEntry, error) {
	records, err := e.state.LoadSuspended(ctx)
	if err != nil {
		return nil, fmt.Errorf("load suspended tabs: %w", err)
	}
	groups, err := e.state.TabGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tab groups: %w", err)
	}

	out := make([]suspender.SuspendedEntry, 0, len(records))
	for id, rec := range records {
		out = append(out, suspender.SuspendedEntry{TabID: id, SuspendedTab: rec, Group: groups[id].Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TabID < out[j].TabID })
	return out, nil
}
