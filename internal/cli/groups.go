package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/runnerr0/tabtidy/internal/state"
	"github.com/runnerr0/tabtidy/internal/suspender"
)

// Execute implements the go-flags Commander interface for GroupsListCommand.
func (c *GroupsListCommand) Execute(args []string) error {
	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWithEnv(context.Background(), e)
}

func (c *GroupsListCommand) executeWithEnv(ctx context.Context, e *env) error {
	groups, err := e.state.CustomGroups(ctx)
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		if groups == nil {
			groups = []state.CustomGroup{}
		}
		return printJSON(groups)
	}
	if len(groups) == 0 {
		fmt.Println("No custom groups.")
		return nil
	}
	for _, g := range groups {
		fmt.Printf("%-20s %s\n", g.Name, strings.Join(g.Patterns, ", "))
	}
	return nil
}

// Execute implements the go-flags Commander interface for GroupsAddCommand.
func (c *GroupsAddCommand) Execute(args []string) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("--name is required")
	}
	if len(c.Patterns) == 0 {
		return fmt.Errorf("at least one --pattern is required")
	}

	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWithEnv(context.Background(), e)
}

func (c *GroupsAddCommand) executeWithEnv(ctx context.Context, e *env) error {
	name := strings.TrimSpace(c.Name)

	patterns := make([]string, 0, len(c.Patterns))
	for _, raw := range c.Patterns {
		p, ok := suspender.NormalizeGroupPattern(raw)
		if !ok {
			return fmt.Errorf("invalid --pattern %q", raw)
		}
		patterns = append(patterns, p)
	}
	group := state.CustomGroup{Name: name, Patterns: patterns}

	replaced := false
	err := e.state.UpdateCustomGroups(ctx, func(groups []state.CustomGroup) ([]state.CustomGroup, error) {
		replaced = false
		for i, g := range groups {
			if g.Name == name {
				groups[i] = group
				replaced = true
				return groups, nil
			}
		}
		return append(groups, group), nil
	})
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]any{"group": group, "replaced": replaced})
	}
	verb := "Added"
	if replaced {
		verb = "Updated"
	}
	fmt.Printf("%s group %q: %s\n", verb, name, strings.Join(patterns, ", "))
	return nil
}

// Execute implements the go-flags Commander interface for GroupsRemoveCommand.
func (c *GroupsRemoveCommand) Execute(args []string) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("--name is required")
	}

	e, err := openEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.Close()

	return c.executeWithEnv(context.Background(), e)
}

func (c *GroupsRemoveCommand) executeWithEnv(ctx context.Context, e *env) error {
	name := strings.TrimSpace(c.Name)

	removed := false
	err := e.state.UpdateCustomGroups(ctx, func(groups []state.CustomGroup) ([]state.CustomGroup, error) {
		removed = false
		out := groups[:0]
		for _, g := range groups {
			if g.Name == name {
				removed = true
				continue
			}
			out = append(out, g)
		}
		return out, nil
	})
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no custom group named %q", name)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]any{"removed": name})
	}
	fmt.Printf("Removed group %q\n", name)
	return nil
}
