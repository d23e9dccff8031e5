package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Run       *RunCommand
	Status    *StatusCommand
	List      *ListCommand
	Tidy      *TidyCommand
	Restore   *RestoreCommand
	Pin       *PinCommand
	Pause     *PauseCommand
	Resume    *ResumeCommand
	Settings  *SettingsCommand
	Purge     *PurgeCommand
	WLAdd     *WhitelistAddCommand
	WLRemove  *WhitelistRemoveCommand
	WLList    *WhitelistListCommand
	WLImport  *WhitelistImportCommand
	WLExport  *WhitelistExportCommand
	GrpList   *GroupsListCommand
	GrpAdd    *GroupsAddCommand
	GrpRemove *GroupsRemoveCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "tabtidy"
	parser.LongDescription = "Parks idle browser tabs on a lightweight placeholder page and restores them on demand."

	cmds := &commands{
		Run:       &RunCommand{globals: &globals, version: version},
		Status:    &StatusCommand{globals: &globals, version: version},
		List:      &ListCommand{globals: &globals},
		Tidy:      &TidyCommand{globals: &globals},
		Restore:   &RestoreCommand{globals: &globals},
		Pin:       &PinCommand{globals: &globals},
		Pause:     &PauseCommand{globals: &globals},
		Resume:    &ResumeCommand{globals: &globals},
		Settings:  &SettingsCommand{globals: &globals},
		Purge:     &PurgeCommand{globals: &globals},
		WLAdd:     &WhitelistAddCommand{globals: &globals},
		WLRemove:  &WhitelistRemoveCommand{globals: &globals},
		WLList:    &WhitelistListCommand{globals: &globals},
		WLImport:  &WhitelistImportCommand{globals: &globals},
		WLExport:  &WhitelistExportCommand{globals: &globals},
		GrpList:   &GroupsListCommand{globals: &globals},
		GrpAdd:    &GroupsAddCommand{globals: &globals},
		GrpRemove: &GroupsRemoveCommand{globals: &globals},
	}

	parser.AddCommand("run", "Start the TabTidy daemon", "Attach to the browser, serve the placeholder page and run the auto-suspend loop.", cmds.Run)
	parser.AddCommand("status", "Show settings and daemon state", "Show settings, daemon state and database statistics.", cmds.Status)
	parser.AddCommand("list", "List suspended tabs", "List tabs currently parked on the placeholder page.", cmds.List)
	parser.AddCommand("tidy", "Group and suspend idle tabs", "Group open tabs and suspend those idle longer than the tidy threshold.", cmds.Tidy)
	parser.AddCommand("restore", "Restore a suspended tab", "Navigate a suspended tab back to its original page.", cmds.Restore)
	parser.AddCommand("pin", "Exempt a tab from suspension", "Exempt a tab from auto-suspend and tidy, or lift the exemption with --off.", cmds.Pin)
	parser.AddCommand("pause", "Pause auto-suspend", "Pause auto-suspend for every tab or, with --tab, for a single tab.", cmds.Pause)
	parser.AddCommand("resume", "Resume auto-suspend", "Lift the global pause, a single tab's pause, or every per-tab pause.", cmds.Resume)
	parser.AddCommand("settings", "Show or change settings", "Show settings, or change the ones given as flags.", cmds.Settings)
	parser.AddCommand("purge", "Delete ALL TabTidy data", "Delete ALL TabTidy data. Destructive operation with safety prompt.", cmds.Purge)

	wl, _ := parser.AddCommand("whitelist", "Manage the whitelist", "Manage sites that are never auto-suspended.", &WhitelistCommand{})
	wl.AddCommand("add", "Add a domain or URL", "Add a domain (example.com) or a full URL to the whitelist.", cmds.WLAdd)
	wl.AddCommand("remove", "Remove an entry", "Remove an entry from the whitelist.", cmds.WLRemove)
	wl.AddCommand("list", "List entries", "List whitelist entries.", cmds.WLList)
	wl.AddCommand("import", "Import entries from JSON", "Import a JSON array or an exported whitelist document.", cmds.WLImport)
	wl.AddCommand("export", "Export entries as JSON", "Export the whitelist as a JSON document.", cmds.WLExport)

	grp, _ := parser.AddCommand("groups", "Manage custom groups", "Manage the custom groups tidy places matching tabs in.", &GroupsCommand{})
	grp.AddCommand("list", "List custom groups", "List custom groups and their host patterns.", cmds.GrpList)
	grp.AddCommand("add", "Add or replace a custom group", "Add a custom group, or replace the patterns of an existing one.", cmds.GrpAdd)
	grp.AddCommand("remove", "Remove a custom group", "Remove a custom group by name.", cmds.GrpRemove)

	return parser, &globals, cmds
}

// Run is the main entry point for the TabTidy CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// Handle --version before parser (go-flags requires a subcommand, but
	// --version is valid without one).
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("tabtidy %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
