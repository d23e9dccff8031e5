package cli

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// RunCommand starts the daemon: browser connection, placeholder server and
// the reconciliation loop.
type RunCommand struct {
	Port      int    `long:"port" description:"Override server port"`
	LogLevel  string `long:"log-level" description:"Override log level"`
	Headless  bool   `long:"headless" description:"Launch the browser headless"`
	RemoteURL string `long:"remote-url" description:"DevTools WebSocket URL of a running browser"`

	globals *GlobalFlags
	version string
}

// StatusCommand shows settings, daemon state and database statistics.
type StatusCommand struct {
	globals *GlobalFlags
	version string
}

// ListCommand lists suspended tabs.
type ListCommand struct {
	Domain []string `long:"domain" description:"Only tabs whose original host matches (repeatable)"`
	Limit  int      `long:"limit" description:"Maximum results, 0 for all" default:"0"`

	globals *GlobalFlags
}

// TidyCommand groups open tabs and suspends the idle ones.
type TidyCommand struct {
	globals *GlobalFlags
}

// RestoreCommand brings a suspended tab back to its page.
type RestoreCommand struct {
	ID int `long:"id" description:"Tab ID (required)"`

	globals *GlobalFlags
}

// PinCommand exempts a tab from suspension.
type PinCommand struct {
	ID  int  `long:"id" description:"Tab ID (required)"`
	Off bool `long:"off" description:"Lift the exemption instead"`

	globals *GlobalFlags
}

// PauseCommand pauses auto-suspend globally or for a single tab.
type PauseCommand struct {
	For          string `long:"for" description:"Pause every tab for a duration (e.g. 30m, 2h, 1d)"`
	UntilRestart bool   `long:"until-restart" description:"Pause every tab until the daemon restarts"`
	Tab          int    `long:"tab" description:"Pause only this tab"`
	Duration     string `long:"duration" description:"Per-tab pause length" choice:"30min" choice:"1hr" choice:"2hr" choice:"4hr" choice:"session" default:"1hr"`

	globals *GlobalFlags
}

// ResumeCommand lifts a global or per-tab pause.
type ResumeCommand struct {
	Tab     int  `long:"tab" description:"Resume only this tab"`
	AllTabs bool `long:"all-tabs" description:"Clear every per-tab pause"`

	globals *GlobalFlags
}

// WhitelistCommand groups the whitelist subcommands.
type WhitelistCommand struct{}

type WhitelistAddCommand struct {
	globals *GlobalFlags
}

type WhitelistRemoveCommand struct {
	globals *GlobalFlags
}

type WhitelistListCommand struct {
	globals *GlobalFlags
}

type WhitelistImportCommand struct {
	File    string `long:"file" description:"JSON file to import, - for stdin (required)"`
	Replace bool   `long:"replace" description:"Replace the whitelist instead of merging"`

	globals *GlobalFlags
}

type WhitelistExportCommand struct {
	File string `long:"file" description:"Write to this file instead of stdout"`

	globals *GlobalFlags
}

// GroupsCommand groups the custom-group subcommands.
type GroupsCommand struct{}

type GroupsListCommand struct {
	globals *GlobalFlags
}

type GroupsAddCommand struct {
	Name     string   `long:"name" description:"Group name (required)"`
	Patterns []string `long:"pattern" description:"Host pattern, * and ? allowed (repeatable)"`

	globals *GlobalFlags
}

type GroupsRemoveCommand struct {
	Name string `long:"name" description:"Group name (required)"`

	globals *GlobalFlags
}

// SettingsCommand shows or changes user settings.
type SettingsCommand struct {
	Delay          *int   `long:"delay" description:"Auto-suspend delay in minutes, 0 disables"`
	GroupOnSuspend string `long:"group-on-suspend" description:"Group tabs as they are auto-suspended" choice:"on" choice:"off"`
	Strategy       string `long:"strategy" description:"Grouping strategy for tidy" choice:"session" choice:"domain"`
	Debug          string `long:"debug" description:"Verbose daemon logging" choice:"on" choice:"off"`

	globals *GlobalFlags
}

// PurgeCommand deletes all stored state with safety confirmation.
type PurgeCommand struct {
	All   bool `long:"all" description:"Required flag to confirm purge intent"`
	Force bool `long:"force" description:"Skip safety confirmation prompt"`

	globals *GlobalFlags
}
