// Package state is the typed schema of everything TabTidy persists in the
// key-value store. Loaders treat malformed values as absent.
package state

// Durable keys. Values are JSON.
const (
	KeyTabActivity      = "tabActivity"
	KeySuspendedTabs    = "suspendedTabs"
	KeyWhitelist        = "whitelist"
	KeyCustomGroups     = "customGroups"
	KeyAutoSuspendDelay = "autoSuspendDelay"
	KeyGroupOnSuspend   = "groupOnSuspend"
	KeyGroupingStrategy = "groupingStrategy"
	KeyGlobalPauseUntil = "globalPauseUntil"
	KeyDebugMode        = "debugMode"
	KeySessionCounter   = "sessionCounter"
	KeyPausedTabs       = "pausedTabs"
	KeyTabGroups        = "tabGroups"
	KeyPinnedTabs       = "pinnedTabs"
)

// Grouping strategies.
const (
	StrategySession = "session"
	StrategyDomain  = "domain"
)

// PauseUntilRestart is the globalPauseUntil sentinel for a pause that lasts
// until the daemon next starts.
const PauseUntilRestart int64 = -1
