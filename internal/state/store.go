package state

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"time"

	"github.com/runnerr0/tabtidy/internal/storage"
	"github.com/runnerr0/tabtidy/internal/tabs"
)

// Store reads and writes typed values through a storage.KV.
type Store struct {
	kv     storage.KV
	logger *slog.Logger
}

// New wraps kv. A nil logger discards.
func New(kv storage.KV, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{kv: kv, logger: logger}
}

// KV exposes the underlying store.
func (s *Store) KV() storage.KV { return s.kv }

// load decodes key into dst. A decode failure is logged and reported as
// absent so callers fall back to defaults.
func (s *Store) load(ctx context.Context, key string, dst any) (bool, error) {
	ok, err := s.kv.Get(ctx, key, dst)
	if err != nil {
		if ok {
			s.logger.Warn("state: malformed value, using default", "key", key, "error", err)
			reflect.ValueOf(dst).Elem().SetZero()
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// LoadSettings reads every user setting. Storage errors are returned; any
// individual malformed value just keeps its default.
func (s *Store) LoadSettings(ctx context.Context) (Settings, error) {
	set := DefaultSettings()

	var delay float64
	if ok, err := s.load(ctx, KeyAutoSuspendDelay, &delay); err != nil {
		return set, err
	} else if ok {
		set.AutoSuspendDelay = int(delay)
	}

	if _, err := s.load(ctx, KeyWhitelist, &set.Whitelist); err != nil {
		return set, err
	}

	var pause float64
	if ok, err := s.load(ctx, KeyGlobalPauseUntil, &pause); err != nil {
		return set, err
	} else if ok {
		set.GlobalPauseUntil = int64(pause)
	}

	paused, err := s.PausedTabs(ctx)
	if err != nil {
		return set, err
	}
	set.PausedTabs = paused

	pinned, err := s.PinnedTabs(ctx)
	if err != nil {
		return set, err
	}
	set.PinnedTabs = pinned

	if _, err := s.load(ctx, KeyGroupOnSuspend, &set.GroupOnSuspend); err != nil {
		return set, err
	}

	var strategy string
	if ok, err := s.load(ctx, KeyGroupingStrategy, &strategy); err != nil {
		return set, err
	} else if ok && (strategy == StrategySession || strategy == StrategyDomain) {
		set.GroupingStrategy = strategy
	}

	if _, err := s.load(ctx, KeyCustomGroups, &set.CustomGroups); err != nil {
		return set, err
	}

	if _, err := s.load(ctx, KeyDebugMode, &set.DebugMode); err != nil {
		return set, err
	}

	return set, nil
}

// --- Simple settings ---

func (s *Store) SetAutoSuspendDelay(ctx context.Context, minutes int) error {
	return s.kv.Set(ctx, KeyAutoSuspendDelay, minutes)
}

func (s *Store) SetWhitelist(ctx context.Context, entries []string) error {
	if entries == nil {
		entries = []string{}
	}
	return s.kv.Set(ctx, KeyWhitelist, entries)
}

// UpdateWhitelist applies fn to the stored whitelist atomically.
func (s *Store) UpdateWhitelist(ctx context.Context, fn func([]string) ([]string, error)) error {
	return s.kv.Update(ctx, KeyWhitelist, func(cur []byte) (any, error) {
		var list []string
		if cur != nil {
			if err := json.Unmarshal(cur, &list); err != nil {
				s.logger.Warn("state: malformed whitelist, starting empty", "error", err)
				list = nil
			}
		}
		next, err := fn(list)
		if err != nil {
			return nil, err
		}
		if next == nil {
			next = []string{}
		}
		return next, nil
	})
}

func (s *Store) SetGroupingStrategy(ctx context.Context, strategy string) error {
	if strategy != StrategySession && strategy != StrategyDomain {
		return fmt.Errorf("grouping strategy must be %q or %q, got %q", StrategySession, StrategyDomain, strategy)
	}
	return s.kv.Set(ctx, KeyGroupingStrategy, strategy)
}

func (s *Store) SetGroupOnSuspend(ctx context.Context, on bool) error {
	return s.kv.Set(ctx, KeyGroupOnSuspend, on)
}

func (s *Store) SetDebugMode(ctx context.Context, on bool) error {
	return s.kv.Set(ctx, KeyDebugMode, on)
}

// --- Global pause ---

// PauseFor pauses auto-suspend for every tab until now+d.
func (s *Store) PauseFor(ctx context.Context, now time.Time, d time.Duration) (int64, error) {
	until := now.Add(d).UnixMilli()
	return until, s.kv.Set(ctx, KeyGlobalPauseUntil, until)
}

// PauseUntilRestart pauses auto-suspend until the daemon restarts.
func (s *Store) PauseUntilRestart(ctx context.Context) error {
	return s.kv.Set(ctx, KeyGlobalPauseUntil, PauseUntilRestart)
}

// Resume clears the global pause.
func (s *Store) Resume(ctx context.Context) error {
	return s.kv.Delete(ctx, KeyGlobalPauseUntil)
}

// ClearRestartPauses drops every pause scoped to the previous run: the
// global restart sentinel and per-tab "session" pauses. Returns how many
// per-tab pauses were removed.
func (s *Store) ClearRestartPauses(ctx context.Context) (int, error) {
	var pause float64
	ok, err := s.load(ctx, KeyGlobalPauseUntil, &pause)
	if err != nil {
		return 0, err
	}
	if ok && int64(pause) == PauseUntilRestart {
		if err := s.kv.Delete(ctx, KeyGlobalPauseUntil); err != nil {
			return 0, err
		}
	}

	removed := 0
	err = s.updatePausedTabs(ctx, func(m map[tabs.TabID]PausedTab) error {
		for id, p := range m {
			if p.PausedUntil == 0 {
				delete(m, id)
				removed++
			}
		}
		return nil
	})
	return removed, err
}

// --- Per-tab pause ---

func (s *Store) PausedTabs(ctx context.Context) (map[tabs.TabID]PausedTab, error) {
	m := map[tabs.TabID]PausedTab{}
	if _, err := s.load(ctx, KeyPausedTabs, &m); err != nil {
		return map[tabs.TabID]PausedTab{}, err
	}
	if m == nil {
		m = map[tabs.TabID]PausedTab{}
	}
	return m, nil
}

func (s *Store) PauseTab(ctx context.Context, id tabs.TabID, p PausedTab) error {
	return s.updatePausedTabs(ctx, func(m map[tabs.TabID]PausedTab) error {
		m[id] = p
		return nil
	})
}

// UnpauseTab removes the pause for id, or every pause when all is set.
func (s *Store) UnpauseTab(ctx context.Context, id tabs.TabID, all bool) error {
	return s.updatePausedTabs(ctx, func(m map[tabs.TabID]PausedTab) error {
		if all {
			clear(m)
		} else {
			delete(m, id)
		}
		return nil
	})
}

func (s *Store) updatePausedTabs(ctx context.Context, fn func(map[tabs.TabID]PausedTab) error) error {
	return s.kv.Update(ctx, KeyPausedTabs, func(cur []byte) (any, error) {
		m := map[tabs.TabID]PausedTab{}
		if cur != nil {
			if err := json.Unmarshal(cur, &m); err != nil || m == nil {
				m = map[tabs.TabID]PausedTab{}
			}
		}
		if err := fn(m); err != nil {
			return nil, err
		}
		return m, nil
	})
}

// --- Pinned tabs ---

func (s *Store) PinnedTabs(ctx context.Context) (map[tabs.TabID]bool, error) {
	var ids []tabs.TabID
	if _, err := s.load(ctx, KeyPinnedTabs, &ids); err != nil {
		return map[tabs.TabID]bool{}, err
	}
	m := make(map[tabs.TabID]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m, nil
}

// SetPinned adds or removes id from the pinned set.
func (s *Store) SetPinned(ctx context.Context, id tabs.TabID, pinned bool) error {
	return s.kv.Update(ctx, KeyPinnedTabs, func(cur []byte) (any, error) {
		var ids []tabs.TabID
		if cur != nil {
			if err := json.Unmarshal(cur, &ids); err != nil {
				ids = nil
			}
		}
		out := make([]tabs.TabID, 0, len(ids)+1)
		for _, existing := range ids {
			if existing != id {
				out = append(out, existing)
			}
		}
		if pinned {
			out = append(out, id)
		}
		return out, nil
	})
}

// --- Custom groups ---

func (s *Store) CustomGroups(ctx context.Context) ([]CustomGroup, error) {
	var groups []CustomGroup
	if _, err := s.load(ctx, KeyCustomGroups, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// UpdateCustomGroups applies fn to the stored custom groups atomically.
func (s *Store) UpdateCustomGroups(ctx context.Context, fn func([]CustomGroup) ([]CustomGroup, error)) error {
	return s.kv.Update(ctx, KeyCustomGroups, func(cur []byte) (any, error) {
		var groups []CustomGroup
		if cur != nil {
			if err := json.Unmarshal(cur, &groups); err != nil {
				groups = nil
			}
		}
		next, err := fn(groups)
		if err != nil {
			return nil, err
		}
		if next == nil {
			next = []CustomGroup{}
		}
		return next, nil
	})
}

// --- Session counter ---

// NextSessionNumber returns the current session counter and advances it.
func (s *Store) NextSessionNumber(ctx context.Context) (int, error) {
	var n int
	err := s.kv.Update(ctx, KeySessionCounter, func(cur []byte) (any, error) {
		n = 1
		if cur != nil {
			var stored float64
			if err := json.Unmarshal(cur, &stored); err == nil && stored >= 1 {
				n = int(stored)
			}
		}
		return n + 1, nil
	})
	return n, err
}

// --- Activity / index / groups ---

// LoadActivity returns the persisted activity map, epoch ms per tab.
func (s *Store) LoadActivity(ctx context.Context) (map[tabs.TabID]int64, error) {
	m := map[tabs.TabID]int64{}
	if _, err := s.load(ctx, KeyTabActivity, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[tabs.TabID]int64{}
	}
	return m, nil
}

func (s *Store) SaveActivity(ctx context.Context, m map[tabs.TabID]int64) error {
	return s.kv.Set(ctx, KeyTabActivity, m)
}

// LoadSuspended returns the persisted suspended-tab index.
func (s *Store) LoadSuspended(ctx context.Context) (map[tabs.TabID]SuspendedTab, error) {
	m := map[tabs.TabID]SuspendedTab{}
	if _, err := s.load(ctx, KeySuspendedTabs, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[tabs.TabID]SuspendedTab{}
	}
	return m, nil
}

func (s *Store) SaveSuspended(ctx context.Context, m map[tabs.TabID]SuspendedTab) error {
	return s.kv.Set(ctx, KeySuspendedTabs, m)
}

func (s *Store) TabGroups(ctx context.Context) (map[tabs.TabID]GroupAssignment, error) {
	m := map[tabs.TabID]GroupAssignment{}
	if _, err := s.load(ctx, KeyTabGroups, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[tabs.TabID]GroupAssignment{}
	}
	return m, nil
}

// UpdateTabGroups applies fn to the stored group assignments atomically.
func (s *Store) UpdateTabGroups(ctx context.Context, fn func(map[tabs.TabID]GroupAssignment) error) error {
	return s.kv.Update(ctx, KeyTabGroups, func(cur []byte) (any, error) {
		m := map[tabs.TabID]GroupAssignment{}
		if cur != nil {
			if err := json.Unmarshal(cur, &m); err != nil || m == nil {
				m = map[tabs.TabID]GroupAssignment{}
			}
		}
		if err := fn(m); err != nil {
			return nil, err
		}
		return m, nil
	})
}
