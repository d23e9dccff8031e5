// Package tabs defines the browser-facing contract the suspender drives:
// tab snapshots, lifecycle events, and the Browser interface.
package tabs

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrTabNotFound is returned when a tab closed between being listed and
// being acted on.
var ErrTabNotFound = errors.New("tab not found")

// TabID identifies a tab for as long as the browser keeps it open.
type TabID int

func (id TabID) String() string { return strconv.Itoa(int(id)) }

// ParseTabID parses the decimal form used as a map key in persisted records.
func ParseTabID(s string) (TabID, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return TabID(n), nil
}

// Status is the load state of a tab.
type Status string

const (
	StatusLoading  Status = "loading"
	StatusComplete Status = "complete"
	StatusUnloaded Status = "unloaded"
)

// Tab is a point-in-time snapshot of one open tab. Snapshots go stale at
// every suspension point; callers re-fetch with Browser.Tab before acting.
type Tab struct {
	ID           TabID     `json:"id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	FaviconURL   string    `json:"faviconUrl,omitempty"`
	Pinned       bool      `json:"pinned"`
	Audible      bool      `json:"audible"`
	Active       bool      `json:"active"`
	Discarded    bool      `json:"discarded"`
	Status       Status    `json:"status"`
	LastAccessed time.Time `json:"lastAccessed,omitempty"`
}

// Browser is the set of tab operations the suspender needs.
type Browser interface {
	// Tabs lists every open tab.
	Tabs(ctx context.Context) ([]Tab, error)
	// Tab re-fetches a single tab. Returns ErrTabNotFound if it closed.
	Tab(ctx context.Context, id TabID) (Tab, error)
	// Navigate points the tab at url. Completion is reported through an
	// EventUpdated with StatusComplete set.
	Navigate(ctx context.Context, id TabID, url string) error
	// Discard frees the tab's page memory while keeping the tab open.
	Discard(ctx context.Context, id TabID) error
	// Events delivers tab lifecycle notifications in per-tab order.
	Events() <-chan Event
}

// FormInspector is implemented by browsers that can look inside a page for
// form input the user has not submitted yet.
type FormInspector interface {
	HasUnsavedForms(ctx context.Context, id TabID) (bool, error)
}
