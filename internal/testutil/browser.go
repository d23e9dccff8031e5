package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/runnerr0/tabtidy/internal/tabs"
)

// FakeBrowser is an in-memory tabs.Browser. Navigate marks the tab loaded
// immediately and emits the matching update events.
type FakeBrowser struct {
	mu        sync.Mutex
	tabs      map[tabs.TabID]tabs.Tab
	events    chan tabs.Event
	navigated []Navigation
	discarded []tabs.TabID
	unsaved   map[tabs.TabID]bool
	failNav   map[tabs.TabID]error
	holdLoads bool
	closed    bool
}

// Navigation records one Navigate call.
type Navigation struct {
	TabID tabs.TabID
	URL   string
}

var (
	_ tabs.Browser       = (*FakeBrowser)(nil)
	_ tabs.FormInspector = (*FakeBrowser)(nil)
)

// NewFakeBrowser creates a browser holding the given tabs. Tabs without a
// status are treated as loaded.
func NewFakeBrowser(open ...tabs.Tab) *FakeBrowser {
	b := &FakeBrowser{
		tabs:    make(map[tabs.TabID]tabs.Tab),
		events:  make(chan tabs.Event, 1024),
		unsaved: make(map[tabs.TabID]bool),
		failNav: make(map[tabs.TabID]error),
	}
	for _, t := range open {
		if t.Status == "" {
			t.Status = tabs.StatusComplete
		}
		b.tabs[t.ID] = t
	}
	return b
}

func (b *FakeBrowser) Tabs(ctx context.Context) ([]tabs.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]tabs.Tab, 0, len(b.tabs))
	for _, t := range b.tabs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *FakeBrowser) Tab(ctx context.Context, id tabs.TabID) (tabs.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tabs[id]
	if !ok {
		return tabs.Tab{}, tabs.ErrTabNotFound
	}
	return t, nil
}

func (b *FakeBrowser) Navigate(ctx context.Context, id tabs.TabID, url string) error {
	b.mu.Lock()
	if err := b.failNav[id]; err != nil {
		b.mu.Unlock()
		return err
	}
	t, ok := b.tabs[id]
	if !ok {
		b.mu.Unlock()
		return tabs.ErrTabNotFound
	}
	t.URL = url
	t.Discarded = false
	t.Status = tabs.StatusLoading
	b.tabs[id] = t
	b.navigated = append(b.navigated, Navigation{TabID: id, URL: url})
	hold := b.holdLoads
	b.mu.Unlock()

	b.emit(tabs.Event{Kind: tabs.EventUpdated, TabID: id, Tab: t, URLChanged: true})
	if !hold {
		b.CompleteLoad(id)
	}
	return nil
}

func (b *FakeBrowser) Discard(ctx context.Context, id tabs.TabID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tabs[id]
	if !ok {
		return tabs.ErrTabNotFound
	}
	t.Discarded = true
	b.tabs[id] = t
	b.discarded = append(b.discarded, id)
	return nil
}

func (b *FakeBrowser) Events() <-chan tabs.Event { return b.events }

func (b *FakeBrowser) HasUnsavedForms(ctx context.Context, id tabs.TabID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.tabs[id]; !ok {
		return false, tabs.ErrTabNotFound
	}
	return b.unsaved[id], nil
}

// --- Test controls ---

// HoldLoads stops Navigate from reporting load completion; call
// CompleteLoad to report it by hand.
func (b *FakeBrowser) HoldLoads(hold bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdLoads = hold
}

// FailNavigate makes every Navigate of id return err. A nil err clears it.
func (b *FakeBrowser) FailNavigate(id tabs.TabID, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failNav, id)
		return
	}
	b.failNav[id] = err
}

// CompleteLoad marks the tab loaded and emits the completion event.
func (b *FakeBrowser) CompleteLoad(id tabs.TabID) {
	b.mu.Lock()
	t, ok := b.tabs[id]
	if ok {
		t.Status = tabs.StatusComplete
		b.tabs[id] = t
	}
	b.mu.Unlock()
	if ok {
		b.emit(tabs.Event{Kind: tabs.EventUpdated, TabID: id, Tab: t, StatusComplete: true})
	}
}

// Open adds a tab and emits EventCreated.
func (b *FakeBrowser) Open(t tabs.Tab) {
	if t.Status == "" {
		t.Status = tabs.StatusComplete
	}
	b.mu.Lock()
	b.tabs[t.ID] = t
	b.mu.Unlock()
	b.emit(tabs.Event{Kind: tabs.EventCreated, TabID: t.ID, Tab: t})
}

// Close removes a tab and emits EventRemoved.
func (b *FakeBrowser) Close(id tabs.TabID) {
	b.mu.Lock()
	delete(b.tabs, id)
	b.mu.Unlock()
	b.emit(tabs.Event{Kind: tabs.EventRemoved, TabID: id})
}

// Activate makes id the only active tab and emits EventActivated.
func (b *FakeBrowser) Activate(id tabs.TabID) {
	b.mu.Lock()
	var active tabs.Tab
	for tid, t := range b.tabs {
		t.Active = tid == id
		b.tabs[tid] = t
		if tid == id {
			active = t
		}
	}
	b.mu.Unlock()
	b.emit(tabs.Event{Kind: tabs.EventActivated, TabID: id, Tab: active})
}

// SetURL changes a tab's URL as if the user typed it, emitting an update.
func (b *FakeBrowser) SetURL(id tabs.TabID, url string) {
	b.mu.Lock()
	t := b.tabs[id]
	t.URL = url
	b.tabs[id] = t
	b.mu.Unlock()
	b.emit(tabs.Event{Kind: tabs.EventUpdated, TabID: id, Tab: t, URLChanged: true})
}

// Mutate edits a tab in place without emitting anything.
func (b *FakeBrowser) Mutate(id tabs.TabID, fn func(*tabs.Tab)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.tabs[id]
	fn(&t)
	b.tabs[id] = t
}

// SetUnsavedForms marks a tab as holding unsubmitted form input.
func (b *FakeBrowser) SetUnsavedForms(id tabs.TabID, unsaved bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsaved[id] = unsaved
}

// Get returns the current state of a tab.
func (b *FakeBrowser) Get(id tabs.TabID) tabs.Tab {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tabs[id]
}

// Navigations returns a copy of every Navigate call so far.
func (b *FakeBrowser) Navigations() []Navigation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Navigation(nil), b.navigated...)
}

// Discarded returns the ids passed to Discard so far.
func (b *FakeBrowser) Discarded() []tabs.TabID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]tabs.TabID(nil), b.discarded...)
}

// DrainEvents removes and returns every queued event.
func (b *FakeBrowser) DrainEvents() []tabs.Event {
	var out []tabs.Event
	for {
		select {
		case ev := <-b.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// Disconnect closes the event stream as if the browser exited. Later
// events are dropped.
func (b *FakeBrowser) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
}

func (b *FakeBrowser) emit(ev tabs.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.events <- ev:
	default:
	}
}
