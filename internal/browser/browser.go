package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/runnerr0/tabtidy/internal/storage"
	"github.com/runnerr0/tabtidy/internal/tabs"
)

// Options tunes a Browser.
type Options struct {
	// ActivePoll is how often page visibility is sampled. Zero disables
	// tab-switch detection.
	ActivePoll time.Duration
	// ProbeTimeout bounds each script evaluation in a page.
	ProbeTimeout time.Duration
	// LoadTimeout bounds the wait for a navigation to finish loading.
	LoadTimeout time.Duration
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		ActivePoll:   time.Second,
		ProbeTimeout: 2 * time.Second,
		LoadTimeout:  30 * time.Second,
	}
}

type target struct {
	id        tabs.TabID
	url       string
	title     string
	page      *rod.Page
	discarded bool
	loading   bool
	visible   bool
}

// Browser exposes the page targets of a Chromium instance as tabs. Tab
// ids come from a persistent mapping so they survive a daemon restart
// against the same browser.
type Browser struct {
	rod    *rod.Browser
	ids    storage.TargetMapper
	opts   Options
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	sendMu sync.RWMutex
	events chan tabs.Event
	closed bool

	mu      sync.Mutex
	targets map[proto.TargetTargetID]*target
	byTab   map[tabs.TabID]proto.TargetTargetID

	wg sync.WaitGroup
}

var (
	_ tabs.Browser       = (*Browser)(nil)
	_ tabs.FormInspector = (*Browser)(nil)
)

// New syncs with the browser's open pages and starts following target
// events until ctx ends or the connection drops, after which Events is
// closed.
func New(ctx context.Context, rb *rod.Browser, ids storage.TargetMapper, opts Options, logger *slog.Logger) (*Browser, error) {
	ctx, cancel := context.WithCancel(ctx)
	b := &Browser{
		rod:     rb,
		ids:     ids,
		opts:    opts,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan tabs.Event, 256),
		targets: make(map[proto.TargetTargetID]*target),
		byTab:   make(map[tabs.TabID]proto.TargetTargetID),
	}

	infos, err := b.pageInfos(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	live := make([]string, 0, len(infos))
	for _, info := range infos {
		if _, err := b.track(ctx, info); err != nil {
			cancel()
			return nil, err
		}
		live = append(live, string(info.TargetID))
	}
	if n, err := ids.PruneTargets(ctx, live); err != nil {
		logger.Warn("browser: pruning target ids failed", "error", err)
	} else if n > 0 {
		logger.Debug("browser: pruned target ids", "removed", n)
	}

	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(rb); err != nil {
		cancel()
		return nil, fmt.Errorf("browser: discover targets: %w", err)
	}

	b.wg.Add(1)
	go b.listen(ctx)
	if opts.ActivePoll > 0 {
		b.wg.Add(1)
		go b.pollActive(ctx)
	}
	go func() {
		b.wg.Wait()
		b.closeEvents()
	}()

	logger.Info("browser: attached", "tabs", len(infos))
	return b, nil
}

func (b *Browser) Events() <-chan tabs.Event { return b.events }

// Tabs lists every open page with its live state.
func (b *Browser) Tabs(ctx context.Context) ([]tabs.Tab, error) {
	infos, err := b.pageInfos(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]tabs.Tab, 0, len(infos))
	for _, info := range infos {
		t, err := b.track(ctx, info)
		if err != nil {
			return nil, err
		}
		out = append(out, b.probe(ctx, t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *Browser) Tab(ctx context.Context, id tabs.TabID) (tabs.Tab, error) {
	tid, err := b.targetID(ctx, id)
	if err != nil {
		return tabs.Tab{}, err
	}
	res, err := proto.TargetGetTargetInfo{TargetID: tid}.Call(b.rod)
	if err != nil {
		b.forget(tid)
		return tabs.Tab{}, tabs.ErrTabNotFound
	}
	t, err := b.track(ctx, res.TargetInfo)
	if err != nil {
		return tabs.Tab{}, err
	}
	return b.probe(ctx, t), nil
}

func (b *Browser) Navigate(ctx context.Context, id tabs.TabID, url string) error {
	t, page, err := b.page(ctx, id)
	if err != nil {
		return err
	}

	b.mu.Lock()
	wasDiscarded := t.discarded
	t.discarded = false
	t.loading = true
	b.mu.Unlock()

	if wasDiscarded {
		if err := (proto.PageSetWebLifecycleState{State: proto.PageSetWebLifecycleStateStateActive}).Call(page); err != nil {
			b.logger.Debug("browser: thaw before navigate", "tab", id, "error", err)
		}
	}

	if err := page.Context(ctx).Navigate(url); err != nil {
		b.mu.Lock()
		t.loading = false
		b.mu.Unlock()
		return fmt.Errorf("browser: navigate tab %d: %w", id, err)
	}

	go b.awaitLoad(t, page)
	return nil
}

// Discard freezes the page so its renderer stops running script and can
// release memory. The tab keeps its URL and title.
func (b *Browser) Discard(ctx context.Context, id tabs.TabID) error {
	t, page, err := b.page(ctx, id)
	if err != nil {
		return err
	}
	if err := (proto.PageSetWebLifecycleState{State: proto.PageSetWebLifecycleStateStateFrozen}).Call(page); err != nil {
		return fmt.Errorf("browser: freeze tab %d: %w", id, err)
	}
	b.mu.Lock()
	t.discarded = true
	t.visible = false
	b.mu.Unlock()
	return nil
}

// HasUnsavedForms reports whether any form on the page holds input that
// differs from its initial value.
func (b *Browser) HasUnsavedForms(ctx context.Context, id tabs.TabID) (bool, error) {
	_, page, err := b.page(ctx, id)
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, b.opts.ProbeTimeout)
	defer cancel()
	res, err := page.Context(ctx).Eval(formsJS)
	if err != nil {
		return false, fmt.Errorf("browser: form check tab %d: %w", id, err)
	}
	return res.Value.Bool(), nil
}

// pageInfos lists the page targets.
func (b *Browser) pageInfos(ctx context.Context) ([]*proto.TargetTargetInfo, error) {
	res, err := proto.TargetGetTargets{}.Call(b.rod.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("browser: list targets: %w", err)
	}
	out := make([]*proto.TargetTargetInfo, 0, len(res.TargetInfos))
	for _, info := range res.TargetInfos {
		if isPage(info) {
			out = append(out, info)
		}
	}
	return out, nil
}

func isPage(info *proto.TargetTargetInfo) bool {
	return info != nil && string(info.Type) == "page"
}

// track records info and returns the target, allocating a tab id the first
// time a target is seen.
func (b *Browser) track(ctx context.Context, info *proto.TargetTargetInfo) (*target, error) {
	b.mu.Lock()
	t, ok := b.targets[info.TargetID]
	if ok {
		t.url = info.URL
		t.title = info.Title
		b.mu.Unlock()
		return t, nil
	}
	b.mu.Unlock()

	n, err := b.ids.TabIDForTarget(ctx, string(info.TargetID))
	if err != nil {
		return nil, fmt.Errorf("browser: tab id for target: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.targets[info.TargetID]; ok {
		return t, nil
	}
	t = &target{id: tabs.TabID(n), url: info.URL, title: info.Title}
	b.targets[info.TargetID] = t
	b.byTab[t.id] = info.TargetID
	return t, nil
}

func (b *Browser) forget(tid proto.TargetTargetID) (tabs.TabID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.targets[tid]
	if !ok {
		return 0, false
	}
	delete(b.targets, tid)
	delete(b.byTab, t.id)
	return t.id, true
}

func (b *Browser) targetID(ctx context.Context, id tabs.TabID) (proto.TargetTargetID, error) {
	b.mu.Lock()
	tid, ok := b.byTab[id]
	b.mu.Unlock()
	if ok {
		return tid, nil
	}
	s, err := b.ids.TargetForTab(ctx, int(id))
	if errors.Is(err, storage.ErrNotFound) {
		return "", tabs.ErrTabNotFound
	}
	if err != nil {
		return "", err
	}
	return proto.TargetTargetID(s), nil
}

// page returns the attached page for id, attaching on first use.
func (b *Browser) page(ctx context.Context, id tabs.TabID) (*target, *rod.Page, error) {
	tid, err := b.targetID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	b.mu.Lock()
	t, ok := b.targets[tid]
	if ok && t.page != nil {
		p := t.page
		b.mu.Unlock()
		return t, p, nil
	}
	b.mu.Unlock()
	if !ok {
		return nil, nil, tabs.ErrTabNotFound
	}

	p, err := b.rod.PageFromTarget(tid)
	if err != nil {
		b.forget(tid)
		return nil, nil, tabs.ErrTabNotFound
	}
	b.mu.Lock()
	if t.page == nil {
		t.page = p
	}
	p = t.page
	b.mu.Unlock()
	return t, p, nil
}

// snapshot builds a Tab from cached target state without touching the page.
func (b *Browser) snapshot(t *target) tabs.Tab {
	b.mu.Lock()
	defer b.mu.Unlock()
	tab := tabs.Tab{
		ID:        t.id,
		URL:       t.url,
		Title:     t.title,
		Active:    t.visible,
		Discarded: t.discarded,
		Status:    tabs.StatusComplete,
	}
	if t.loading {
		tab.Status = tabs.StatusLoading
	}
	if t.discarded {
		tab.Status = tabs.StatusUnloaded
	}
	return tab
}

// probe fills in the live page state. Frozen pages cannot run script, so
// they are reported from cache.
func (b *Browser) probe(ctx context.Context, t *target) tabs.Tab {
	tab := b.snapshot(t)
	if tab.Discarded {
		return tab
	}
	_, page, err := b.page(ctx, t.id)
	if err != nil {
		return tab
	}

	ctx, cancel := context.WithTimeout(ctx, b.opts.ProbeTimeout)
	defer cancel()
	res, err := page.Context(ctx).Eval(probeJS)
	if err != nil {
		b.logger.Debug("browser: probe failed", "tab", t.id, "error", err)
		return tab
	}
	p, err := parseProbe(res.Value.Str())
	if err != nil {
		b.logger.Debug("browser: probe failed", "tab", t.id, "error", err)
		return tab
	}
	p.apply(&tab)

	b.mu.Lock()
	t.visible = p.Visible
	b.mu.Unlock()
	return tab
}

func sortIDs(ids []tabs.TabID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
