package browser

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/runnerr0/tabtidy/internal/tabs"
)

// listen turns target events into tab events. It returns when ctx ends or
// the connection drops, and takes the rest of the Browser down with it.
func (b *Browser) listen(ctx context.Context) {
	defer b.wg.Done()
	defer b.cancel()

	wait := b.rod.Context(ctx).EachEvent(
		func(e *proto.TargetTargetCreated) {
			if !isPage(e.TargetInfo) {
				return
			}
			t, err := b.track(ctx, e.TargetInfo)
			if err != nil {
				b.logger.Warn("browser: tracking new target failed", "target", e.TargetInfo.TargetID, "error", err)
				return
			}
			b.emit(tabs.Event{Kind: tabs.EventCreated, TabID: t.id, Tab: b.snapshot(t)})
		},
		func(e *proto.TargetTargetDestroyed) {
			if id, ok := b.forget(e.TargetID); ok {
				b.emit(tabs.Event{Kind: tabs.EventRemoved, TabID: id})
			}
		},
		func(e *proto.TargetTargetInfoChanged) {
			if !isPage(e.TargetInfo) {
				return
			}
			b.onInfoChanged(ctx, e.TargetInfo)
		},
	)
	wait()
	b.logger.Debug("browser: event stream ended")
}

// onInfoChanged reports URL changes, and waits for the new document to
// load unless a navigation of ours is already waiting on it.
func (b *Browser) onInfoChanged(ctx context.Context, info *proto.TargetTargetInfo) {
	b.mu.Lock()
	t, ok := b.targets[info.TargetID]
	if !ok {
		b.mu.Unlock()
		if _, err := b.track(ctx, info); err != nil {
			b.logger.Warn("browser: tracking target failed", "target", info.TargetID, "error", err)
		}
		return
	}
	changed := t.url != info.URL
	t.url = info.URL
	t.title = info.Title
	startWait := changed && !t.loading
	if changed {
		t.discarded = false
		t.loading = true
	}
	page := t.page
	b.mu.Unlock()

	if !changed {
		return
	}
	b.emit(tabs.Event{Kind: tabs.EventUpdated, TabID: t.id, Tab: b.snapshot(t), URLChanged: true})

	if startWait {
		if page == nil {
			var err error
			if _, page, err = b.page(ctx, t.id); err != nil {
				return
			}
		}
		go b.awaitLoad(t, page)
	}
}

// awaitLoad reports the load completion of t's current document.
func (b *Browser) awaitLoad(t *target, page *rod.Page) {
	ctx, cancel := context.WithTimeout(b.ctx, b.opts.LoadTimeout)
	defer cancel()
	err := page.Context(ctx).WaitLoad()

	b.mu.Lock()
	t.loading = false
	b.mu.Unlock()

	if err != nil {
		b.logger.Debug("browser: load not observed", "tab", t.id, "error", err)
		return
	}
	b.emit(tabs.Event{Kind: tabs.EventUpdated, TabID: t.id, Tab: b.snapshot(t), StatusComplete: true})
}

// pollActive samples page visibility and reports tabs that came to the
// front since the last sample.
func (b *Browser) pollActive(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.opts.ActivePoll)
	defer ticker.Stop()

	before := map[tabs.TabID]bool{}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		b.mu.Lock()
		live := make([]*target, 0, len(b.targets))
		for _, t := range b.targets {
			if !t.discarded {
				live = append(live, t)
			}
		}
		b.mu.Unlock()

		now := make(map[tabs.TabID]bool, len(live))
		for _, t := range live {
			tab := b.probe(ctx, t)
			now[t.id] = tab.Active
		}
		for _, id := range newlyVisible(before, now) {
			b.emit(tabs.Event{Kind: tabs.EventActivated, TabID: id})
		}
		before = now
	}
}

// emit delivers ev unless the stream is closed or the Browser is shutting
// down.
func (b *Browser) emit(ev tabs.Event) {
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.events <- ev:
	case <-b.ctx.Done():
	}
}

func (b *Browser) closeEvents() {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	b.closed = true
	close(b.events)
}
