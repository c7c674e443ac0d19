package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is the period between feed fetches.
const DefaultPollInterval = 30 * time.Second

// IdleIntervals is how many intervals a user may go without calling Watch
// before the poller drops them.
const IdleIntervals = 10

// Poller periodically pulls drafts from a Feed for every watched user and
// adds them to the user's Center.
type Poller struct {
	hub      *Hub
	feed     Feed
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	watched map[int64]*watch
}

type watch struct {
	since time.Time
	seen  time.Time
}

// NewPoller builds a Poller. A non-positive interval uses DefaultPollInterval.
func NewPoller(hub *Hub, feed Feed, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		hub:      hub,
		feed:     feed,
		interval: interval,
		now:      hub.opts.Now,
		logger:   logger,
		watched:  make(map[int64]*watch),
	}
}

// Watch starts polling for telegramID, or keeps an existing watch alive.
// Already watched users keep their cursor.
func (p *Poller) Watch(telegramID int64) {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.watched[telegramID]; ok {
		w.seen = now
		return
	}
	p.watched[telegramID] = &watch{since: now, seen: now}
}

// Unwatch stops polling for telegramID.
func (p *Poller) Unwatch(telegramID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.watched, telegramID)
}

// Watching reports how many users are polled.
func (p *Poller) Watching() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.watched)
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("notification poller started", slog.Duration("interval", p.interval))
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("notification poller stopped")
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one fetch for every watched user. Users idle for more than
// IdleIntervals intervals are dropped first. A failed fetch keeps the
// user's cursor so the next tick retries the same window.
func (p *Poller) Poll(ctx context.Context) {
	idleBefore := p.now().Add(-IdleIntervals * p.interval)
	p.mu.Lock()
	snapshot := make(map[int64]time.Time, len(p.watched))
	for id, w := range p.watched {
		if w.seen.Before(idleBefore) {
			delete(p.watched, id)
			continue
		}
		snapshot[id] = w.since
	}
	p.mu.Unlock()

	for id, since := range snapshot {
		if ctx.Err() != nil {
			return
		}
		tick := p.now()
		drafts, err := p.feed.Fetch(ctx, id, since)
		if err != nil {
			p.logger.Warn("notification feed fetch failed", slog.Int64("telegram_id", id), slog.Any("error", err))
			continue
		}
		if _, err := p.hub.For(id).Add(ctx, drafts...); err != nil {
			p.logger.Warn("store polled notifications", slog.Int64("telegram_id", id), slog.Any("error", err))
			continue
		}

		p.mu.Lock()
		if w, ok := p.watched[id]; ok {
			w.since = tick
		}
		p.mu.Unlock()
	}
}
