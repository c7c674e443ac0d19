package notification

import (
	"context"
	"sync"
	"time"

	"github.com/vip-club/vip_club/internal/backend"
)

// Feed is the source the Poller pulls new notifications from. Fetch returns
// drafts produced after since.
type Feed interface {
	Fetch(ctx context.Context, telegramID int64, since time.Time) ([]Draft, error)
}

// FeedFunc adapts a function to Feed.
type FeedFunc func(ctx context.Context, telegramID int64, since time.Time) ([]Draft, error)

func (f FeedFunc) Fetch(ctx context.Context, telegramID int64, since time.Time) ([]Draft, error) {
	return f(ctx, telegramID, since)
}

// AccessChecker reports a user's VIP status.
type AccessChecker interface {
	CheckVIPAccess(ctx context.Context, telegramID int64) (backend.VIPAccess, error)
}

// ExpiryWindow is how close to expiry the ExpiryFeed starts warning.
const ExpiryWindow = 3 * 24 * time.Hour

// ExpiryFeed warns users whose VIP access ends within ExpiryWindow.
type ExpiryFeed struct {
	access AccessChecker
	now    func() time.Time
	every  time.Duration

	mu     sync.Mutex
	warned map[int64]time.Time
}

// NewExpiryFeed builds a feed warning at most once a day per user.
func NewExpiryFeed(access AccessChecker, now func() time.Time) *ExpiryFeed {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ExpiryFeed{access: access, now: now, every: 24 * time.Hour, warned: make(map[int64]time.Time)}
}

func (f *ExpiryFeed) Fetch(ctx context.Context, telegramID int64, _ time.Time) ([]Draft, error) {
	status, err := f.access.CheckVIPAccess(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	now := f.now()
	if !status.HasAccess || status.ExpiresAt == nil || status.ExpiresAt.Sub(now) > ExpiryWindow {
		return nil, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if last, ok := f.warned[telegramID]; ok && now.Sub(last) < f.every {
		return nil, nil
	}
	f.warned[telegramID] = now
	return []Draft{AccessDraft(*status.ExpiresAt, now)}, nil
}

// MultiFeed concatenates the drafts of several feeds. The first error aborts.
type MultiFeed []Feed

func (m MultiFeed) Fetch(ctx context.Context, telegramID int64, since time.Time) ([]Draft, error) {
	var out []Draft
	for _, f := range m {
		drafts, err := f.Fetch(ctx, telegramID, since)
		if err != nil {
			return nil, err
		}
		out = append(out, drafts...)
	}
	return out, nil
}
