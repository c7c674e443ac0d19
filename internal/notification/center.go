package notification

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a notification id is unknown.
var ErrNotFound = errors.New("notification not found")

// DefaultOpenDelay is how long unread entries stay unread after the panel opens.
const DefaultOpenDelay = time.Second

// Center manages the notification list of one user. Every mutation reloads
// the list from the Store, applies the change and saves it back, so the last
// writer wins when several processes share a store.
type Center struct {
	mu        sync.Mutex
	key       string
	store     Store
	now       func() time.Time
	openDelay time.Duration
	logger    *slog.Logger
	openTimer *time.Timer
}

func (c *Center) mutate(ctx context.Context, fn func([]Notification) ([]Notification, error)) ([]Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items, err := c.store.Load(ctx, c.key)
	if err != nil {
		return nil, err
	}
	items, err = fn(items)
	if err != nil {
		return nil, err
	}
	if err := c.store.Save(ctx, c.key, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Add stores the drafts as unread notifications, newest first, keeping at
// most MaxRetained entries.
func (c *Center) Add(ctx context.Context, drafts ...Draft) ([]Notification, error) {
	if len(drafts) == 0 {
		return nil, nil
	}
	now := c.now()
	added := make([]Notification, 0, len(drafts))
	for _, d := range drafts {
		added = append(added, Notification{
			ID:        uuid.NewString(),
			Type:      d.Type,
			Title:     d.Title,
			Message:   d.Message,
			Timestamp: now,
			Action:    d.Action,
		})
	}

	_, err := c.mutate(ctx, func(items []Notification) ([]Notification, error) {
		// Later drafts of the same batch go first.
		merged := make([]Notification, 0, len(added)+len(items))
		for i := len(added) - 1; i >= 0; i-- {
			merged = append(merged, added[i])
		}
		merged = append(merged, items...)
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].Timestamp.After(merged[j].Timestamp)
		})
		if len(merged) > MaxRetained {
			merged = merged[:MaxRetained]
		}
		return merged, nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// MarkRead marks one notification as read.
func (c *Center) MarkRead(ctx context.Context, id string) error {
	_, err := c.mutate(ctx, func(items []Notification) ([]Notification, error) {
		for i := range items {
			if items[i].ID == id {
				items[i].Read = true
				return items, nil
			}
		}
		return nil, ErrNotFound
	})
	return err
}

// MarkAllRead marks every notification as read.
func (c *Center) MarkAllRead(ctx context.Context) error {
	_, err := c.mutate(ctx, func(items []Notification) ([]Notification, error) {
		for i := range items {
			items[i].Read = true
		}
		return items, nil
	})
	return err
}

// Remove deletes one notification.
func (c *Center) Remove(ctx context.Context, id string) error {
	_, err := c.mutate(ctx, func(items []Notification) ([]Notification, error) {
		for i := range items {
			if items[i].ID == id {
				return append(items[:i], items[i+1:]...), nil
			}
		}
		return nil, ErrNotFound
	})
	return err
}

// Clear deletes every notification.
func (c *Center) Clear(ctx context.Context) error {
	_, err := c.mutate(ctx, func([]Notification) ([]Notification, error) {
		return nil, nil
	})
	return err
}

// List returns the notifications newest first.
func (c *Center) List(ctx context.Context) ([]Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Load(ctx, c.key)
}

// UnreadCount returns the number of unread notifications.
func (c *Center) UnreadCount(ctx context.Context) (int, error) {
	items, err := c.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range items {
		if !item.Read {
			n++
		}
	}
	return n, nil
}

// OpenPanel schedules MarkAllRead after the open delay so unread entries
// remain visible briefly. Reopening restarts the delay.
func (c *Center) OpenPanel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openTimer != nil {
		c.openTimer.Stop()
	}
	c.openTimer = time.AfterFunc(c.openDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.MarkAllRead(ctx); err != nil {
			c.logger.Warn("mark notifications read", slog.String("key", c.key), slog.Any("error", err))
		}
	})
}

// ClosePanel cancels a pending OpenPanel.
func (c *Center) ClosePanel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openTimer != nil {
		c.openTimer.Stop()
		c.openTimer = nil
	}
}

// HubOptions configures a Hub.
type HubOptions struct {
	OpenDelay time.Duration
	Now       func() time.Time
	Logger    *slog.Logger
}

// Hub owns one Center per user and creates them on first use.
type Hub struct {
	mu      sync.Mutex
	store   Store
	opts    HubOptions
	centers map[int64]*Center
}

// NewHub builds a Hub persisting into store.
func NewHub(store Store, opts HubOptions) *Hub {
	if opts.OpenDelay <= 0 {
		opts.OpenDelay = DefaultOpenDelay
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Hub{store: store, opts: opts, centers: make(map[int64]*Center)}
}

// For returns the Center of telegramID.
func (h *Hub) For(telegramID int64) *Center {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.centers[telegramID]
	if !ok {
		c = &Center{
			key:       StorageKey(telegramID),
			store:     h.store,
			now:       h.opts.Now,
			openDelay: h.opts.OpenDelay,
			logger:    h.opts.Logger,
		}
		h.centers[telegramID] = c
	}
	return c
}

// Close stops every pending panel timer.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.centers {
		c.ClosePanel()
	}
}
