package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vip-club/vip_club/internal/logging"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestHub(store Store) *Hub {
	clock := &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewHub(store, HubOptions{Now: clock.Now, Logger: logging.Discard(), OpenDelay: 20 * time.Millisecond})
}

func assertNewestFirst(t *testing.T, items []Notification) {
	t.Helper()
	for i := 1; i < len(items); i++ {
		if items[i].Timestamp.After(items[i-1].Timestamp) {
			t.Fatalf("order violated at %d: %s after %s", i, items[i].Timestamp, items[i-1].Timestamp)
		}
	}
}

func TestCenterCapsAndOrders(t *testing.T) {
	hub := newTestHub(NewMemoryStore())
	center := hub.For(42)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		if _, err := center.Add(ctx, SystemDraft(fmt.Sprintf("n%d", i), "body", TypeInfo)); err != nil {
			t.Fatalf("add: %v", err)
		}
		items, _ := center.List(ctx)
		if len(items) > MaxRetained {
			t.Fatalf("list grew to %d", len(items))
		}
		assertNewestFirst(t, items)
	}

	items, _ := center.List(ctx)
	if len(items) != MaxRetained {
		t.Fatalf("expected %d items, got %d", MaxRetained, len(items))
	}
	if items[0].Title != "n59" || items[len(items)-1].Title != "n10" {
		t.Fatalf("unexpected retained window %s..%s", items[0].Title, items[len(items)-1].Title)
	}
}

func TestCenterBatchKeepsNewestFirst(t *testing.T) {
	hub := newTestHub(NewMemoryStore())
	center := hub.For(1)
	ctx := context.Background()

	center.Add(ctx, SystemDraft("old", "", TypeInfo))
	center.Add(ctx, SystemDraft("a", "", TypeInfo), SystemDraft("b", "", TypeInfo))

	items, _ := center.List(ctx)
	if len(items) != 3 || items[0].Title != "b" || items[1].Title != "a" || items[2].Title != "old" {
		t.Fatalf("unexpected order %+v", items)
	}
}

func TestCenterMutations(t *testing.T) {
	hub := newTestHub(NewMemoryStore())
	center := hub.For(7)
	ctx := context.Background()

	added, _ := center.Add(ctx, WelcomeDraft())
	center.Add(ctx, PaymentDraft(PaymentSucceeded, 500, "₽"))
	center.Add(ctx, PaymentDraft(PaymentFailed, 500, "₽"))

	if n, _ := center.UnreadCount(ctx); n != 3 {
		t.Fatalf("expected 3 unread, got %d", n)
	}
	if err := center.MarkRead(ctx, added[0].ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n, _ := center.UnreadCount(ctx); n != 2 {
		t.Fatalf("expected 2 unread, got %d", n)
	}
	if err := center.MarkRead(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := center.Remove(ctx, added[0].ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	items, _ := center.List(ctx)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if err := center.MarkAllRead(ctx); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if n, _ := center.UnreadCount(ctx); n != 0 {
		t.Fatalf("expected 0 unread, got %d", n)
	}
	if err := center.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	items, _ = center.List(ctx)
	if len(items) != 0 {
		t.Fatalf("expected empty list, got %d", len(items))
	}
}

func TestCenterPersistsPerUser(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	newTestHub(store).For(1).Add(ctx, WelcomeDraft())
	newTestHub(store).For(2).Add(ctx, WelcomeDraft())
	newTestHub(store).For(2).Add(ctx, WelcomeDraft())

	reopened := newTestHub(store)
	one, _ := reopened.For(1).List(ctx)
	two, _ := reopened.For(2).List(ctx)
	if len(one) != 1 || len(two) != 2 {
		t.Fatalf("expected 1 and 2 items, got %d and %d", len(one), len(two))
	}
}

func TestOpenPanelMarksReadAfterDelay(t *testing.T) {
	hub := newTestHub(NewMemoryStore())
	hub.opts.OpenDelay = 200 * time.Millisecond
	center := hub.For(3)
	ctx := context.Background()

	center.Add(ctx, WelcomeDraft())
	center.OpenPanel()
	if n, _ := center.UnreadCount(ctx); n != 1 {
		t.Fatalf("unread state must stay visible right after opening, got %d", n)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n, _ := center.UnreadCount(ctx); n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("notifications still unread after open delay")
}

func TestClosePanelCancelsMarkRead(t *testing.T) {
	hub := newTestHub(NewMemoryStore())
	center := hub.For(4)
	ctx := context.Background()

	center.Add(ctx, WelcomeDraft())
	center.OpenPanel()
	center.ClosePanel()
	time.Sleep(60 * time.Millisecond)

	if n, _ := center.UnreadCount(ctx); n != 1 {
		t.Fatalf("expected notification to stay unread, got %d unread", n)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	hub := newTestHub(NewRedisStore(cache))
	ctx := context.Background()
	hub.For(99).Add(ctx, PaymentDraft(PaymentPending, 500, "₽"))

	if !mr.Exists("notifications:99") {
		t.Fatalf("expected redis key notifications:99")
	}
	items, err := NewRedisStore(cache).Load(ctx, StorageKey(99))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(items) != 1 || items[0].Type != TypeInfo || items[0].Read {
		t.Fatalf("unexpected items %+v", items)
	}

	hub.For(99).Clear(ctx)
	if mr.Exists("notifications:99") {
		t.Fatalf("expected key removed after clear")
	}
}

func TestStorageKeyDefault(t *testing.T) {
	if StorageKey(0) != "notifications:default" {
		t.Fatalf("unexpected default key %q", StorageKey(0))
	}
}

func TestBadgeLabel(t *testing.T) {
	if BadgeLabel(5) != "5" || BadgeLabel(99) != "99" || BadgeLabel(100) != "99+" {
		t.Fatalf("unexpected badge labels")
	}
}

func TestAccessDraft(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if d := AccessDraft(now.Add(72*time.Hour), now); d.Type != TypeWarning {
		t.Fatalf("expected warning at 3 days, got %s", d.Type)
	}
	if d := AccessDraft(now.Add(50*time.Hour), now); d.Type != TypeWarning {
		t.Fatalf("expected warning under 3 days, got %s", d.Type)
	}
	if d := AccessDraft(now.Add(10*24*time.Hour), now); d.Type != TypeInfo {
		t.Fatalf("expected info for 10 days, got %s", d.Type)
	}
}
