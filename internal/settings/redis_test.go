package settings

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return NewRedisStore(cache)
}

func TestRedisStoreDefaults(t *testing.T) {
	store := newRedisStore(t)

	got, err := store.Current(context.Background())
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

func TestRedisStoreSaveRoundTrip(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	want := Defaults()
	want.VIPPrice = 750
	want.Notifications.DailyReports = true
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Current(ctx)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if got.Duration().Hours() != 30*24 {
		t.Fatalf("unexpected duration %s", got.Duration())
	}
}
