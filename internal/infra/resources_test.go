package infra

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/vip-club/vip_club/internal/config"
	"github.com/vip-club/vip_club/internal/logging"
)

func TestConnectWithoutURLsUsesMemory(t *testing.T) {
	res, err := Connect(context.Background(), config.Config{AppEnv: "test"}, logging.Discard())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if res.DB != nil || res.Cache != nil {
		t.Fatalf("expected no connections, got %+v", res)
	}
	res.Close(logging.Discard())
}

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Config{AppEnv: "test", RedisURL: "redis://" + mr.Addr()}

	res, err := Connect(context.Background(), cfg, logging.Discard())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer res.Close(logging.Discard())
	if res.Cache == nil {
		t.Fatalf("expected redis client")
	}
	if err := res.Cache.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := mr.Get("k"); got != "v" {
		t.Fatalf("unexpected value %q", got)
	}
}

func TestConnectRejectsBadURLs(t *testing.T) {
	ctx := context.Background()
	if _, err := Connect(ctx, config.Config{RedisURL: "not-a-url"}, logging.Discard()); err == nil {
		t.Fatalf("expected redis url error")
	}
	if _, err := Connect(ctx, config.Config{DatabaseURL: "postgres://%zz"}, logging.Discard()); err == nil {
		t.Fatalf("expected database url error")
	}

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	if _, err := Connect(ctx, config.Config{RedisURL: "redis://" + addr}, logging.Discard()); err == nil {
		t.Fatalf("expected unreachable redis error")
	}
}
