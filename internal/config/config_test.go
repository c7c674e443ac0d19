package config

import (
	"testing"
	"time"
)

func TestLoadDevelopmentDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.VerifyDelay != 3*time.Second {
		t.Fatalf("expected 3s verify delay, got %s", cfg.VerifyDelay)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Fatalf("expected 30s poll interval, got %s", cfg.PollInterval)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestLoadRequiresDatabaseOutsideDev(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestLoadParsesDurations(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("VERIFY_DELAY", "5")
	t.Setenv("SHUTDOWN_TIMEOUT", "1m30s")
	t.Setenv("TELEGRAM_MODERATOR_CHAT_ID", "-100123")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.VerifyDelay != 5*time.Second {
		t.Fatalf("expected 5s, got %s", cfg.VerifyDelay)
	}
	if cfg.ShutdownPeriod != 90*time.Second {
		t.Fatalf("expected 90s, got %s", cfg.ShutdownPeriod)
	}
	if cfg.TelegramModerator != -100123 {
		t.Fatalf("unexpected moderator chat %d", cfg.TelegramModerator)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("IDEMPOTENCY_TTL", "soon")

	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}
