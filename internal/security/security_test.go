package security

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vip-club/vip_club/internal/logging"
	"github.com/vip-club/vip_club/internal/middleware"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRecordKeepsNewestFirstAndCaps(t *testing.T) {
	clock := &fixedClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	log := NewLog(clock.Now)

	for i := 0; i < MaxEvents+20; i++ {
		log.Record(1, Event{Type: EventLogin, Description: fmt.Sprintf("e%d", i)})
		clock.Advance(time.Second)
	}
	events := log.List(1)
	if len(events) != MaxEvents {
		t.Fatalf("expected %d events, got %d", MaxEvents, len(events))
	}
	if events[0].Description != fmt.Sprintf("e%d", MaxEvents+19) {
		t.Fatalf("newest event must come first, got %s", events[0].Description)
	}
	if events[0].Risk != RiskLow || events[0].ID == "" {
		t.Fatalf("defaults not applied: %+v", events[0])
	}
}

func TestCheckFlagsRepeatedHighRisk(t *testing.T) {
	clock := &fixedClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	log := NewLog(clock.Now)

	for i := 0; i < 3; i++ {
		log.Record(5, Event{Type: EventPayment, Risk: RiskHigh})
	}
	if flagged := log.Check(time.Hour, 3); len(flagged) != 0 {
		t.Fatalf("three events must not flag, got %v", flagged)
	}

	log.Record(5, Event{Type: EventPayment, Risk: RiskHigh})
	flagged := log.Check(time.Hour, 3)
	if len(flagged) != 1 || flagged[0] != 5 {
		t.Fatalf("expected user 5 flagged, got %v", flagged)
	}
	if log.Level(5) != RiskHigh {
		t.Fatalf("expected high level, got %s", log.Level(5))
	}
	if events := log.List(5); events[0].Type != EventSuspicious {
		t.Fatalf("expected suspicious event on top, got %s", events[0].Type)
	}
	if flagged := log.Check(time.Hour, 3); len(flagged) != 0 {
		t.Fatalf("user must be flagged once, got %v", flagged)
	}
}

func TestCheckIgnoresOldEvents(t *testing.T) {
	clock := &fixedClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	log := NewLog(clock.Now)

	for i := 0; i < 5; i++ {
		log.Record(9, Event{Type: EventAccess, Risk: RiskHigh})
	}
	clock.Advance(2 * time.Hour)
	if flagged := log.Check(time.Hour, 3); len(flagged) != 0 {
		t.Fatalf("stale events must not flag, got %v", flagged)
	}
	if log.Level(9) != RiskLow {
		t.Fatalf("expected low level, got %s", log.Level(9))
	}
}

func TestMonitorStopsOnCancel(t *testing.T) {
	m := NewMonitor(NewLog(nil), 5*time.Millisecond, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("monitor did not stop")
	}
}

func TestActivityHandler(t *testing.T) {
	log := NewLog(nil)
	log.Record(11, Event{Type: EventLogin})

	app := fiber.New()
	app.Get("/users/:telegramId/security", middleware.TelegramUser(), NewHandler(log).Activity)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/users/11/security", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	var body struct {
		Level  Risk    `json:"level"`
		Events []Event `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Level != RiskLow || len(body.Events) != 1 {
		t.Fatalf("unexpected body %+v", body)
	}
}
