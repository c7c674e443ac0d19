package support

import (
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vip-club/vip_club/internal/logging"
	"github.com/vip-club/vip_club/internal/middleware"
	"github.com/vip-club/vip_club/internal/validate"
)

type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

func newTestService(ackDelay time.Duration) *Service {
	clock := &tickClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewService(Options{AckDelay: ackDelay, Now: clock.Now, Logger: logging.Discard()})
}

func TestCreateValidatesAndDefaults(t *testing.T) {
	svc := newTestService(0)

	_, err := svc.Create(1, NewTicket{Subject: " ", Message: "help"})
	var verr *validate.ValidationError
	if !errors.As(err, &verr) || verr.Errors["subject"] == "" {
		t.Fatalf("expected subject validation error, got %v", err)
	}
	if _, err := svc.Create(1, NewTicket{Subject: "x", Message: "y", Priority: "urgent"}); err == nil {
		t.Fatalf("expected priority validation error")
	}

	ticket, err := svc.Create(1, NewTicket{Subject: "No link", Message: "I paid but got nothing"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ticket.Status != StatusOpen || ticket.Priority != PriorityMedium || len(ticket.Responses) != 0 {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
}

func TestReplyMovesToInProgressAndAcknowledges(t *testing.T) {
	svc := newTestService(5 * time.Millisecond)
	ticket, _ := svc.Create(2, NewTicket{Subject: "s", Message: "m"})

	updated, err := svc.Reply(ticket.ID, 2, "any news?")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if updated.Status != StatusInProgress || len(updated.Responses) != 1 || updated.Responses[0].From != FromUser {
		t.Fatalf("unexpected ticket %+v", updated)
	}
	if !updated.UpdatedAt.After(ticket.UpdatedAt) {
		t.Fatalf("updated_at must move forward")
	}

	svc.Wait()
	got, _ := svc.Get(ticket.ID, 2)
	if len(got.Responses) != 2 || got.Responses[1].From != FromSupport || got.Responses[1].Message != AckMessage {
		t.Fatalf("expected acknowledgement, got %+v", got.Responses)
	}
}

func TestReplyRules(t *testing.T) {
	svc := newTestService(0)
	ticket, _ := svc.Create(3, NewTicket{Subject: "s", Message: "m"})

	if _, err := svc.Reply(ticket.ID, 4, "hi"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign ticket must be hidden, got %v", err)
	}
	if _, err := svc.Reply(ticket.ID, 3, "  "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := svc.SetStatus(ticket.ID, "done"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	svc.SetStatus(ticket.ID, StatusClosed)
	if _, err := svc.Reply(ticket.ID, 3, "hi"); !errors.Is(err, ErrTicketClosed) {
		t.Fatalf("expected ErrTicketClosed, got %v", err)
	}
	if got, _ := svc.Respond(ticket.ID, "closing note"); len(got.Responses) != 1 {
		t.Fatalf("staff may still respond")
	}
}

func TestListNewestFirst(t *testing.T) {
	svc := newTestService(0)
	svc.Create(5, NewTicket{Subject: "first", Message: "m"})
	svc.Create(6, NewTicket{Subject: "other", Message: "m"})
	svc.Create(5, NewTicket{Subject: "second", Message: "m"})

	list := svc.List(5)
	if len(list) != 2 || list[0].Subject != "second" || list[1].Subject != "first" {
		t.Fatalf("unexpected list %+v", list)
	}
	if len(svc.List(0)) != 3 {
		t.Fatalf("expected all tickets for staff")
	}
}

func TestFAQ(t *testing.T) {
	items := FAQ()
	if len(items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(items))
	}
	items[0].Question = "changed"
	if FAQ()[0].Question == "changed" {
		t.Fatalf("FAQ must return a copy")
	}
}

func TestCreateHandler(t *testing.T) {
	app := fiber.New()
	h := NewHandler(newTestService(0))
	app.Post("/users/:telegramId/tickets", middleware.TelegramUser(), h.Create)

	req := httptest.NewRequest(fiber.MethodPost, "/users/9/tickets", strings.NewReader(`{"subject":"","message":"x"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, _ := app.Test(req)
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(fiber.MethodPost, "/users/9/tickets", strings.NewReader(`{"subject":"s","message":"x","priority":"high"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
}
