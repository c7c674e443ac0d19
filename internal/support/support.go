// Package support keeps user support tickets for the lifetime of the process.
package support

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vip-club/vip_club/internal/audit"
	"github.com/vip-club/vip_club/internal/validate"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type Sender string

const (
	FromUser    Sender = "user"
	FromSupport Sender = "support"
)

// AckMessage is the automatic reply appended after a user message.
const AckMessage = "Thank you for reaching out! We will look into your question shortly."

var (
	ErrNotFound      = errors.New("ticket not found")
	ErrTicketClosed  = errors.New("ticket is closed")
	ErrInvalidStatus = errors.New("invalid ticket status")
	ErrEmptyMessage  = errors.New("message is required")
)

type Response struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	From      Sender    `json:"from"`
	Timestamp time.Time `json:"timestamp"`
}

type Ticket struct {
	ID         string     `json:"id"`
	TelegramID int64      `json:"telegram_id"`
	Subject    string     `json:"subject"`
	Message    string     `json:"message"`
	Status     Status     `json:"status"`
	Priority   Priority   `json:"priority"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Responses  []Response `json:"responses"`
}

// NewTicket is the request to open a ticket.
type NewTicket struct {
	Subject  string   `json:"subject" validate:"required,max=200"`
	Message  string   `json:"message" validate:"required,max=4000"`
	Priority Priority `json:"priority" validate:"omitempty,oneof=low medium high"`
}

// Options tunes a Service.
type Options struct {
	// AckDelay is how long after a user message the automatic reply is
	// appended. Zero disables it.
	AckDelay time.Duration
	Audit    audit.Logger
	Now      func() time.Time
	Logger   *slog.Logger
}

// Service stores tickets in memory.
type Service struct {
	mu      sync.Mutex
	tickets map[string]*Ticket
	wg      sync.WaitGroup

	validator *validate.Validator
	opts      Options
}

func NewService(opts Options) *Service {
	if opts.Audit == nil {
		opts.Audit = audit.Discard{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{tickets: make(map[string]*Ticket), validator: validate.New(), opts: opts}
}

// Create opens a ticket. Priority defaults to medium.
func (s *Service) Create(telegramID int64, req NewTicket) (Ticket, error) {
	req.Subject = strings.TrimSpace(req.Subject)
	req.Message = strings.TrimSpace(req.Message)
	if err := s.validator.Struct(req); err != nil {
		return Ticket{}, err
	}
	if req.Priority == "" {
		req.Priority = PriorityMedium
	}

	now := s.opts.Now().UTC()
	t := &Ticket{
		ID:         uuid.NewString(),
		TelegramID: telegramID,
		Subject:    req.Subject,
		Message:    req.Message,
		Status:     StatusOpen,
		Priority:   req.Priority,
		CreatedAt:  now,
		UpdatedAt:  now,
		Responses:  []Response{},
	}
	s.mu.Lock()
	s.tickets[t.ID] = t
	out := clone(t)
	s.mu.Unlock()

	s.opts.Audit.Log(telegramID, audit.ActionTicketCreated, map[string]any{"ticket_id": t.ID, "priority": string(t.Priority)})
	return out, nil
}

// Reply appends a user message and moves the ticket to in_progress.
func (s *Service) Reply(ticketID string, telegramID int64, message string) (Ticket, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Ticket{}, ErrEmptyMessage
	}

	s.mu.Lock()
	t, ok := s.tickets[ticketID]
	if !ok || t.TelegramID != telegramID {
		s.mu.Unlock()
		return Ticket{}, ErrNotFound
	}
	if t.Status == StatusClosed {
		s.mu.Unlock()
		return Ticket{}, ErrTicketClosed
	}
	s.appendLocked(t, FromUser, message)
	t.Status = StatusInProgress
	out := clone(t)
	s.mu.Unlock()

	if s.opts.AckDelay > 0 {
		s.acknowledge(ticketID)
	}
	return out, nil
}

// Respond appends a support message.
func (s *Service) Respond(ticketID, message string) (Ticket, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Ticket{}, ErrEmptyMessage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return Ticket{}, ErrNotFound
	}
	s.appendLocked(t, FromSupport, message)
	return clone(t), nil
}

func (s *Service) SetStatus(ticketID string, status Status) (Ticket, error) {
	switch status {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
	default:
		return Ticket{}, ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return Ticket{}, ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = s.opts.Now().UTC()
	return clone(t), nil
}

// Get returns a ticket owned by telegramID.
func (s *Service) Get(ticketID string, telegramID int64) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok || t.TelegramID != telegramID {
		return Ticket{}, ErrNotFound
	}
	return clone(t), nil
}

// List returns the tickets of telegramID, newest first. A zero telegramID
// lists every ticket.
func (s *Service) List(telegramID int64) []Ticket {
	s.mu.Lock()
	out := make([]Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		if telegramID == 0 || t.TelegramID == telegramID {
			out = append(out, clone(t))
		}
	}
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Wait blocks until scheduled acknowledgements have been appended.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) acknowledge(ticketID string) {
	s.wg.Add(1)
	time.AfterFunc(s.opts.AckDelay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		t, ok := s.tickets[ticketID]
		if !ok {
			return
		}
		s.appendLocked(t, FromSupport, AckMessage)
		s.opts.Logger.Debug("ticket acknowledged", slog.String("ticket_id", ticketID))
	})
}

func (s *Service) appendLocked(t *Ticket, from Sender, message string) {
	now := s.opts.Now().UTC()
	t.Responses = append(t.Responses, Response{ID: uuid.NewString(), Message: message, From: from, Timestamp: now})
	t.UpdatedAt = now
}

func clone(t *Ticket) Ticket {
	out := *t
	out.Responses = append([]Response{}, t.Responses...)
	return out
}
