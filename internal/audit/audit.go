// Package audit records user actions without ever blocking the caller.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Action names recorded by the club.
const (
	ActionPaymentStarted     = "payment_started"
	ActionScreenshotUploaded = "screenshot_uploaded"
	ActionPaymentVerified    = "payment_verified"
	ActionDashboardViewed    = "dashboard_viewed"
	ActionDocsSearched       = "docs_searched"
	ActionTicketCreated      = "ticket_created"
	ActionAdminApproved      = "admin_payment_approved"
	ActionAdminRejected      = "admin_payment_rejected"
	ActionAdminGrantedVIP    = "admin_vip_granted"
	ActionAdminRevokedVIP    = "admin_vip_revoked"
)

// Recorder persists one action. backend.Backend satisfies it.
type Recorder interface {
	LogUserAction(ctx context.Context, telegramID int64, action string, metadata map[string]any) error
}

// Logger is the fire-and-forget interface handed to services.
type Logger interface {
	Log(telegramID int64, action string, metadata map[string]any)
}

type entry struct {
	telegramID int64
	action     string
	metadata   map[string]any
}

// Sink buffers actions and writes them from a single worker goroutine.
type Sink struct {
	recorder Recorder
	logger   *slog.Logger
	timeout  time.Duration
	entries  chan entry

	closeOnce sync.Once
	done      chan struct{}
}

// NewSink starts a worker draining up to buffer pending entries.
func NewSink(recorder Recorder, buffer int, logger *slog.Logger) *Sink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &Sink{
		recorder: recorder,
		logger:   logger,
		timeout:  5 * time.Second,
		entries:  make(chan entry, buffer),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Log queues an action. A full buffer drops the entry with a warning.
func (s *Sink) Log(telegramID int64, action string, metadata map[string]any) {
	select {
	case s.entries <- entry{telegramID: telegramID, action: action, metadata: metadata}:
	default:
		s.logger.Warn("audit buffer full, dropping action", slog.Int64("telegram_id", telegramID), slog.String("action", action))
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for e := range s.entries {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.recorder.LogUserAction(ctx, e.telegramID, e.action, e.metadata); err != nil {
			s.logger.Warn("record user action", slog.Int64("telegram_id", e.telegramID), slog.String("action", e.action), slog.Any("error", err))
		}
		cancel()
	}
}

// Close stops accepting entries and waits for the buffer to drain or ctx to end.
// Log must not be called after Close.
func (s *Sink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.entries) })
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Discard is a Logger that drops everything.
type Discard struct{}

func (Discard) Log(int64, string, map[string]any) {}
