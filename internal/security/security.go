// Package security keeps a per-user log of sensitive activity and derives a
// threat level from it.
package security

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventLogin      EventType = "login"
	EventPayment    EventType = "payment"
	EventAccess     EventType = "access"
	EventSuspicious EventType = "suspicious"
)

type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// MaxEvents is how many events are kept per user.
const MaxEvents = 100

// Event is one entry of the activity log.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	IP          string    `json:"ip,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	Risk        Risk      `json:"risk"`
}

type userLog struct {
	events []Event
	level  Risk
}

// Log holds the newest MaxEvents events of every user, newest first.
type Log struct {
	mu    sync.RWMutex
	users map[int64]*userLog
	now   func() time.Time
}

func NewLog(now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{users: make(map[int64]*userLog), now: now}
}

func (l *Log) userLocked(telegramID int64) *userLog {
	u, ok := l.users[telegramID]
	if !ok {
		u = &userLog{level: RiskLow}
		l.users[telegramID] = u
	}
	return u
}

// Record stores e for telegramID, filling ID, Timestamp and Risk when unset.
func (l *Log) Record(telegramID int64, e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}
	if e.Risk == "" {
		e.Risk = RiskLow
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	u := l.userLocked(telegramID)
	u.events = append([]Event{e}, u.events...)
	if len(u.events) > MaxEvents {
		u.events = u.events[:MaxEvents]
	}
	return e
}

// List returns the events of telegramID, newest first.
func (l *Log) List(telegramID int64) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	u, ok := l.users[telegramID]
	if !ok {
		return []Event{}
	}
	return append([]Event(nil), u.events...)
}

// Level returns the current threat level of telegramID.
func (l *Log) Level(telegramID int64) Risk {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if u, ok := l.users[telegramID]; ok {
		return u.level
	}
	return RiskLow
}

// Check raises the level of every user with more than threshold high-risk
// events inside window and records a suspicious event for each newly
// flagged user. It returns the flagged users.
func (l *Log) Check(window time.Duration, threshold int) []int64 {
	now := l.now()
	since := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()
	var flagged []int64
	for id, u := range l.users {
		high := 0
		for _, e := range u.events {
			if e.Timestamp.Before(since) {
				break
			}
			if e.Risk == RiskHigh {
				high++
			}
		}
		if high <= threshold || u.level == RiskHigh {
			continue
		}
		u.level = RiskHigh
		u.events = append([]Event{{
			ID:          uuid.NewString(),
			Type:        EventSuspicious,
			Description: "multiple high-risk events detected",
			Timestamp:   now.UTC(),
			Risk:        RiskHigh,
		}}, u.events...)
		if len(u.events) > MaxEvents {
			u.events = u.events[:MaxEvents]
		}
		flagged = append(flagged, id)
	}
	return flagged
}

// Monitor periodically runs Check over the last hour.
type Monitor struct {
	log       *Log
	interval  time.Duration
	window    time.Duration
	threshold int
	logger    *slog.Logger
}

func NewMonitor(log *Log, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{log: log, interval: interval, window: time.Hour, threshold: 3, logger: logger}
}

// Run blocks until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range m.log.Check(m.window, m.threshold) {
				m.logger.Warn("suspicious activity", slog.Int64("telegram_id", id))
			}
		}
	}
}
