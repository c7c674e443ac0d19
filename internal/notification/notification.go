// Package notification keeps per-user in-app notifications, polls external
// feeds for new ones and delivers outbound messages through Notifier
// implementations.
package notification

import (
	"context"
	"errors"
	"log/slog"
)

const (
	KindPaymentVerified    = "payment_verified"
	KindPaymentRejected    = "payment_rejected"
	KindScreenshotUploaded = "screenshot_uploaded"
	KindAccess             = "access"
)

// Message describes an outbound notification. Moderators routes the message
// to the moderators chat instead of ChatID.
type Message struct {
	Kind       string
	ChatID     int64
	Moderators bool
	Body       string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger. Used when no Telegram
// bot is configured.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.Int64("chat_id", message.ChatID),
		slog.Bool("moderators", message.Moderators),
		slog.String("body", message.Body),
	)
	return nil
}

// Fanout sends every message through all notifiers and joins their errors.
type Fanout []Notifier

func (f Fanout) Send(ctx context.Context, message Message) error {
	var errs []error
	for _, n := range f {
		if err := n.Send(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
