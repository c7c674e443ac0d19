package notification

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"sync"
	"time"

	"github.com/vip-club/vip_club/internal/settings"
)

const sendTimeout = 10 * time.Second

// Bridge turns bus events into in-app notifications and outbound messages.
type Bridge struct {
	hub      *Hub
	notifier Notifier
	settings settings.Provider
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewBridge builds a Bridge. notifier and prefs may be nil.
func NewBridge(hub *Hub, notifier Notifier, prefs settings.Provider, logger *slog.Logger) *Bridge {
	return &Bridge{hub: hub, notifier: notifier, settings: prefs, logger: logger}
}

// Attach subscribes the bridge to bus and returns a function detaching it.
func (b *Bridge) Attach(bus *Bus) func() {
	unsubs := []func(){
		bus.Subscribe(TopicScreenshotUploaded, b.onScreenshotUploaded),
		bus.Subscribe(TopicPaymentVerified, b.onPaymentVerified),
		bus.Subscribe(TopicPaymentRejected, b.onPaymentRejected),
		bus.Subscribe(TopicAccessGranted, b.onAccessGranted),
		bus.Subscribe(TopicAccessRevoked, b.onAccessRevoked),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Wait blocks until in-flight outbound messages are sent.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

func (b *Bridge) add(ctx context.Context, telegramID int64, d Draft) {
	if _, err := b.hub.For(telegramID).Add(ctx, d); err != nil {
		b.logger.Warn("add notification", slog.Int64("telegram_id", telegramID), slog.Any("error", err))
	}
}

// send delivers m in the background so publishers never wait on Telegram.
func (b *Bridge) send(ctx context.Context, m Message) {
	if b.notifier == nil {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		if err := b.notifier.Send(sendCtx, m); err != nil {
			b.logger.Warn("deliver notification", slog.String("kind", m.Kind), slog.Any("error", err))
		}
	}()
}

func (b *Bridge) prefs(ctx context.Context) settings.Notifications {
	if b.settings == nil {
		return settings.Defaults().Notifications
	}
	s, err := b.settings.Current(ctx)
	if err != nil {
		b.logger.Warn("load notification settings", slog.Any("error", err))
		return settings.Defaults().Notifications
	}
	return s.Notifications
}

func (b *Bridge) onScreenshotUploaded(ctx context.Context, e Event) {
	b.add(ctx, e.TelegramID, PaymentDraft(PaymentPending, e.Amount, e.Currency))
	if !b.prefs(ctx).NewPayments {
		return
	}
	b.send(ctx, Message{
		Kind:       KindScreenshotUploaded,
		Moderators: true,
		Body: fmt.Sprintf("<b>New payment to review</b>\nUser: <code>%d</code>\nAmount: %d %s\nPayment: <code>%s</code>",
			e.TelegramID, e.Amount, html.EscapeString(e.Currency), html.EscapeString(e.PaymentID)),
	})
}

func (b *Bridge) onPaymentVerified(ctx context.Context, e Event) {
	b.add(ctx, e.TelegramID, PaymentDraft(PaymentSucceeded, e.Amount, e.Currency))
	body := "<b>Payment confirmed</b>\nYour VIP access is active."
	if e.AccessLink != "" {
		body += "\nAccess link: " + html.EscapeString(e.AccessLink)
	}
	if e.ExpiresAt != nil {
		body += "\nValid until: " + e.ExpiresAt.Format("02.01.2006")
	}
	b.send(ctx, Message{Kind: KindPaymentVerified, ChatID: e.TelegramID, Body: body})
}

func (b *Bridge) onPaymentRejected(ctx context.Context, e Event) {
	b.add(ctx, e.TelegramID, PaymentDraft(PaymentFailed, e.Amount, e.Currency))
	body := "<b>Payment not confirmed</b>\nPlease upload a new screenshot."
	if e.Reason != "" {
		body += "\nReason: " + html.EscapeString(e.Reason)
	}
	b.send(ctx, Message{Kind: KindPaymentRejected, ChatID: e.TelegramID, Body: body})
}

func (b *Bridge) onAccessGranted(ctx context.Context, e Event) {
	b.add(ctx, e.TelegramID, SystemDraft("VIP access granted", "An administrator granted you VIP access.", TypeSuccess))
	b.send(ctx, Message{Kind: KindAccess, ChatID: e.TelegramID, Body: "<b>VIP access granted</b>"})
}

func (b *Bridge) onAccessRevoked(ctx context.Context, e Event) {
	b.add(ctx, e.TelegramID, SystemDraft("VIP access revoked", "Your VIP access was revoked by an administrator.", TypeWarning))
	if !b.prefs(ctx).VIPExpiration {
		return
	}
	b.send(ctx, Message{Kind: KindAccess, ChatID: e.TelegramID, Body: "<b>VIP access revoked</b>"})
}
