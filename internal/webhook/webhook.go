// Package webhook accepts payment provider callbacks, checks their
// signatures and settles the matching club payment.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vip-club/vip_club/internal/audit"
	"github.com/vip-club/vip_club/internal/backend"
	"github.com/vip-club/vip_club/internal/config"
	"github.com/vip-club/vip_club/internal/notification"
)

// ActionWebhookProcessed is recorded for every settled callback.
const ActionWebhookProcessed = "webhook_payment_processed"

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrSignature       = errors.New("invalid signature")
	ErrPayload         = errors.New("invalid payload")
	ErrNoPayment       = errors.New("no matching payment")
)

// Result describes what a callback did.
type Result struct {
	Provider  string `json:"provider"`
	Outcome   string `json:"outcome"`
	PaymentID string `json:"payment_id,omitempty"`
}

// ProvidersFromConfig enables every provider that has a secret configured.
func ProvidersFromConfig(cfg config.Config) []Provider {
	var out []Provider
	if cfg.StripeWebhookSecret != "" {
		out = append(out, Stripe{Secret: cfg.StripeWebhookSecret})
	}
	if cfg.YooKassaSecret != "" {
		out = append(out, YooKassa{SignedBody{Secret: cfg.YooKassaSecret}})
	}
	if cfg.QiwiSecret != "" {
		out = append(out, Qiwi{SignedBody{Secret: cfg.QiwiSecret}})
	}
	if cfg.TinkoffPassword != "" {
		out = append(out, Tinkoff{Password: cfg.TinkoffPassword})
	}
	return out
}

type Processor struct {
	providers map[string]Provider
	backend   backend.Backend
	bus       *notification.Bus
	audit     audit.Logger
	logger    *slog.Logger
}

func NewProcessor(be backend.Backend, bus *notification.Bus, auditLog audit.Logger, logger *slog.Logger, providers ...Provider) *Processor {
	if auditLog == nil {
		auditLog = audit.Discard{}
	}
	p := &Processor{providers: make(map[string]Provider), backend: be, bus: bus, audit: auditLog, logger: logger}
	for _, pr := range providers {
		p.providers[pr.Name()] = pr
	}
	return p
}

// Handle verifies and applies one callback of provider.
func (p *Processor) Handle(ctx context.Context, provider string, body []byte, header func(string) string) (Result, error) {
	pr, ok := p.providers[provider]
	if !ok {
		return Result{}, ErrUnknownProvider
	}
	if err := pr.Verify(body, header); err != nil {
		p.logger.Warn("webhook signature rejected", slog.String("provider", provider))
		return Result{}, err
	}
	n, err := pr.Parse(body)
	if err != nil {
		return Result{}, err
	}
	res := Result{Provider: provider, Outcome: n.Outcome.String()}
	if n.Outcome == Ignored {
		return res, nil
	}

	payment, err := p.match(ctx, n)
	if err != nil {
		return res, err
	}
	res.PaymentID = payment.ID

	log := p.logger.With(slog.String("provider", provider), slog.String("payment_id", payment.ID), slog.String("external_id", n.ExternalID))
	event := notification.Event{
		TelegramID: payment.TelegramID,
		PaymentID:  payment.ID,
		Amount:     payment.Amount,
		Currency:   payment.Currency,
	}

	switch n.Outcome {
	case Succeeded:
		vr, err := p.backend.VerifyPayment(ctx, payment.ID, true)
		if err != nil {
			return res, fmt.Errorf("verify payment: %w", err)
		}
		event.Topic = notification.TopicPaymentVerified
		event.AccessLink = vr.AccessLink
		event.ExpiresAt = vr.ExpiresAt
	case Failed:
		reason := fmt.Sprintf("%s reported %s", provider, n.Event)
		if err := p.backend.RejectPayment(ctx, payment.ID, reason); err != nil {
			return res, fmt.Errorf("reject payment: %w", err)
		}
		event.Topic = notification.TopicPaymentRejected
		event.Reason = reason
	}

	log.Info("webhook applied", slog.String("outcome", res.Outcome))
	p.audit.Log(payment.TelegramID, ActionWebhookProcessed, map[string]any{
		"provider":   provider,
		"payment_id": payment.ID,
		"amount":     n.Amount,
		"outcome":    res.Outcome,
	})
	p.bus.Publish(ctx, event)
	return res, nil
}

// match finds the payment by echoed id, then by the newest pending payment
// of the user with the same amount.
func (p *Processor) match(ctx context.Context, n Notice) (backend.Payment, error) {
	if n.PaymentID != "" {
		payment, err := p.backend.GetPayment(ctx, n.PaymentID)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, backend.ErrNotFound) {
			return backend.Payment{}, err
		}
	}
	if n.TelegramID == 0 {
		return backend.Payment{}, ErrNoPayment
	}
	payments, err := p.backend.GetUserPayments(ctx, n.TelegramID)
	if err != nil {
		return backend.Payment{}, err
	}
	for _, payment := range payments {
		if payment.Status == backend.PaymentPending && payment.Amount == n.Amount {
			return payment, nil
		}
	}
	return backend.Payment{}, ErrNoPayment
}
