// Package admin implements the back office: user and payment tables,
// moderation actions, statistics, exports and club settings.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/vip-club/vip_club/internal/audit"
	"github.com/vip-club/vip_club/internal/backend"
	"github.com/vip-club/vip_club/internal/listview"
	"github.com/vip-club/vip_club/internal/notification"
	"github.com/vip-club/vip_club/internal/settings"
	"github.com/vip-club/vip_club/internal/validate"
)

// LogRetention is the age after which user actions are purged by ClearLogs.
const LogRetention = 30 * 24 * time.Hour

// SessionResetter drops every in-flight payment wizard.
type SessionResetter interface {
	ResetAll() int
}

var UsersSchema = listview.Schema[backend.Profile]{
	SearchFields: []func(backend.Profile) string{
		func(p backend.Profile) string { return p.Username },
		func(p backend.Profile) string { return p.FullName },
		func(p backend.Profile) string { return strconv.FormatInt(p.TelegramID, 10) },
	},
	// No Status or Date: a user search matches whatever filters the table carries.
	Sort: map[string]listview.Key[backend.Profile]{
		"created_at": listview.TimeKey(func(p backend.Profile) time.Time { return p.CreatedAt }),
		"access_expires_at": listview.TimeKey(func(p backend.Profile) time.Time {
			if p.AccessExpiresAt == nil {
				return time.Time{}
			}
			return *p.AccessExpiresAt
		}),
		"username":       listview.StringKey(func(p backend.Profile) string { return p.Username }),
		"total_payments": listview.NumberKey(func(p backend.Profile) float64 { return float64(p.TotalPayments) }),
	},
}

var PaymentsSchema = listview.Schema[backend.Payment]{
	SearchFields: []func(backend.Payment) string{
		func(p backend.Payment) string { return p.Username },
		func(p backend.Payment) string { return strconv.FormatInt(p.TelegramID, 10) },
	},
	Status: func(p backend.Payment) string { return string(p.Status) },
	Date:   func(p backend.Payment) time.Time { return p.CreatedAt },
	Sort: map[string]listview.Key[backend.Payment]{
		"created_at": listview.TimeKey(func(p backend.Payment) time.Time { return p.CreatedAt }),
		"amount":     listview.NumberKey(func(p backend.Payment) float64 { return float64(p.Amount) }),
		"status":     listview.StringKey(func(p backend.Payment) string { return string(p.Status) }),
		"username":   listview.StringKey(func(p backend.Payment) string { return p.Username }),
	},
}

type Stats struct {
	TotalUsers      int    `json:"total_users"`
	VIPUsers        int    `json:"vip_users"`
	PendingPayments int    `json:"pending_payments"`
	TotalRevenue    int64  `json:"total_revenue"`
	RevenueLabel    string `json:"revenue_label"`
}

type Options struct {
	Backend  backend.Backend
	Settings settings.Store
	Sessions SessionResetter
	Bus      *notification.Bus
	Audit    audit.Logger
	Logger   *slog.Logger
	Now      func() time.Time
	Location *time.Location
}

type Service struct {
	opts      Options
	validator *validate.Validator
}

func NewService(opts Options) *Service {
	if opts.Audit == nil {
		opts.Audit = audit.Discard{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Service{opts: opts, validator: validate.New()}
}

func (s *Service) Users(ctx context.Context, st listview.State) (listview.Page[backend.Profile], error) {
	users, err := s.opts.Backend.ListUsers(ctx)
	if err != nil {
		return listview.Page[backend.Profile]{}, fmt.Errorf("list users: %w", err)
	}
	return listview.Apply(users, UsersSchema, st, s.opts.Now(), s.opts.Location), nil
}

func (s *Service) Payments(ctx context.Context, st listview.State) (listview.Page[backend.Payment], error) {
	payments, err := s.opts.Backend.ListPayments(ctx)
	if err != nil {
		return listview.Page[backend.Payment]{}, fmt.Errorf("list payments: %w", err)
	}
	return listview.Apply(payments, PaymentsSchema, st, s.opts.Now(), s.opts.Location), nil
}

// ApprovePayment verifies a pending payment and issues its access link.
func (s *Service) ApprovePayment(ctx context.Context, paymentID string) (backend.VerifyResult, error) {
	p, err := s.opts.Backend.GetPayment(ctx, paymentID)
	if err != nil {
		return backend.VerifyResult{}, err
	}
	res, err := s.opts.Backend.VerifyPayment(ctx, paymentID, true)
	if err != nil {
		return backend.VerifyResult{}, err
	}
	s.opts.Audit.Log(p.TelegramID, audit.ActionAdminApproved, map[string]any{"payment_id": paymentID})
	s.opts.Bus.Publish(ctx, notification.Event{
		Topic:      notification.TopicPaymentVerified,
		TelegramID: p.TelegramID,
		PaymentID:  p.ID,
		Amount:     p.Amount,
		Currency:   p.Currency,
		AccessLink: res.AccessLink,
		ExpiresAt:  res.ExpiresAt,
	})
	return res, nil
}

func (s *Service) RejectPayment(ctx context.Context, paymentID, reason string) error {
	p, err := s.opts.Backend.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	if err := s.opts.Backend.RejectPayment(ctx, paymentID, reason); err != nil {
		return err
	}
	s.opts.Audit.Log(p.TelegramID, audit.ActionAdminRejected, map[string]any{"payment_id": paymentID, "reason": reason})
	s.opts.Bus.Publish(ctx, notification.Event{
		Topic:      notification.TopicPaymentRejected,
		TelegramID: p.TelegramID,
		PaymentID:  p.ID,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Reason:     reason,
	})
	return nil
}

func (s *Service) GrantVIP(ctx context.Context, userID string) error {
	if err := s.opts.Backend.GrantVIPAccess(ctx, userID); err != nil {
		return err
	}
	p, err := s.profile(ctx, userID)
	if err != nil {
		return err
	}
	s.opts.Audit.Log(p.TelegramID, audit.ActionAdminGrantedVIP, map[string]any{"user_id": userID})
	s.opts.Bus.Publish(ctx, notification.Event{
		Topic:      notification.TopicAccessGranted,
		TelegramID: p.TelegramID,
		ExpiresAt:  p.AccessExpiresAt,
	})
	return nil
}

func (s *Service) RevokeVIP(ctx context.Context, userID string) error {
	if err := s.opts.Backend.RevokeVIPAccess(ctx, userID); err != nil {
		return err
	}
	p, err := s.profile(ctx, userID)
	if err != nil {
		return err
	}
	s.opts.Audit.Log(p.TelegramID, audit.ActionAdminRevokedVIP, map[string]any{"user_id": userID})
	s.opts.Bus.Publish(ctx, notification.Event{Topic: notification.TopicAccessRevoked, TelegramID: p.TelegramID})
	return nil
}

func (s *Service) profile(ctx context.Context, userID string) (backend.Profile, error) {
	users, err := s.opts.Backend.ListUsers(ctx)
	if err != nil {
		return backend.Profile{}, err
	}
	for _, u := range users {
		if u.ID == userID {
			return u, nil
		}
	}
	return backend.Profile{}, backend.ErrNotFound
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	users, err := s.opts.Backend.ListUsers(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list users: %w", err)
	}
	payments, err := s.opts.Backend.ListPayments(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list payments: %w", err)
	}

	now := s.opts.Now()
	st := Stats{TotalUsers: len(users)}
	for _, u := range users {
		if u.HasActiveAccess(now) {
			st.VIPUsers++
		}
	}
	currency := ""
	for _, p := range payments {
		switch p.Status {
		case backend.PaymentPending:
			st.PendingPayments++
		case backend.PaymentVerified:
			st.TotalRevenue += p.Amount
			currency = p.Currency
		}
	}
	if currency == "" {
		if cur, err := s.opts.Settings.Current(ctx); err == nil {
			currency = cur.Currency
		}
	}
	st.RevenueLabel = backend.FormatPrice(st.TotalRevenue, currency)
	return st, nil
}

// ResetSessions drops every in-flight payment wizard.
func (s *Service) ResetSessions() int {
	if s.opts.Sessions == nil {
		return 0
	}
	n := s.opts.Sessions.ResetAll()
	s.opts.Logger.Info("wizard sessions reset", slog.Int("count", n))
	return n
}

// ClearLogs purges user actions older than LogRetention.
func (s *Service) ClearLogs(ctx context.Context) (int64, error) {
	n, err := s.opts.Backend.PurgeUserActions(ctx, s.opts.Now().Add(-LogRetention))
	if err != nil {
		return 0, err
	}
	s.opts.Logger.Info("user actions purged", slog.Int64("count", n))
	return n, nil
}

// Actions returns the most recent user actions.
func (s *Service) Actions(ctx context.Context, limit int) ([]backend.UserAction, error) {
	return s.opts.Backend.ListUserActions(ctx, limit)
}

func (s *Service) Settings(ctx context.Context) (settings.Settings, error) {
	return s.opts.Settings.Current(ctx)
}

// UpdateSettings validates and stores v. Validation failures wrap
// settings.ErrInvalid and carry a *validate.ValidationError.
func (s *Service) UpdateSettings(ctx context.Context, v settings.Settings) (settings.Settings, error) {
	if err := s.validator.Struct(v); err != nil {
		return settings.Settings{}, fmt.Errorf("%w: %w", settings.ErrInvalid, err)
	}
	if err := s.opts.Settings.Save(ctx, v); err != nil {
		return settings.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return v, nil
}
