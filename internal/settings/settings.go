// Package settings holds the operator-tunable club settings: VIP price,
// access duration and notification toggles.
package settings

import (
	"context"
	"errors"
	"time"
)

// ErrInvalid is returned when a settings update fails validation.
var ErrInvalid = errors.New("invalid settings")

// Notifications toggles the admin notification channels.
type Notifications struct {
	NewPayments   bool `json:"new_payments"`
	VIPExpiration bool `json:"vip_expiration"`
	DailyReports  bool `json:"daily_reports"`
}

// Settings is the persisted club configuration.
type Settings struct {
	VIPPrice        int64         `json:"vip_price" validate:"gt=0"`
	Currency        string        `json:"currency" validate:"required,max=8"`
	VIPDurationDays int           `json:"vip_duration_days" validate:"min=1,max=365"`
	Notifications   Notifications `json:"notifications"`
}

// Defaults returns the settings used before an operator saves any.
func Defaults() Settings {
	return Settings{
		VIPPrice:        500,
		Currency:        "₽",
		VIPDurationDays: 30,
		Notifications: Notifications{
			NewPayments:   true,
			VIPExpiration: true,
		},
	}
}

// Duration returns the VIP access period.
func (s Settings) Duration() time.Duration {
	return time.Duration(s.VIPDurationDays) * 24 * time.Hour
}

// Provider exposes the current settings.
type Provider interface {
	Current(ctx context.Context) (Settings, error)
}

// Store persists settings.
type Store interface {
	Provider
	Save(ctx context.Context, s Settings) error
}

// Static is a Provider that always returns the same value.
type Static Settings

// Current returns s.
func (s Static) Current(context.Context) (Settings, error) { return Settings(s), nil }
