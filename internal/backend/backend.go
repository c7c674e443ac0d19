// Package backend is the data-access layer of the club: profiles, payments,
// access links and the user action log. Postgres is the production
// implementation and Memory the fake used by tests and local development.
package backend

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vip-club/vip_club/internal/blob"
	"github.com/vip-club/vip_club/internal/settings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidState  = errors.New("invalid payment state")
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrUpload        = errors.New("screenshot upload failed")
)

// ServiceError wraps every failure returned by a Backend with the operation name.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *ServiceError) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	return &ServiceError{Op: op, Err: err}
}

// Backend is the set of operations the club needs from its data store.
type Backend interface {
	ListUsers(ctx context.Context) ([]Profile, error)
	ListPayments(ctx context.Context) ([]Payment, error)
	GetPayment(ctx context.Context, id string) (Payment, error)
	CreatePayment(ctx context.Context, telegramID, amount int64, currency, method string) (Payment, error)
	UploadScreenshot(ctx context.Context, file File, telegramID int64) (Upload, error)
	UpdatePaymentScreenshot(ctx context.Context, paymentID, url string) error
	VerifyPayment(ctx context.Context, paymentID string, approve bool) (VerifyResult, error)
	RejectPayment(ctx context.Context, paymentID, reason string) error
	GrantVIPAccess(ctx context.Context, userID string) error
	RevokeVIPAccess(ctx context.Context, userID string) error
	EnsureProfile(ctx context.Context, telegramID int64, username, fullName string) (Profile, error)
	GetUserProfile(ctx context.Context, telegramID int64) (*Profile, error)
	GetUserPayments(ctx context.Context, telegramID int64) ([]Payment, error)
	GetUserAccessLinks(ctx context.Context, profileID string) ([]AccessLink, error)
	GetAccessLink(ctx context.Context, id string) (AccessLink, error)
	CheckVIPAccess(ctx context.Context, telegramID int64) (VIPAccess, error)
	LogUserAction(ctx context.Context, telegramID int64, action string, metadata map[string]any) error
	ListUserActions(ctx context.Context, limit int) ([]UserAction, error)
	PurgeUserActions(ctx context.Context, before time.Time) (int64, error)
}

// Options tunes both Backend implementations.
type Options struct {
	// AccessLinkBase is prefixed to the generated access code.
	AccessLinkBase string
	// Settings supplies the VIP duration. Defaults apply when nil.
	Settings settings.Provider
	Now      func() time.Time
}

func (o Options) withDefaults() Options {
	if o.AccessLinkBase == "" {
		o.AccessLinkBase = "https://t.me/+"
	}
	if o.Settings == nil {
		o.Settings = settings.Static(settings.Defaults())
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

func (o Options) duration(ctx context.Context) (time.Duration, error) {
	s, err := o.Settings.Current(ctx)
	if err != nil {
		return 0, err
	}
	return s.Duration(), nil
}

func (o Options) newLink(userID string, now time.Time, d time.Duration) (AccessLink, error) {
	code, err := newAccessCode()
	if err != nil {
		return AccessLink{}, err
	}
	return AccessLink{
		ID:         uuid.NewString(),
		UserID:     userID,
		AccessCode: code,
		LinkURL:    o.AccessLinkBase + code,
		CreatedAt:  now,
		ExpiresAt:  now.Add(d),
	}, nil
}

// newAccessCode returns 32 random bytes encoded URL-safe without padding.
func newAccessCode() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate access code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// extendExpiry adds d to the later of now and the current expiry so renewals
// never shorten remaining access.
func extendExpiry(now time.Time, current *time.Time, d time.Duration) time.Time {
	start := now
	if current != nil && current.After(now) {
		start = *current
	}
	return start.Add(d)
}

func accessFor(p *Profile, now time.Time) VIPAccess {
	switch {
	case p == nil:
		return VIPAccess{Reason: ReasonNoProfile}
	case !p.VIPAccess:
		return VIPAccess{Reason: ReasonNoVIP}
	case p.AccessExpiresAt == nil || !p.AccessExpiresAt.After(now):
		return VIPAccess{ExpiresAt: p.AccessExpiresAt, Reason: ReasonExpired}
	default:
		return VIPAccess{HasAccess: true, ExpiresAt: p.AccessExpiresAt}
	}
}

// screenshotPath builds the blob path for a new screenshot of telegramID.
func screenshotPath(telegramID int64, name string) string {
	ext := strings.ToLower(path.Ext(name))
	if len(ext) > 6 {
		ext = ""
	}
	return fmt.Sprintf("screenshots/%d/%s%s", telegramID, uuid.NewString(), ext)
}

var currencySymbols = map[string]string{
	"RUB": "₽",
	"USD": "$",
	"EUR": "€",
}

// FormatPrice renders an amount with the currency symbol, e.g. "500 ₽".
func FormatPrice(amount int64, currency string) string {
	if sym, ok := currencySymbols[strings.ToUpper(currency)]; ok {
		currency = sym
	}
	return fmt.Sprintf("%d %s", amount, currency)
}

func storeScreenshot(ctx context.Context, blobs blob.Store, file File, telegramID int64) (Upload, error) {
	if file.Body == nil {
		return Upload{}, fmt.Errorf("%w: empty file", ErrUpload)
	}
	p := screenshotPath(telegramID, file.Name)
	url, err := blobs.Save(ctx, p, file.Body)
	if err != nil {
		return Upload{}, fmt.Errorf("%w: %v", ErrUpload, err)
	}
	return Upload{URL: url, Path: p}, nil
}
