package backend

import (
	"io"
	"time"
)

// PaymentStatus enumerates the lifecycle states of a payment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentVerified PaymentStatus = "verified"
	PaymentRejected PaymentStatus = "rejected"
)

// MethodManual tags payments made by manual transfer with a screenshot proof.
const MethodManual = "manual"

// Payment is a single purchase of VIP access.
type Payment struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	TelegramID      int64         `json:"telegram_id"`
	Username        string        `json:"username,omitempty"`
	Amount          int64         `json:"amount"`
	Currency        string        `json:"currency"`
	Method          string        `json:"payment_method"`
	Status          PaymentStatus `json:"status"`
	ScreenshotURL   string        `json:"screenshot_url,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	VerifiedAt      *time.Time    `json:"verified_at,omitempty"`
}

// Profile is a club member keyed by their Telegram account.
type Profile struct {
	ID              string     `json:"id"`
	TelegramID      int64      `json:"telegram_id"`
	Username        string     `json:"username,omitempty"`
	FullName        string     `json:"full_name,omitempty"`
	VIPAccess       bool       `json:"vip_access"`
	AccessExpiresAt *time.Time `json:"access_expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	TotalPayments   int        `json:"total_payments"`
}

// HasActiveAccess reports whether the VIP flag is set and the expiry lies after now.
func (p Profile) HasActiveAccess(now time.Time) bool {
	return p.VIPAccess && p.AccessExpiresAt != nil && p.AccessExpiresAt.After(now)
}

// AccessLink grants entry to the private channel after a verified payment.
type AccessLink struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	AccessCode string     `json:"access_code"`
	LinkURL    string     `json:"link_url"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
}

// Active reports whether the link is unused and not yet expired.
func (l AccessLink) Active(now time.Time) bool {
	return l.UsedAt == nil && l.ExpiresAt.After(now)
}

// VerifyResult is the outcome of VerifyPayment.
type VerifyResult struct {
	Success    bool        `json:"success"`
	AccessLink string      `json:"access_link,omitempty"`
	ExpiresAt  *time.Time  `json:"expires_at,omitempty"`
	Link       *AccessLink `json:"-"`
}

// Reasons reported by CheckVIPAccess.
const (
	ReasonNoProfile = "no_profile"
	ReasonNoVIP     = "no_vip"
	ReasonExpired   = "expired"
)

// VIPAccess answers whether a user currently holds VIP access.
type VIPAccess struct {
	HasAccess bool       `json:"has_access"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// Upload references a stored screenshot.
type Upload struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// File is an uploaded screenshot about to be stored.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UserAction is an audit record of something a user did.
type UserAction struct {
	ID         string         `json:"id"`
	TelegramID int64          `json:"telegram_id"`
	Action     string         `json:"action"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
