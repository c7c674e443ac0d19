package notification

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Type classifies a notification for display.
type Type string

const (
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
	TypeInfo    Type = "info"
	TypeError   Type = "error"
)

// MaxRetained is the number of notifications kept per user.
const MaxRetained = 50

// Action is an optional call to action attached to a notification.
type Action struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Notification is one entry of a user's notification list.
type Notification struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
	Action    *Action   `json:"action,omitempty"`
}

// Draft is a notification before it is stored.
type Draft struct {
	Type    Type
	Title   string
	Message string
	Action  *Action
}

// Payment statuses understood by PaymentDraft.
const (
	PaymentSucceeded = "success"
	PaymentPending   = "pending"
	PaymentFailed    = "failed"
)

// PaymentDraft describes a change of a payment's status.
func PaymentDraft(status string, amount int64, currency string) Draft {
	switch status {
	case PaymentSucceeded:
		return Draft{
			Type:    TypeSuccess,
			Title:   "Payment confirmed",
			Message: fmt.Sprintf("Your payment of %d %s was confirmed. VIP access is active.", amount, currency),
			Action:  &Action{Label: "Open dashboard", URL: "/dashboard"},
		}
	case PaymentPending:
		return Draft{
			Type:    TypeInfo,
			Title:   "Payment under review",
			Message: fmt.Sprintf("Your payment of %d %s is being checked.", amount, currency),
		}
	default:
		return Draft{
			Type:    TypeError,
			Title:   "Payment failed",
			Message: fmt.Sprintf("Your payment of %d %s was not confirmed. Please upload a new screenshot.", amount, currency),
			Action:  &Action{Label: "Try again", URL: "/payment"},
		}
	}
}

// AccessDraft reminds the user about VIP expiry: a warning when three days
// or less remain, informational otherwise.
func AccessDraft(expiresAt, now time.Time) Draft {
	days := int(math.Ceil(expiresAt.Sub(now).Hours() / 24))
	if days <= 3 {
		return Draft{
			Type:    TypeWarning,
			Title:   "VIP access expiring",
			Message: fmt.Sprintf("Your VIP access expires in %d day(s). Renew it to keep access.", days),
			Action:  &Action{Label: "Renew", URL: "/payment"},
		}
	}
	return Draft{
		Type:    TypeInfo,
		Title:   "VIP access active",
		Message: fmt.Sprintf("Your VIP access is valid until %s.", expiresAt.Format("02.01.2006")),
	}
}

// WelcomeDraft greets a new member.
func WelcomeDraft() Draft {
	return Draft{
		Type:    TypeInfo,
		Title:   "Welcome to the VIP club",
		Message: "Thanks for joining. Check the documentation to get started.",
		Action:  &Action{Label: "Read docs", URL: "/docs"},
	}
}

// SystemDraft is a generic system announcement.
func SystemDraft(title, message string, t Type) Draft {
	if t == "" {
		t = TypeInfo
	}
	return Draft{Type: t, Title: title, Message: message}
}

// BadgeLabel renders the unread counter.
func BadgeLabel(unread int) string {
	if unread > 99 {
		return "99+"
	}
	return strconv.Itoa(unread)
}
