// Package dashboard assembles the personal page of a club member.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/vip-club/vip_club/internal/audit"
	"github.com/vip-club/vip_club/internal/backend"
)

// QRSize is the edge length of generated QR codes in pixels.
const QRSize = 256

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrLinkNotFound    = errors.New("access link not found")
)

type Dashboard struct {
	Profile     backend.Profile      `json:"profile"`
	Payments    []backend.Payment    `json:"payments"`
	AccessLinks []backend.AccessLink `json:"access_links"`
	Access      backend.VIPAccess    `json:"access"`
	PriceLabels map[string]string    `json:"price_labels"`
}

type Service struct {
	backend backend.Backend
	audit   audit.Logger
	now     func() time.Time
}

func NewService(be backend.Backend, auditLog audit.Logger) *Service {
	if auditLog == nil {
		auditLog = audit.Discard{}
	}
	return &Service{backend: be, audit: auditLog, now: time.Now}
}

// Load gathers everything the dashboard shows for telegramID.
func (s *Service) Load(ctx context.Context, telegramID int64) (Dashboard, error) {
	profile, err := s.backend.GetUserProfile(ctx, telegramID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil {
		return Dashboard{}, ErrProfileNotFound
	}
	payments, err := s.backend.GetUserPayments(ctx, telegramID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("load payments: %w", err)
	}
	links, err := s.backend.GetUserAccessLinks(ctx, profile.ID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("load access links: %w", err)
	}
	access, err := s.backend.CheckVIPAccess(ctx, telegramID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("check access: %w", err)
	}

	labels := make(map[string]string, len(payments))
	for _, p := range payments {
		labels[p.ID] = backend.FormatPrice(p.Amount, p.Currency)
	}
	if payments == nil {
		payments = []backend.Payment{}
	}
	if links == nil {
		links = []backend.AccessLink{}
	}

	s.audit.Log(telegramID, audit.ActionDashboardViewed, nil)
	return Dashboard{
		Profile:     *profile,
		Payments:    payments,
		AccessLinks: links,
		Access:      access,
		PriceLabels: labels,
	}, nil
}

// Access reports the VIP status of telegramID.
func (s *Service) Access(ctx context.Context, telegramID int64) (backend.VIPAccess, error) {
	return s.backend.CheckVIPAccess(ctx, telegramID)
}

// Register creates or refreshes the profile of a bot user.
func (s *Service) Register(ctx context.Context, telegramID int64, username, fullName string) (backend.Profile, error) {
	return s.backend.EnsureProfile(ctx, telegramID, username, fullName)
}

// LinkQR renders the access link linkID of telegramID as a PNG. Links of
// other users are reported as missing.
func (s *Service) LinkQR(ctx context.Context, telegramID int64, linkID string) ([]byte, error) {
	profile, err := s.backend.GetUserProfile(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil {
		return nil, ErrProfileNotFound
	}
	link, err := s.backend.GetAccessLink(ctx, linkID)
	if errors.Is(err, backend.ErrNotFound) || (err == nil && link.UserID != profile.ID) {
		return nil, ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load access link: %w", err)
	}
	png, err := qrcode.Encode(link.LinkURL, qrcode.Medium, QRSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
