package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vip-club/vip_club/internal/blob"
)

// Memory is an in-process Backend. Records are returned newest first, ties
// broken by reverse insertion order.
type Memory struct {
	mu         sync.RWMutex
	profiles   map[string]*Profile
	byTelegram map[int64]string
	userOrder  []string
	payments   map[string]*Payment
	payOrder   []string
	links      map[string]*AccessLink
	linkOrder  []string
	actions    []UserAction

	blobs blob.Store
	opts  Options
}

// NewMemory builds an empty in-memory backend storing screenshots in blobs.
func NewMemory(blobs blob.Store, opts Options) *Memory {
	return &Memory{
		profiles:   make(map[string]*Profile),
		byTelegram: make(map[int64]string),
		payments:   make(map[string]*Payment),
		links:      make(map[string]*AccessLink),
		blobs:      blobs,
		opts:       opts.withDefaults(),
	}
}

func (m *Memory) ListUsers(_ context.Context) ([]Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Profile, 0, len(m.userOrder))
	for i := len(m.userOrder) - 1; i >= 0; i-- {
		out = append(out, *m.profiles[m.userOrder[i]])
	}
	return out, nil
}

func (m *Memory) ListPayments(_ context.Context) ([]Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Payment, 0, len(m.payOrder))
	for i := len(m.payOrder) - 1; i >= 0; i-- {
		out = append(out, m.paymentView(m.payments[m.payOrder[i]]))
	}
	return out, nil
}

func (m *Memory) GetPayment(_ context.Context, id string) (Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok {
		return Payment{}, wrap("get payment", ErrNotFound)
	}
	return m.paymentView(p), nil
}

// paymentView copies p and joins the owner's username. Caller holds mu.
func (m *Memory) paymentView(p *Payment) Payment {
	out := *p
	if prof, ok := m.profiles[p.UserID]; ok {
		out.Username = prof.Username
	}
	return out
}

func (m *Memory) CreatePayment(_ context.Context, telegramID, amount int64, currency, method string) (Payment, error) {
	if amount <= 0 {
		return Payment{}, wrap("create payment", ErrInvalidAmount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prof := m.ensureProfileLocked(telegramID, "", "")
	p := &Payment{
		ID:         uuid.NewString(),
		UserID:     prof.ID,
		TelegramID: telegramID,
		Amount:     amount,
		Currency:   currency,
		Method:     method,
		Status:     PaymentPending,
		CreatedAt:  m.opts.Now(),
	}
	m.payments[p.ID] = p
	m.payOrder = append(m.payOrder, p.ID)
	return m.paymentView(p), nil
}

func (m *Memory) UploadScreenshot(ctx context.Context, file File, telegramID int64) (Upload, error) {
	up, err := storeScreenshot(ctx, m.blobs, file, telegramID)
	return up, wrap("upload screenshot", err)
}

func (m *Memory) UpdatePaymentScreenshot(_ context.Context, paymentID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return wrap("update payment screenshot", ErrNotFound)
	}
	if p.Status != PaymentPending {
		return wrap("update payment screenshot", ErrInvalidState)
	}
	p.ScreenshotURL = url
	return nil
}

func (m *Memory) VerifyPayment(ctx context.Context, paymentID string, approve bool) (VerifyResult, error) {
	const op = "verify payment"
	d, err := m.opts.duration(ctx)
	if err != nil {
		return VerifyResult{}, wrap(op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return VerifyResult{}, wrap(op, ErrNotFound)
	}
	if !approve {
		return VerifyResult{Success: false}, nil
	}
	if p.Status != PaymentPending || p.ScreenshotURL == "" {
		return VerifyResult{}, wrap(op, fmt.Errorf("%w: status %s", ErrInvalidState, p.Status))
	}
	prof, ok := m.profiles[p.UserID]
	if !ok {
		return VerifyResult{}, wrap(op, ErrNotFound)
	}

	now := m.opts.Now()
	link, err := m.opts.newLink(prof.ID, now, d)
	if err != nil {
		return VerifyResult{}, wrap(op, err)
	}

	p.Status = PaymentVerified
	p.VerifiedAt = &now

	expires := extendExpiry(now, prof.AccessExpiresAt, d)
	prof.VIPAccess = true
	prof.AccessExpiresAt = &expires
	prof.TotalPayments++

	m.links[link.ID] = &link
	m.linkOrder = append(m.linkOrder, link.ID)

	return VerifyResult{Success: true, AccessLink: link.LinkURL, ExpiresAt: &link.ExpiresAt, Link: &link}, nil
}

func (m *Memory) RejectPayment(_ context.Context, paymentID, reason string) error {
	const op = "reject payment"
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return wrap(op, ErrNotFound)
	}
	if p.Status != PaymentPending || p.ScreenshotURL == "" {
		return wrap(op, fmt.Errorf("%w: status %s", ErrInvalidState, p.Status))
	}
	p.Status = PaymentRejected
	p.RejectionReason = reason
	return nil
}

func (m *Memory) GrantVIPAccess(ctx context.Context, userID string) error {
	d, err := m.opts.duration(ctx)
	if err != nil {
		return wrap("grant vip access", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prof, ok := m.profiles[userID]
	if !ok {
		return wrap("grant vip access", ErrNotFound)
	}
	expires := m.opts.Now().Add(d)
	prof.VIPAccess = true
	prof.AccessExpiresAt = &expires
	return nil
}

func (m *Memory) RevokeVIPAccess(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prof, ok := m.profiles[userID]
	if !ok {
		return wrap("revoke vip access", ErrNotFound)
	}
	prof.VIPAccess = false
	prof.AccessExpiresAt = nil
	return nil
}

func (m *Memory) EnsureProfile(_ context.Context, telegramID int64, username, fullName string) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.ensureProfileLocked(telegramID, username, fullName), nil
}

// ensureProfileLocked returns the profile for telegramID, creating it when
// missing and filling non-empty names. Caller holds mu.
func (m *Memory) ensureProfileLocked(telegramID int64, username, fullName string) *Profile {
	if id, ok := m.byTelegram[telegramID]; ok {
		prof := m.profiles[id]
		if username != "" {
			prof.Username = username
		}
		if fullName != "" {
			prof.FullName = fullName
		}
		return prof
	}
	prof := &Profile{
		ID:         uuid.NewString(),
		TelegramID: telegramID,
		Username:   username,
		FullName:   fullName,
		CreatedAt:  m.opts.Now(),
	}
	m.profiles[prof.ID] = prof
	m.byTelegram[telegramID] = prof.ID
	m.userOrder = append(m.userOrder, prof.ID)
	return prof
}

func (m *Memory) GetUserProfile(_ context.Context, telegramID int64) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byTelegram[telegramID]
	if !ok {
		return nil, nil
	}
	prof := *m.profiles[id]
	return &prof, nil
}

func (m *Memory) GetUserPayments(_ context.Context, telegramID int64) ([]Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Payment
	for i := len(m.payOrder) - 1; i >= 0; i-- {
		p := m.payments[m.payOrder[i]]
		if p.TelegramID == telegramID {
			out = append(out, m.paymentView(p))
		}
	}
	return out, nil
}

func (m *Memory) GetUserAccessLinks(_ context.Context, profileID string) ([]AccessLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []AccessLink
	for i := len(m.linkOrder) - 1; i >= 0; i-- {
		l := m.links[m.linkOrder[i]]
		if l.UserID == profileID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *Memory) GetAccessLink(_ context.Context, id string) (AccessLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.links[id]
	if !ok {
		return AccessLink{}, wrap("get access link", ErrNotFound)
	}
	return *l, nil
}

func (m *Memory) CheckVIPAccess(_ context.Context, telegramID int64) (VIPAccess, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var prof *Profile
	if id, ok := m.byTelegram[telegramID]; ok {
		prof = m.profiles[id]
	}
	return accessFor(prof, m.opts.Now()), nil
}

func (m *Memory) LogUserAction(_ context.Context, telegramID int64, action string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, UserAction{
		ID:         uuid.NewString(),
		TelegramID: telegramID,
		Action:     action,
		Metadata:   metadata,
		CreatedAt:  m.opts.Now(),
	})
	return nil
}

func (m *Memory) ListUserActions(_ context.Context, limit int) ([]UserAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]UserAction, 0, len(m.actions))
	for i := len(m.actions) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.actions[i])
	}
	return out, nil
}

func (m *Memory) PurgeUserActions(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.actions[:0]
	var purged int64
	for _, a := range m.actions {
		if a.CreatedAt.Before(before) {
			purged++
			continue
		}
		kept = append(kept, a)
	}
	m.actions = kept
	return purged, nil
}
