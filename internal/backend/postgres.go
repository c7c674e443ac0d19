package backend

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vip-club/vip_club/internal/blob"
)

//go:embed schema.sql
var schema string

var (
	_ Backend = (*Postgres)(nil)
	_ Backend = (*Memory)(nil)
)

// Migrate applies the embedded schema. Statements are idempotent.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Postgres implements Backend on PostgreSQL with screenshots kept in a blob.Store.
type Postgres struct {
	db    *pgxpool.Pool
	blobs blob.Store
	opts  Options
}

// NewPostgres constructs a Postgres-backed Backend.
func NewPostgres(db *pgxpool.Pool, blobs blob.Store, opts Options) *Postgres {
	return &Postgres{db: db, blobs: blobs, opts: opts.withDefaults()}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const profileColumns = `id, telegram_id, username, full_name, vip_access, access_expires_at, created_at, total_payments`

func scanProfile(row rowScanner) (Profile, error) {
	var p Profile
	if err := row.Scan(&p.ID, &p.TelegramID, &p.Username, &p.FullName, &p.VIPAccess, &p.AccessExpiresAt, &p.CreatedAt, &p.TotalPayments); err != nil {
		return Profile{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

const paymentSelect = `
    SELECT p.id, p.user_id, p.telegram_id, COALESCE(pr.username, ''), p.amount, p.currency,
           p.payment_method, p.status, p.screenshot_url, p.rejection_reason, p.created_at, p.verified_at
    FROM payments p
    LEFT JOIN profiles pr ON pr.id = p.user_id`

func scanPayment(row rowScanner) (Payment, error) {
	var (
		p      Payment
		status string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.TelegramID, &p.Username, &p.Amount, &p.Currency,
		&p.Method, &status, &p.ScreenshotURL, &p.RejectionReason, &p.CreatedAt, &p.VerifiedAt); err != nil {
		return Payment{}, err
	}
	p.Status = PaymentStatus(status)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

const linkColumns = `id, user_id, access_code, link_url, created_at, expires_at, used_at`

func scanLink(row rowScanner) (AccessLink, error) {
	var l AccessLink
	if err := row.Scan(&l.ID, &l.UserID, &l.AccessCode, &l.LinkURL, &l.CreatedAt, &l.ExpiresAt, &l.UsedAt); err != nil {
		return AccessLink{}, err
	}
	return l, nil
}

func collect[T any](rows pgx.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *Postgres) ListUsers(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.Query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at DESC`)
	if err != nil {
		return nil, wrap("list users", err)
	}
	out, err := collect(rows, scanProfile)
	return out, wrap("list users", err)
}

func (s *Postgres) ListPayments(ctx context.Context) ([]Payment, error) {
	rows, err := s.db.Query(ctx, paymentSelect+` ORDER BY p.created_at DESC`)
	if err != nil {
		return nil, wrap("list payments", err)
	}
	out, err := collect(rows, scanPayment)
	return out, wrap("list payments", err)
}

func (s *Postgres) GetPayment(ctx context.Context, id string) (Payment, error) {
	p, err := scanPayment(s.db.QueryRow(ctx, paymentSelect+` WHERE p.id = $1`, id))
	if err != nil {
		return Payment{}, wrap("get payment", notFound(err))
	}
	return p, nil
}

func (s *Postgres) CreatePayment(ctx context.Context, telegramID, amount int64, currency, method string) (Payment, error) {
	const op = "create payment"
	if amount <= 0 {
		return Payment{}, wrap(op, ErrInvalidAmount)
	}
	prof, err := s.EnsureProfile(ctx, telegramID, "", "")
	if err != nil {
		return Payment{}, wrap(op, err)
	}

	p := Payment{
		ID:         uuid.NewString(),
		UserID:     prof.ID,
		TelegramID: telegramID,
		Username:   prof.Username,
		Amount:     amount,
		Currency:   currency,
		Method:     method,
		Status:     PaymentPending,
		CreatedAt:  s.opts.Now(),
	}
	_, err = s.db.Exec(ctx, `INSERT INTO payments (id, user_id, telegram_id, amount, currency, payment_method, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.UserID, p.TelegramID, p.Amount, p.Currency, p.Method, string(p.Status), p.CreatedAt)
	if err != nil {
		return Payment{}, wrap(op, err)
	}
	return p, nil
}

func (s *Postgres) UploadScreenshot(ctx context.Context, file File, telegramID int64) (Upload, error) {
	up, err := storeScreenshot(ctx, s.blobs, file, telegramID)
	return up, wrap("upload screenshot", err)
}

func (s *Postgres) UpdatePaymentScreenshot(ctx context.Context, paymentID, url string) error {
	const op = "update payment screenshot"
	cmd, err := s.db.Exec(ctx, `UPDATE payments SET screenshot_url = $2 WHERE id = $1 AND status = 'pending'`, paymentID, url)
	if err != nil {
		return wrap(op, err)
	}
	if cmd.RowsAffected() == 0 {
		if _, err := s.GetPayment(ctx, paymentID); err != nil {
			return wrap(op, err)
		}
		return wrap(op, ErrInvalidState)
	}
	return nil
}

// VerifyPayment locks the payment and profile rows, marks the payment
// verified, extends access and issues the access link in one transaction.
func (s *Postgres) VerifyPayment(ctx context.Context, paymentID string, approve bool) (VerifyResult, error) {
	const op = "verify payment"
	if !approve {
		if _, err := s.GetPayment(ctx, paymentID); err != nil {
			return VerifyResult{}, wrap(op, err)
		}
		return VerifyResult{Success: false}, nil
	}

	d, err := s.opts.duration(ctx)
	if err != nil {
		return VerifyResult{}, wrap(op, err)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return VerifyResult{}, wrap(op, err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var (
		userID, status, screenshot string
	)
	err = tx.QueryRow(ctx, `SELECT user_id, status, screenshot_url FROM payments WHERE id = $1 FOR UPDATE`, paymentID).
		Scan(&userID, &status, &screenshot)
	if err != nil {
		return VerifyResult{}, wrap(op, notFound(err))
	}
	if PaymentStatus(status) != PaymentPending || screenshot == "" {
		return VerifyResult{}, wrap(op, fmt.Errorf("%w: status %s", ErrInvalidState, status))
	}

	var current *time.Time
	if err := tx.QueryRow(ctx, `SELECT access_expires_at FROM profiles WHERE id = $1 FOR UPDATE`, userID).Scan(&current); err != nil {
		return VerifyResult{}, wrap(op, notFound(err))
	}

	now := s.opts.Now()
	expires := extendExpiry(now, current, d)
	link, err := s.opts.newLink(userID, now, d)
	if err != nil {
		return VerifyResult{}, wrap(op, err)
	}

	if _, err := tx.Exec(ctx, `UPDATE payments SET status = 'verified', verified_at = $2 WHERE id = $1`, paymentID, now); err != nil {
		return VerifyResult{}, wrap(op, err)
	}
	if _, err := tx.Exec(ctx, `UPDATE profiles SET vip_access = TRUE, access_expires_at = $2, total_payments = total_payments + 1
        WHERE id = $1`, userID, expires); err != nil {
		return VerifyResult{}, wrap(op, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO access_links (`+linkColumns+`) VALUES ($1, $2, $3, $4, $5, $6, NULL)`,
		link.ID, link.UserID, link.AccessCode, link.LinkURL, link.CreatedAt, link.ExpiresAt); err != nil {
		return VerifyResult{}, wrap(op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return VerifyResult{}, wrap(op, err)
	}
	return VerifyResult{Success: true, AccessLink: link.LinkURL, ExpiresAt: &link.ExpiresAt, Link: &link}, nil
}

func (s *Postgres) RejectPayment(ctx context.Context, paymentID, reason string) error {
	const op = "reject payment"
	cmd, err := s.db.Exec(ctx, `UPDATE payments SET status = 'rejected', rejection_reason = $2
        WHERE id = $1 AND status = 'pending' AND screenshot_url <> ''`, paymentID, reason)
	if err != nil {
		return wrap(op, err)
	}
	if cmd.RowsAffected() == 0 {
		if _, err := s.GetPayment(ctx, paymentID); err != nil {
			return wrap(op, err)
		}
		return wrap(op, ErrInvalidState)
	}
	return nil
}

func (s *Postgres) GrantVIPAccess(ctx context.Context, userID string) error {
	const op = "grant vip access"
	d, err := s.opts.duration(ctx)
	if err != nil {
		return wrap(op, err)
	}
	cmd, err := s.db.Exec(ctx, `UPDATE profiles SET vip_access = TRUE, access_expires_at = $2 WHERE id = $1`,
		userID, s.opts.Now().Add(d))
	if err != nil {
		return wrap(op, err)
	}
	if cmd.RowsAffected() == 0 {
		return wrap(op, ErrNotFound)
	}
	return nil
}

func (s *Postgres) RevokeVIPAccess(ctx context.Context, userID string) error {
	const op = "revoke vip access"
	cmd, err := s.db.Exec(ctx, `UPDATE profiles SET vip_access = FALSE, access_expires_at = NULL WHERE id = $1`, userID)
	if err != nil {
		return wrap(op, err)
	}
	if cmd.RowsAffected() == 0 {
		return wrap(op, ErrNotFound)
	}
	return nil
}

func (s *Postgres) EnsureProfile(ctx context.Context, telegramID int64, username, fullName string) (Profile, error) {
	row := s.db.QueryRow(ctx, `INSERT INTO profiles (id, telegram_id, username, full_name, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (telegram_id) DO UPDATE SET
            username = COALESCE(NULLIF(EXCLUDED.username, ''), profiles.username),
            full_name = COALESCE(NULLIF(EXCLUDED.full_name, ''), profiles.full_name)
        RETURNING `+profileColumns,
		uuid.NewString(), telegramID, username, fullName, s.opts.Now())
	p, err := scanProfile(row)
	return p, wrap("ensure profile", err)
}

func (s *Postgres) GetUserProfile(ctx context.Context, telegramID int64) (*Profile, error) {
	p, err := scanProfile(s.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE telegram_id = $1`, telegramID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get user profile", err)
	}
	return &p, nil
}

func (s *Postgres) GetUserPayments(ctx context.Context, telegramID int64) ([]Payment, error) {
	rows, err := s.db.Query(ctx, paymentSelect+` WHERE p.telegram_id = $1 ORDER BY p.created_at DESC`, telegramID)
	if err != nil {
		return nil, wrap("get user payments", err)
	}
	out, err := collect(rows, scanPayment)
	return out, wrap("get user payments", err)
}

func (s *Postgres) GetUserAccessLinks(ctx context.Context, profileID string) ([]AccessLink, error) {
	rows, err := s.db.Query(ctx, `SELECT `+linkColumns+` FROM access_links WHERE user_id = $1 ORDER BY created_at DESC`, profileID)
	if err != nil {
		return nil, wrap("get user access links", err)
	}
	out, err := collect(rows, scanLink)
	return out, wrap("get user access links", err)
}

func (s *Postgres) GetAccessLink(ctx context.Context, id string) (AccessLink, error) {
	l, err := scanLink(s.db.QueryRow(ctx, `SELECT `+linkColumns+` FROM access_links WHERE id = $1`, id))
	if err != nil {
		return AccessLink{}, wrap("get access link", notFound(err))
	}
	return l, nil
}

func (s *Postgres) CheckVIPAccess(ctx context.Context, telegramID int64) (VIPAccess, error) {
	prof, err := s.GetUserProfile(ctx, telegramID)
	if err != nil {
		return VIPAccess{}, wrap("check vip access", err)
	}
	return accessFor(prof, s.opts.Now()), nil
}

func (s *Postgres) LogUserAction(ctx context.Context, telegramID int64, action string, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := s.db.Exec(ctx, `INSERT INTO user_actions (id, telegram_id, action, metadata, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), telegramID, action, metadata, s.opts.Now())
	return wrap("log user action", err)
}

func (s *Postgres) ListUserActions(ctx context.Context, limit int) ([]UserAction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `SELECT id, telegram_id, action, metadata, created_at FROM user_actions
        ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, wrap("list user actions", err)
	}
	out, err := collect(rows, func(row rowScanner) (UserAction, error) {
		var a UserAction
		err := row.Scan(&a.ID, &a.TelegramID, &a.Action, &a.Metadata, &a.CreatedAt)
		return a, err
	})
	return out, wrap("list user actions", err)
}

func (s *Postgres) PurgeUserActions(ctx context.Context, before time.Time) (int64, error) {
	cmd, err := s.db.Exec(ctx, `DELETE FROM user_actions WHERE created_at < $1`, before)
	if err != nil {
		return 0, wrap("purge user actions", err)
	}
	return cmd.RowsAffected(), nil
}
