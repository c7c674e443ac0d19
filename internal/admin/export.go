package admin

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var ErrExportKind = errors.New("unknown export kind or format")

// Export is a downloadable dump of a table.
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Export dumps users or payments as csv or json, named
// "<kind>_<YYYY-MM-DD>.<format>".
func (s *Service) Export(ctx context.Context, kind, format string) (Export, error) {
	if format != "csv" && format != "json" {
		return Export{}, ErrExportKind
	}

	var header []string
	var rows [][]string
	var records any
	switch kind {
	case "users":
		users, err := s.opts.Backend.ListUsers(ctx)
		if err != nil {
			return Export{}, fmt.Errorf("list users: %w", err)
		}
		records = users
		header = []string{"id", "telegram_id", "username", "full_name", "vip_access", "access_expires_at", "total_payments", "created_at"}
		for _, u := range users {
			rows = append(rows, []string{
				u.ID,
				strconv.FormatInt(u.TelegramID, 10),
				u.Username,
				u.FullName,
				strconv.FormatBool(u.VIPAccess),
				formatTime(u.AccessExpiresAt),
				strconv.Itoa(u.TotalPayments),
				u.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
	case "payments":
		payments, err := s.opts.Backend.ListPayments(ctx)
		if err != nil {
			return Export{}, fmt.Errorf("list payments: %w", err)
		}
		records = payments
		header = []string{"id", "telegram_id", "username", "amount", "currency", "payment_method", "status", "screenshot_url", "created_at", "verified_at"}
		for _, p := range payments {
			rows = append(rows, []string{
				p.ID,
				strconv.FormatInt(p.TelegramID, 10),
				p.Username,
				strconv.FormatInt(p.Amount, 10),
				p.Currency,
				p.Method,
				string(p.Status),
				p.ScreenshotURL,
				p.CreatedAt.UTC().Format(time.RFC3339),
				formatTime(p.VerifiedAt),
			})
		}
	default:
		return Export{}, ErrExportKind
	}

	out := Export{Filename: fmt.Sprintf("%s_%s.%s", kind, s.opts.Now().In(s.opts.Location).Format("2006-01-02"), format)}
	if format == "json" {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return Export{}, fmt.Errorf("encode export: %w", err)
		}
		out.ContentType = "application/json"
		out.Data = data
		return out, nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(header)
	w.WriteAll(rows)
	if err := w.Error(); err != nil {
		return Export{}, fmt.Errorf("encode export: %w", err)
	}
	out.ContentType = "text/csv; charset=utf-8"
	out.Data = buf.Bytes()
	return out, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
