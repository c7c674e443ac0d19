// Package payments drives the payment wizard: create a payment, attach a
// screenshot of the transfer, wait for verification and hand out the access
// link.
package payments

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vip-club/vip_club/internal/audit"
	"github.com/vip-club/vip_club/internal/backend"
	"github.com/vip-club/vip_club/internal/notification"
	"github.com/vip-club/vip_club/internal/settings"
)

// Step is a wizard state.
type Step string

const (
	StepPayment      Step = "payment"
	StepScreenshot   Step = "screenshot"
	StepVerification Step = "verification"
	StepSuccess      Step = "success"
)

// User-facing error messages.
const (
	MsgCreateFailed = "error creating payment"
	MsgUploadFailed = "error uploading screenshot"
	MsgNotConfirmed = "payment not confirmed"
	MsgVerifyFailed = "error verifying payment"
)

// DefaultVerifyDelay is the wait before verification runs.
const DefaultVerifyDelay = 3 * time.Second

var (
	ErrBusy      = errors.New("another operation is in progress")
	ErrWrongStep = errors.New("action not allowed at this step")
	ErrClosed    = errors.New("wizard closed")
)

// Reviewer decides whether a submitted payment is approved.
type Reviewer interface {
	Review(ctx context.Context, p backend.Payment) (bool, error)
}

// ReviewerFunc adapts a function to Reviewer.
type ReviewerFunc func(ctx context.Context, p backend.Payment) (bool, error)

func (f ReviewerFunc) Review(ctx context.Context, p backend.Payment) (bool, error) { return f(ctx, p) }

// AutoApprove approves every payment that carries a screenshot.
type AutoApprove struct{}

func (AutoApprove) Review(_ context.Context, p backend.Payment) (bool, error) {
	return p.ScreenshotURL != "", nil
}

// Config holds the collaborators shared by every wizard.
type Config struct {
	Backend     backend.Backend
	Pricing     settings.Provider
	Audit       audit.Logger
	Bus         *notification.Bus
	Reviewer    Reviewer
	VerifyDelay time.Duration
	Logger      *slog.Logger
	// OnSuccess runs after a verified payment with the issued link.
	OnSuccess func(telegramID int64, link string)
}

func (c Config) withDefaults() Config {
	if c.Pricing == nil {
		c.Pricing = settings.Static(settings.Defaults())
	}
	if c.Audit == nil {
		c.Audit = audit.Discard{}
	}
	if c.Reviewer == nil {
		c.Reviewer = AutoApprove{}
	}
	if c.VerifyDelay < 0 {
		c.VerifyDelay = 0
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Snapshot is an immutable view of a wizard.
type Snapshot struct {
	Step       Step             `json:"step"`
	Payment    *backend.Payment `json:"payment,omitempty"`
	AccessLink string           `json:"access_link,omitempty"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty"`
	Error      string           `json:"error,omitempty"`
	Busy       bool             `json:"busy"`
}

// Wizard is the payment flow of one user. At most one operation runs at a
// time; a second one fails with ErrBusy.
type Wizard struct {
	cfg        Config
	telegramID int64

	mu        sync.Mutex
	step      Step
	payment   *backend.Payment
	link      string
	expiresAt *time.Time
	errMsg    string
	busy      bool
	closed    bool
	gen       int
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewWizard starts a wizard for telegramID at the payment step.
func NewWizard(cfg Config, telegramID int64) *Wizard {
	return &Wizard{cfg: cfg.withDefaults(), telegramID: telegramID, step: StepPayment}
}

// Snapshot returns the current state.
func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Wizard) snapshotLocked() Snapshot {
	s := Snapshot{Step: w.step, AccessLink: w.link, ExpiresAt: w.expiresAt, Error: w.errMsg, Busy: w.busy}
	if w.payment != nil {
		p := *w.payment
		s.Payment = &p
	}
	return s
}

// begin claims the wizard for an operation allowed only at step.
func (w *Wizard) begin(step Step) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.closed:
		return 0, ErrClosed
	case w.busy:
		return 0, ErrBusy
	case w.step != step:
		return 0, ErrWrongStep
	}
	w.errMsg = ""
	w.busy = true
	return w.gen, nil
}

// Quote returns the current price and access period.
func (w *Wizard) Quote(ctx context.Context) (settings.Settings, error) {
	return w.cfg.Pricing.Current(ctx)
}

// Start creates the payment and moves to the screenshot step. On failure the
// wizard stays at the payment step with MsgCreateFailed.
func (w *Wizard) Start(ctx context.Context) (Snapshot, error) {
	gen, err := w.begin(StepPayment)
	if err != nil {
		return w.Snapshot(), err
	}

	var p backend.Payment
	price, err := w.cfg.Pricing.Current(ctx)
	if err == nil {
		p, err = w.cfg.Backend.CreatePayment(ctx, w.telegramID, price.VIPPrice, price.Currency, backend.MethodManual)
	}

	w.mu.Lock()
	if gen != w.gen {
		w.mu.Unlock()
		return w.Snapshot(), ErrClosed
	}
	w.busy = false
	if err != nil {
		w.errMsg = MsgCreateFailed
		snap := w.snapshotLocked()
		w.mu.Unlock()
		w.cfg.Logger.Warn("create payment", slog.Int64("telegram_id", w.telegramID), slog.Any("error", err))
		return snap, err
	}
	w.payment = &p
	w.step = StepScreenshot
	snap := w.snapshotLocked()
	w.mu.Unlock()

	w.cfg.Audit.Log(w.telegramID, audit.ActionPaymentStarted, map[string]any{"payment_id": p.ID, "amount": p.Amount})
	w.cfg.Bus.Publish(ctx, notification.Event{
		Topic:      notification.TopicPaymentCreated,
		TelegramID: w.telegramID,
		PaymentID:  p.ID,
		Amount:     p.Amount,
		Currency:   p.Currency,
	})
	return snap, nil
}

// SubmitScreenshot validates and uploads file, attaches it to the payment
// and schedules verification. Validation failures leave the wizard where it
// is and never reach the backend.
func (w *Wizard) SubmitScreenshot(ctx context.Context, file backend.File) (Snapshot, error) {
	gen, err := w.begin(StepScreenshot)
	if err != nil {
		return w.Snapshot(), err
	}

	file, err = ValidateScreenshot(file)
	if err != nil {
		w.mu.Lock()
		w.busy = false
		w.errMsg = validationMessage(err)
		snap := w.snapshotLocked()
		w.mu.Unlock()
		return snap, err
	}

	w.mu.Lock()
	payment := *w.payment
	w.mu.Unlock()

	up, err := w.cfg.Backend.UploadScreenshot(ctx, file, w.telegramID)
	if err == nil {
		err = w.cfg.Backend.UpdatePaymentScreenshot(ctx, payment.ID, up.URL)
	}

	w.mu.Lock()
	if gen != w.gen {
		w.mu.Unlock()
		return w.Snapshot(), ErrClosed
	}
	if err != nil {
		w.busy = false
		w.errMsg = MsgUploadFailed
		snap := w.snapshotLocked()
		w.mu.Unlock()
		w.cfg.Logger.Warn("upload screenshot", slog.Int64("telegram_id", w.telegramID), slog.String("payment_id", payment.ID), slog.Any("error", err))
		return snap, err
	}

	payment.ScreenshotURL = up.URL
	w.payment = &payment
	w.step = StepVerification

	verifyCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	snap := w.snapshotLocked()
	w.mu.Unlock()

	w.cfg.Audit.Log(w.telegramID, audit.ActionScreenshotUploaded, map[string]any{"payment_id": payment.ID, "screenshot_url": up.URL})
	w.cfg.Bus.Publish(ctx, notification.Event{
		Topic:      notification.TopicScreenshotUploaded,
		TelegramID: w.telegramID,
		PaymentID:  payment.ID,
		Amount:     payment.Amount,
		Currency:   payment.Currency,
	})

	go w.verify(verifyCtx, gen, payment, done)
	return snap, nil
}

// verify waits VerifyDelay, asks the reviewer and calls VerifyPayment. A
// result arriving after Reset or Close is discarded.
func (w *Wizard) verify(ctx context.Context, gen int, payment backend.Payment, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(w.cfg.VerifyDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	var res backend.VerifyResult
	approve, err := w.cfg.Reviewer.Review(ctx, payment)
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		res, err = w.cfg.Backend.VerifyPayment(ctx, payment.ID, approve)
	}
	if err == nil && res.Success {
		if stored, gerr := w.cfg.Backend.GetPayment(ctx, payment.ID); gerr == nil {
			payment = stored
		} else {
			w.cfg.Logger.Warn("reload verified payment", slog.String("payment_id", payment.ID), slog.Any("error", gerr))
		}
	}

	w.mu.Lock()
	if gen != w.gen || ctx.Err() != nil {
		w.mu.Unlock()
		return
	}
	w.busy = false
	w.cancel = nil
	switch {
	case err != nil:
		w.errMsg = MsgVerifyFailed
		w.step = StepScreenshot
	case !res.Success:
		w.errMsg = MsgNotConfirmed
		w.step = StepScreenshot
	default:
		if payment.Status != backend.PaymentVerified {
			verifiedAt := time.Now().UTC()
			if res.Link != nil {
				verifiedAt = res.Link.CreatedAt
			}
			payment.Status = backend.PaymentVerified
			payment.VerifiedAt = &verifiedAt
		}
		w.payment = &payment
		w.link = res.AccessLink
		w.expiresAt = res.ExpiresAt
		w.step = StepSuccess
	}
	w.mu.Unlock()

	event := notification.Event{
		TelegramID: w.telegramID,
		PaymentID:  payment.ID,
		Amount:     payment.Amount,
		Currency:   payment.Currency,
	}
	switch {
	case err != nil:
		w.cfg.Logger.Warn("verify payment", slog.Int64("telegram_id", w.telegramID), slog.String("payment_id", payment.ID), slog.Any("error", err))
	case !res.Success:
		event.Topic = notification.TopicPaymentRejected
		event.Reason = MsgNotConfirmed
		w.cfg.Bus.Publish(ctx, event)
	default:
		event.Topic = notification.TopicPaymentVerified
		event.AccessLink = res.AccessLink
		event.ExpiresAt = res.ExpiresAt
		w.cfg.Audit.Log(w.telegramID, audit.ActionPaymentVerified, map[string]any{"payment_id": payment.ID})
		w.cfg.Bus.Publish(ctx, event)
		if w.cfg.OnSuccess != nil {
			w.cfg.OnSuccess(w.telegramID, res.AccessLink)
		}
	}
}

// Wait blocks until a scheduled verification has finished or ctx ends.
func (w *Wizard) Wait(ctx context.Context) error {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClearError dismisses the current error message.
func (w *Wizard) ClearError() {
	w.mu.Lock()
	w.errMsg = ""
	w.mu.Unlock()
}

// Reset abandons the current flow and returns to the payment step.
func (w *Wizard) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.discardLocked()
	w.step = StepPayment
	w.payment = nil
	w.link = ""
	w.expiresAt = nil
	w.errMsg = ""
}

// Close discards pending results and rejects further operations.
func (w *Wizard) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.discardLocked()
	w.closed = true
}

func (w *Wizard) discardLocked() {
	w.gen++
	w.busy = false
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, ErrTooLarge):
		return "file must not exceed 10 MB"
	case errors.Is(err, ErrEmptyFile):
		return "file is empty"
	default:
		return "please choose an image file"
	}
}
