package payments

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vip-club/vip_club/internal/backend"
	"github.com/vip-club/vip_club/internal/blob"
	"github.com/vip-club/vip_club/internal/logging"
	"github.com/vip-club/vip_club/internal/notification"
)

const testUser int64 = 424242

type flakyBackend struct {
	backend.Backend
	createErr error
	uploadErr error
	verifyErr error
}

func (f *flakyBackend) CreatePayment(ctx context.Context, telegramID, amount int64, currency, method string) (backend.Payment, error) {
	if f.createErr != nil {
		return backend.Payment{}, f.createErr
	}
	return f.Backend.CreatePayment(ctx, telegramID, amount, currency, method)
}

func (f *flakyBackend) UploadScreenshot(ctx context.Context, file backend.File, telegramID int64) (backend.Upload, error) {
	if f.uploadErr != nil {
		return backend.Upload{}, f.uploadErr
	}
	return f.Backend.UploadScreenshot(ctx, file, telegramID)
}

func (f *flakyBackend) VerifyPayment(ctx context.Context, paymentID string, approve bool) (backend.VerifyResult, error) {
	if f.verifyErr != nil {
		return backend.VerifyResult{}, f.verifyErr
	}
	return f.Backend.VerifyPayment(ctx, paymentID, approve)
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) Log(_ int64, action string, _ map[string]any) {
	a.mu.Lock()
	a.actions = append(a.actions, action)
	a.mu.Unlock()
}

func (a *recordingAudit) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.actions...)
}

type fixture struct {
	blobs   *blob.MemoryStore
	backend *flakyBackend
	audit   *recordingAudit
	bus     *notification.Bus
	cfg     Config
}

func newFixture() *fixture {
	blobs := blob.NewMemoryStore("http://localhost/uploads")
	be := &flakyBackend{Backend: backend.NewMemory(blobs, backend.Options{AccessLinkBase: "https://t.me/+"})}
	f := &fixture{blobs: blobs, backend: be, audit: &recordingAudit{}, bus: notification.NewBus()}
	f.cfg = Config{
		Backend:     be,
		Audit:       f.audit,
		Bus:         f.bus,
		VerifyDelay: time.Millisecond,
		Logger:      logging.Discard(),
	}
	return f
}

func jpegFile(size int) backend.File {
	data := make([]byte, size)
	copy(data, []byte{0xff, 0xd8, 0xff, 0xe0})
	return backend.File{Name: "receipt.jpg", ContentType: "image/jpeg", Size: int64(size), Body: bytes.NewReader(data)}
}

func waitVerified(t *testing.T, w *Wizard) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	return w.Snapshot()
}

func TestWizardHappyPath(t *testing.T) {
	f := newFixture()
	var published []notification.Topic
	var mu sync.Mutex
	for _, topic := range []notification.Topic{notification.TopicPaymentCreated, notification.TopicScreenshotUploaded, notification.TopicPaymentVerified} {
		f.bus.Subscribe(topic, func(_ context.Context, e notification.Event) {
			mu.Lock()
			published = append(published, e.Topic)
			mu.Unlock()
		})
	}
	var successLink string
	f.cfg.OnSuccess = func(_ int64, link string) { successLink = link }

	w := NewWizard(f.cfg, testUser)
	ctx := context.Background()

	snap, err := w.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.Step != StepScreenshot || snap.Payment == nil {
		t.Fatalf("expected screenshot step with payment, got %+v", snap)
	}
	if snap.Payment.Amount != 500 || snap.Payment.Currency != "₽" || snap.Payment.Method != backend.MethodManual {
		t.Fatalf("unexpected payment %+v", snap.Payment)
	}

	snap, err = w.SubmitScreenshot(ctx, jpegFile(2*1024*1024))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if snap.Step != StepVerification || !snap.Busy {
		t.Fatalf("expected busy verification step, got %+v", snap)
	}

	snap = waitVerified(t, w)
	if snap.Step != StepSuccess || snap.AccessLink == "" || snap.Error != "" {
		t.Fatalf("expected success with link, got %+v", snap)
	}
	if !strings.HasPrefix(snap.AccessLink, "https://t.me/+") {
		t.Fatalf("unexpected link %s", snap.AccessLink)
	}
	if successLink != snap.AccessLink {
		t.Fatalf("OnSuccess got %q", successLink)
	}
	if f.blobs.Len() != 1 {
		t.Fatalf("expected one stored screenshot, got %d", f.blobs.Len())
	}

	access, err := f.backend.CheckVIPAccess(ctx, testUser)
	if err != nil || !access.HasAccess {
		t.Fatalf("expected vip access, got %+v (%v)", access, err)
	}
	p, _ := f.backend.GetPayment(ctx, snap.Payment.ID)
	if p.Status != backend.PaymentVerified || p.ScreenshotURL == "" {
		t.Fatalf("unexpected stored payment %+v", p)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(published) != 3 || published[2] != notification.TopicPaymentVerified {
		t.Fatalf("unexpected events %v", published)
	}
	actions := f.audit.Actions()
	if len(actions) != 3 || actions[0] != "payment_started" || actions[1] != "screenshot_uploaded" {
		t.Fatalf("unexpected audit trail %v", actions)
	}
}

func TestWizardRejectsNonImage(t *testing.T) {
	f := newFixture()
	w := NewWizard(f.cfg, testUser)
	ctx := context.Background()
	if _, err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	snap, err := w.SubmitScreenshot(ctx, backend.File{Name: "notes.txt", ContentType: "text/plain", Size: 5, Body: strings.NewReader("hello")})
	if !errors.Is(err, ErrNotImage) {
		t.Fatalf("expected ErrNotImage, got %v", err)
	}
	if snap.Step != StepScreenshot || snap.Error == "" || snap.Busy {
		t.Fatalf("expected inline error at screenshot step, got %+v", snap)
	}
	if f.blobs.Len() != 0 {
		t.Fatalf("nothing must be uploaded")
	}
}

func TestWizardRejectsDisguisedFile(t *testing.T) {
	f := newFixture()
	w := NewWizard(f.cfg, testUser)
	ctx := context.Background()
	w.Start(ctx)

	_, err := w.SubmitScreenshot(ctx, backend.File{Name: "fake.png", ContentType: "image/png", Size: 9, Body: strings.NewReader("plaintext")})
	if !errors.Is(err, ErrNotImage) {
		t.Fatalf("expected ErrNotImage for sniffed text, got %v", err)
	}
}

func TestWizardRejectsLargeFile(t *testing.T) {
	f := newFixture()
	w := NewWizard(f.cfg, testUser)
	ctx := context.Background()
	w.Start(ctx)

	snap, err := w.SubmitScreenshot(ctx, jpegFile(MaxScreenshotSize+1))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if snap.Step != StepScreenshot || f.blobs.Len() != 0 {
		t.Fatalf("expected no transition and no upload, got %+v", snap)
	}
}

func TestWizardNotConfirmedReturnsToScreenshot(t *testing.T) {
	f := newFixture()
	f.cfg.Reviewer = ReviewerFunc(func(context.Context, backend.Payment) (bool, error) { return false, nil })
	var rejected int
	f.bus.Subscribe(notification.TopicPaymentRejected, func(context.Context, notification.Event) { rejected++ })

	w := NewWizard(f.cfg, testUser)
	ctx := context.Background()
	w.Start(ctx)
	if _, err := w.SubmitScreenshot(ctx, jpegFile(1024)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	snap := waitVerified(t, w)
	if snap.Step != StepScreenshot || snap.Error != MsgNotConfirmed {
		t.Fatalf("expected not confirmed at screenshot step, got %+v", snap)
	}
	if rejected != 1 {
		t.Fatalf("expected one rejection event, got %d", rejected)
	}
	p, _ := f.backend.GetPayment(ctx, snap.Payment.ID)
	if p.Status != backend.PaymentPending {
		t.Fatalf("payment must stay pending, got %s", p.Status)
	}

	w.ClearError()
	if w.Snapshot().Error != "" {
		t.Fatalf("error not cleared")
	}
}

func TestWizardServiceErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	f := newFixture()
	f.backend.createErr = boom
	w := NewWizard(f.cfg, testUser)
	snap, err := w.Start(ctx)
	if !errors.Is(err, boom) || snap.Step != StepPayment || snap.Error != MsgCreateFailed {
		t.Fatalf("create failure: %+v (%v)", snap, err)
	}

	f = newFixture()
	f.backend.uploadErr = boom
	w = NewWizard(f.cfg, testUser)
	w.Start(ctx)
	snap, err = w.SubmitScreenshot(ctx, jpegFile(1024))
	if !errors.Is(err, boom) || snap.Step != StepScreenshot || snap.Error != MsgUploadFailed {
		t.Fatalf("upload failure: %+v (%v)", snap, err)
	}

	f = newFixture()
	f.backend.verifyErr = boom
	w = NewWizard(f.cfg, testUser)
	w.Start(ctx)
	w.SubmitScreenshot(ctx, jpegFile(1024))
	snap = waitVerified(t, w)
	if snap.Step != StepScreenshot || snap.Error != MsgVerifyFailed {
		t.Fatalf("verify failure: %+v", snap)
	}
}

func TestWizardSecondOperationIsBusy(t *testing.T) {
	f := newFixture()
	release := make(chan struct{})
	f.cfg.Reviewer = ReviewerFunc(func(ctx context.Context, _ backend.Payment) (bool, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return true, nil
	})
	w := NewWizard(f.cfg, testUser)
	ctx := context.Background()
	w.Start(ctx)
	w.SubmitScreenshot(ctx, jpegFile(1024))

	if _, err := w.SubmitScreenshot(ctx, jpegFile(1024)); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(release)
	if snap := waitVerified(t, w); snap.Step != StepSuccess {
		t.Fatalf("expected success, got %+v", snap)
	}
	if _, err := w.Start(ctx); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("expected ErrWrongStep, got %v", err)
	}
}

func TestWizardResetDiscardsPendingVerification(t *testing.T) {
	f := newFixture()
	reviewed := make(chan struct{})
	release := make(chan struct{})
	f.cfg.Reviewer = ReviewerFunc(func(ctx context.Context, _ backend.Payment) (bool, error) {
		close(reviewed)
		<-release
		return true, nil
	})
	w := NewWizard(f.cfg, testUser)
	ctx := context.Background()
	w.Start(ctx)
	w.SubmitScreenshot(ctx, jpegFile(1024))

	<-reviewed
	w.Reset()
	close(release)

	snap := waitVerified(t, w)
	if snap.Step != StepPayment || snap.Payment != nil || snap.AccessLink != "" {
		t.Fatalf("late result must be discarded, got %+v", snap)
	}
}

func TestWizardCloseRejectsOperations(t *testing.T) {
	f := newFixture()
	w := NewWizard(f.cfg, testUser)
	w.Close()
	if _, err := w.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestValidateScreenshotReplaysHead(t *testing.T) {
	src := jpegFile(8192)
	file, err := ValidateScreenshot(src)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if file.ContentType != "image/jpeg" {
		t.Fatalf("unexpected content type %s", file.ContentType)
	}
	data, _ := io.ReadAll(file.Body)
	if len(data) != 8192 || data[0] != 0xff || data[1] != 0xd8 {
		t.Fatalf("body not replayed intact, got %d bytes", len(data))
	}

	if _, err := ValidateScreenshot(backend.File{Body: strings.NewReader("")}); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("expected ErrEmptyFile, got %v", err)
	}
}

func TestRegistryResetAll(t *testing.T) {
	f := newFixture()
	r := NewRegistry(f.cfg)
	a := r.Get(1)
	if r.Get(1) != a {
		t.Fatalf("registry must reuse wizards")
	}
	a.Start(context.Background())
	r.Get(2)

	if n := r.ResetAll(); n != 2 {
		t.Fatalf("expected 2 dropped wizards, got %d", n)
	}
	if r.Get(1) == a || r.Get(1).Snapshot().Step != StepPayment {
		t.Fatalf("expected a fresh wizard after reset")
	}
}

func TestWizardSnapshotCarriesStoredVerificationTime(t *testing.T) {
	f := newFixture()
	verifiedAt := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	mem := backend.NewMemory(f.blobs, backend.Options{
		AccessLinkBase: "https://t.me/+",
		Now:            func() time.Time { return verifiedAt },
	})
	f.backend.Backend = mem

	w := NewWizard(f.cfg, testUser)
	ctx := context.Background()
	if _, err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := w.SubmitScreenshot(ctx, jpegFile(1024)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	snap := waitVerified(t, w)
	if snap.Step != StepSuccess {
		t.Fatalf("expected success, got %s (%s)", snap.Step, snap.Error)
	}

	stored, err := mem.GetPayment(ctx, snap.Payment.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if stored.VerifiedAt == nil || snap.Payment.VerifiedAt == nil || !snap.Payment.VerifiedAt.Equal(*stored.VerifiedAt) {
		t.Fatalf("snapshot verified_at %v, stored %v", snap.Payment.VerifiedAt, stored.VerifiedAt)
	}
	if !stored.VerifiedAt.Equal(verifiedAt) {
		t.Fatalf("unexpected stored verified_at %v", stored.VerifiedAt)
	}
}
