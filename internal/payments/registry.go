package payments

import (
	"context"
	"sync"
)

// Registry keeps one wizard per Telegram user.
type Registry struct {
	cfg Config

	mu      sync.Mutex
	wizards map[int64]*Wizard
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg.withDefaults(), wizards: make(map[int64]*Wizard)}
}

// Get returns the wizard of telegramID, creating it on first use.
func (r *Registry) Get(telegramID int64) *Wizard {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wizards[telegramID]
	if !ok {
		w = NewWizard(r.cfg, telegramID)
		r.wizards[telegramID] = w
	}
	return w
}

// Reset returns the wizard of telegramID to the payment step.
func (r *Registry) Reset(telegramID int64) {
	r.mu.Lock()
	w, ok := r.wizards[telegramID]
	r.mu.Unlock()
	if ok {
		w.Reset()
	}
}

// ResetAll closes every wizard and forgets them. It returns how many were
// dropped.
func (r *Registry) ResetAll() int {
	r.mu.Lock()
	wizards := r.wizards
	r.wizards = make(map[int64]*Wizard)
	r.mu.Unlock()
	for _, w := range wizards {
		w.Close()
	}
	return len(wizards)
}

// Close closes every wizard and waits for running verifications to stop.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	wizards := make([]*Wizard, 0, len(r.wizards))
	for _, w := range r.wizards {
		wizards = append(wizards, w)
	}
	r.mu.Unlock()
	for _, w := range wizards {
		w.Close()
	}
	for _, w := range wizards {
		if err := w.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
