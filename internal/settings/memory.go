package settings

import (
	"context"
	"sync"
)

// MemoryStore keeps settings in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	current Settings
}

// NewMemoryStore returns a store seeded with Defaults.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{current: Defaults()}
}

func (s *MemoryStore) Current(context.Context) (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *MemoryStore) Save(_ context.Context, v Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = v
	return nil
}
