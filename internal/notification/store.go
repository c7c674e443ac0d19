package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Store persists each user's notification list as a single record.
type Store interface {
	Load(ctx context.Context, key string) ([]Notification, error)
	Save(ctx context.Context, key string, items []Notification) error
}

// StorageKey returns the store key for a Telegram user. Zero maps to the
// shared "default" list.
func StorageKey(telegramID int64) string {
	if telegramID == 0 {
		return "notifications:default"
	}
	return "notifications:" + strconv.FormatInt(telegramID, 10)
}

// MemoryStore keeps notification lists in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	lists map[string][]Notification
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{lists: make(map[string][]Notification)}
}

func (s *MemoryStore) Load(_ context.Context, key string) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Notification(nil), s.lists[key]...), nil
}

func (s *MemoryStore) Save(_ context.Context, key string, items []Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(items) == 0 {
		delete(s.lists, key)
		return nil
	}
	s.lists[key] = append([]Notification(nil), items...)
	return nil
}

// RedisStore keeps each list as a JSON array under its key.
type RedisStore struct {
	cache *redis.Client
}

// NewRedisStore builds a Redis-backed store.
func NewRedisStore(cache *redis.Client) *RedisStore {
	return &RedisStore{cache: cache}
}

func (s *RedisStore) Load(ctx context.Context, key string) ([]Notification, error) {
	raw, err := s.cache.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}
	var items []Notification
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	return items, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, items []Notification) error {
	if len(items) == 0 {
		return s.cache.Del(ctx, key).Err()
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode notifications: %w", err)
	}
	if err := s.cache.Set(ctx, key, payload, 0).Err(); err != nil {
		return fmt.Errorf("save notifications: %w", err)
	}
	return nil
}
