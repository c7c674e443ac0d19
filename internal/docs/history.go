package docs

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// HistorySize is how many distinct search terms are kept per user.
const HistorySize = 5

// History remembers recent search terms, most recent first. Pushing a term
// already present moves it to the front.
type History interface {
	Push(ctx context.Context, telegramID int64, term string) error
	Recent(ctx context.Context, telegramID int64) ([]string, error)
}

type MemoryHistory struct {
	mu    sync.Mutex
	terms map[int64][]string
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{terms: make(map[int64][]string)}
}

func (h *MemoryHistory) Push(_ context.Context, telegramID int64, term string) error {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	next := []string{term}
	for _, t := range h.terms[telegramID] {
		if t != term {
			next = append(next, t)
		}
	}
	if len(next) > HistorySize {
		next = next[:HistorySize]
	}
	h.terms[telegramID] = next
	return nil
}

func (h *MemoryHistory) Recent(_ context.Context, telegramID int64) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string{}, h.terms[telegramID]...), nil
}

// RedisHistory keeps each user's terms in a Redis list.
type RedisHistory struct {
	client *redis.Client
}

func NewRedisHistory(client *redis.Client) *RedisHistory {
	return &RedisHistory{client: client}
}

func historyKey(telegramID int64) string {
	return fmt.Sprintf("docs:history:%d", telegramID)
}

func (h *RedisHistory) Push(ctx context.Context, telegramID int64, term string) error {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}
	key := historyKey(telegramID)
	pipe := h.client.TxPipeline()
	pipe.LRem(ctx, key, 0, term)
	pipe.LPush(ctx, key, term)
	pipe.LTrim(ctx, key, 0, HistorySize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push search term: %w", err)
	}
	return nil
}

func (h *RedisHistory) Recent(ctx context.Context, telegramID int64) ([]string, error) {
	terms, err := h.client.LRange(ctx, historyKey(telegramID), 0, HistorySize-1).Result()
	if err != nil {
		return nil, fmt.Errorf("load search history: %w", err)
	}
	return terms, nil
}
