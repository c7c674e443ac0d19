package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKey = "settings:v1"

// RedisStore persists settings as a JSON document in Redis.
type RedisStore struct {
	cache *redis.Client
}

// NewRedisStore builds a Redis-backed settings store.
func NewRedisStore(cache *redis.Client) *RedisStore {
	return &RedisStore{cache: cache}
}

// Current returns the saved settings or Defaults when nothing was saved yet.
func (s *RedisStore) Current(ctx context.Context) (Settings, error) {
	raw, err := s.cache.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Defaults(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	out := Defaults()
	if err := json.Unmarshal(raw, &out); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return out, nil
}

func (s *RedisStore) Save(ctx context.Context, v Settings) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.cache.Set(ctx, redisKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
