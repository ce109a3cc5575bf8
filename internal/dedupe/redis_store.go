package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore marks IDs with SETNX and lets Redis expire them.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("dedupe: redis client required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) key(channel, messageID string) string {
	return "processed:" + channel + ":" + messageID
}

func (s *RedisStore) AlreadyProcessed(ctx context.Context, channel, messageID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(channel, messageID)).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe: exists: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) MarkProcessed(ctx context.Context, channel, messageID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(channel, messageID), 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe: setnx: %w", err)
	}
	return ok, nil
}
