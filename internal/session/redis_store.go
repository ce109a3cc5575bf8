package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
	// expired sessions linger this long so Touch can observe and replace them
	defaultRetention = 24 * time.Hour
)

// RedisStore keeps each session as a JSON value under session:<contact>.
// Writes use WATCH/MULTI/EXEC for optimistic locking.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
	now       func() time.Time
}

func NewRedisStore(client *redis.Client, retention time.Duration) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	return &RedisStore{
		client:    client,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (r *RedisStore) Get(ctx context.Context, contactID string) (*Session, error) {
	val, err := r.client.Get(ctx, r.key(contactID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: redis get failed: %w", err)
	}
	return decodeSession(val)
}

func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	val, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.key(s.ContactID), val, r.ttl(s)).Result()
	if err != nil {
		return fmt.Errorf("session: redis setnx failed: %w", err)
	}
	if !ok {
		return ErrSessionExists
	}
	return nil
}

// Update bumps s.Version on success. The key TTL is left as set at creation.
func (r *RedisStore) Update(ctx context.Context, s *Session) error {
	key := r.key(s.ContactID)
	next := s.clone()
	next.Version++

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := r.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if stored.Version != s.Version {
			return ErrVersionConflict
		}
		val, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("session: marshal: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, val, redis.KeepTTL)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	if err != nil {
		return err
	}
	s.Version = next.Version
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, contactID string, version int64) error {
	key := r.key(contactID)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := r.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if stored.Version != version {
			return ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	return err
}

func (r *RedisStore) load(ctx context.Context, tx *redis.Tx, key string) (*Session, error) {
	val, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: redis get failed: %w", err)
	}
	return decodeSession(val)
}

func (r *RedisStore) ttl(s *Session) time.Duration {
	remaining := s.ExpiresAt.Sub(r.now())
	if remaining < 0 {
		remaining = 0
	}
	return remaining + r.retention
}

func (r *RedisStore) key(contactID string) string {
	return sessionKeyPrefix + contactID
}

func decodeSession(val []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return &s, nil
}
