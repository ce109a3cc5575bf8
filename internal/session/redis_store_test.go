package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, time.Hour), mr
}

func TestRedisStore_CreateGet(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	now := time.Date(2025, 11, 23, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	s := &Session{
		ID:           "11111111-1111-1111-1111-111111111111",
		ContactID:    "+51900000001",
		Active:       true,
		MessageCount: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(30 * time.Minute),
		Version:      1,
	}
	require.NoError(t, store.Create(ctx, s))
	assert.ErrorIs(t, store.Create(ctx, s), ErrSessionExists)

	got, err := store.Get(ctx, "+51900000001")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.True(t, got.ExpiresAt.Equal(s.ExpiresAt))
	assert.Equal(t, 90*time.Minute, mr.TTL("session:+51900000001"))

	_, err = store.Get(ctx, "+51000000000")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStore_UpdateIsCompareAndSwap(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	s := &Session{ID: "x", ContactID: "+51900000002", MessageCount: 1, Version: 1, ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, store.Create(ctx, s))
	ttlBefore := mr.TTL("session:+51900000002")

	stale := *s
	s.MessageCount = 2
	require.NoError(t, store.Update(ctx, s))
	assert.Equal(t, int64(2), s.Version)
	assert.Equal(t, ttlBefore, mr.TTL("session:+51900000002"))

	stale.MessageCount = 99
	assert.ErrorIs(t, store.Update(ctx, &stale), ErrVersionConflict)

	got, err := store.Get(ctx, "+51900000002")
	require.NoError(t, err)
	assert.Equal(t, 2, got.MessageCount)

	missing := &Session{ContactID: "+51000000000", Version: 1}
	assert.ErrorIs(t, store.Update(ctx, missing), ErrSessionNotFound)
}

func TestRedisStore_Delete(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	s := &Session{ID: "y", ContactID: "+51900000003", Version: 1, ExpiresAt: time.Now()}
	require.NoError(t, store.Create(ctx, s))

	assert.ErrorIs(t, store.Delete(ctx, "+51900000003", 7), ErrVersionConflict)
	require.NoError(t, store.Delete(ctx, "+51900000003", 1))
	assert.ErrorIs(t, store.Delete(ctx, "+51900000003", 1), ErrSessionNotFound)
}

func TestRedisStore_WithTracker(t *testing.T) {
	store, _ := newRedisStore(t)
	tr, clock := newTestTracker(store)
	store.now = clock.Now
	ctx := context.Background()

	first, err := tr.Touch(ctx, "+51900000004")
	require.NoError(t, err)
	second, err := tr.Touch(ctx, "+51900000004")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.MessageCount)

	clock.Advance(45 * time.Minute)
	third, err := tr.Touch(ctx, "+51900000004")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	assert.Equal(t, 1, third.MessageCount)
}
