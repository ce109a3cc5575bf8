package dedupe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Hour)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	seen, err := s.AlreadyProcessed(ctx, "whatsapp", "m1")
	require.NoError(t, err)
	assert.False(t, seen)

	first, err := s.MarkProcessed(ctx, "whatsapp", "m1")
	require.NoError(t, err)
	assert.True(t, first)
	seen, _ = s.AlreadyProcessed(ctx, "whatsapp", "m1")
	assert.True(t, seen)

	again, _ := s.MarkProcessed(ctx, "whatsapp", "m1")
	assert.False(t, again)
	other, _ := s.MarkProcessed(ctx, "sms", "m1")
	assert.True(t, other)

	now = now.Add(2 * time.Hour)
	seen, _ = s.AlreadyProcessed(ctx, "whatsapp", "m1")
	assert.False(t, seen)
	expired, _ := s.MarkProcessed(ctx, "whatsapp", "m1")
	assert.True(t, expired)
}

func TestMemoryStorePrune(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Hour)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = s.MarkProcessed(ctx, "whatsapp", "old")
	now = now.Add(90 * time.Minute)
	_, _ = s.MarkProcessed(ctx, "whatsapp", "new")

	n, err := s.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, s.seen, 1)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisStore(client, time.Minute)
	ctx := context.Background()

	seen, err := s.AlreadyProcessed(ctx, "whatsapp", "m1")
	require.NoError(t, err)
	assert.False(t, seen)

	first, err := s.MarkProcessed(ctx, "whatsapp", "m1")
	require.NoError(t, err)
	assert.True(t, first)
	seen, err = s.AlreadyProcessed(ctx, "whatsapp", "m1")
	require.NoError(t, err)
	assert.True(t, seen)

	again, err := s.MarkProcessed(ctx, "whatsapp", "m1")
	require.NoError(t, err)
	assert.False(t, again)
	assert.Equal(t, time.Minute, mr.TTL("processed:whatsapp:m1"))

	mr.FastForward(2 * time.Minute)
	later, err := s.MarkProcessed(ctx, "whatsapp", "m1")
	require.NoError(t, err)
	assert.True(t, later)
}

func TestPostgresStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := newPostgresStoreWithExec(mock, time.Hour)
	s.now = func() time.Time { return now }
	cutoff := now.Add(-time.Hour)
	ctx := context.Background()

	mock.ExpectQuery("SELECT 1 FROM processed_messages").
		WithArgs("whatsapp", "m1", cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}))
	mock.ExpectExec("INSERT INTO processed_messages").
		WithArgs("whatsapp", "m1", now, cutoff).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT 1 FROM processed_messages").
		WithArgs("whatsapp", "m1", cutoff).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("INSERT INTO processed_messages").
		WithArgs("whatsapp", "m1", now, cutoff).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("INSERT INTO processed_messages").
		WithArgs("whatsapp", "m2", now, cutoff).
		WillReturnError(errors.New("conn closed"))
	mock.ExpectQuery("SELECT 1 FROM processed_messages").
		WithArgs("whatsapp", "m2", cutoff).
		WillReturnError(errors.New("conn closed"))

	seen, err := s.AlreadyProcessed(ctx, "whatsapp", "m1")
	require.NoError(t, err)
	assert.False(t, seen)
	ok, err := s.MarkProcessed(ctx, "whatsapp", "m1")
	require.NoError(t, err)
	assert.True(t, ok)
	seen, err = s.AlreadyProcessed(ctx, "whatsapp", "m1")
	require.NoError(t, err)
	assert.True(t, seen)
	ok, err = s.MarkProcessed(ctx, "whatsapp", "m1")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = s.MarkProcessed(ctx, "whatsapp", "m2")
	assert.Error(t, err)
	_, err = s.AlreadyProcessed(ctx, "whatsapp", "m2")
	assert.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorePrune(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := newPostgresStoreWithExec(mock, 24*time.Hour)
	s.now = func() time.Time { return now }

	mock.ExpectExec("DELETE FROM processed_messages").
		WithArgs(now.Add(-24 * time.Hour)).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := s.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
