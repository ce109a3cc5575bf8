package dedupe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore uses the processed_messages table. Rows older than ttl no
// longer count as processed and are removed by Prune.
type PostgresStore struct {
	db  rowQuerier
	ttl time.Duration
	now func() time.Time
}

func NewPostgresStore(pool *pgxpool.Pool, ttl time.Duration) *PostgresStore {
	if pool == nil {
		panic("dedupe: pgx pool required")
	}
	return newPostgresStoreWithExec(pool, ttl)
}

func newPostgresStoreWithExec(db rowQuerier, ttl time.Duration) *PostgresStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PostgresStore{db: db, ttl: ttl, now: time.Now}
}

func (s *PostgresStore) cutoff() time.Time {
	return s.now().UTC().Add(-s.ttl)
}

func (s *PostgresStore) AlreadyProcessed(ctx context.Context, channel, messageID string) (bool, error) {
	var exists int
	err := s.db.QueryRow(ctx, `
		SELECT 1 FROM processed_messages
		WHERE channel = $1 AND message_id = $2 AND processed_at > $3
	`, channel, messageID, s.cutoff()).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("dedupe: check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed inserts the ID, reclaiming a row that has already expired.
func (s *PostgresStore) MarkProcessed(ctx context.Context, channel, messageID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO processed_messages (channel, message_id, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (channel, message_id) DO UPDATE
		SET processed_at = EXCLUDED.processed_at
		WHERE processed_messages.processed_at <= $4
	`, channel, messageID, s.now().UTC(), s.cutoff())
	if err != nil {
		return false, fmt.Errorf("dedupe: mark processed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Prune deletes rows older than the TTL.
func (s *PostgresStore) Prune(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM processed_messages WHERE processed_at <= $1`, s.cutoff())
	if err != nil {
		return 0, fmt.Errorf("dedupe: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}
