package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps sessions in the sessions table, one row per contact_id.
type PostgresStore struct {
	db pgxQuerier
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("session: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithQuerier(q pgxQuerier) *PostgresStore {
	return &PostgresStore{db: q}
}

func (p *PostgresStore) Get(ctx context.Context, contactID string) (*Session, error) {
	var (
		s  Session
		id uuid.UUID
	)
	err := p.db.QueryRow(ctx, `
		SELECT id, contact_id, active, message_count, created_at, updated_at, expires_at, version
		FROM sessions
		WHERE contact_id = $1
	`, contactID).Scan(&id, &s.ContactID, &s.Active, &s.MessageCount, &s.CreatedAt, &s.UpdatedAt, &s.ExpiresAt, &s.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("session: select failed: %w", err)
	}
	s.ID = id.String()
	return &s, nil
}

func (p *PostgresStore) Create(ctx context.Context, s *Session) error {
	id, err := uuid.Parse(s.ID)
	if err != nil {
		return fmt.Errorf("session: invalid id: %w", err)
	}
	tag, err := p.db.Exec(ctx, `
		INSERT INTO sessions (id, contact_id, active, message_count, created_at, updated_at, expires_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (contact_id) DO NOTHING
	`, id, s.ContactID, s.Active, s.MessageCount, s.CreatedAt, s.UpdatedAt, s.ExpiresAt, s.Version)
	if err != nil {
		return fmt.Errorf("session: insert failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionExists
	}
	return nil
}

// Update writes s only if the row still carries s.Version. A missing row is
// reported as a conflict since the two cannot be told apart here.
func (p *PostgresStore) Update(ctx context.Context, s *Session) error {
	tag, err := p.db.Exec(ctx, `
		UPDATE sessions
		SET active = $3, message_count = $4, updated_at = $5, expires_at = $6, version = version + 1
		WHERE contact_id = $1 AND version = $2
	`, s.ContactID, s.Version, s.Active, s.MessageCount, s.UpdatedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("session: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	s.Version++
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, contactID string, version int64) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM sessions WHERE contact_id = $1 AND version = $2`, contactID, version)
	if err != nil {
		return fmt.Errorf("session: delete failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}
