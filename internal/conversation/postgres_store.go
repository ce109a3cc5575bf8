package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// PostgresStore persists turns to the conversation_turns table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	if db == nil {
		panic("conversation: sql db cannot be nil")
	}
	return &PostgresStore{db: db}
}

// Append inserts one turn. seq (bigserial) breaks created_at ties.
func (s *PostgresStore) Append(ctx context.Context, turn *Turn) error {
	id, err := uuid.Parse(turn.ID)
	if err != nil {
		return fmt.Errorf("conversation: invalid turn id: %w", err)
	}
	var metadata []byte
	if len(turn.Metadata) > 0 {
		metadata, err = json.Marshal(turn.Metadata)
		if err != nil {
			return fmt.Errorf("conversation: encode metadata: %w", err)
		}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_turns (id, contact_id, role, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, turn.ContactID, string(turn.Role), turn.Content, metadata, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("conversation: failed to insert turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, contactID string, limit int) ([]*Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contact_id, role, content, metadata, created_at
		FROM conversation_turns
		WHERE contact_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2
	`, contactID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to query turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (s *PostgresStore) All(ctx context.Context, contactID string) ([]*Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contact_id, role, content, metadata, created_at
		FROM conversation_turns
		WHERE contact_id = $1
		ORDER BY created_at ASC, seq ASC
	`, contactID)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to query turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func scanTurns(rows *sql.Rows) ([]*Turn, error) {
	var turns []*Turn
	for rows.Next() {
		var (
			t        Turn
			role     string
			metadata []byte
		)
		if err := rows.Scan(&t.ID, &t.ContactID, &role, &t.Content, &metadata, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: failed to scan turn: %w", err)
		}
		r, err := ParseRole(role)
		if err != nil {
			return nil, err
		}
		t.Role = r
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
				return nil, fmt.Errorf("conversation: decode metadata: %w", err)
			}
		}
		turns = append(turns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: failed to read turns: %w", err)
	}
	return turns, nil
}
