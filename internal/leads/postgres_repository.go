package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const leadColumns = `id, contact_id, name, email, current_operator, target_operator, status,
	notes, extra_data, created_at, updated_at, last_contacted_at, converted_at`

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	pool pgxQuerier
	now  func() time.Time
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return newPostgresRepositoryWithQuerier(pool)
}

func newPostgresRepositoryWithQuerier(q pgxQuerier) *PostgresRepository {
	if q == nil {
		panic("leads: querier required")
	}
	return &PostgresRepository{
		pool: q,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate inserts a PENDING lead unless the contact already exists, then
// reads back whichever row won.
func (r *PostgresRepository) GetOrCreate(ctx context.Context, contactID string, target Operator) (*Lead, error) {
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return nil, ErrMissingContact
	}
	if _, err := ParseOperator(string(target)); err != nil {
		return nil, err
	}

	now := r.now()
	query := `
		INSERT INTO leads (id, contact_id, target_operator, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (contact_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, uuid.New(), contactID, string(target), string(StatusPending), now); err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}
	return r.Get(ctx, contactID)
}

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	extra, err := encodeExtra(req.ExtraData)
	if err != nil {
		return nil, err
	}
	lead := req.toLead(uuid.New().String(), r.now())
	query := `
		INSERT INTO leads (id, contact_id, name, email, current_operator, target_operator, status, notes, extra_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (contact_id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		lead.ID,
		lead.ContactID,
		nullString(lead.Name),
		nullString(lead.Email),
		nullString(string(lead.CurrentOperator)),
		string(lead.TargetOperator),
		string(lead.Status),
		nullString(lead.Notes),
		extra,
		lead.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrLeadExists
	}
	return lead, nil
}

// Get fetches a lead by contact identifier.
func (r *PostgresRepository) Get(ctx context.Context, contactID string) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE contact_id = $1`
	lead, err := scanLead(r.pool.QueryRow(ctx, query, strings.TrimSpace(contactID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

// SetStatus overwrites the status; converted_at is stamped only on CONVERTED.
func (r *PostgresRepository) SetStatus(ctx context.Context, contactID string, status Status) (*Lead, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}

	query := `
		UPDATE leads SET
			status = $2,
			updated_at = $3,
			converted_at = CASE WHEN $4 THEN $3 ELSE converted_at END
		WHERE contact_id = $1
		RETURNING ` + leadColumns
	lead, err := scanLead(r.pool.QueryRow(ctx, query,
		strings.TrimSpace(contactID),
		string(status),
		r.now(),
		status == StatusConverted,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: update status failed: %w", err)
	}
	return lead, nil
}

// Update applies the non-nil fields of upd.
func (r *PostgresRepository) Update(ctx context.Context, contactID string, upd LeadUpdate) (*Lead, error) {
	if upd.Empty() {
		return r.Get(ctx, contactID)
	}

	sets := make([]string, 0, 7)
	args := []any{strings.TrimSpace(contactID)}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Name != nil {
		add("name", nullString(*upd.Name))
	}
	if upd.Email != nil {
		add("email", nullString(*upd.Email))
	}
	if upd.CurrentOperator != nil {
		if *upd.CurrentOperator != "" {
			if _, err := ParseOperator(string(*upd.CurrentOperator)); err != nil {
				return nil, err
			}
		}
		add("current_operator", nullString(string(*upd.CurrentOperator)))
	}
	if upd.Notes != nil {
		add("notes", nullString(*upd.Notes))
	}
	if upd.ExtraData != nil {
		extra, err := encodeExtra(upd.ExtraData)
		if err != nil {
			return nil, err
		}
		add("extra_data", extra)
	}
	if upd.LastContactedAt != nil {
		add("last_contacted_at", *upd.LastContactedAt)
	}
	add("updated_at", r.now())

	query := `UPDATE leads SET ` + strings.Join(sets, ", ") + ` WHERE contact_id = $1 RETURNING ` + leadColumns
	lead, err := scanLead(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: update failed: %w", err)
	}
	return lead, nil
}

// List returns leads ordered by creation time.
func (r *PostgresRepository) List(ctx context.Context, filter ListLeadsFilter) ([]*Lead, error) {
	filter = filter.normalized()
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR target_operator = $2)
		ORDER BY created_at ASC, contact_id ASC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query, string(filter.Status), string(filter.TargetOperator), filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	out := make([]*Lead, 0, filter.Limit)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	return out, nil
}

// Stats counts leads grouped by status and target operator.
func (r *PostgresRepository) Stats(ctx context.Context) (*Stats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, target_operator, COUNT(*)
		FROM leads
		GROUP BY status, target_operator
	`)
	if err != nil {
		return nil, fmt.Errorf("leads: stats failed: %w", err)
	}
	defer rows.Close()

	stats := newStats()
	for rows.Next() {
		var (
			rawStatus, rawTarget string
			count                int64
		)
		if err := rows.Scan(&rawStatus, &rawTarget, &count); err != nil {
			return nil, fmt.Errorf("leads: stats scan failed: %w", err)
		}
		status, err := ParseStatus(rawStatus)
		if err != nil {
			return nil, err
		}
		target, err := ParseOperator(rawTarget)
		if err != nil {
			return nil, err
		}
		stats.add(status, target, int(count))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: stats failed: %w", err)
	}
	return stats, nil
}

// scanLead decodes one row and re-validates the string-backed enums.
func scanLead(row pgx.Row) (*Lead, error) {
	var (
		lead                                Lead
		id                                  uuid.UUID
		name, email, currentOperator, notes *string
		targetOperator, status              string
		extra                               []byte
		lastContactedAt, convertedAt        *time.Time
	)
	if err := row.Scan(
		&id,
		&lead.ContactID,
		&name,
		&email,
		&currentOperator,
		&targetOperator,
		&status,
		&notes,
		&extra,
		&lead.CreatedAt,
		&lead.UpdatedAt,
		&lastContactedAt,
		&convertedAt,
	); err != nil {
		return nil, err
	}
	lead.ID = id.String()
	lead.Name = derefString(name)
	lead.Email = derefString(email)
	lead.Notes = derefString(notes)
	lead.LastContactedAt = lastContactedAt
	lead.ConvertedAt = convertedAt

	target, err := ParseOperator(targetOperator)
	if err != nil {
		return nil, err
	}
	lead.TargetOperator = target
	if current := derefString(currentOperator); current != "" {
		op, err := ParseOperator(current)
		if err != nil {
			return nil, err
		}
		lead.CurrentOperator = op
	}
	st, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	lead.Status = st

	if len(extra) > 0 && string(extra) != "null" {
		if err := json.Unmarshal(extra, &lead.ExtraData); err != nil {
			return nil, fmt.Errorf("leads: decode extra_data: %w", err)
		}
	}
	return &lead, nil
}

func encodeExtra(extra map[string]any) ([]byte, error) {
	if extra == nil {
		extra = map[string]any{}
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return nil, fmt.Errorf("leads: encode extra_data: %w", err)
	}
	return data, nil
}

func nullString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
