package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned when no session exists for a contact.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionExists is returned by Store.Create when another writer got there first.
	ErrSessionExists = errors.New("session: already exists")
	// ErrVersionConflict is returned when a compare-and-swap write loses the race.
	ErrVersionConflict = errors.New("session: version conflict")
)

// Session is the bounded activity window for one contact.
type Session struct {
	ID           string    `json:"id"`
	ContactID    string    `json:"contact_id"`
	Active       bool      `json:"active"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	// Version is bumped on every successful update and guards concurrent writers.
	Version int64 `json:"version"`
}

// Expired reports whether now is strictly past the expiry.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

func (s *Session) clone() *Session {
	cp := *s
	return &cp
}

// Store persists at most one session per contact identifier.
//
// Update and Delete are compare-and-swap operations: they only apply when the
// stored Version equals the caller's Version, otherwise ErrVersionConflict.
type Store interface {
	Get(ctx context.Context, contactID string) (*Session, error)
	Create(ctx context.Context, s *Session) error
	Update(ctx context.Context, s *Session) error
	Delete(ctx context.Context, contactID string, version int64) error
}
