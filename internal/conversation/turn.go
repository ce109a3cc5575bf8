package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrInvalidRole is returned for roles other than user and assistant.
var ErrInvalidRole = errors.New("conversation: invalid role")

// ParseRole validates raw against the supported roles.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.TrimSpace(raw)) {
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant:
		return RoleAssistant, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
}

// Turn is one persisted message. Turns are never mutated once appended.
type Turn struct {
	ID        string         `json:"id"`
	ContactID string         `json:"phone_number"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Message is the role/content pair handed to reply generation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Store persists turns keyed by contact identifier.
type Store interface {
	Append(ctx context.Context, turn *Turn) error
	// Recent returns up to limit turns, newest first.
	Recent(ctx context.Context, contactID string, limit int) ([]*Turn, error)
	// All returns every turn, oldest first.
	All(ctx context.Context, contactID string) ([]*Turn, error)
}
