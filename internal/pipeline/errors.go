package pipeline

import (
	"errors"
	"fmt"

	"github.com/wolfman30/telecom-lead-agent/internal/conversation"
	"github.com/wolfman30/telecom-lead-agent/internal/leads"
	"github.com/wolfman30/telecom-lead-agent/internal/session"
)

// FailureClass buckets errors for logs, metrics and callers.
type FailureClass string

const (
	FailureNone       FailureClass = ""
	FailureNotFound   FailureClass = "not_found"
	FailureConflict   FailureClass = "conflict"
	FailureValidation FailureClass = "validation"
	FailureGeneration FailureClass = "generation"
	FailureStore      FailureClass = "store"
)

var (
	// ErrInvalidMessage is returned for inbound messages with no sender or no text.
	ErrInvalidMessage = errors.New("pipeline: invalid inbound message")
	// ErrDuplicateMessage is returned when a message ID was already processed.
	ErrDuplicateMessage = errors.New("pipeline: duplicate message")
)

// GenerationError wraps a reply-generation failure. The pipeline recovers from
// it internally; it only surfaces through logs and Classify.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("pipeline: generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Classify maps err onto a FailureClass. Anything unrecognised is a store failure.
func Classify(err error) FailureClass {
	var genErr *GenerationError
	switch {
	case err == nil:
		return FailureNone
	case errors.As(err, &genErr):
		return FailureGeneration
	case errors.Is(err, leads.ErrLeadNotFound), errors.Is(err, session.ErrSessionNotFound):
		return FailureNotFound
	case errors.Is(err, leads.ErrLeadExists), errors.Is(err, ErrDuplicateMessage):
		return FailureConflict
	case errors.Is(err, ErrInvalidMessage),
		errors.Is(err, leads.ErrMissingContact),
		errors.Is(err, conversation.ErrInvalidRole),
		leads.IsValidationError(err):
		return FailureValidation
	default:
		return FailureStore
	}
}
