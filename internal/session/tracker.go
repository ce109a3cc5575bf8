package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/telecom-lead-agent/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// DefaultTimeout is the session lifetime when none is configured.
	DefaultTimeout = 30 * time.Minute

	maxTouchAttempts = 8
)

// ErrContention is returned when Touch keeps losing compare-and-swap races.
var ErrContention = errors.New("session: too many concurrent updates")

var tracer = otel.Tracer("telecom.internal.session")

// Tracker applies the touch rules on top of a Store.
type Tracker struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
	logger  *logging.Logger
}

// NewTracker wires a tracker around store. A non-positive timeout falls back to DefaultTimeout.
func NewTracker(store Store, timeout time.Duration, logger *logging.Logger) *Tracker {
	if store == nil {
		panic("session: store cannot be nil")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Tracker{
		store:   store,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
}

// Timeout returns the fixed session duration.
func (t *Tracker) Timeout() time.Duration { return t.timeout }

// Touch records activity for contactID.
//
// A missing session is created with MessageCount 1. A live session has its
// counter incremented while ExpiresAt stays where it was. An expired session
// is deleted and replaced by a fresh one.
func (t *Tracker) Touch(ctx context.Context, contactID string) (*Session, error) {
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return nil, errors.New("session: contact identifier is required")
	}

	ctx, span := tracer.Start(ctx, "session.touch")
	defer span.End()

	for attempt := 1; attempt <= maxTouchAttempts; attempt++ {
		s, err := t.touchOnce(ctx, contactID)
		if err == nil {
			span.SetAttributes(
				attribute.Int("session.message_count", s.MessageCount),
				attribute.Int("session.attempts", attempt),
			)
			return s, nil
		}
		if !errors.Is(err, ErrVersionConflict) && !errors.Is(err, ErrSessionExists) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "touch failed")
			return nil, err
		}
		t.logger.Debug("session touch lost race, retrying",
			"contact_id", logging.MaskPhone(contactID),
			"attempt", attempt,
			"error", err,
		)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	span.SetStatus(codes.Error, "contention")
	return nil, fmt.Errorf("%w: %s", ErrContention, logging.MaskPhone(contactID))
}

func (t *Tracker) touchOnce(ctx context.Context, contactID string) (*Session, error) {
	now := t.now()

	current, err := t.store.Get(ctx, contactID)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return t.create(ctx, contactID, now)
	case err != nil:
		return nil, err
	}

	if current.Expired(now) {
		if err := t.store.Delete(ctx, contactID, current.Version); err != nil && !errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		t.logger.Info("session expired, starting a new one",
			"contact_id", logging.MaskPhone(contactID),
			"previous_messages", current.MessageCount,
		)
		return t.create(ctx, contactID, now)
	}

	next := current.clone()
	next.MessageCount++
	next.UpdatedAt = now
	if err := t.store.Update(ctx, next); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			// replaced or deleted underneath us
			return nil, ErrVersionConflict
		}
		return nil, err
	}
	return next, nil
}

func (t *Tracker) create(ctx context.Context, contactID string, now time.Time) (*Session, error) {
	s := &Session{
		ID:           uuid.New().String(),
		ContactID:    contactID,
		Active:       true,
		MessageCount: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(t.timeout),
		Version:      1,
	}
	if err := t.store.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the stored session for contactID, expired or not.
func (t *Tracker) Get(ctx context.Context, contactID string) (*Session, error) {
	return t.store.Get(ctx, strings.TrimSpace(contactID))
}
