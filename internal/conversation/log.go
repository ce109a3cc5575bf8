package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/telecom-lead-agent/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultMaxHistory bounds the window passed to reply generation.
const DefaultMaxHistory = 10

var tracer = otel.Tracer("telecom.internal.conversation")

// Log is the append-only conversation history for every contact.
type Log struct {
	store      Store
	maxHistory int
	logger     *logging.Logger

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewLog wraps store. maxHistory <= 0 falls back to DefaultMaxHistory.
func NewLog(store Store, maxHistory int, logger *logging.Logger) *Log {
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Log{
		store:      store,
		maxHistory: maxHistory,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// MaxHistory returns the configured window size.
func (l *Log) MaxHistory() int { return l.maxHistory }

// Append persists a new turn stamped with a server-assigned timestamp.
func (l *Log) Append(ctx context.Context, contactID string, role Role, content string, metadata map[string]any) (*Turn, error) {
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return nil, errors.New("conversation: contact identifier is required")
	}
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "conversation.append")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.role", string(role)))

	turn := &Turn{
		ID:        uuid.New().String(),
		ContactID: contactID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: l.stamp(),
	}
	if err := l.store.Append(ctx, turn); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: append: %w", err)
	}
	return turn, nil
}

// RecentWindow returns the limit most recent turns reordered oldest-first.
// limit <= 0 uses the configured maximum.
func (l *Log) RecentWindow(ctx context.Context, contactID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = l.maxHistory
	}

	ctx, span := tracer.Start(ctx, "conversation.recent_window")
	defer span.End()

	turns, err := l.store.Recent(ctx, strings.TrimSpace(contactID), limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: recent window: %w", err)
	}
	span.SetAttributes(attribute.Int("conversation.window", len(turns)))

	out := make([]Message, len(turns))
	for i, turn := range turns {
		out[len(turns)-1-i] = Message{Role: turn.Role, Content: turn.Content}
	}
	return out, nil
}

// History returns every stored turn for contactID, oldest first.
func (l *Log) History(ctx context.Context, contactID string) ([]*Turn, error) {
	turns, err := l.store.All(ctx, strings.TrimSpace(contactID))
	if err != nil {
		return nil, fmt.Errorf("conversation: history: %w", err)
	}
	return turns, nil
}

// stamp hands out strictly increasing timestamps so turns appended by this
// process never tie.
func (l *Log) stamp() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := l.now()
	if !t.After(l.last) {
		t = l.last.Add(time.Nanosecond)
	}
	l.last = t
	return t
}
