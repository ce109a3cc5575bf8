package reply

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/telecom-lead-agent/internal/conversation"
	"github.com/wolfman30/telecom-lead-agent/internal/leads"
	"github.com/wolfman30/telecom-lead-agent/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// FallbackText is sent whenever generation fails.
const FallbackText = "Lo siento, estoy teniendo problemas técnicos. ¿Podrías intentar de nuevo en unos momentos?"

var (
	// ErrEmptyReply is returned when the backend answers with blank text.
	ErrEmptyReply = errors.New("reply: model returned an empty reply")
	// ErrNoHistory is returned when there is nothing to answer.
	ErrNoHistory = errors.New("reply: history is empty")
)

var tracer = otel.Tracer("telecom.internal.reply")

// LeadContext is the lead data the generator is allowed to see.
type LeadContext struct {
	ContactID       string
	TargetOperator  leads.Operator
	CurrentOperator leads.Operator
}

// Config tunes a Generator.
type Config struct {
	Model       string
	Temperature float32
	MaxTokens   int32
	Timeout     time.Duration
	MaxHistory  int
}

// Generator turns a history window into reply text.
type Generator struct {
	client LLMClient
	cfg    Config
	logger *logging.Logger
}

func NewGenerator(client LLMClient, cfg Config, logger *logging.Logger) *Generator {
	if client == nil {
		panic("reply: llm client cannot be nil")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = conversation.DefaultMaxHistory
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Generator{client: client, cfg: cfg, logger: logger}
}

// Generate asks the backend for the next assistant turn. Any error, including
// the timeout, is returned to the caller; substituting FallbackText is the
// caller's decision.
func (g *Generator) Generate(ctx context.Context, history []conversation.Message, lead LeadContext, persona string) (string, error) {
	if len(history) == 0 {
		return "", ErrNoHistory
	}
	if len(history) > g.cfg.MaxHistory {
		history = history[len(history)-g.cfg.MaxHistory:]
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "reply.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("lead.target_operator", string(lead.TargetOperator)),
		attribute.Int("reply.history", len(history)),
	)

	msgs := make([]ChatMessage, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, ChatMessage{Role: string(m.Role), Content: m.Content})
	}

	start := time.Now()
	resp, err := g.client.Complete(ctx, LLMRequest{
		Model:       g.cfg.Model,
		System:      []string{persona},
		Messages:    msgs,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("reply: generation timed out after %s: %w", g.cfg.Timeout, err)
		}
		return "", err
	}
	if resp.Text == "" {
		return "", ErrEmptyReply
	}

	g.logger.Info("reply generated",
		"contact_id", logging.MaskPhone(lead.ContactID),
		"duration_ms", time.Since(start).Milliseconds(),
		"output_tokens", resp.Usage.OutputTokens,
	)
	return resp.Text, nil
}
