package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/telecom-lead-agent/internal/conversation"
	"github.com/wolfman30/telecom-lead-agent/internal/dedupe"
	"github.com/wolfman30/telecom-lead-agent/internal/leads"
	"github.com/wolfman30/telecom-lead-agent/internal/observability/metrics"
	"github.com/wolfman30/telecom-lead-agent/internal/reply"
	"github.com/wolfman30/telecom-lead-agent/internal/session"
	"github.com/wolfman30/telecom-lead-agent/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("telecom.internal.pipeline")

// ReplyGenerator produces the assistant turn for a history window.
type ReplyGenerator interface {
	Generate(ctx context.Context, history []conversation.Message, lead reply.LeadContext, persona string) (string, error)
}

// InboundMessage is one message delivered by a channel.
type InboundMessage struct {
	SenderID  string
	Text      string
	Timestamp *time.Time
	MessageID string
}

// Reply is the outcome of processing one inbound message.
type Reply struct {
	RecipientID  string
	Text         string
	LeadStatus   leads.Status
	SessionID    string
	MessageCount int
	// Fallback is true when generation failed and FallbackText was sent.
	Fallback bool
}

// Deps are the collaborators a Pipeline needs.
type Deps struct {
	Sessions      *session.Tracker
	Leads         leads.Repository
	Conversations *conversation.Log
	Generator     ReplyGenerator
	Personas      *reply.Personas
	// DefaultTarget is assigned to leads created by the pipeline.
	DefaultTarget leads.Operator
	Logger        *logging.Logger
}

// Option configures optional Pipeline behaviour.
type Option func(*Pipeline)

// WithSerializedContacts processes messages from the same contact one at a time.
func WithSerializedContacts(enabled bool) Option {
	return func(p *Pipeline) {
		if enabled {
			p.locks = newKeyedMutex()
		} else {
			p.locks = nil
		}
	}
}

// WithMetrics records outcomes on m.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithDedupe drops messages whose ID was already processed successfully on channel.
func WithDedupe(store dedupe.Store, channel string) Option {
	return func(p *Pipeline) {
		p.dedupe = store
		p.channel = channel
	}
}

// WithFallbackText overrides the reply used when generation fails.
func WithFallbackText(text string) Option {
	return func(p *Pipeline) {
		if strings.TrimSpace(text) != "" {
			p.fallbackText = text
		}
	}
}

// Pipeline runs the per-message state machine: session touch, lead
// resolution, user turn, window, generation, assistant turn, status advance.
type Pipeline struct {
	sessions      *session.Tracker
	leads         leads.Repository
	conversations *conversation.Log
	generator     ReplyGenerator
	personas      *reply.Personas
	defaultTarget leads.Operator
	fallbackText  string
	logger        *logging.Logger
	metrics       *metrics.PipelineMetrics
	locks         *keyedMutex
	dedupe        dedupe.Store
	channel       string
	now           func() time.Time
}

// New validates deps and builds a Pipeline.
func New(deps Deps, opts ...Option) (*Pipeline, error) {
	if deps.Sessions == nil || deps.Leads == nil || deps.Conversations == nil || deps.Generator == nil {
		return nil, errors.New("pipeline: sessions, leads, conversations and generator are required")
	}
	target, err := leads.ParseOperator(string(deps.DefaultTarget))
	if err != nil {
		return nil, fmt.Errorf("pipeline: default target operator: %w", err)
	}
	if deps.Personas == nil {
		deps.Personas = reply.DefaultPersonas()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	p := &Pipeline{
		sessions:      deps.Sessions,
		leads:         deps.Leads,
		conversations: deps.Conversations,
		generator:     deps.Generator,
		personas:      deps.Personas,
		defaultTarget: target,
		fallbackText:  reply.FallbackText,
		logger:        deps.Logger,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Process runs one inbound message through every step. Generation failures
// are absorbed; any other failure aborts this message and is returned. Writes
// made before a failure are kept.
func (p *Pipeline) Process(ctx context.Context, msg InboundMessage) (*Reply, error) {
	start := p.now()
	contactID := strings.TrimSpace(msg.SenderID)

	out, err := p.process(ctx, contactID, msg)
	elapsed := p.now().Sub(start).Seconds()
	if err != nil {
		class := Classify(err)
		p.logger.Error("inbound message failed",
			"contact_id", logging.MaskPhone(contactID),
			"message_id", msg.MessageID,
			"failure", string(class),
			"error", err,
		)
		p.metrics.ObserveMessage(string(class), elapsed)
		return nil, err
	}
	p.metrics.ObserveMessage("ok", elapsed)
	return out, nil
}

func (p *Pipeline) process(ctx context.Context, contactID string, msg InboundMessage) (*Reply, error) {
	if contactID == "" {
		return nil, fmt.Errorf("%w: missing sender", ErrInvalidMessage)
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrInvalidMessage)
	}

	if p.locks != nil {
		unlock, err := p.locks.Lock(ctx, contactID)
		if err != nil {
			return nil, fmt.Errorf("pipeline: waiting for contact lock: %w", err)
		}
		defer unlock()
	}

	ctx, span := tracer.Start(ctx, "pipeline.process")
	defer span.End()
	span.SetAttributes(attribute.String("message.id", msg.MessageID))

	if p.alreadyProcessed(ctx, contactID, msg.MessageID) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateMessage, msg.MessageID)
	}

	fail := func(step string, err error) (*Reply, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, step)
		return nil, fmt.Errorf("pipeline: %s: %w", step, err)
	}

	// 1. session
	sess, err := p.sessions.Touch(ctx, contactID)
	if err != nil {
		return fail("touch session", err)
	}

	// 2. lead
	lead, err := p.leads.GetOrCreate(ctx, contactID, p.defaultTarget)
	if err != nil {
		return fail("resolve lead", err)
	}
	span.SetAttributes(
		attribute.String("lead.status", string(lead.Status)),
		attribute.String("lead.target_operator", string(lead.TargetOperator)),
	)

	// 3. inbound turn
	meta := map[string]any{}
	if msg.MessageID != "" {
		meta["message_id"] = msg.MessageID
	}
	if msg.Timestamp != nil {
		meta["sent_at"] = msg.Timestamp.UTC().Format(time.RFC3339)
	}
	if _, err := p.conversations.Append(ctx, contactID, conversation.RoleUser, msg.Text, meta); err != nil {
		return fail("record inbound turn", err)
	}

	// 4. window
	window, err := p.conversations.RecentWindow(ctx, contactID, p.conversations.MaxHistory())
	if err != nil {
		return fail("load history", err)
	}

	// 5. generate
	replyText, fallback := p.generate(ctx, window, lead)

	// 6. outbound turn
	var outMeta map[string]any
	if fallback {
		outMeta = map[string]any{"fallback": true}
	}
	if _, err := p.conversations.Append(ctx, contactID, conversation.RoleAssistant, replyText, outMeta); err != nil {
		return fail("record outbound turn", err)
	}

	// 7. first contact
	if lead.Status == leads.StatusPending {
		updated, err := p.leads.SetStatus(ctx, contactID, leads.StatusContacted)
		if err != nil {
			return fail("advance status", err)
		}
		p.metrics.ObserveStatusAdvance(string(leads.StatusPending), string(updated.Status))
		lead = updated
	}

	p.markProcessed(ctx, contactID, msg.MessageID)

	p.logger.Info("inbound message processed",
		"contact_id", logging.MaskPhone(contactID),
		"message_id", msg.MessageID,
		"status", lead.Status,
		"session_messages", sess.MessageCount,
		"fallback", fallback,
	)

	return &Reply{
		RecipientID:  contactID,
		Text:         replyText,
		LeadStatus:   lead.Status,
		SessionID:    sess.ID,
		MessageCount: sess.MessageCount,
		Fallback:     fallback,
	}, nil
}

func (p *Pipeline) generate(ctx context.Context, window []conversation.Message, lead *leads.Lead) (string, bool) {
	persona := p.personas.Directive(lead.TargetOperator, lead.CurrentOperator)
	leadCtx := reply.LeadContext{
		ContactID:       lead.ContactID,
		TargetOperator:  lead.TargetOperator,
		CurrentOperator: lead.CurrentOperator,
	}

	start := p.now()
	text, err := p.generator.Generate(ctx, window, leadCtx, persona)
	p.metrics.ObserveGeneration(p.now().Sub(start).Seconds())
	if err == nil && strings.TrimSpace(text) != "" {
		return text, false
	}
	if err == nil {
		err = reply.ErrEmptyReply
	}

	genErr := &GenerationError{Err: err}
	p.logger.Warn("reply generation failed, sending fallback",
		"contact_id", logging.MaskPhone(lead.ContactID),
		"failure", string(Classify(genErr)),
		"error", err,
	)
	p.metrics.ObserveFallback()
	return p.fallbackText, true
}

// alreadyProcessed reports whether messageID was handled successfully before.
// A failing dedupe store never drops a message; it is logged and processing
// continues.
func (p *Pipeline) alreadyProcessed(ctx context.Context, contactID, messageID string) bool {
	if p.dedupe == nil || messageID == "" {
		return false
	}
	done, err := p.dedupe.AlreadyProcessed(ctx, p.channel, messageID)
	if err != nil {
		p.logger.Warn("dedupe check failed, processing anyway",
			"contact_id", logging.MaskPhone(contactID),
			"message_id", messageID,
			"error", err,
		)
		return false
	}
	return done
}

// markProcessed runs only after every step succeeded, so a failed attempt
// stays eligible for redelivery.
func (p *Pipeline) markProcessed(ctx context.Context, contactID, messageID string) {
	if p.dedupe == nil || messageID == "" {
		return
	}
	// marked even if the caller already hung up
	if _, err := p.dedupe.MarkProcessed(context.WithoutCancel(ctx), p.channel, messageID); err != nil {
		p.logger.Warn("failed to mark message processed",
			"contact_id", logging.MaskPhone(contactID),
			"message_id", messageID,
			"error", err,
		)
	}
}
