package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/telecom-lead-agent/internal/conversation"
	"github.com/wolfman30/telecom-lead-agent/internal/dedupe"
	"github.com/wolfman30/telecom-lead-agent/internal/leads"
	"github.com/wolfman30/telecom-lead-agent/internal/observability/metrics"
	"github.com/wolfman30/telecom-lead-agent/internal/reply"
	"github.com/wolfman30/telecom-lead-agent/internal/session"
)

type stubGenerator struct {
	mu      sync.Mutex
	text    string
	err     error
	calls   int
	history []conversation.Message
	lead    reply.LeadContext
	persona string
}

func (s *stubGenerator) Generate(ctx context.Context, history []conversation.Message, lead reply.LeadContext, persona string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.history = append([]conversation.Message(nil), history...)
	s.lead = lead
	s.persona = persona
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

type harness struct {
	pipeline *Pipeline
	sessions *session.Tracker
	leads    *leads.InMemoryRepository
	log      *conversation.Log
	gen      *stubGenerator
}

func newHarness(t *testing.T, gen *stubGenerator, opts ...Option) *harness {
	t.Helper()
	tracker := session.NewTracker(session.NewMemoryStore(), 30*time.Minute, nil)
	repo := leads.NewInMemoryRepository()
	log := conversation.NewLog(conversation.NewMemoryStore(), 10, nil)
	p, err := New(Deps{
		Sessions:      tracker,
		Leads:         repo,
		Conversations: log,
		Generator:     gen,
		DefaultTarget: leads.OperatorClaro,
	}, opts...)
	require.NoError(t, err)
	return &harness{pipeline: p, sessions: tracker, leads: repo, log: log, gen: gen}
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)

	_, err = New(Deps{
		Sessions:      session.NewTracker(session.NewMemoryStore(), 0, nil),
		Leads:         leads.NewInMemoryRepository(),
		Conversations: conversation.NewLog(conversation.NewMemoryStore(), 0, nil),
		Generator:     &stubGenerator{},
		DefaultTarget: "MOVISTAR",
	})
	require.Error(t, err)
}

func TestProcessFirstMessage(t *testing.T) {
	gen := &stubGenerator{text: "¡Hola! Te cuento sobre CLARO."}
	h := newHarness(t, gen)
	ctx := context.Background()

	out, err := h.pipeline.Process(ctx, InboundMessage{SenderID: "+51900000001", Text: "Hola", MessageID: "m1"})
	require.NoError(t, err)

	assert.Equal(t, "+51900000001", out.RecipientID)
	assert.Equal(t, "¡Hola! Te cuento sobre CLARO.", out.Text)
	assert.Equal(t, leads.StatusContacted, out.LeadStatus)
	assert.Equal(t, 1, out.MessageCount)
	assert.False(t, out.Fallback)

	lead, err := h.leads.Get(ctx, "+51900000001")
	require.NoError(t, err)
	assert.Equal(t, leads.StatusContacted, lead.Status)
	assert.Equal(t, leads.OperatorClaro, lead.TargetOperator)

	turns, err := h.log.History(ctx, "+51900000001")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, conversation.RoleUser, turns[0].Role)
	assert.Equal(t, "Hola", turns[0].Content)
	assert.Equal(t, "m1", turns[0].Metadata["message_id"])
	assert.Equal(t, conversation.RoleAssistant, turns[1].Role)

	require.Len(t, gen.history, 1)
	assert.Equal(t, "Hola", gen.history[0].Content)
	assert.Equal(t, leads.OperatorClaro, gen.lead.TargetOperator)
	assert.Contains(t, gen.persona, "CLARO")
}

func TestProcessGenerationFailureSendsFallback(t *testing.T) {
	gen := &stubGenerator{err: errors.New("provider down")}
	reg := prometheus.NewRegistry()
	h := newHarness(t, gen, WithMetrics(metrics.NewPipelineMetrics(reg)))
	ctx := context.Background()

	out, err := h.pipeline.Process(ctx, InboundMessage{SenderID: "+51900000001", Text: "Hola", MessageID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, reply.FallbackText, out.Text)
	assert.True(t, out.Fallback)
	assert.Equal(t, leads.StatusContacted, out.LeadStatus)

	turns, err := h.log.History(ctx, "+51900000001")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, reply.FallbackText, turns[1].Content)
	assert.Equal(t, true, turns[1].Metadata["fallback"])
}

func TestProcessEmptyReplyUsesFallback(t *testing.T) {
	h := newHarness(t, &stubGenerator{text: "   "}, WithFallbackText("Intenta luego"))

	out, err := h.pipeline.Process(context.Background(), InboundMessage{SenderID: "+51900000002", Text: "Hola"})
	require.NoError(t, err)
	assert.Equal(t, "Intenta luego", out.Text)
	assert.True(t, out.Fallback)
}

func TestProcessSecondMessageContinuesSession(t *testing.T) {
	gen := &stubGenerator{text: "ok"}
	h := newHarness(t, gen)
	ctx := context.Background()

	first, err := h.pipeline.Process(ctx, InboundMessage{SenderID: "+51900000001", Text: "Hola", MessageID: "m1"})
	require.NoError(t, err)
	second, err := h.pipeline.Process(ctx, InboundMessage{SenderID: "+51900000001", Text: "¿Precio?", MessageID: "m2"})
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, first.MessageCount+1, second.MessageCount)
	assert.Equal(t, leads.StatusContacted, second.LeadStatus)

	all, err := h.leads.List(ctx, leads.ListLeadsFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// window: user, assistant, user
	require.Len(t, gen.history, 3)
	assert.Equal(t, "¿Precio?", gen.history[2].Content)
}

func TestProcessKeepsAdvancedStatus(t *testing.T) {
	h := newHarness(t, &stubGenerator{text: "ok"})
	ctx := context.Background()

	_, err := h.leads.GetOrCreate(ctx, "+51900000003", leads.OperatorWow)
	require.NoError(t, err)
	_, err = h.leads.SetStatus(ctx, "+51900000003", leads.StatusInterested)
	require.NoError(t, err)

	out, err := h.pipeline.Process(ctx, InboundMessage{SenderID: "+51900000003", Text: "Sigo interesado"})
	require.NoError(t, err)
	assert.Equal(t, leads.StatusInterested, out.LeadStatus)
	assert.Equal(t, leads.OperatorWow, h.gen.lead.TargetOperator)
}

func TestProcessRejectsInvalidMessages(t *testing.T) {
	h := newHarness(t, &stubGenerator{text: "ok"})
	ctx := context.Background()

	_, err := h.pipeline.Process(ctx, InboundMessage{SenderID: "", Text: "Hola"})
	require.ErrorIs(t, err, ErrInvalidMessage)
	assert.Equal(t, FailureValidation, Classify(err))

	_, err = h.pipeline.Process(ctx, InboundMessage{SenderID: "+51900000004", Text: "  "})
	require.ErrorIs(t, err, ErrInvalidMessage)

	_, err = h.leads.Get(ctx, "+51900000004")
	assert.ErrorIs(t, err, leads.ErrLeadNotFound)
	assert.Equal(t, 0, h.gen.calls)
}

type brokenRepo struct {
	*leads.InMemoryRepository
	failFor string
}

func (b *brokenRepo) GetOrCreate(ctx context.Context, contactID string, target leads.Operator) (*leads.Lead, error) {
	if contactID == b.failFor {
		return nil, fmt.Errorf("leads: get or create: %w", errors.New("connection reset"))
	}
	return b.InMemoryRepository.GetOrCreate(ctx, contactID, target)
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	gen := &stubGenerator{text: "ok"}
	repo := &brokenRepo{InMemoryRepository: leads.NewInMemoryRepository(), failFor: "+51900000002"}
	p, err := New(Deps{
		Sessions:      session.NewTracker(session.NewMemoryStore(), time.Minute, nil),
		Leads:         repo,
		Conversations: conversation.NewLog(conversation.NewMemoryStore(), 10, nil),
		Generator:     gen,
		DefaultTarget: leads.OperatorWin,
	})
	require.NoError(t, err)

	res := p.ProcessBatch(context.Background(), []InboundMessage{
		{SenderID: "+51900000001", Text: "Hola", MessageID: "a"},
		{SenderID: "+51900000002", Text: "Hola", MessageID: "b"},
		{SenderID: "", Text: "Hola", MessageID: "c"},
		{SenderID: "+51900000003", Text: "Hola", MessageID: "d"},
	})

	require.Len(t, res.Replies, 2)
	assert.Equal(t, "+51900000001", res.Replies[0].RecipientID)
	assert.Equal(t, "+51900000003", res.Replies[1].RecipientID)

	require.Len(t, res.Failures, 2)
	assert.Equal(t, 1, res.Failures[0].Index)
	assert.Equal(t, FailureStore, res.Failures[0].Class)
	assert.Equal(t, "c", res.Failures[1].MessageID)
	assert.Equal(t, FailureValidation, res.Failures[1].Class)
}

func TestProcessConcurrentSameContact(t *testing.T) {
	h := newHarness(t, &stubGenerator{text: "ok"}, WithSerializedContacts(true))
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.pipeline.Process(ctx, InboundMessage{SenderID: "+51900000009", Text: fmt.Sprintf("msg %d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	sess, err := h.sessions.Get(ctx, "+51900000009")
	require.NoError(t, err)
	assert.Equal(t, n, sess.MessageCount)

	turns, err := h.log.History(ctx, "+51900000009")
	require.NoError(t, err)
	assert.Len(t, turns, 2*n)
	assert.Equal(t, 0, h.pipeline.locks.size())
}

func TestKeyedMutexHonoursContext(t *testing.T) {
	k := newKeyedMutex()
	unlock, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := k.Lock(context.Background(), "b")
	require.NoError(t, err)
	other()

	unlock()
	assert.Equal(t, 0, k.size())
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want FailureClass
	}{
		{nil, FailureNone},
		{fmt.Errorf("x: %w", leads.ErrLeadNotFound), FailureNotFound},
		{session.ErrSessionNotFound, FailureNotFound},
		{leads.ErrLeadExists, FailureConflict},
		{&leads.ValidationError{Field: "status", Value: "BOGUS"}, FailureValidation},
		{conversation.ErrInvalidRole, FailureValidation},
		{&GenerationError{Err: errors.New("timeout")}, FailureGeneration},
		{errors.New("disk full"), FailureStore},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.err), "%v", tc.err)
	}
}

type brokenDedupe struct{}

func (brokenDedupe) AlreadyProcessed(ctx context.Context, channel, messageID string) (bool, error) {
	return false, errors.New("redis down")
}

func (brokenDedupe) MarkProcessed(ctx context.Context, channel, messageID string) (bool, error) {
	return false, errors.New("redis down")
}

// flakyRepo fails GetOrCreate the first n times.
type flakyRepo struct {
	*leads.InMemoryRepository
	failures int
}

func (f *flakyRepo) GetOrCreate(ctx context.Context, contactID string, target leads.Operator) (*leads.Lead, error) {
	if f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("leads: get or create: %w", errors.New("connection reset"))
	}
	return f.InMemoryRepository.GetOrCreate(ctx, contactID, target)
}

func TestProcessDropsRedeliveredMessage(t *testing.T) {
	gen := &stubGenerator{text: "ok"}
	h := newHarness(t, gen, WithDedupe(dedupe.NewMemoryStore(time.Hour), "whatsapp"))
	ctx := context.Background()

	_, err := h.pipeline.Process(ctx, InboundMessage{SenderID: "+51900000001", Text: "Hola", MessageID: "m1"})
	require.NoError(t, err)
	_, err = h.pipeline.Process(ctx, InboundMessage{SenderID: "+51900000001", Text: "Hola", MessageID: "m1"})
	require.ErrorIs(t, err, ErrDuplicateMessage)
	assert.Equal(t, FailureConflict, Classify(err))

	// messages without an ID are never deduplicated
	_, err = h.pipeline.Process(ctx, InboundMessage{SenderID: "+51900000001", Text: "Hola"})
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls)
}

func TestProcessIgnoresDedupeFailure(t *testing.T) {
	h := newHarness(t, &stubGenerator{text: "ok"}, WithDedupe(brokenDedupe{}, "whatsapp"))

	_, err := h.pipeline.Process(context.Background(), InboundMessage{SenderID: "+51900000001", Text: "Hola", MessageID: "m1"})
	require.NoError(t, err)
}

func TestProcessRetriesRedeliveryAfterStoreFailure(t *testing.T) {
	gen := &stubGenerator{text: "ok"}
	store := dedupe.NewMemoryStore(time.Hour)
	p, err := New(Deps{
		Sessions:      session.NewTracker(session.NewMemoryStore(), time.Minute, nil),
		Leads:         &flakyRepo{InMemoryRepository: leads.NewInMemoryRepository(), failures: 1},
		Conversations: conversation.NewLog(conversation.NewMemoryStore(), 10, nil),
		Generator:     gen,
		DefaultTarget: leads.OperatorClaro,
	}, WithDedupe(store, "whatsapp"))
	require.NoError(t, err)
	ctx := context.Background()
	msg := InboundMessage{SenderID: "+51900000001", Text: "Hola", MessageID: "m1"}

	_, err = p.Process(ctx, msg)
	require.Error(t, err)
	assert.Equal(t, FailureStore, Classify(err))
	done, err := store.AlreadyProcessed(ctx, "whatsapp", "m1")
	require.NoError(t, err)
	assert.False(t, done)

	out, err := p.Process(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, leads.StatusContacted, out.LeadStatus)
	assert.Equal(t, 1, gen.calls)

	_, err = p.Process(ctx, msg)
	require.ErrorIs(t, err, ErrDuplicateMessage)
}

func TestProcessMarksAfterCallerCancels(t *testing.T) {
	store := dedupe.NewMemoryStore(time.Hour)
	gen := &cancellingGenerator{}
	h := newHarness(t, &stubGenerator{}, WithDedupe(store, "whatsapp"))
	h.pipeline.generator = gen
	ctx, cancel := context.WithCancel(context.Background())
	gen.cancel = cancel

	_, err := h.pipeline.Process(ctx, InboundMessage{SenderID: "+51900000001", Text: "Hola", MessageID: "m1"})
	require.NoError(t, err)

	done, err := store.AlreadyProcessed(context.Background(), "whatsapp", "m1")
	require.NoError(t, err)
	assert.True(t, done)
}

// cancellingGenerator answers and then cancels the caller's context, like a
// bridge that times out right after the reply is produced.
type cancellingGenerator struct {
	cancel context.CancelFunc
}

func (g *cancellingGenerator) Generate(ctx context.Context, history []conversation.Message, lead reply.LeadContext, persona string) (string, error) {
	g.cancel()
	return "ok", nil
}

func TestProcessStoresTextAsReceived(t *testing.T) {
	h := newHarness(t, &stubGenerator{text: "ok"})
	ctx := context.Background()

	_, err := h.pipeline.Process(ctx, InboundMessage{SenderID: " +51900000001 ", Text: "  Hola,\n¿precios?  "})
	require.NoError(t, err)

	turns, err := h.log.History(ctx, "+51900000001")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "  Hola,\n¿precios?  ", turns[0].Content)
}
