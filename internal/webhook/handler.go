package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/telecom-lead-agent/internal/leads"
	"github.com/wolfman30/telecom-lead-agent/internal/observability/metrics"
	"github.com/wolfman30/telecom-lead-agent/internal/pipeline"
	"github.com/wolfman30/telecom-lead-agent/pkg/logging"
)

// ChannelWhatsApp names the WhatsApp bridge in metrics and dedupe keys.
const ChannelWhatsApp = "whatsapp"

const (
	secretHeader = "X-Webhook-Secret"
	maxBodyBytes = 1 << 20
)

// Processor runs a batch of inbound messages.
type Processor interface {
	ProcessBatch(ctx context.Context, msgs []pipeline.InboundMessage) pipeline.BatchResult
}

// InboundPayload is the body posted by the WhatsApp bridge.
type InboundPayload struct {
	Messages []InboundMessage `json:"messages"`
}

// InboundMessage is a single message in the payload. Timestamp is optional.
type InboundMessage struct {
	FromNumber string    `json:"from_number"`
	Message    string    `json:"message"`
	Timestamp  Timestamp `json:"timestamp"`
	MessageID  string    `json:"message_id"`
}

// Timestamp accepts RFC 3339, ISO 8601 without a zone (read as UTC) and Unix
// epoch seconds or milliseconds, as a number or a string. Anything else,
// including null, decodes to the zero value instead of failing the batch.
type Timestamp struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// UnmarshalJSON never returns an error for a well-formed JSON value.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.Time = time.Time{}
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}
	t.Time = parseTimestamp(raw)
	return nil
}

// Ptr returns nil for the zero value.
func (t Timestamp) Ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	ts := t.Time
	return &ts
}

func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ts
		}
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f > 0 {
		if f >= 1e12 {
			return time.UnixMilli(int64(f)).UTC()
		}
		sec := int64(f)
		return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC()
	}
	return time.Time{}
}

// OutboundReply is one element of the webhook response.
type OutboundReply struct {
	PhoneNumber string       `json:"phone_number"`
	Message     string       `json:"message"`
	LeadStatus  leads.Status `json:"lead_status"`
}

// HealthResponse is returned by the health endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	App     string `json:"app"`
	Version string `json:"version"`
}

// Handler accepts inbound chat batches and answers with generated replies.
type Handler struct {
	processor Processor
	secret    string
	app       string
	version   string
	logger    *logging.Logger
	metrics   *metrics.PipelineMetrics
}

// Config carries the handler settings.
type Config struct {
	// Secret enables the X-Webhook-Secret check when non-empty.
	Secret  string
	App     string
	Version string
	Metrics *metrics.PipelineMetrics
}

// NewHandler creates a webhook handler.
func NewHandler(processor Processor, cfg Config, logger *logging.Logger) *Handler {
	if processor == nil {
		panic("webhook: processor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		processor: processor,
		secret:    strings.TrimSpace(cfg.Secret),
		app:       cfg.App,
		version:   cfg.Version,
		logger:    logger,
		metrics:   cfg.Metrics,
	}
}

// Register mounts the webhook routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/webhook/whatsapp", h.WhatsApp)
	r.Get("/webhook/health", h.Health)
}

// WhatsApp handles POST /webhook/whatsapp.
func (h *Handler) WhatsApp(w http.ResponseWriter, r *http.Request) {
	status := h.handleWhatsApp(w, r)
	h.metrics.ObserveWebhook(ChannelWhatsApp, strconv.Itoa(status))
}

func (h *Handler) handleWhatsApp(w http.ResponseWriter, r *http.Request) int {
	if !h.authorized(r) {
		h.logger.Warn("webhook secret mismatch", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return http.StatusUnauthorized
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return http.StatusRequestEntityTooLarge
		}
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return http.StatusBadRequest
	}

	var payload InboundPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return http.StatusBadRequest
	}

	msgs := make([]pipeline.InboundMessage, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		msgs = append(msgs, pipeline.InboundMessage{
			SenderID:  m.FromNumber,
			Text:      m.Message,
			Timestamp: m.Timestamp.Ptr(),
			MessageID: m.MessageID,
		})
	}

	res := h.processor.ProcessBatch(r.Context(), msgs)
	for _, f := range res.Failures {
		h.logger.Warn("webhook message skipped",
			"index", f.Index,
			"message_id", f.MessageID,
			"contact_id", logging.MaskPhone(f.ContactID),
			"failure", string(f.Class),
		)
	}

	out := make([]OutboundReply, 0, len(res.Replies))
	for _, rep := range res.Replies {
		out = append(out, OutboundReply{
			PhoneNumber: rep.RecipientID,
			Message:     rep.Text,
			LeadStatus:  rep.LeadStatus,
		})
	}
	h.logger.Info("webhook batch processed",
		"received", len(msgs),
		"replied", len(out),
		"failed", len(res.Failures),
	)
	writeJSON(w, http.StatusOK, out)
	return http.StatusOK
}

// Health handles GET /health and GET /webhook/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", App: h.app, Version: h.version})
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return true
	}
	got := r.Header.Get(secretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
