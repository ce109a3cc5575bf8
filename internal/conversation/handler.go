package conversation

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/telecom-lead-agent/pkg/logging"
)

const maxWindowLimit = 100

// Handler exposes conversation history over HTTP.
type Handler struct {
	log    *Log
	logger *logging.Logger
}

// NewHandler creates a conversation handler.
func NewHandler(log *Log, logger *logging.Logger) *Handler {
	if log == nil {
		panic("conversation: log cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{log: log, logger: logger}
}

// WindowResponse is returned by GET /leads/{contactID}/conversation.
type WindowResponse struct {
	ContactID string    `json:"phone_number"`
	Messages  []Message `json:"messages"`
	Count     int       `json:"count"`
}

// HistoryResponse is returned when ?all=true is requested.
type HistoryResponse struct {
	ContactID string  `json:"phone_number"`
	Turns     []*Turn `json:"turns"`
	Count     int     `json:"count"`
}

// GetConversation handles GET /leads/{contactID}/conversation.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactID")
	q := r.URL.Query()

	if q.Get("all") == "true" {
		turns, err := h.log.History(r.Context(), contactID)
		if err != nil {
			h.logger.Error("failed to load conversation", "error", err, "contact_id", logging.MaskPhone(contactID))
			http.Error(w, "failed to load conversation", http.StatusInternalServerError)
			return
		}
		if turns == nil {
			turns = []*Turn{}
		}
		writeJSON(w, http.StatusOK, HistoryResponse{ContactID: contactID, Turns: turns, Count: len(turns)})
		return
	}

	limit := h.log.MaxHistory()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxWindowLimit {
			http.Error(w, "limit must be between 1 and 100", http.StatusBadRequest)
			return
		}
		limit = n
	}

	msgs, err := h.log.RecentWindow(r.Context(), contactID, limit)
	if err != nil {
		h.logger.Error("failed to load conversation window", "error", err, "contact_id", logging.MaskPhone(contactID))
		http.Error(w, "failed to load conversation", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, WindowResponse{ContactID: contactID, Messages: msgs, Count: len(msgs)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
