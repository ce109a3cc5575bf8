package leads

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/telecom-lead-agent/pkg/logging"
)

// Handler handles HTTP requests for leads
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a new leads handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// Routes mounts the lead endpoints. The caller decides which middleware
// (admin auth, rate limits) wraps them.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// Register attaches the lead endpoints to an existing router so sibling
// routes (conversation history) can share the /leads prefix.
func (h *Handler) Register(r chi.Router) {
	r.Post("/", h.CreateLead)
	r.Get("/", h.ListLeads)
	r.Get("/stats/summary", h.StatsSummary)
	r.Get("/{contactID}", h.GetLead)
	r.Patch("/{contactID}", h.UpdateLead)
	r.Put("/{contactID}/status", h.UpdateStatus)
}

// CreateLead handles POST /leads requests
func (h *Handler) CreateLead(w http.ResponseWriter, r *http.Request) {
	var req CreateLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	lead, err := h.repo.Create(r.Context(), &req)
	if err != nil {
		h.fail(w, "failed to create lead", req.ContactID, err)
		return
	}

	h.logger.Info("lead created", "id", lead.ID, "contact_id", logging.MaskPhone(lead.ContactID), "target_operator", lead.TargetOperator)
	writeJSON(w, http.StatusCreated, lead)
}

// ListLeadsResponse is the response for listing leads
type ListLeadsResponse struct {
	Leads  []*Lead `json:"leads"`
	Count  int     `json:"count"`
	Offset int     `json:"offset"`
	Limit  int     `json:"limit"`
}

// ListLeads handles GET /leads requests
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListLeadsFilter{
		Limit:  defaultListLimit,
		Offset: 0,
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 || limit > maxListLimit {
			http.Error(w, "limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}
	if offsetStr := q.Get("skip"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			http.Error(w, "skip must be a non-negative integer", http.StatusBadRequest)
			return
		}
		filter.Offset = offset
	}
	if raw := q.Get("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Status = status
	}
	if raw := q.Get("target_operator"); raw != "" {
		op, err := ParseOperator(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.TargetOperator = op
	}

	leads, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list leads", "error", err)
		http.Error(w, "failed to list leads", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ListLeadsResponse{
		Leads:  leads,
		Count:  len(leads),
		Offset: filter.Offset,
		Limit:  filter.Limit,
	})
}

// GetLead handles GET /leads/{contactID}
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactID")
	lead, err := h.repo.Get(r.Context(), contactID)
	if err != nil {
		h.fail(w, "failed to get lead", contactID, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PUT /leads/{contactID}/status. The status comes from
// the JSON body or the ?status= query parameter.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactID")

	raw := r.URL.Query().Get("status")
	if raw == "" {
		var req statusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		raw = req.Status
	}
	status, err := ParseStatus(raw)
	if err != nil {
		h.fail(w, "invalid status", contactID, err)
		return
	}

	lead, err := h.repo.SetStatus(r.Context(), contactID, status)
	if err != nil {
		h.fail(w, "failed to update lead status", contactID, err)
		return
	}

	h.logger.Info("lead status updated", "contact_id", logging.MaskPhone(contactID), "status", lead.Status)
	writeJSON(w, http.StatusOK, lead)
}

type updateLeadRequest struct {
	Name            *string        `json:"name"`
	Email           *string        `json:"email"`
	CurrentOperator *string        `json:"current_operator"`
	Notes           *string        `json:"notes"`
	ExtraData       map[string]any `json:"extra_data"`
	LastContactedAt *time.Time     `json:"last_contacted_at"`
}

// UpdateLead handles PATCH /leads/{contactID}
func (h *Handler) UpdateLead(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactID")

	var req updateLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	upd := LeadUpdate{
		Name:            req.Name,
		Email:           req.Email,
		Notes:           req.Notes,
		ExtraData:       req.ExtraData,
		LastContactedAt: req.LastContactedAt,
	}
	if req.CurrentOperator != nil {
		op := Operator("")
		if strings.TrimSpace(*req.CurrentOperator) != "" {
			parsed, err := ParseOperator(*req.CurrentOperator)
			if err != nil {
				h.fail(w, "invalid operator", contactID, err)
				return
			}
			op = parsed
		}
		upd.CurrentOperator = &op
	}

	lead, err := h.repo.Update(r.Context(), contactID, upd)
	if err != nil {
		h.fail(w, "failed to update lead", contactID, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// StatsSummary handles GET /leads/stats/summary
func (h *Handler) StatsSummary(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to compute lead stats", "error", err)
		http.Error(w, "failed to compute stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) fail(w http.ResponseWriter, msg, contactID string, err error) {
	status := StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "error", err, "contact_id", logging.MaskPhone(contactID))
		http.Error(w, msg, status)
		return
	}
	h.logger.Warn(msg, "error", err, "contact_id", logging.MaskPhone(contactID))
	http.Error(w, err.Error(), status)
}

// StatusCode maps repository errors to HTTP status codes.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrLeadNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrLeadExists):
		return http.StatusConflict
	case errors.Is(err, ErrMissingContact), IsValidationError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
