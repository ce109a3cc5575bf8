package leads

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage
type Repository interface {
	// GetOrCreate returns the lead for contactID, creating a PENDING lead with
	// the given target operator when none exists. Existing operators are kept.
	GetOrCreate(ctx context.Context, contactID string, target Operator) (*Lead, error)
	// Create inserts a lead and fails with ErrLeadExists on a duplicate contact.
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	Get(ctx context.Context, contactID string) (*Lead, error)
	// SetStatus stores any status without checking the current one.
	SetStatus(ctx context.Context, contactID string, status Status) (*Lead, error)
	Update(ctx context.Context, contactID string, upd LeadUpdate) (*Lead, error)
	List(ctx context.Context, filter ListLeadsFilter) ([]*Lead, error)
	Stats(ctx context.Context) (*Stats, error)
}

// InMemoryRepository keeps leads in a map keyed by contact identifier.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
	now   func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate returns the stored lead or inserts a new PENDING one.
func (r *InMemoryRepository) GetOrCreate(ctx context.Context, contactID string, target Operator) (*Lead, error) {
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return nil, ErrMissingContact
	}
	if _, err := ParseOperator(string(target)); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if lead, ok := r.leads[contactID]; ok {
		return lead.clone(), nil
	}
	now := r.now()
	lead := &Lead{
		ID:             uuid.New().String(),
		ContactID:      contactID,
		TargetOperator: target,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.leads[contactID] = lead
	return lead.clone(), nil
}

// Create creates a new lead in memory
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.leads[req.ContactID]; ok {
		return nil, ErrLeadExists
	}
	lead := req.toLead(uuid.New().String(), r.now())
	r.leads[lead.ContactID] = lead
	return lead.clone(), nil
}

// Get retrieves a lead by contact identifier
func (r *InMemoryRepository) Get(ctx context.Context, contactID string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[strings.TrimSpace(contactID)]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return lead.clone(), nil
}

// SetStatus overwrites the status and stamps ConvertedAt on conversion.
func (r *InMemoryRepository) SetStatus(ctx context.Context, contactID string, status Status) (*Lead, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[strings.TrimSpace(contactID)]
	if !ok {
		return nil, ErrLeadNotFound
	}
	now := r.now()
	lead.Status = status
	lead.UpdatedAt = now
	if status == StatusConverted {
		lead.ConvertedAt = &now
	}
	return lead.clone(), nil
}

// Update applies the non-nil fields of upd.
func (r *InMemoryRepository) Update(ctx context.Context, contactID string, upd LeadUpdate) (*Lead, error) {
	if upd.CurrentOperator != nil && *upd.CurrentOperator != "" {
		if _, err := ParseOperator(string(*upd.CurrentOperator)); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[strings.TrimSpace(contactID)]
	if !ok {
		return nil, ErrLeadNotFound
	}
	if upd.Empty() {
		return lead.clone(), nil
	}
	upd.apply(lead)
	lead.UpdatedAt = r.now()
	return lead.clone(), nil
}

// List returns leads ordered by creation time.
func (r *InMemoryRepository) List(ctx context.Context, filter ListLeadsFilter) ([]*Lead, error) {
	filter = filter.normalized()

	r.mu.RLock()
	matched := make([]*Lead, 0, len(r.leads))
	for _, lead := range r.leads {
		if filter.matches(lead) {
			matched = append(matched, lead.clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ContactID < matched[j].ContactID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return []*Lead{}, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], nil
}

// Stats counts leads by status and target operator.
func (r *InMemoryRepository) Stats(ctx context.Context) (*Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := newStats()
	for _, lead := range r.leads {
		stats.add(lead.Status, lead.TargetOperator, 1)
	}
	return stats, nil
}
