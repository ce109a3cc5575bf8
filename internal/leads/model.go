package leads

import (
	"strings"
	"time"
)

// Operator is a telecommunications provider a lead can move to or from.
type Operator string

const (
	OperatorClaro Operator = "CLARO"
	OperatorWow   Operator = "WOW"
	OperatorWin   Operator = "WIN"
)

// Operators lists every supported operator in display order.
var Operators = []Operator{OperatorClaro, OperatorWow, OperatorWin}

// ParseOperator validates raw against the supported operators. Values are
// matched exactly; unknown values are rejected rather than coerced.
func ParseOperator(raw string) (Operator, error) {
	op := Operator(strings.TrimSpace(raw))
	for _, known := range Operators {
		if op == known {
			return op, nil
		}
	}
	return "", &ValidationError{Field: "operator", Value: raw}
}

// Status is the lifecycle state of a lead.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusContacted     Status = "CONTACTED"
	StatusInterested    Status = "INTERESTED"
	StatusNotInterested Status = "NOT_INTERESTED"
	StatusConverted     Status = "CONVERTED"
	StatusFailed        Status = "FAILED"
)

// Statuses lists every lead status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusContacted,
	StatusInterested,
	StatusNotInterested,
	StatusConverted,
	StatusFailed,
}

// ParseStatus validates raw against the known lead statuses.
func ParseStatus(raw string) (Status, error) {
	st := Status(strings.TrimSpace(raw))
	for _, known := range Statuses {
		if st == known {
			return st, nil
		}
	}
	return "", &ValidationError{Field: "status", Value: raw}
}

// IsTerminal reports whether the automated pipeline stops advancing the lead.
func (s Status) IsTerminal() bool {
	return s == StatusConverted || s == StatusFailed
}

// Lead is a sales prospect keyed by contact identifier (phone or handle).
type Lead struct {
	ID              string         `json:"id"`
	ContactID       string         `json:"phone_number"`
	Name            string         `json:"name,omitempty"`
	Email           string         `json:"email,omitempty"`
	CurrentOperator Operator       `json:"current_operator,omitempty"`
	TargetOperator  Operator       `json:"target_operator"`
	Status          Status         `json:"status"`
	Notes           string         `json:"notes,omitempty"`
	ExtraData       map[string]any `json:"extra_data,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	LastContactedAt *time.Time     `json:"last_contacted_at,omitempty"`
	ConvertedAt     *time.Time     `json:"converted_at,omitempty"`
}

func (l *Lead) clone() *Lead {
	if l == nil {
		return nil
	}
	cp := *l
	if l.ExtraData != nil {
		cp.ExtraData = make(map[string]any, len(l.ExtraData))
		for k, v := range l.ExtraData {
			cp.ExtraData[k] = v
		}
	}
	if l.LastContactedAt != nil {
		t := *l.LastContactedAt
		cp.LastContactedAt = &t
	}
	if l.ConvertedAt != nil {
		t := *l.ConvertedAt
		cp.ConvertedAt = &t
	}
	return &cp
}

// CreateLeadRequest represents the request body for creating a lead
type CreateLeadRequest struct {
	ContactID       string         `json:"phone_number"`
	Name            string         `json:"name"`
	Email           string         `json:"email"`
	CurrentOperator string         `json:"current_operator"`
	TargetOperator  string         `json:"target_operator"`
	Notes           string         `json:"notes"`
	ExtraData       map[string]any `json:"extra_data"`
}

// Validate checks required fields and normalizes the request in place.
func (r *CreateLeadRequest) Validate() error {
	r.ContactID = strings.TrimSpace(r.ContactID)
	if r.ContactID == "" {
		return ErrMissingContact
	}
	target, err := ParseOperator(r.TargetOperator)
	if err != nil {
		return err
	}
	r.TargetOperator = string(target)
	if strings.TrimSpace(r.CurrentOperator) == "" {
		r.CurrentOperator = ""
		return nil
	}
	current, err := ParseOperator(r.CurrentOperator)
	if err != nil {
		return err
	}
	r.CurrentOperator = string(current)
	return nil
}

func (r *CreateLeadRequest) toLead(id string, now time.Time) *Lead {
	return &Lead{
		ID:              id,
		ContactID:       r.ContactID,
		Name:            strings.TrimSpace(r.Name),
		Email:           strings.TrimSpace(r.Email),
		CurrentOperator: Operator(r.CurrentOperator),
		TargetOperator:  Operator(r.TargetOperator),
		Status:          StatusPending,
		Notes:           r.Notes,
		ExtraData:       r.ExtraData,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// LeadUpdate carries optional field changes; nil fields are left untouched.
type LeadUpdate struct {
	Name            *string
	Email           *string
	CurrentOperator *Operator
	Notes           *string
	ExtraData       map[string]any
	LastContactedAt *time.Time
}

// Empty reports whether the update changes nothing.
func (u LeadUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil && u.CurrentOperator == nil &&
		u.Notes == nil && u.ExtraData == nil && u.LastContactedAt == nil
}

func (u LeadUpdate) apply(lead *Lead) {
	if u.Name != nil {
		lead.Name = *u.Name
	}
	if u.Email != nil {
		lead.Email = *u.Email
	}
	if u.CurrentOperator != nil {
		lead.CurrentOperator = *u.CurrentOperator
	}
	if u.Notes != nil {
		lead.Notes = *u.Notes
	}
	if u.ExtraData != nil {
		lead.ExtraData = u.ExtraData
	}
	if u.LastContactedAt != nil {
		t := *u.LastContactedAt
		lead.LastContactedAt = &t
	}
}

// ListLeadsFilter narrows List results.
type ListLeadsFilter struct {
	Status         Status
	TargetOperator Operator
	Offset         int
	Limit          int
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func (f ListLeadsFilter) normalized() ListLeadsFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func (f ListLeadsFilter) matches(lead *Lead) bool {
	if f.Status != "" && lead.Status != f.Status {
		return false
	}
	if f.TargetOperator != "" && lead.TargetOperator != f.TargetOperator {
		return false
	}
	return true
}

// Stats summarizes leads by status and target operator.
type Stats struct {
	TotalLeads int              `json:"total_leads"`
	ByStatus   map[Status]int   `json:"by_status"`
	ByOperator map[Operator]int `json:"by_operator"`
}

func newStats() *Stats {
	s := &Stats{
		ByStatus:   make(map[Status]int, len(Statuses)),
		ByOperator: make(map[Operator]int, len(Operators)),
	}
	for _, st := range Statuses {
		s.ByStatus[st] = 0
	}
	for _, op := range Operators {
		s.ByOperator[op] = 0
	}
	return s
}

func (s *Stats) add(status Status, target Operator, n int) {
	s.TotalLeads += n
	s.ByStatus[status] += n
	s.ByOperator[target] += n
}
