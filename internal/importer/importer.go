// Package importer loads leads from CSV exports.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wolfman30/telecom-lead-agent/internal/leads"
	"github.com/wolfman30/telecom-lead-agent/pkg/logging"
)

// ErrMissingHeader is returned when the CSV has no phone_number column.
var ErrMissingHeader = errors.New("importer: phone_number column is required")

// Result counts what happened to each data row.
type Result struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

// Total is the number of data rows seen.
func (r Result) Total() int { return r.Imported + r.Skipped + r.Errors }

// Creator is the slice of leads.Repository the importer needs.
type Creator interface {
	Create(ctx context.Context, req *leads.CreateLeadRequest) (*leads.Lead, error)
}

// Importer creates PENDING leads from CSV rows.
type Importer struct {
	repo   Creator
	logger *logging.Logger
}

// New creates an Importer.
func New(repo Creator, logger *logging.Logger) *Importer {
	if repo == nil {
		panic("importer: repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Importer{repo: repo, logger: logger}
}

// Import reads rows with the columns
// phone_number,name,email,current_operator,target_operator,notes.
// Only phone_number is required; target_operator falls back to defaultTarget.
// Rows without a phone and already known contacts are skipped; bad operator
// values and store failures count as errors. Parsing stops only on malformed CSV
// or a cancelled context.
func (im *Importer) Import(ctx context.Context, r io.Reader, defaultTarget leads.Operator) (Result, error) {
	var res Result
	if _, err := leads.ParseOperator(string(defaultTarget)); err != nil {
		return res, fmt.Errorf("importer: default target: %w", err)
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return res, ErrMissingHeader
		}
		return res, fmt.Errorf("importer: read header: %w", err)
	}
	cols := indexColumns(header)
	if _, ok := cols["phone_number"]; !ok {
		return res, ErrMissingHeader
	}

	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("importer: read line %d: %w", line+1, err)
		}
		line++

		req := &leads.CreateLeadRequest{
			ContactID:       field(record, cols, "phone_number"),
			Name:            field(record, cols, "name"),
			Email:           field(record, cols, "email"),
			CurrentOperator: strings.ToUpper(field(record, cols, "current_operator")),
			TargetOperator:  strings.ToUpper(field(record, cols, "target_operator")),
			Notes:           field(record, cols, "notes"),
		}
		if req.ContactID == "" {
			im.logger.Warn("row without phone number, skipping", "line", line)
			res.Skipped++
			continue
		}
		if req.TargetOperator == "" {
			req.TargetOperator = string(defaultTarget)
		}

		_, err = im.repo.Create(ctx, req)
		switch {
		case err == nil:
			res.Imported++
		case errors.Is(err, leads.ErrLeadExists):
			im.logger.Info("lead already exists, skipping", "line", line, "contact_id", logging.MaskPhone(req.ContactID))
			res.Skipped++
		default:
			im.logger.Error("lead import failed", "line", line, "contact_id", logging.MaskPhone(req.ContactID), "error", err)
			res.Errors++
		}
	}

	im.logger.Info("lead import finished",
		"imported", res.Imported,
		"skipped", res.Skipped,
		"errors", res.Errors,
		"total", res.Total(),
	)
	return res, nil
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))
		if name != "" {
			cols[name] = i
		}
	}
	return cols
}

func field(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
