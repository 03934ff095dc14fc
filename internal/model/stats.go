package model

import (
	"strings"
	"time"
)

// Severity of a validation finding.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// MaxSampleIDs bounds Finding.SampleIDs.
const MaxSampleIDs = 5

// Finding is a single validation outcome.
type Finding struct {
	Check     string   `json:"check,omitempty"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
	Count     int      `json:"count"`
	SampleIDs []string `json:"sample_ids"`
}

// Critical reports whether the finding blocks a run.
func (f Finding) Critical() bool {
	return strings.EqualFold(string(f.Severity), string(SeverityCritical))
}

// ValidationReport is the ordered list of findings of a run.
type ValidationReport struct {
	Findings []Finding `json:"findings"`
	Blocked  bool      `json:"blocked"`
}

// NewValidationReport derives Blocked from the findings.
func NewValidationReport(findings []Finding) ValidationReport {
	r := ValidationReport{Findings: findings}
	if r.Findings == nil {
		r.Findings = []Finding{}
	}
	for _, f := range r.Findings {
		if f.Critical() {
			r.Blocked = true
			break
		}
	}
	return r
}

// Critical returns the blocking findings in report order.
func (r ValidationReport) Critical() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Critical() {
			out = append(out, f)
		}
	}
	return out
}

// Totals are the monetary totals of a run keyed by PaymentCenter id.
type Totals struct {
	ByPaymentCenter map[int64]float64 `json:"by_payment_center"`
	Overall         float64           `json:"overall"`
}

// SequenceReport pairs expected and actual counters for a run.
type SequenceReport struct {
	Expected map[string]int `json:"expected"`
	Actual   map[string]int `json:"actual"`
}

// PaymentEventStats is the canonical externally visible output of a run.
type PaymentEventStats struct {
	RunID          string           `json:"run_id"`
	PaymentEventID string           `json:"payment_event_id"`
	Stage          string           `json:"stage"`
	TotalClaims    int              `json:"total_claims"`
	Totals         Totals           `json:"totals"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	Findings       ValidationReport `json:"findings"`
	Backups        []string         `json:"backups,omitempty"`
}
