package model

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// RunMode is the execution mode of a run.
type RunMode string

const (
	RunModeDryRun RunMode = "dry-run"
	RunModeFinal  RunMode = "final"
)

// ParseRunMode validates a --mode value.
func ParseRunMode(s string) (RunMode, error) {
	switch RunMode(s) {
	case RunModeDryRun, RunModeFinal:
		return RunMode(s), nil
	}
	return "", fmt.Errorf("mode must be one of: dry-run, final (got %q)", s)
}

// ClaimSource names a claim-store scope.
type ClaimSource string

const (
	SourceWorkingSet ClaimSource = "ws"
	SourceProduction ClaimSource = "fin"
)

// Source returns the claim scope a mode reads from.
func (m RunMode) Source() ClaimSource {
	if m == RunModeFinal {
		return SourceProduction
	}
	return SourceWorkingSet
}

// InclusionCriteria narrows which claims and centers take part in an event.
type InclusionCriteria struct {
	ID                    string   `json:"id"`
	AllowedBenefitPlans   []string `json:"allowed_benefit_plans"`
	AllowedPaymentCenters []int64  `json:"allowed_payment_centers"`
}

// FundingSource is the account an event is paid from.
type FundingSource struct {
	ID            string `json:"id"`
	AccountNumber string `json:"account_number"`
	Description   string `json:"description"`
}

// InterestRules control late-payment interest.
type InterestRules struct {
	Rate            float64 `json:"rate"`
	GracePeriodDays int     `json:"grace_period_days"`
}

// PaymentEvent is a single scheduled settlement run and its configuration.
type PaymentEvent struct {
	PaymentEventID            string             `json:"payment_event_id"`
	BusinessID                string             `json:"business_id"`
	InclusionCriteriaID       string             `json:"inclusion_criteria_id"`
	FundingSourceID           string             `json:"funding_source_id"`
	DueDate                   time.Time          `json:"due_date"`
	EventType                 string             `json:"event_type"`
	Stage                     string             `json:"stage"`
	RunMode                   RunMode            `json:"run_mode"`
	AllowedPlans              []string           `json:"allowed_plans"`
	AllowedPaymentCenterTypes []string           `json:"allowed_payment_center_types"`
	Settings                  map[string]float64 `json:"settings,omitempty"`

	// Attached by the config loader.
	InterestRules         *InterestRules `json:"interest_rules,omitempty"`
	FundingSource         *FundingSource `json:"funding_source,omitempty"`
	AllowedPaymentCenters []int64        `json:"allowed_payment_centers,omitempty"`
}

// Clone returns a deep copy so a dry run can mutate it freely.
func (e *PaymentEvent) Clone() *PaymentEvent {
	c := *e
	c.AllowedPlans = slices.Clone(e.AllowedPlans)
	c.AllowedPaymentCenterTypes = slices.Clone(e.AllowedPaymentCenterTypes)
	c.AllowedPaymentCenters = slices.Clone(e.AllowedPaymentCenters)
	c.Settings = maps.Clone(e.Settings)
	if e.InterestRules != nil {
		r := *e.InterestRules
		c.InterestRules = &r
	}
	if e.FundingSource != nil {
		f := *e.FundingSource
		c.FundingSource = &f
	}
	return &c
}

// PlanSet returns the allowed plans as a set.
func (e *PaymentEvent) PlanSet() map[string]struct{} {
	set := make(map[string]struct{}, len(e.AllowedPlans))
	for _, p := range e.AllowedPlans {
		set[p] = struct{}{}
	}
	return set
}

// PaymentCenterType picks the first configured type, defaulting to PROVIDER.
func (e *PaymentEvent) PaymentCenterType() PaymentCenterType {
	for _, t := range e.AllowedPaymentCenterTypes {
		if pt, ok := ParsePaymentCenterType(t); ok {
			return pt
		}
	}
	return PaymentCenterProvider
}
