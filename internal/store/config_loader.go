package store

import (
	"context"
	"errors"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/normalize"
	"github.com/gyeh/payrun/internal/payerr"
	embedsql "github.com/gyeh/payrun/internal/sql"
)

// ConfigLoader reads a PaymentEvent and the rows attached to it.
type ConfigLoader struct {
	base
}

// Load returns the fully attached and validated event.
func (l *ConfigLoader) Load(ctx context.Context, paymentEventID string) (*model.PaymentEvent, error) {
	event, err := l.LoadPaymentEvent(ctx, paymentEventID)
	if err != nil {
		return nil, err
	}
	if event.InterestRules, err = l.LoadInterestRules(ctx, paymentEventID); err != nil {
		return nil, err
	}
	if event.FundingSource, err = l.LoadFundingSource(ctx, event.FundingSourceID); err != nil {
		return nil, err
	}
	crit, err := l.LoadInclusionCriteria(ctx, event.InclusionCriteriaID)
	if err != nil {
		return nil, err
	}
	ApplyInclusionCriteria(event, crit)
	if err := ValidateEvent(event); err != nil {
		return nil, err
	}
	return event, nil
}

// LoadPaymentEvent reads the event row. A missing event is a
// MissingConfiguration error.
func (l *ConfigLoader) LoadPaymentEvent(ctx context.Context, paymentEventID string) (*model.PaymentEvent, error) {
	const op = "store.LoadPaymentEvent"
	var (
		e        model.PaymentEvent
		due      pgtype.Date
		settings []byte
	)
	err := l.do(ctx, op, func(ctx context.Context) error {
		return l.pool.QueryRow(ctx, embedsql.LoadPaymentEvent, paymentEventID).Scan(
			&e.PaymentEventID, &e.BusinessID, &e.InclusionCriteriaID, &e.FundingSourceID,
			&due, &e.EventType, &e.Stage, &e.AllowedPlans, &e.AllowedPaymentCenterTypes, &settings,
		)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, payerr.New(payerr.KindMissingConfiguration, op, "payment event %q not found", paymentEventID)
	}
	if err != nil {
		return nil, err
	}
	if due.Valid {
		e.DueDate = due.Time
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &e.Settings); err != nil {
			return nil, payerr.Wrap(payerr.KindConfiguration, op, err).With("payment_event_id", paymentEventID)
		}
	}
	for i, p := range e.AllowedPlans {
		e.AllowedPlans[i] = normalize.NormalizeIdentifier(p)
	}
	return &e, nil
}

// LoadInterestRules returns nil when the event accrues no interest.
func (l *ConfigLoader) LoadInterestRules(ctx context.Context, paymentEventID string) (*model.InterestRules, error) {
	var r model.InterestRules
	err := l.do(ctx, "store.LoadInterestRules", func(ctx context.Context) error {
		return l.pool.QueryRow(ctx, embedsql.LoadInterestRules, paymentEventID).Scan(&r.Rate, &r.GracePeriodDays)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadFundingSource requires the event's funding source to exist.
func (l *ConfigLoader) LoadFundingSource(ctx context.Context, id string) (*model.FundingSource, error) {
	const op = "store.LoadFundingSource"
	if id == "" {
		return nil, payerr.New(payerr.KindMissingConfiguration, op, "payment event has no funding source")
	}
	var f model.FundingSource
	err := l.do(ctx, op, func(ctx context.Context) error {
		return l.pool.QueryRow(ctx, embedsql.LoadFundingSource, id).Scan(&f.ID, &f.AccountNumber, &f.Description)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, payerr.New(payerr.KindMissingConfiguration, op, "funding source %q not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadInclusionCriteria returns nil when the event has none.
func (l *ConfigLoader) LoadInclusionCriteria(ctx context.Context, id string) (*model.InclusionCriteria, error) {
	if id == "" {
		return nil, nil
	}
	var c model.InclusionCriteria
	err := l.do(ctx, "store.LoadInclusionCriteria", func(ctx context.Context) error {
		return l.pool.QueryRow(ctx, embedsql.LoadInclusionCriteria, id).Scan(
			&c.ID, &c.AllowedBenefitPlans, &c.AllowedPaymentCenters)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ApplyInclusionCriteria narrows the event to the criteria's plans and
// PaymentCenters. Empty lists leave the event unchanged.
func ApplyInclusionCriteria(e *model.PaymentEvent, c *model.InclusionCriteria) {
	if c == nil {
		return
	}
	if len(c.AllowedBenefitPlans) > 0 {
		plans := make([]string, 0, len(c.AllowedBenefitPlans))
		for _, p := range c.AllowedBenefitPlans {
			plans = append(plans, normalize.NormalizeIdentifier(p))
		}
		e.AllowedPlans = plans
	}
	if len(c.AllowedPaymentCenters) > 0 {
		e.AllowedPaymentCenters = append([]int64(nil), c.AllowedPaymentCenters...)
	}
}

// ValidateEvent rejects configurations a run cannot execute against.
func ValidateEvent(e *model.PaymentEvent) error {
	const op = "store.ValidateEvent"
	var problems []string
	if strings.TrimSpace(e.Stage) == "" {
		problems = append(problems, "stage is empty")
	}
	if e.DueDate.IsZero() {
		problems = append(problems, "due date is not set")
	}
	if r := e.InterestRules; r != nil {
		if r.Rate < 0 {
			problems = append(problems, "interest rate is negative")
		}
		if r.GracePeriodDays < 0 {
			problems = append(problems, "grace period is negative")
		}
	}
	for _, t := range e.AllowedPaymentCenterTypes {
		if _, ok := model.ParsePaymentCenterType(t); !ok {
			problems = append(problems, "unknown PaymentCenter type "+t)
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return payerr.New(payerr.KindConfiguration, op, "payment event %s: %s",
		e.PaymentEventID, strings.Join(problems, "; "))
}
