package store

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/payerr"
)

func TestValidateEvent(t *testing.T) {
	good := func() *model.PaymentEvent {
		return &model.PaymentEvent{
			PaymentEventID: "PE-1",
			Stage:          "ready",
			DueDate:        time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
			InterestRules:  &model.InterestRules{Rate: 0.05, GracePeriodDays: 30},
		}
	}
	if err := ValidateEvent(good()); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}

	cases := map[string]func(*model.PaymentEvent){
		"empty_stage":    func(e *model.PaymentEvent) { e.Stage = " " },
		"no_due_date":    func(e *model.PaymentEvent) { e.DueDate = time.Time{} },
		"negative_rate":  func(e *model.PaymentEvent) { e.InterestRules.Rate = -0.01 },
		"negative_grace": func(e *model.PaymentEvent) { e.InterestRules.GracePeriodDays = -1 },
		"bad_type":       func(e *model.PaymentEvent) { e.AllowedPaymentCenterTypes = []string{"VENDOR"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			e := good()
			mutate(e)
			err := ValidateEvent(e)
			if !errors.Is(err, payerr.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestApplyInclusionCriteria(t *testing.T) {
	e := &model.PaymentEvent{AllowedPlans: []string{"OLD"}}
	ApplyInclusionCriteria(e, nil)
	if e.AllowedPlans[0] != "OLD" {
		t.Error("nil criteria must not change the event")
	}
	ApplyInclusionCriteria(e, &model.InclusionCriteria{AllowedBenefitPlans: []string{" plan-a "}, AllowedPaymentCenters: []int64{3}})
	if len(e.AllowedPlans) != 1 || e.AllowedPlans[0] != "PLAN-A" {
		t.Errorf("plans: %v", e.AllowedPlans)
	}
	if len(e.AllowedPaymentCenters) != 1 || e.AllowedPaymentCenters[0] != 3 {
		t.Errorf("centers: %v", e.AllowedPaymentCenters)
	}
	ApplyInclusionCriteria(e, &model.InclusionCriteria{})
	if len(e.AllowedPlans) != 1 {
		t.Error("empty criteria must keep existing plans")
	}
}

func TestServiceLineRows(t *testing.T) {
	runID := uuid.New()
	payments := []model.ClaimPayment{
		{ClaimID: "P1", PaymentEventID: "PE-1", PaymentCenterID: 4, ServiceLinePayments: []model.ServiceLinePayment{
			{ServiceLine: model.ServiceLine{ServiceCode: "A", ChargeAmount: 12.5, AllowedAmount: 10, Quantity: 2},
				CalculatedAmount: 18, OffsetsApplied: 9, Metadata: map[string]string{"claim_id": "c1"}},
			{ServiceLine: model.ServiceLine{ServiceCode: "B", AllowedAmount: 1.01, Quantity: 1}, CalculatedAmount: 1.01},
		}},
		{ClaimID: "P2", PaymentEventID: "PE-1", PaymentCenterID: 5, ServiceLinePayments: []model.ServiceLinePayment{}},
	}
	rows := ServiceLineRows(runID, payments)
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	r := rows[0]
	if r.LineNo != 1 || r.ChargeCents != 1250 || r.CalculatedCents != 1800 || r.OffsetsCents != 900 || r.SourceClaimID != "c1" {
		t.Errorf("row 0: %+v", r)
	}
	if rows[1].LineNo != 2 || rows[1].AllowedCents != 101 {
		t.Errorf("row 1: %+v", rows[1])
	}
	vals := r.CopyValues()
	if len(vals) != len(ServiceLineColumns) {
		t.Fatalf("CopyValues has %d values for %d columns", len(vals), len(ServiceLineColumns))
	}
	if vals[len(vals)-1] != runID {
		t.Error("run_id must be the last COPY value")
	}
}
