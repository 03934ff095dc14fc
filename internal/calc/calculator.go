// Package calc computes service-line payments, claim rollups and interest.
package calc

import (
	"math"
	"strconv"
	"time"

	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/normalize"
)

// SettingAdjustmentFactor scales every calculated line amount.
const SettingAdjustmentFactor = "adjustment_factor"

// maxOffsetShare is the largest fraction of a line a prior balance may absorb.
const maxOffsetShare = 0.5

// Calculator is stateless apart from its clock and safe for concurrent use.
type Calculator struct {
	Now func() time.Time
}

// New returns a Calculator using the wall clock.
func New() *Calculator {
	return &Calculator{Now: time.Now}
}

func (c *Calculator) today() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// ComputeServiceLine prices one line:
//
//	calculated = round(allowed * quantity * adjustment_factor, 2)
//	offset     = round(min(max(previous_balance, 0), calculated * 0.5), 2)
func (c *Calculator) ComputeServiceLine(line model.ServiceLine, event *model.PaymentEvent, ctx model.PaymentContext) model.ServiceLinePayment {
	factor := ctx.Setting(SettingAdjustmentFactor, 1.0)
	calculated := normalize.RoundCents(line.AllowedAmount * line.Quantity * factor)
	balance := math.Max(ctx.OverUnder.PreviousBalance, 0)
	offset := normalize.RoundCents(math.Min(balance, calculated*maxOffsetShare))
	if offset < 0 {
		// negative lines never absorb balance
		offset = 0
	}
	return model.ServiceLinePayment{
		ServiceLine:      line,
		CalculatedAmount: calculated,
		OffsetsApplied:   offset,
		Metadata: map[string]string{
			"payment_event_id":  event.PaymentEventID,
			"source":            ctx.PaymentEventID,
			"payment_center_id": strconv.FormatInt(ctx.OverUnder.PaymentCenterID, 10),
		},
	}
}

// Candidates returns the claims of a group that contribute to its payment:
// paid plus adjust claims, or the void claims when there are none.
func Candidates(g model.ParentGroup) []model.Claim {
	out := make([]model.Claim, 0, len(g.PaidClaims)+len(g.AdjustClaims))
	out = append(out, g.PaidClaims...)
	out = append(out, g.AdjustClaims...)
	if len(out) == 0 {
		out = append(out, g.VoidClaims...)
	}
	return out
}

// RollupToClaim sums the allowed amounts of a group's candidate claims into an
// offset-free claim payment keyed by the parent id.
func RollupToClaim(g model.ParentGroup) model.ClaimPayment {
	payments := make([]model.ServiceLinePayment, 0)
	total := 0.0
	for _, claim := range Candidates(g) {
		for _, sl := range claim.ServiceLines {
			payments = append(payments, model.ServiceLinePayment{
				ServiceLine: model.ServiceLine{
					ServiceCode:   sl.ServiceCode,
					ChargeAmount:  sl.BilledAmount,
					AllowedAmount: sl.AllowedAmount,
					Quantity:      1,
				},
				CalculatedAmount: sl.AllowedAmount,
				Metadata:         map[string]string{"claim_id": claim.ClaimID},
			})
			total += sl.AllowedAmount
		}
	}
	return model.ClaimPayment{
		ClaimID:             g.ParentID,
		ServiceLinePayments: payments,
		TotalAmount:         normalize.RoundCents(total),
	}
}

// ApplyInterest adds late-payment interest to cp and returns it:
//
//	days_late = max(days(today - due) - grace, 0)
//	interest  = round(total * rate * days_late / 365, 2)
//
// It is not idempotent; call it exactly once per claim payment per run.
func (c *Calculator) ApplyInterest(cp *model.ClaimPayment, rules model.InterestRules, dueDate time.Time) *model.ClaimPayment {
	daysLate := normalize.DaysBetween(dueDate, c.today()) - rules.GracePeriodDays
	if daysLate < 0 {
		daysLate = 0
	}
	interest := normalize.RoundCents(cp.TotalAmount * rules.Rate * float64(daysLate) / 365)
	cp.InterestAmount = interest
	cp.TotalAmount = normalize.RoundCents(cp.TotalAmount + interest)
	return cp
}
