package calc

import (
	"fmt"
	"maps"

	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/normalize"
)

// CenterTask is the immutable input of one PaymentCenter pricing task.
type CenterTask struct {
	Event    *model.PaymentEvent
	Center   model.PaymentCenterClaims
	Settings map[string]float64
}

// CenterResult is what a pricing task hands back for merging.
type CenterResult struct {
	PaymentCenterID int64
	ClaimPayments   []model.ClaimPayment
	OURecords       []model.OverUnderRecord
	Total           float64
	Offsets         float64
	Interest        float64
	ServiceLines    int
	EndingBalance   float64
}

// PriceCenter prices every parent group of a center. Offsets are applied once,
// at line level, against a running balance that starts at the center's
// carried over/under balance. Interest is applied once per claim payment.
func (c *Calculator) PriceCenter(task CenterTask) (CenterResult, error) {
	if task.Event == nil {
		return CenterResult{}, fmt.Errorf("price center %d: nil payment event", task.Center.PaymentCenterID)
	}
	pcID := task.Center.PaymentCenterID
	res := CenterResult{PaymentCenterID: pcID}
	remaining := task.Center.OverUnder.PreviousBalance
	settings := maps.Clone(task.Settings)

	for _, group := range task.Center.Groups {
		cp := model.ClaimPayment{
			ClaimID:             group.ParentID,
			PaymentEventID:      task.Event.PaymentEventID,
			PaymentCenterID:     pcID,
			ServiceLinePayments: []model.ServiceLinePayment{},
		}
		var total, offsets float64
		for _, claim := range Candidates(group) {
			for _, sl := range claim.ServiceLines {
				ctx := model.PaymentContext{
					PaymentEventID: task.Event.PaymentEventID,
					OverUnder:      model.OUSummary{PaymentCenterID: pcID, PreviousBalance: remaining},
					Settings:       settings,
				}
				slp := c.ComputeServiceLine(model.ServiceLineFromCore(sl), task.Event, ctx)
				slp.Metadata["claim_id"] = claim.ClaimID
				remaining = normalize.RoundCents(remaining - slp.OffsetsApplied)
				offsets += slp.OffsetsApplied
				total += slp.Net()
				cp.ServiceLinePayments = append(cp.ServiceLinePayments, slp)
			}
		}
		cp.TotalAmount = normalize.RoundCents(total)
		cp.OffsetsApplied = normalize.RoundCents(offsets)
		if task.Event.InterestRules != nil {
			c.ApplyInterest(&cp, *task.Event.InterestRules, task.Event.DueDate)
		}
		if cp.OffsetsApplied > 0 {
			res.OURecords = append(res.OURecords, model.OverUnderRecord{
				Reference: cp.ClaimID,
				Amount:    -cp.OffsetsApplied,
				Type:      model.OUTypeOffset,
			})
		}
		res.ServiceLines += len(cp.ServiceLinePayments)
		res.Offsets += cp.OffsetsApplied
		res.Interest += cp.InterestAmount
		res.Total += cp.TotalAmount
		res.ClaimPayments = append(res.ClaimPayments, cp)
	}

	res.Total = normalize.RoundCents(res.Total)
	res.Offsets = normalize.RoundCents(res.Offsets)
	res.Interest = normalize.RoundCents(res.Interest)
	if res.Total < 0 {
		// net overpayment carries forward as balance owed by the payee
		res.OURecords = append(res.OURecords, model.OverUnderRecord{
			Reference: fmt.Sprintf("center:%d", pcID),
			Amount:    -res.Total,
			Type:      model.OUTypeOverpayment,
		})
		remaining = normalize.RoundCents(remaining - res.Total)
	}
	res.EndingBalance = remaining
	return res, nil
}
