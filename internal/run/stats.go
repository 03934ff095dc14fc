package run

import (
	"time"

	"github.com/google/uuid"

	"github.com/gyeh/payrun/internal/calc"
	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/normalize"
)

// InitializeStats starts the stats of a new run.
func InitializeStats(paymentEventID string, now time.Time) *model.PaymentEventStats {
	return &model.PaymentEventStats{
		RunID:          uuid.NewString(),
		PaymentEventID: paymentEventID,
		Totals:         model.Totals{ByPaymentCenter: map[int64]float64{}},
		StartedAt:      now.UTC(),
		Findings:       model.NewValidationReport(nil),
		Backups:        []string{},
	}
}

// ApplyMetrics records per-center and overall totals.
func ApplyMetrics(stats *model.PaymentEventStats, results []calc.CenterResult) {
	if stats.Totals.ByPaymentCenter == nil {
		stats.Totals.ByPaymentCenter = map[int64]float64{}
	}
	var overall float64
	for _, r := range results {
		stats.Totals.ByPaymentCenter[r.PaymentCenterID] = normalize.RoundCents(
			stats.Totals.ByPaymentCenter[r.PaymentCenterID] + r.Total)
		overall += r.Total
	}
	stats.Totals.Overall = normalize.RoundCents(stats.Totals.Overall + overall)
}

// FinalizeStats attaches the report and stamps completion. Totals are always
// present afterwards, even when no claims were processed.
func FinalizeStats(stats *model.PaymentEventStats, report model.ValidationReport, now time.Time) *model.PaymentEventStats {
	if report.Findings == nil {
		report.Findings = []model.Finding{}
	}
	stats.Findings = report
	if stats.Totals.ByPaymentCenter == nil {
		stats.Totals.ByPaymentCenter = map[int64]float64{}
	}
	if stats.Backups == nil {
		stats.Backups = []string{}
	}
	done := now.UTC()
	stats.CompletedAt = &done
	return stats
}
