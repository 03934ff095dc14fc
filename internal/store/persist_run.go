package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/parallel"
	"github.com/gyeh/payrun/internal/payerr"
)

// DefaultCopyBatch is the service-line COPY size when RunWrite leaves it unset.
const DefaultCopyBatch = 1000

// RunWrite is everything a final run persists for one event.
type RunWrite struct {
	RunID          uuid.UUID
	PaymentEventID string
	Payments       []model.ClaimPayment
	Records        map[int64][]model.OverUnderRecord
	// BatchSize bounds each service-line COPY.
	BatchSize int
}

// RunWriteResult counts the rows PersistRun committed.
type RunWriteResult struct {
	ClaimPayments int64
	ServiceLines  int64
	OURecords     int
}

// PersistRun writes claim aggregates, their service lines and the over/under
// movements of a run in one transaction. A failure anywhere rolls all of it
// back, so a resumed run sees none of the run's parents as paid.
func (r *PaymentRepo) PersistRun(ctx context.Context, w RunWrite) (RunWriteResult, error) {
	const op = "store.PersistRun"
	for _, cp := range w.Payments {
		if cp.PaymentNumber == 0 {
			return RunWriteResult{}, payerr.New(payerr.KindSequenceNumber, op, "claim %s has no payment number", cp.ClaimID)
		}
	}
	size := w.BatchSize
	if size <= 0 {
		size = DefaultCopyBatch
	}
	rows := ServiceLineRows(w.RunID, w.Payments)

	start := time.Now()
	var res RunWriteResult
	err := r.do(ctx, op, func(ctx context.Context) error {
		res = RunWriteResult{}
		return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
			var err error
			if res.ClaimPayments, err = upsertClaimAggregates(ctx, tx, w.RunID, w.Payments); err != nil {
				return err
			}
			// A pgx.Tx serves one statement at a time.
			res.ServiceLines, err = parallel.RunServiceLineBatches(ctx, 1, size, rows,
				func(ctx context.Context, batch []ServiceLineRow) (int64, error) {
					return copyServiceLines(ctx, tx, batch)
				})
			if err != nil {
				return err
			}
			res.OURecords, err = upsertOverUnder(ctx, tx, w.PaymentEventID, w.Records)
			return err
		})
	})
	if err != nil {
		return RunWriteResult{}, err
	}
	r.log.Info().
		Int64("claim_payments", res.ClaimPayments).
		Int64("service_lines", res.ServiceLines).
		Int("ou_records", res.OURecords).
		Dur("duration", time.Since(start)).
		Msg("run persisted")
	return res, nil
}
