package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gyeh/payrun/internal/db"
	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/normalize"
	"github.com/gyeh/payrun/internal/payerr"
	embedsql "github.com/gyeh/payrun/internal/sql"
)

// ServiceLineRow is the COPY representation of one service-line payment.
// Money values are stored as int64 cents.
type ServiceLineRow struct {
	RunID           uuid.UUID
	PaymentEventID  string
	ClaimID         string
	LineNo          int32
	PaymentCenterID int64
	SourceClaimID   string
	ServiceCode     string
	ChargeCents     int64
	AllowedCents    int64
	Quantity        float64
	CalculatedCents int64
	OffsetsCents    int64
}

// ServiceLineColumns are the COPY target columns, in CopyValues order.
var ServiceLineColumns = []string{
	"payment_event_id", "claim_id", "line_no", "payment_center_id", "source_claim_id",
	"service_code", "charge_cents", "allowed_cents", "quantity", "calculated_cents",
	"offsets_cents", "run_id",
}

// CopyValues returns the row's values in ServiceLineColumns order.
func (r ServiceLineRow) CopyValues() []any {
	return []any{
		r.PaymentEventID, r.ClaimID, r.LineNo, r.PaymentCenterID, r.SourceClaimID,
		r.ServiceCode, r.ChargeCents, r.AllowedCents, r.Quantity, r.CalculatedCents,
		r.OffsetsCents, r.RunID,
	}
}

// ServiceLineRows flattens claim payments into COPY rows numbered per claim.
func ServiceLineRows(runID uuid.UUID, payments []model.ClaimPayment) []ServiceLineRow {
	var out []ServiceLineRow
	for _, cp := range payments {
		for i, slp := range cp.ServiceLinePayments {
			out = append(out, ServiceLineRow{
				RunID:           runID,
				PaymentEventID:  cp.PaymentEventID,
				ClaimID:         cp.ClaimID,
				LineNo:          int32(i + 1),
				PaymentCenterID: cp.PaymentCenterID,
				SourceClaimID:   slp.Metadata["claim_id"],
				ServiceCode:     slp.ServiceLine.ServiceCode,
				ChargeCents:     normalize.DollarsToCents(slp.ServiceLine.ChargeAmount),
				AllowedCents:    normalize.DollarsToCents(slp.ServiceLine.AllowedAmount),
				Quantity:        slp.ServiceLine.Quantity,
				CalculatedCents: normalize.DollarsToCents(slp.CalculatedAmount),
				OffsetsCents:    normalize.DollarsToCents(slp.OffsetsApplied),
			})
		}
	}
	return out
}

// PaymentRepo persists claim and service-line payments.
type PaymentRepo struct {
	base
}

// copyServiceLines COPY-loads one batch of rows inside tx.
func copyServiceLines(ctx context.Context, tx pgx.Tx, rows []ServiceLineRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"payrun", "service_line_payments"},
		ServiceLineColumns,
		db.NewSliceSource(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("copy service lines: %w", err)
	}
	return n, nil
}

// AllocatePaymentNumbers reserves n numbers from the payment number sequence
// in ascending order.
func (r *PaymentRepo) AllocatePaymentNumbers(ctx context.Context, n int) ([]int64, error) {
	const op = "store.AllocatePaymentNumbers"
	var nums []int64
	err := r.do(ctx, op, func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, embedsql.AllocatePaymentNumbers, n)
		if err != nil {
			return err
		}
		nums, err = pgx.CollectRows(rows, pgx.RowTo[int64])
		return err
	})
	if err != nil {
		return nil, payerr.Wrap(payerr.KindSequenceNumber, op, err)
	}
	slices.Sort(nums)
	return nums, nil
}

// upsertClaimAggregates queues one upsert per claim payment on tx.
func upsertClaimAggregates(ctx context.Context, tx pgx.Tx, runID uuid.UUID, payments []model.ClaimPayment) (int64, error) {
	if len(payments) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, cp := range payments {
		batch.Queue(embedsql.UpsertClaimPayment,
			cp.PaymentEventID, cp.ClaimID, cp.PaymentCenterID, cp.PaymentNumber,
			normalize.DollarsToCents(cp.TotalAmount),
			normalize.DollarsToCents(cp.InterestAmount),
			normalize.DollarsToCents(cp.OffsetsApplied),
			len(cp.ServiceLinePayments),
			runID,
		)
	}
	var written int64
	br := tx.SendBatch(ctx, batch)
	for _, cp := range payments {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("upsert claim %s: %w", cp.ClaimID, err)
		}
		written += tag.RowsAffected()
	}
	return written, br.Close()
}

// PersistedClaimIDs returns the parent ids already paid for an event.
func (r *PaymentRepo) PersistedClaimIDs(ctx context.Context, paymentEventID string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	err := r.do(ctx, "store.PersistedClaimIDs", func(ctx context.Context) error {
		clear(ids)
		rows, err := r.pool.Query(ctx, embedsql.PersistedClaimIDs, paymentEventID)
		if err != nil {
			return err
		}
		list, err := pgx.CollectRows(rows, pgx.RowTo[string])
		for _, id := range list {
			ids[id] = struct{}{}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListByEvent returns the stored claim payments of an event ordered by
// payment number, without their service lines.
func (r *PaymentRepo) ListByEvent(ctx context.Context, paymentEventID string) ([]model.ClaimPayment, error) {
	var out []model.ClaimPayment
	err := r.do(ctx, "store.ListClaimPayments", func(ctx context.Context) error {
		out = out[:0]
		rows, err := r.pool.Query(ctx, embedsql.ListClaimPayments, paymentEventID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			cp := model.ClaimPayment{PaymentEventID: paymentEventID, ServiceLinePayments: []model.ServiceLinePayment{}}
			var total, interest, offsets int64
			if err := rows.Scan(&cp.ClaimID, &cp.PaymentCenterID, &cp.PaymentNumber, &total, &interest, &offsets); err != nil {
				return err
			}
			cp.TotalAmount = normalize.CentsToDollars(total)
			cp.InterestAmount = normalize.CentsToDollars(interest)
			cp.OffsetsApplied = normalize.CentsToDollars(offsets)
			out = append(out, cp)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountWritten returns how many claim payments and service lines a run wrote.
func (r *PaymentRepo) CountWritten(ctx context.Context, paymentEventID string, runID uuid.UUID) (claimPayments, serviceLines int, err error) {
	err = r.do(ctx, "store.CountWritten", func(ctx context.Context) error {
		return r.pool.QueryRow(ctx, embedsql.CountWritten, paymentEventID, runID).Scan(&claimPayments, &serviceLines)
	})
	return claimPayments, serviceLines, err
}
