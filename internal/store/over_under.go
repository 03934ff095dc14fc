package store

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/jackc/pgx/v5"

	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/normalize"
	embedsql "github.com/gyeh/payrun/internal/sql"
)

// OverUnderRepo keeps carried balances and their ledger records.
type OverUnderRepo struct {
	base
}

// Load returns the over/under summary of every requested center. Centers
// with no stored balance get a zero summary.
func (r *OverUnderRepo) Load(ctx context.Context, centerIDs []int64) (map[int64]model.OUSummary, error) {
	out := make(map[int64]model.OUSummary, len(centerIDs))
	if len(centerIDs) == 0 {
		return out, nil
	}
	err := r.do(ctx, "store.LoadOverUnder", func(ctx context.Context) error {
		clear(out)
		for _, id := range centerIDs {
			out[id] = model.OUSummary{PaymentCenterID: id, Records: []model.OverUnderRecord{}}
		}

		rows, err := r.pool.Query(ctx, embedsql.LoadOverUnder, centerIDs)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id, cents int64
			if err := rows.Scan(&id, &cents); err != nil {
				rows.Close()
				return err
			}
			s := out[id]
			s.PreviousBalance = normalize.CentsToDollars(cents)
			out[id] = s
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		recs, err := r.pool.Query(ctx, embedsql.LoadOverUnderRecords, centerIDs)
		if err != nil {
			return err
		}
		defer recs.Close()
		for recs.Next() {
			var id, cents int64
			var rec model.OverUnderRecord
			if err := recs.Scan(&id, &rec.Reference, &cents, &rec.Type); err != nil {
				return err
			}
			rec.Amount = normalize.CentsToDollars(cents)
			s := out[id]
			s.Records = append(s.Records, rec)
			out[id] = s
		}
		return recs.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CalcAndUpsertOverUnder appends each center's new records and moves its
// carried balance by their sum, in one transaction. It returns the number of
// records written.
func (r *OverUnderRepo) CalcAndUpsertOverUnder(ctx context.Context, paymentEventID string, records map[int64][]model.OverUnderRecord) (int, error) {
	var written int
	err := r.do(ctx, "store.CalcAndUpsertOverUnder", func(ctx context.Context) error {
		return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
			var err error
			written, err = upsertOverUnder(ctx, tx, paymentEventID, records)
			return err
		})
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// upsertOverUnder writes records and balance moves on tx, centers in id order.
func upsertOverUnder(ctx context.Context, tx pgx.Tx, paymentEventID string, records map[int64][]model.OverUnderRecord) (int, error) {
	batch := &pgx.Batch{}
	queued, written := 0, 0
	for _, id := range slices.Sorted(maps.Keys(records)) {
		recs := records[id]
		if len(recs) == 0 {
			continue
		}
		var delta int64
		for _, rec := range recs {
			cents := normalize.DollarsToCents(rec.Amount)
			delta += cents
			batch.Queue(embedsql.InsertOverUnderRecord, id, paymentEventID, rec.Reference, cents, rec.Type)
			queued++
		}
		batch.Queue(embedsql.UpsertOverUnderBalance, id, delta)
		queued++
		written += len(recs)
	}
	if queued == 0 {
		return 0, nil
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < queued; i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return 0, fmt.Errorf("over/under statement %d: %w", i, err)
		}
	}
	return written, br.Close()
}
