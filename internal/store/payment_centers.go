package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gyeh/payrun/internal/model"
	embedsql "github.com/gyeh/payrun/internal/sql"
)

// PaymentCenterRepo persists PaymentCenters.
type PaymentCenterRepo struct {
	base
}

// LoadCache returns the key to id mapping of every stored center of pcType,
// or of every center when pcType is empty.
func (r *PaymentCenterRepo) LoadCache(ctx context.Context, pcType model.PaymentCenterType) (model.PaymentCenterCache, error) {
	cache := make(model.PaymentCenterCache)
	err := r.do(ctx, "store.LoadPaymentCenterCache", func(ctx context.Context) error {
		clear(cache)
		rows, err := r.pool.Query(ctx, embedsql.LoadPaymentCenters, string(pcType))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var key string
			var id int64
			if err := rows.Scan(&key, &id); err != nil {
				return err
			}
			cache[key] = id
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return cache, nil
}

// CreateCenters stores centers in one transaction and returns the stored id
// of every requested key. New keys draw their id from the center sequence,
// so the ids the caller proposed are ignored; a key stored by a concurrent
// run keeps that run's id.
func (r *PaymentCenterRepo) CreateCenters(ctx context.Context, centers []model.PaymentCenter) (map[string]int64, error) {
	ids := make(map[string]int64, len(centers))
	if len(centers) == 0 {
		return ids, nil
	}
	start := time.Now()
	var inserted int
	err := r.do(ctx, "store.CreatePaymentCenters", func(ctx context.Context) error {
		clear(ids)
		inserted = 0
		return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
			batch := &pgx.Batch{}
			for _, c := range centers {
				batch.Queue(embedsql.InsertPaymentCenter,
					c.Key, string(c.Type), c.Name, c.TaxID, c.NPI, c.MemberID)
			}
			br := tx.SendBatch(ctx, batch)
			for _, c := range centers {
				var id int64
				var isNew bool
				if err := br.QueryRow().Scan(&id, &isNew); err != nil {
					br.Close()
					return fmt.Errorf("insert center %s: %w", c.Key, err)
				}
				ids[c.Key] = id
				if isNew {
					inserted++
				}
			}
			return br.Close()
		})
	})
	if err != nil {
		return nil, err
	}
	r.log.Info().
		Int("requested", len(centers)).
		Int("inserted", inserted).
		Dur("duration", time.Since(start)).
		Msg("payment centers created")
	return ids, nil
}

// ListAll returns every stored center ordered by id.
func (r *PaymentCenterRepo) ListAll(ctx context.Context) ([]model.PaymentCenter, error) {
	var out []model.PaymentCenter
	err := r.do(ctx, "store.ListPaymentCenters", func(ctx context.Context) error {
		out = out[:0]
		rows, err := r.pool.Query(ctx, embedsql.ListPaymentCenters)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c model.PaymentCenter
			var t string
			if err := rows.Scan(&c.PaymentCenterID, &c.Key, &t, &c.Name, &c.TaxID, &c.NPI, &c.MemberID); err != nil {
				return err
			}
			c.Type = model.PaymentCenterType(t)
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
