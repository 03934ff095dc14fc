// Package store holds the Postgres repositories of the run store: event
// configuration, PaymentCenters, payments, over/under balances and stats.
package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/payrun/internal/payerr"
)

// Store bundles the repositories sharing one pool.
type Store struct {
	Config    *ConfigLoader
	Centers   *PaymentCenterRepo
	Payments  *PaymentRepo
	OverUnder *OverUnderRepo
	Stats     *StatsRepo
}

// New builds every repository on pool. Transient failures are retried with
// policy.
func New(pool *pgxpool.Pool, policy payerr.RetryPolicy, log zerolog.Logger) *Store {
	b := base{pool: pool, retry: policy, log: log}
	return &Store{
		Config:    &ConfigLoader{base: b},
		Centers:   &PaymentCenterRepo{base: b},
		Payments:  &PaymentRepo{base: b},
		OverUnder: &OverUnderRepo{base: b},
		Stats:     &StatsRepo{base: b},
	}
}

type base struct {
	pool  *pgxpool.Pool
	retry payerr.RetryPolicy
	log   zerolog.Logger
}

// do runs fn under the retry policy, classifying every failure.
func (b base) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	return payerr.Retry(ctx, b.retry, func(ctx context.Context) error {
		attempt++
		err := payerr.Classify(op, fn(ctx), payerr.KindRepository)
		if err != nil && payerr.IsRetryable(err) {
			b.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("transient repository failure")
		}
		return err
	})
}
