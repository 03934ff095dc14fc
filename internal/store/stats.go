package store

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/payerr"
	embedsql "github.com/gyeh/payrun/internal/sql"
)

// StatsRepo persists PaymentEventStats. Totals and findings are stored as
// jsonb; finding order is preserved.
type StatsRepo struct {
	base
}

// Save inserts or replaces the stats of a run.
func (r *StatsRepo) Save(ctx context.Context, s *model.PaymentEventStats) error {
	const op = "store.SaveStats"
	runID, err := uuid.Parse(s.RunID)
	if err != nil {
		return payerr.Wrap(payerr.KindDataIntegrity, op, err).With("run_id", s.RunID)
	}
	totals, err := json.Marshal(s.Totals)
	if err != nil {
		return payerr.Wrap(payerr.KindDataIntegrity, op, err)
	}
	findings, err := json.Marshal(s.Findings)
	if err != nil {
		return payerr.Wrap(payerr.KindDataIntegrity, op, err)
	}
	backups := s.Backups
	if backups == nil {
		backups = []string{}
	}
	return r.do(ctx, op, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, embedsql.SaveStats,
			runID, s.PaymentEventID, s.Stage, s.TotalClaims, totals, findings, backups, s.StartedAt, s.CompletedAt)
		return err
	})
}

// Load returns the stats of a run.
func (r *StatsRepo) Load(ctx context.Context, runID string) (*model.PaymentEventStats, error) {
	const op = "store.LoadStats"
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, payerr.Wrap(payerr.KindValidation, op, err).With("run_id", runID)
	}
	return r.scanOne(ctx, op, embedsql.LoadStats, id)
}

// Latest returns the most recently started run of an event.
func (r *StatsRepo) Latest(ctx context.Context, paymentEventID string) (*model.PaymentEventStats, error) {
	return r.scanOne(ctx, "store.LatestStats", embedsql.LatestStats, paymentEventID)
}

func (r *StatsRepo) scanOne(ctx context.Context, op, query string, arg any) (*model.PaymentEventStats, error) {
	var (
		s                model.PaymentEventStats
		totals, findings []byte
		completed        *time.Time
	)
	err := r.do(ctx, op, func(ctx context.Context) error {
		return r.pool.QueryRow(ctx, query, arg).Scan(
			&s.RunID, &s.PaymentEventID, &s.Stage, &s.TotalClaims,
			&totals, &findings, &s.Backups, &s.StartedAt, &completed,
		)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, payerr.New(payerr.KindEntityNotFound, op, "no stats for %v", arg)
	}
	if err != nil {
		return nil, err
	}
	s.CompletedAt = completed
	if err := json.Unmarshal(totals, &s.Totals); err != nil {
		return nil, payerr.Wrap(payerr.KindDataIntegrity, op, err)
	}
	if err := json.Unmarshal(findings, &s.Findings); err != nil {
		return nil, payerr.Wrap(payerr.KindDataIntegrity, op, err)
	}
	if s.Totals.ByPaymentCenter == nil {
		s.Totals.ByPaymentCenter = map[int64]float64{}
	}
	if s.Findings.Findings == nil {
		s.Findings.Findings = []model.Finding{}
	}
	return &s, nil
}
