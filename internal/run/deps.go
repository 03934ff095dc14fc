package run

import (
	"context"

	"github.com/google/uuid"

	"github.com/gyeh/payrun/internal/backup"
	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/store"
)

// ConfigSource loads a PaymentEvent with its attached configuration.
type ConfigSource interface {
	Load(ctx context.Context, paymentEventID string) (*model.PaymentEvent, error)
}

// CenterStore holds the PaymentCenters known to production.
type CenterStore interface {
	LoadCache(ctx context.Context, pcType model.PaymentCenterType) (model.PaymentCenterCache, error)
	CreateCenters(ctx context.Context, centers []model.PaymentCenter) (map[string]int64, error)
	ListAll(ctx context.Context) ([]model.PaymentCenter, error)
}

// PaymentStore is the write sink of a final run.
type PaymentStore interface {
	AllocatePaymentNumbers(ctx context.Context, n int) ([]int64, error)
	PersistRun(ctx context.Context, w store.RunWrite) (store.RunWriteResult, error)
	PersistedClaimIDs(ctx context.Context, paymentEventID string) (map[string]struct{}, error)
	ListByEvent(ctx context.Context, paymentEventID string) ([]model.ClaimPayment, error)
	CountWritten(ctx context.Context, paymentEventID string, runID uuid.UUID) (claimPayments, serviceLines int, err error)
}

// OverUnderStore keeps carried balances.
type OverUnderStore interface {
	Load(ctx context.Context, centerIDs []int64) (map[int64]model.OUSummary, error)
}

// StatsStore persists finalized stats.
type StatsStore interface {
	Save(ctx context.Context, s *model.PaymentEventStats) error
}

// Snapshotter writes backup snapshots.
type Snapshotter interface {
	Snapshot(ctx context.Context, paymentEventID, collection string, rows []backup.Row) (string, error)
}

var (
	_ ConfigSource   = (*store.ConfigLoader)(nil)
	_ CenterStore    = (*store.PaymentCenterRepo)(nil)
	_ PaymentStore   = (*store.PaymentRepo)(nil)
	_ OverUnderStore = (*store.OverUnderRepo)(nil)
	_ StatsStore     = (*store.StatsRepo)(nil)
	_ Snapshotter    = (*backup.Snapshotter)(nil)
)
