// Package lock serializes runs of the same payment event.
package lock

import (
	"context"
	"sync"

	"github.com/gyeh/payrun/internal/payerr"
)

// Release gives up a held lock.
type Release func(ctx context.Context) error

// Locker grants at most one holder per payment event.
type Locker interface {
	TryLock(ctx context.Context, paymentEventID string) (Release, error)
}

func errHeld(op, paymentEventID string) error {
	return payerr.New(payerr.KindConcurrency, op, "payment event %s is locked by another run", paymentEventID).
		With("payment_event_id", paymentEventID)
}

// Local is an in-process Locker for single-host deployments and tests.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal returns an empty in-process Locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) TryLock(_ context.Context, paymentEventID string) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[paymentEventID]; ok {
		return nil, errHeld("lock.Local", paymentEventID)
	}
	l.held[paymentEventID] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, paymentEventID)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
