package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gyeh/payrun/internal/payerr"
)

func TestLocal_Exclusive(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	release, err := l.TryLock(ctx, "PE-1")
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if _, err := l.TryLock(ctx, "PE-1"); !errors.Is(err, payerr.ErrConcurrency) {
		t.Fatalf("second lock: expected concurrency error, got %v", err)
	}

	other, err := l.TryLock(ctx, "PE-2")
	if err != nil {
		t.Fatalf("other event must not be blocked: %v", err)
	}
	defer other(ctx)

	if err := release(ctx); err != nil {
		t.Fatal(err)
	}
	again, err := l.TryLock(ctx, "PE-1")
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	// A stale release must not free the new holder.
	release(ctx)
	if _, err := l.TryLock(ctx, "PE-1"); err == nil {
		t.Fatal("double release freed a lock it no longer held")
	}
	again(ctx)
}

func TestLocal_Concurrent(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.TryLock(ctx, "PE-1"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Errorf("%d goroutines acquired the lock", wins.Load())
	}
}
