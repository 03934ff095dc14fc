// Package parallel fans independent work units out over a bounded worker pool.
// Results always come back in submission order; the first failure cancels the
// remaining units and drops every partial result.
package parallel

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// MaxDefaultWorkers caps the worker count chosen when none is configured.
const MaxDefaultWorkers = 8

// DefaultWorkers returns min(NumCPU, MaxDefaultWorkers).
func DefaultWorkers() int {
	return min(runtime.NumCPU(), MaxDefaultWorkers)
}

// Work is a unit function tagged with whether it may run concurrently.
// Only functions marked Safe are fanned out; anything else runs in the
// caller's goroutine, one unit at a time.
type Work[In, Out any] struct {
	fn   func(ctx context.Context, in In) (Out, error)
	safe bool
}

// Safe marks fn as free of shared mutable state.
func Safe[In, Out any](fn func(ctx context.Context, in In) (Out, error)) Work[In, Out] {
	return Work[In, Out]{fn: fn, safe: true}
}

// Sequential wraps fn for in-order execution only.
func Sequential[In, Out any](fn func(ctx context.Context, in In) (Out, error)) Work[In, Out] {
	return Work[In, Out]{fn: fn}
}

// ParallelSafe reports whether the work may be fanned out.
func (w Work[In, Out]) ParallelSafe() bool { return w.safe }

// Map applies w to every input. With fewer than two workers, or when w is not
// parallel-safe, units run sequentially. The output has one entry per input
// in input order; on error it is nil.
func Map[In, Out any](ctx context.Context, workers int, inputs []In, w Work[In, Out]) ([]Out, error) {
	if w.fn == nil {
		return nil, fmt.Errorf("parallel: nil work function")
	}
	out := make([]Out, len(inputs))
	if len(inputs) == 0 {
		return out, nil
	}

	if workers <= 1 || !w.safe || len(inputs) == 1 {
		for i, in := range inputs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res, err := w.fn(ctx, in)
			if err != nil {
				return nil, fmt.Errorf("unit %d: %w", i, err)
			}
			out[i] = res
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(workers, len(inputs)))
	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := w.fn(gctx, in)
			if err != nil {
				return fmt.Errorf("unit %d: %w", i, err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Batches splits items into consecutive chunks of at most size items.
func Batches[T any](items []T, size int) ([][]T, error) {
	if size <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", size)
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end:end])
	}
	return out, nil
}
