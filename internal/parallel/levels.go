package parallel

import (
	"context"
	"slices"

	"github.com/gyeh/payrun/internal/calc"
	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/payerr"
)

// RunCenterLevel prices each PaymentCenter task independently. Results keep
// task order.
func RunCenterLevel(ctx context.Context, workers int, c *calc.Calculator, tasks []calc.CenterTask) ([]calc.CenterResult, error) {
	return Map(ctx, workers, tasks, Safe(func(_ context.Context, task calc.CenterTask) (calc.CenterResult, error) {
		return c.PriceCenter(task)
	}))
}

// RunClaimBatches applies fn to claims in chunks of batchSize and flattens the
// results back into one slice in input order.
func RunClaimBatches(
	ctx context.Context,
	workers, batchSize int,
	claims []model.Claim,
	fn func(batch []model.Claim) ([]model.Claim, error),
) ([]model.Claim, error) {
	batches, err := Batches(claims, batchSize)
	if err != nil {
		return nil, err
	}
	parts, err := Map(ctx, workers, batches, Safe(func(_ context.Context, b []model.Claim) ([]model.Claim, error) {
		return fn(b)
	}))
	if err != nil {
		return nil, err
	}
	return slices.Concat(parts...), nil
}

// RunServiceLineBatches writes rows in chunks of batchSize through write and
// returns the total reported by write.
func RunServiceLineBatches[T any](
	ctx context.Context,
	workers, batchSize int,
	rows []T,
	write func(ctx context.Context, batch []T) (int64, error),
) (int64, error) {
	batches, err := Batches(rows, batchSize)
	if err != nil {
		return 0, err
	}
	counts, err := Map(ctx, workers, batches, Safe(write))
	if err != nil {
		return 0, err
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// Allocator reserves n consecutive numbers from a sequence.
type Allocator func(ctx context.Context, n int) ([]int64, error)

// AllocateSequenceChunks reserves count numbers in chunks of chunkSize. Chunks
// are requested in order so the returned numbers follow submission order. A
// failed or short allocation is a SequenceNumber error.
func AllocateSequenceChunks(ctx context.Context, alloc Allocator, count, chunkSize int) ([]int64, error) {
	if count == 0 {
		return []int64{}, nil
	}
	if chunkSize <= 0 {
		chunkSize = count
	}
	sizes := make([]int, 0, (count+chunkSize-1)/chunkSize)
	for left := count; left > 0; left -= chunkSize {
		sizes = append(sizes, min(left, chunkSize))
	}
	parts, err := Map(ctx, 1, sizes, Sequential(func(ctx context.Context, n int) ([]int64, error) {
		nums, err := alloc(ctx, n)
		if err != nil {
			return nil, payerr.Wrap(payerr.KindSequenceNumber, "parallel.AllocateSequenceChunks", err)
		}
		if len(nums) != n {
			return nil, payerr.New(payerr.KindSequenceNumber, "parallel.AllocateSequenceChunks",
				"requested %d numbers, got %d", n, len(nums))
		}
		return nums, nil
	}))
	if err != nil {
		return nil, err
	}
	return slices.Concat(parts...), nil
}
