package parallel

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gyeh/payrun/internal/calc"
	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/payerr"
)

func TestBatches(t *testing.T) {
	got, err := Batches([]int{1, 2, 3, 4, 5}, 2)
	if err != nil {
		t.Fatalf("Batches: %v", err)
	}
	if len(got) != 3 || len(got[2]) != 1 || got[2][0] != 5 {
		t.Errorf("got %v", got)
	}
	empty, err := Batches([]int(nil), 10)
	if err != nil || len(empty) != 0 {
		t.Errorf("empty input: %v %v", empty, err)
	}
	if _, err := Batches([]int{1}, 0); err == nil {
		t.Error("zero size should fail")
	}
}

func TestBatches_NoAliasingOnAppend(t *testing.T) {
	items := []int{1, 2, 3, 4}
	got, _ := Batches(items, 2)
	_ = append(got[0], 99)
	if items[2] != 3 {
		t.Error("appending to a batch overwrote the next batch")
	}
}

func TestMap_PreservesOrder(t *testing.T) {
	inputs := make([]int, 50)
	for i := range inputs {
		inputs[i] = i
	}
	out, err := Map(context.Background(), 8, inputs, Safe(func(_ context.Context, n int) (string, error) {
		time.Sleep(time.Duration(50-n) * 10 * time.Microsecond)
		return fmt.Sprint(n * 2), nil
	}))
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	for i, s := range out {
		if s != fmt.Sprint(i*2) {
			t.Fatalf("out[%d] = %q", i, s)
		}
	}
}

func TestMap_ParallelEqualsSequential(t *testing.T) {
	inputs := []int{5, 3, 8, 1}
	fn := func(_ context.Context, n int) (int, error) { return n * n, nil }
	par, err1 := Map(context.Background(), 4, inputs, Safe(fn))
	seq, err2 := Map(context.Background(), 4, inputs, Sequential(fn))
	if err1 != nil || err2 != nil {
		t.Fatalf("errors: %v %v", err1, err2)
	}
	for i := range par {
		if par[i] != seq[i] {
			t.Errorf("index %d: %d != %d", i, par[i], seq[i])
		}
	}
}

func TestMap_UnsafeRunsOneAtATime(t *testing.T) {
	var active, peak int32
	_, err := Map(context.Background(), 8, make([]int, 20), Sequential(func(_ context.Context, _ int) (int, error) {
		n := atomic.AddInt32(&active, 1)
		if n > atomic.LoadInt32(&peak) {
			atomic.StoreInt32(&peak, n)
		}
		time.Sleep(100 * time.Microsecond)
		atomic.AddInt32(&active, -1)
		return 0, nil
	}))
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if peak != 1 {
		t.Errorf("sequential work ran %d units at once", peak)
	}
}

func TestMap_ErrorDropsResults(t *testing.T) {
	boom := errors.New("boom")
	out, err := Map(context.Background(), 4, []int{1, 2, 3, 4}, Safe(func(_ context.Context, n int) (int, error) {
		if n == 3 {
			return 0, boom
		}
		return n, nil
	}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if out != nil {
		t.Errorf("partial results leaked: %v", out)
	}
}

func TestMap_Empty(t *testing.T) {
	out, err := Map(context.Background(), 4, []int{}, Safe(func(context.Context, int) (int, error) { return 0, nil }))
	if err != nil || out == nil || len(out) != 0 {
		t.Errorf("got %v %v", out, err)
	}
}

func TestDefaultWorkers(t *testing.T) {
	if n := DefaultWorkers(); n < 1 || n > MaxDefaultWorkers {
		t.Errorf("DefaultWorkers = %d", n)
	}
}

func TestRunClaimBatches(t *testing.T) {
	claims := make([]model.Claim, 7)
	for i := range claims {
		claims[i].ClaimID = fmt.Sprint(i)
	}
	var calls int32
	out, err := RunClaimBatches(context.Background(), 3, 2, claims, func(b []model.Claim) ([]model.Claim, error) {
		atomic.AddInt32(&calls, 1)
		res := make([]model.Claim, len(b))
		for i, c := range b {
			c.ClaimID = "n" + c.ClaimID
			res[i] = c
		}
		return res, nil
	})
	if err != nil {
		t.Fatalf("RunClaimBatches: %v", err)
	}
	if calls != 4 || len(out) != 7 || out[6].ClaimID != "n6" || out[0].ClaimID != "n0" {
		t.Errorf("calls=%d out=%v", calls, out)
	}
}

func TestRunServiceLineBatches(t *testing.T) {
	rows := make([]int, 2500)
	total, err := RunServiceLineBatches(context.Background(), 4, 1000, rows, func(_ context.Context, b []int) (int64, error) {
		return int64(len(b)), nil
	})
	if err != nil || total != 2500 {
		t.Errorf("total=%d err=%v", total, err)
	}
}

func TestRunCenterLevel(t *testing.T) {
	event := &model.PaymentEvent{PaymentEventID: "PE-1"}
	var tasks []calc.CenterTask
	for id := int64(1); id <= 5; id++ {
		g := model.ParentGroup{ParentID: fmt.Sprint(id)}
		g.Add(model.Claim{ClaimID: fmt.Sprint(id), FrequencyCode: model.FrequencyOriginal,
			ServiceLines: []model.ServiceLineCore{{AllowedAmount: float64(id) * 10}}})
		tasks = append(tasks, calc.CenterTask{Event: event, Center: model.PaymentCenterClaims{PaymentCenterID: id, Groups: []model.ParentGroup{g}}})
	}
	res, err := RunCenterLevel(context.Background(), 4, calc.New(), tasks)
	if err != nil {
		t.Fatalf("RunCenterLevel: %v", err)
	}
	for i, r := range res {
		if r.PaymentCenterID != int64(i+1) || r.Total != float64(i+1)*10 {
			t.Errorf("result %d: %+v", i, r)
		}
	}
}

func TestAllocateSequenceChunks(t *testing.T) {
	next := int64(100)
	var requests []int
	alloc := func(_ context.Context, n int) ([]int64, error) {
		requests = append(requests, n)
		out := make([]int64, n)
		for i := range out {
			out[i] = next
			next++
		}
		return out, nil
	}
	nums, err := AllocateSequenceChunks(context.Background(), alloc, 7, 3)
	if err != nil {
		t.Fatalf("AllocateSequenceChunks: %v", err)
	}
	if len(nums) != 7 || nums[0] != 100 || nums[6] != 106 {
		t.Errorf("nums: %v", nums)
	}
	if fmt.Sprint(requests) != "[3 3 1]" {
		t.Errorf("requests: %v", requests)
	}
}

func TestAllocateSequenceChunks_Short(t *testing.T) {
	short := func(_ context.Context, n int) ([]int64, error) { return make([]int64, n-1), nil }
	_, err := AllocateSequenceChunks(context.Background(), short, 4, 2)
	if !errors.Is(err, payerr.ErrSequenceNumber) {
		t.Errorf("expected sequence error, got %v", err)
	}
	failing := func(context.Context, int) ([]int64, error) { return nil, errors.New("down") }
	if _, err := AllocateSequenceChunks(context.Background(), failing, 1, 1); !errors.Is(err, payerr.ErrSequenceNumber) {
		t.Errorf("expected sequence error, got %v", err)
	}
}
