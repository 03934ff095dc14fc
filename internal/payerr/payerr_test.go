package payerr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestKindHierarchy(t *testing.T) {
	err := Wrap(KindTransientRepository, "persist", errors.New("conn reset"))

	if !errors.Is(err, ErrTransientRepository) {
		t.Error("transient error should match ErrTransientRepository")
	}
	if !errors.Is(err, ErrRepository) {
		t.Error("transient error should match its parent ErrRepository")
	}
	if errors.Is(err, ErrConfiguration) {
		t.Error("transient error should not match ErrConfiguration")
	}
	if errors.Is(Wrap(KindRepository, "x", errors.New("y")), ErrTransientRepository) {
		t.Error("a parent kind must not match a child sentinel")
	}
	if !errors.Is(New(KindMissingConfiguration, "load", "no event"), ErrConfiguration) {
		t.Error("missing configuration should be a configuration error")
	}
}

func TestWrappedChain(t *testing.T) {
	inner := New(KindConcurrency, "lock", "held by another run")
	outer := fmt.Errorf("run: %w", inner)
	if KindOf(outer) != KindConcurrency {
		t.Errorf("KindOf: got %v", KindOf(outer))
	}
	if !errors.Is(outer, ErrConcurrency) {
		t.Error("errors.Is should traverse fmt wrapping")
	}
}

func TestErrorMessageIncludesContext(t *testing.T) {
	err := New(KindSequenceNumber, "allocate", "short allocation").
		With("want", 10).
		With("got", 7)
	msg := err.Error()
	for _, want := range []string{"SequenceNumberError", "[allocate]", "short allocation", "got=7", "want=10"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(KindRepository, "op", nil) != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Wrap(KindTransientRepository, "op", errors.New("blip"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: got %d, want 3", calls)
	}
}

func TestRetry_FatalStopsImmediately(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{Attempts: 5, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return Wrap(KindRepository, "op", errors.New("constraint"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls: got %d, want 1", calls)
	}
}

func TestRetry_Exhausted(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return &Error{Kind: KindServiceTimeout, Op: "fetch", RetryAfter: time.Millisecond}
	})
	if !errors.Is(err, ErrServiceTimeout) {
		t.Fatalf("expected service timeout, got %v", err)
	}
	if calls != 2 {
		t.Errorf("calls: got %d, want 2", calls)
	}
}

func TestFromContext(t *testing.T) {
	err := FromContext("fetch", context.DeadlineExceeded)
	if !IsRetryable(err) {
		t.Error("deadline should be retryable")
	}
	if RetryAfter(err) <= 0 {
		t.Error("deadline should carry a retry hint")
	}
	if FromContext("fetch", nil) != nil {
		t.Error("nil in, nil out")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"no_rows", pgx.ErrNoRows, KindEntityNotFound},
		{"mongo_no_docs", mongo.ErrNoDocuments, KindEntityNotFound},
		{"serialization", &pgconn.PgError{Code: "40001"}, KindTransientRepository},
		{"conn_failure", &pgconn.PgError{Code: "08006"}, KindRepositoryConnection},
		{"unique", &pgconn.PgError{Code: "23505"}, KindDuplicatePayment},
		{"fk", &pgconn.PgError{Code: "23503"}, KindDataIntegrity},
		{"syntax", &pgconn.PgError{Code: "42601"}, KindRepository},
		{"deadline", context.DeadlineExceeded, KindServiceTimeout},
		{"plain", errors.New("boom"), KindRepository},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(Classify("op", tc.err, KindRepository)); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestClassify_KeepsExistingKind(t *testing.T) {
	orig := New(KindSequenceNumber, "alloc", "short")
	if got := Classify("op", fmt.Errorf("wrap: %w", orig), KindRepository); KindOf(got) != KindSequenceNumber {
		t.Errorf("got %v", got)
	}
	if Classify("op", nil, KindRepository) != nil {
		t.Error("nil in, nil out")
	}
}
