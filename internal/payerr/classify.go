package payerr

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.mongodb.org/mongo-driver/mongo"
)

// Classify maps a driver error to a taxonomy kind. Errors already carrying a
// kind are returned unchanged; everything unrecognized becomes fallback.
func Classify(op string, err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindServiceTimeout, Op: op, Err: err, RetryAfter: time.Second}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: fallback, Op: op, Err: err}
	case errors.Is(err, pgx.ErrNoRows), errors.Is(err, mongo.ErrNoDocuments):
		return &Error{Kind: KindEntityNotFound, Op: op, Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &Error{Kind: pgKind(pgErr.Code), Op: op, Err: err, Context: map[string]any{"sqlstate": pgErr.Code}}
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return &Error{Kind: KindRepositoryConnection, Op: op, Err: err}
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return &Error{Kind: KindTransientRepository, Op: op, Err: err}
	}

	switch {
	case mongo.IsTimeout(err), mongo.IsNetworkError(err):
		return &Error{Kind: KindTransientRepository, Op: op, Err: err}
	case mongo.IsDuplicateKeyError(err):
		return &Error{Kind: KindDataIntegrity, Op: op, Err: err}
	}
	var mongoSrv mongo.ServerError
	if errors.As(err, &mongoSrv) && mongoSrv.HasErrorLabel("RetryableWriteError") {
		return &Error{Kind: KindTransientRepository, Op: op, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Kind: KindTransientRepository, Op: op, Err: err}
		}
		return &Error{Kind: KindRepositoryConnection, Op: op, Err: err}
	}
	return &Error{Kind: fallback, Op: op, Err: err}
}

// pgKind maps a SQLSTATE to a kind.
func pgKind(code string) Kind {
	switch {
	case strings.HasPrefix(code, "08"), code == "57P01", code == "57P03":
		return KindRepositoryConnection
	case code == "40001", code == "40P01", code == "55P03", code == "57014":
		return KindTransientRepository
	case code == "23505":
		return KindDuplicatePayment
	case strings.HasPrefix(code, "23"):
		return KindDataIntegrity
	}
	return KindRepository
}
