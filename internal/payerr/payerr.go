// Package payerr defines the error taxonomy shared by every phase of a
// payment run.
package payerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind classifies an Error. Kinds form a hierarchy: a kind matches itself and
// every ancestor under errors.Is.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindMissingConfiguration
	KindValidation
	KindCriticalValidation
	KindDuplicatePayment
	KindDataIntegrity
	KindRepository
	KindRepositoryConnection
	KindEntityNotFound
	KindTransientRepository
	KindSequenceNumber
	KindProcessingState
	KindConcurrency
	KindExternalService
	KindServiceTimeout
	KindServiceResponse
)

var kindNames = map[Kind]string{
	KindUnknown:              "PaymentProcessError",
	KindConfiguration:        "ConfigurationError",
	KindMissingConfiguration: "MissingConfigurationError",
	KindValidation:           "ValidationError",
	KindCriticalValidation:   "CriticalValidationError",
	KindDuplicatePayment:     "DuplicatePaymentError",
	KindDataIntegrity:        "DataIntegrityError",
	KindRepository:           "RepositoryError",
	KindRepositoryConnection: "RepositoryConnectionError",
	KindEntityNotFound:       "EntityNotFoundError",
	KindTransientRepository:  "TransientRepositoryError",
	KindSequenceNumber:       "SequenceNumberError",
	KindProcessingState:      "ProcessingStateError",
	KindConcurrency:          "ConcurrencyError",
	KindExternalService:      "ExternalServiceError",
	KindServiceTimeout:       "ServiceTimeoutError",
	KindServiceResponse:      "ServiceResponseError",
}

var kindParents = map[Kind]Kind{
	KindMissingConfiguration: KindConfiguration,
	KindCriticalValidation:   KindValidation,
	KindDuplicatePayment:     KindCriticalValidation,
	KindDataIntegrity:        KindValidation,
	KindRepositoryConnection: KindRepository,
	KindEntityNotFound:       KindRepository,
	KindTransientRepository:  KindRepository,
	KindServiceTimeout:       KindExternalService,
	KindServiceResponse:      KindExternalService,
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsA reports whether k is target or descends from it.
func (k Kind) IsA(target Kind) bool {
	for cur := k; ; {
		if cur == target {
			return true
		}
		parent, ok := kindParents[cur]
		if !ok {
			return target == KindUnknown
		}
		cur = parent
	}
}

// Retryable reports whether errors of this kind may succeed on a later attempt.
func (k Kind) Retryable() bool {
	return k == KindTransientRepository || k == KindServiceTimeout
}

// Error is the single error type of the taxonomy.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
	Context map[string]any
	// RetryAfter is a caller-visible hint for retryable kinds.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(" [")
		b.WriteString(e.Op)
		b.WriteString("]")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString("}")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind hierarchy, so errors.Is(err, ErrRepository)
// holds for a transient repository failure. A target carrying an Op or
// Message is only matched by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind.IsA(t.Kind)
}

// With adds diagnostic context and returns e.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Sentinels for errors.Is.
var (
	ErrConfiguration        = &Error{Kind: KindConfiguration}
	ErrMissingConfiguration = &Error{Kind: KindMissingConfiguration}
	ErrValidation           = &Error{Kind: KindValidation}
	ErrCriticalValidation   = &Error{Kind: KindCriticalValidation}
	ErrRepository           = &Error{Kind: KindRepository}
	ErrTransientRepository  = &Error{Kind: KindTransientRepository}
	ErrEntityNotFound       = &Error{Kind: KindEntityNotFound}
	ErrSequenceNumber       = &Error{Kind: KindSequenceNumber}
	ErrProcessingState      = &Error{Kind: KindProcessingState}
	ErrConcurrency          = &Error{Kind: KindConcurrency}
	ErrExternalService      = &Error{Kind: KindExternalService}
	ErrServiceTimeout       = &Error{Kind: KindServiceTimeout}
)

// New builds an Error without a cause.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a retryable kind.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

// RetryAfter returns the retry hint carried by err, if any.
func RetryAfter(err error) time.Duration {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}
