package exitcode

import "github.com/gyeh/payrun/internal/payerr"

const (
	Success          = 0
	UsageError       = 1
	ConfigError      = 2
	DBConnError      = 3
	RepositoryError  = 4
	ConcurrencyError = 5
	SequenceError    = 6
	ExternalError    = 7
	ProcessingError  = 8
)

// FromError maps a run failure to its exit code. A nil error is Success;
// errors outside the taxonomy are UsageError.
func FromError(err error) int {
	if err == nil {
		return Success
	}
	kind := payerr.KindOf(err)
	switch {
	case kind == payerr.KindUnknown:
		return UsageError
	case kind.IsA(payerr.KindConfiguration):
		return ConfigError
	case kind.IsA(payerr.KindRepositoryConnection):
		return DBConnError
	case kind.IsA(payerr.KindRepository):
		return RepositoryError
	case kind.IsA(payerr.KindConcurrency):
		return ConcurrencyError
	case kind.IsA(payerr.KindSequenceNumber):
		return SequenceError
	case kind.IsA(payerr.KindExternalService):
		return ExternalError
	}
	return ProcessingError
}
