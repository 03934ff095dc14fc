// Package run drives one payment run of a PaymentEvent from configuration to
// finalized stats.
package run

import "fmt"

// Phase names reported in PhaseError.
const (
	PhaseLock      = "lock"
	PhaseConfig    = "config"
	PhaseClaims    = "claims"
	PhaseValidate  = "validate"
	PhaseCenters   = "centers"
	PhaseTransform = "transform"
	PhasePrice     = "price"
	PhasePersist   = "persist"
	PhaseFinalize  = "finalize"
)

// PhaseError wraps an error with the phase where it occurred.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}
