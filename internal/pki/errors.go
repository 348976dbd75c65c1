// Package pki defines the error taxonomy shared by the issuance pipeline.
package pki

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline stages.
// Use errors.Is() to check for these errors through the error chain.
var (
	// ErrInvalidInput indicates a bad or missing identity or algorithm
	// parameter. Raised before any filesystem side effect.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMissingDependency indicates a required external dependency
	// (PKCS#11 provider library) is absent. Raised before any side effect.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrMissingCA indicates the CA certificate file does not exist.
	ErrMissingCA = errors.New("CA certificate not found")

	// ErrSigningFailure indicates the HSM signing step failed (bad PIN,
	// missing key object, unreachable token). Key and CSR material may
	// already exist on disk; registered cleanup still runs.
	ErrSigningFailure = errors.New("signing failed")
)

// SignError carries structured context for a failed signer operation.
// It supports errors.Is() and errors.As() through Unwrap.
type SignError struct {
	Op     string // operation: "open-session", "find-key", "sign"
	Serial string // certificate serial number, if one was allocated
	Err    error
}

// Error implements the error interface.
func (e *SignError) Error() string {
	if e.Serial != "" {
		return fmt.Sprintf("signer %s [%s]: %v", e.Op, e.Serial, e.Err)
	}
	return fmt.Sprintf("signer %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *SignError) Unwrap() error { return e.Err }

// Is reports ErrSigningFailure for any SignError so callers can match the
// whole class without knowing the operation.
func (e *SignError) Is(target error) bool { return target == ErrSigningFailure }

// NewSignError creates a SignError for the given operation.
func NewSignError(op string, err error) *SignError {
	return &SignError{Op: op, Err: err}
}

// ExitCode maps an error to the process exit code contract:
// 0 success, 2 invalid input, 3 missing dependency, 4 missing CA
// certificate, 1 any later failure.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidInput):
		return 2
	case errors.Is(err, ErrMissingDependency):
		return 3
	case errors.Is(err, ErrMissingCA):
		return 4
	default:
		return 1
	}
}
