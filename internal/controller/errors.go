package controller

import (
	"errors"
	"fmt"

	"github.com/rollward-systems/rollward/pkg/types"
)

// FailureError carries the failure taxonomy through the state machine so
// callers can branch on the kind: configuration errors are fatal and never
// retried, connectivity errors fail the phase after bounded retry, validation
// failures abort before any destructive step, execution failures name the
// failed sub-component, and verification failures are reported distinctly
// because remediation differs.
type FailureError struct {
	Kind types.FailureKind
	Err  error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FailureError) Unwrap() error { return e.Err }

func failure(kind types.FailureKind, format string, args ...interface{}) *FailureError {
	return &FailureError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the failure kind from an error chain, defaulting to
// execution failure for unclassified errors.
func KindOf(err error) types.FailureKind {
	var fe *FailureError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return types.FailureExecution
}
