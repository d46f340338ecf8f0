// Package errclass defines the error taxonomy for unit processing and the
// pure classification of arbitrary failures into named kinds. All pipeline
// and merge failures are funneled through Classify before they reach the
// ledger, so every recorded outcome carries a stable, machine-readable kind.
package errclass

import (
	"errors"
	"fmt"
)

// Kind is the classified category of a processing failure. The string form
// is written verbatim into the ledger.
type Kind string

const (
	// KindNone marks a successful outcome; it is never produced by Classify
	// for a non-nil error.
	KindNone Kind = ""
	// KindInputMissing means the unit's source dataset path did not resolve.
	KindInputMissing Kind = "InputMissing"
	// KindResolutionOrCRSMismatch means the source resolution or linear unit
	// failed the configured precondition.
	KindResolutionOrCRSMismatch Kind = "ResolutionOrCRSMismatch"
	// KindNoValidAttributeValues means the source has no feature matching any
	// configured class's attribute values.
	KindNoValidAttributeValues Kind = "NoValidAttributeValues"
	// KindExternalToolFailure means a delegated tool invocation failed.
	KindExternalToolFailure Kind = "ExternalToolFailure"
	// KindTransientIO marks a momentarily-unavailable artifact during the
	// parent merge. It is the only retryable kind.
	KindTransientIO Kind = "TransientIOError"
	// KindUnknown is the fallback for any uncaught failure. The original
	// message is always preserved alongside it.
	KindUnknown Kind = "UnknownError"
)

// InputMissingError reports a source dataset that could not be found.
type InputMissingError struct {
	Path string
}

func (e *InputMissingError) Error() string {
	return fmt.Sprintf("source dataset not found: %s", e.Path)
}

// PreconditionError reports a source dataset whose resolution or spatial
// reference does not satisfy the run parameters.
type PreconditionError struct {
	Resolution float64
	LinearUnit string
	Reason     string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("incorrect resolution or SRS: %g %q: %s", e.Resolution, e.LinearUnit, e.Reason)
}

// NoAttributeValuesError reports a source layer with zero features matching
// a class's attribute values.
type NoAttributeValuesError struct {
	Layer string
	Class string
}

func (e *NoAttributeValuesError) Error() string {
	return fmt.Sprintf("layer %q has no feature with a valid %q attribute value", e.Layer, e.Class)
}

// ToolError reports a delegated external tool invocation that exited
// non-zero or could not be started.
type ToolError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed: %v: %s", e.Tool, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// TransientIOError reports an artifact that was momentarily unavailable,
// typically a sibling raster still being flushed by another worker.
type TransientIOError struct {
	Path string
	Err  error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("artifact momentarily unavailable: %s: %v", e.Path, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// Classify maps a failure to its Kind. A nil error classifies as KindNone;
// anything unrecognized falls through to KindUnknown with its message intact
// in the caller's hands.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	var inputMissing *InputMissingError
	var precondition *PreconditionError
	var noAttributes *NoAttributeValuesError
	var transient *TransientIOError
	var tool *ToolError

	switch {
	case errors.As(err, &inputMissing):
		return KindInputMissing
	case errors.As(err, &precondition):
		return KindResolutionOrCRSMismatch
	case errors.As(err, &noAttributes):
		return KindNoValidAttributeValues
	case errors.As(err, &transient):
		return KindTransientIO
	case errors.As(err, &tool):
		return KindExternalToolFailure
	default:
		return KindUnknown
	}
}

// Retryable reports whether a kind may be retried. Only transient I/O
// failures qualify, and only inside the merge loop.
func Retryable(k Kind) bool {
	return k == KindTransientIO
}
