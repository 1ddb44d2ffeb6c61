// Package orcherr classifies orchestrator errors into the kinds named by
// the error handling design: InvalidArgument, IllegalTransition,
// ValidationFailed, RequiredVariableMissing, DependencyBlocked,
// StepExecutionFailed, Cancelled, Storage. This is a telemetry
// classification layered on top of Go's native error values, not a
// replacement for them.
package orcherr

// Kind names one of the error categories surfaced by the orchestrator
// core.
type Kind string

const (
	InvalidArgument         Kind = "InvalidArgument"
	IllegalTransition       Kind = "IllegalTransition"
	ValidationFailed        Kind = "ValidationFailed"
	RequiredVariableMissing Kind = "RequiredVariableMissing"
	DependencyBlocked       Kind = "DependencyBlocked"
	StepExecutionFailed     Kind = "StepExecutionFailed"
	Cancelled               Kind = "Cancelled"
	Storage                 Kind = "Storage"
)

// Error wraps an underlying cause with a classification kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New classifies err under kind.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
