package models

import "errors"

// Error taxonomy shared by the integral, cell algebra and scheduler packages.
// Callers match on these with errors.Is; detail is added by wrapping.
var (
	// ErrShapeMismatch reports a dimension or length inconsistency among sequences.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrInvalidParameter reports an out-of-range threshold, window or unknown cell type.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrCyclicOrUnresolvedDependency reports that the scheduler cannot make progress.
	ErrCyclicOrUnresolvedDependency = errors.New("cyclic or unresolved dependency")

	// ErrUnsupportedMethod reports an integration method that is not implemented.
	ErrUnsupportedMethod = errors.New("unsupported integration method")

	// ErrInternalConsistency reports a state the formulas should never reach.
	ErrInternalConsistency = errors.New("internal consistency error")
)
