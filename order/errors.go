package order

import "fmt"

// ValidationError reports an invariant violation: a duplicate status, an
// illegal progression, a permission mismatch, or a malformed request. It is
// the only recoverable error kind in this core and maps to a client-visible
// rejection. Constraint violations detected at persistence time are
// converted to it at the repository boundary so callers see one taxonomy.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Invalid builds a ValidationError from a format string.
func Invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
