package shared

import "errors"

var (
	// ErrValidation indicates a malformed administrative request, rejected
	// before any state change.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates an unknown principal, agent or template.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a write collision or an attempt to mutate an
	// immutable system template. Callers may re-read and retry.
	ErrConflict = errors.New("conflict")
	// ErrAdminDenied indicates the acting principal lacks the elevation
	// required for an administrative mutation. Distinct from a runtime
	// authorization denial, which is a Decision value, never an error.
	ErrAdminDenied = errors.New("administrative permission denied")
	// ErrResolutionTimeout indicates the resolver missed its latency budget.
	ErrResolutionTimeout = errors.New("resolution timed out")
)

// UserSafeMessage maps internal errors to messages safe to show end users.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "The request is invalid."
	case errors.Is(err, ErrNotFound):
		return "The requested resource does not exist."
	case errors.Is(err, ErrConflict):
		return "The resource was modified concurrently. Please retry."
	case errors.Is(err, ErrAdminDenied):
		return "You are not allowed to perform this action."
	default:
		return "Something went wrong. Please try again."
	}
}
