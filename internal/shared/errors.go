package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")

	// ErrUnauthorized means the request carries no usable identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the caller lacks the role or ownership for the action.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation marks malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition marks a status change the quotation workflow does not allow.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNumberGenerationFailed is returned when no unique document number could be assigned.
	ErrNumberGenerationFailed = errors.New("number generation failed")
	// ErrPersistence hides storage failures from callers.
	ErrPersistence = errors.New("persistence failure")
)

// Error kinds exposed to API clients.
const (
	KindUnauthorized           = "unauthorized"
	KindForbidden              = "forbidden"
	KindNotFound               = "not_found"
	KindValidation             = "validation_error"
	KindInvalidTransition      = "invalid_transition"
	KindNumberGenerationFailed = "number_generation_failed"
	KindDuplicateRequest       = "duplicate_request"
	KindPersistence            = "persistence_error"
	KindInternal               = "internal_error"
)

// ErrorKind returns the machine-readable kind for err.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidCredentials):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrCSRFTokenMissing), errors.Is(err, ErrCSRFTokenMismatch):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrNumberGenerationFailed):
		return KindNumberGenerationFailed
	case errors.Is(err, ErrIdempotencyConflict):
		return KindDuplicateRequest
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	default:
		return KindInternal
	}
}

// IsDomainError reports whether err belongs to the known taxonomy and may be
// returned to callers as is.
func IsDomainError(err error) bool {
	switch ErrorKind(err) {
	case "", KindInternal:
		return false
	default:
		return true
	}
}
