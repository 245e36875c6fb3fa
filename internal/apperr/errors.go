package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotAuthenticated covers unknown/expired sessions and failed token confirmations.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotAuthorized is returned when a bound session fails a role check.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrValidation is the parent of every request validation failure.
	ErrValidation = errors.New("validation failed")
	// ErrRateLimited is a validation-class failure: too many outstanding tokens.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnavailable marks a backing store or messaging failure. Never retried here.
	ErrUnavailable = errors.New("backend unavailable")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
	// Err optionally narrows the failure (e.g. ErrRateLimited).
	Err error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Err}
}

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InfraError wraps a failure of an external collaborator (KV store, SMS gateway).
type InfraError struct {
	Op  string
	Err error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfraError) Unwrap() []error {
	return []error{ErrUnavailable, e.Err}
}

// Unavailable wraps err as an infrastructure failure of op. Returns nil for a nil err.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &InfraError{Op: op, Err: err}
}

// NotAuthenticated returns an error matching ErrNotAuthenticated with a message.
func NotAuthenticated(msg string) error {
	return fmt.Errorf("%w: %s", ErrNotAuthenticated, msg)
}

// NotAuthorized returns an error matching ErrNotAuthorized with a message.
func NotAuthorized(msg string) error {
	return fmt.Errorf("%w: %s", ErrNotAuthorized, msg)
}

// HTTPStatus maps an error of this taxonomy to a transport status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
