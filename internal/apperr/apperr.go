package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidInput covers missing or non-positive amounts and malformed identifiers.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates the account or wallet is absent or not owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds occurs when the source balance cannot cover the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConflict reports a uniqueness clash or an invalid status transition.
	ErrConflict = errors.New("conflict")

	// ErrTimeout is returned when a row lock could not be acquired in time.
	ErrTimeout = errors.New("lock wait timeout")

	// ErrStoreUnavailable wraps connectivity failures of either backing store.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// clientError pairs a sentinel with a reason that is safe to return to
// callers. Wrapping it keeps the reason while adding internal detail.
type clientError struct {
	kind   error
	reason string
}

func (e *clientError) Error() string { return e.kind.Error() + ": " + e.reason }

func (e *clientError) Unwrap() error { return e.kind }

// Invalid builds an ErrInvalidInput with a client-facing reason.
func Invalid(format string, args ...any) error {
	return &clientError{kind: ErrInvalidInput, reason: fmt.Sprintf(format, args...)}
}

// Conflict builds an ErrConflict with a client-facing reason.
func Conflict(format string, args ...any) error {
	return &clientError{kind: ErrConflict, reason: fmt.Sprintf(format, args...)}
}

// Classified reports whether err already carries one of the taxonomy sentinels.
func Classified(err error) bool {
	for _, target := range []error{ErrInvalidInput, ErrNotFound, ErrInsufficientFunds, ErrConflict, ErrTimeout, ErrStoreUnavailable} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Status maps an error from the taxonomy onto an HTTP status code.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the text safe to show a client. Only reasons built with
// Invalid or Conflict are shown; any other detail wrapped around a sentinel
// stays in the logs.
func Message(err error) string {
	var ce *clientError
	switch {
	case errors.As(err, &ce):
		return ce.Error()
	case errors.Is(err, ErrInvalidInput):
		return ErrInvalidInput.Error()
	case errors.Is(err, ErrNotFound):
		return ErrNotFound.Error()
	case errors.Is(err, ErrInsufficientFunds):
		return ErrInsufficientFunds.Error()
	case errors.Is(err, ErrConflict):
		return ErrConflict.Error()
	case errors.Is(err, ErrTimeout):
		return "resource busy, retry later"
	case errors.Is(err, ErrStoreUnavailable):
		return "service temporarily unavailable"
	default:
		return "internal server error"
	}
}
