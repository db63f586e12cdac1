// Package fault defines the error taxonomy shared by the domain packages.
// Every store and engine operation fails with one of these sentinels
// (usually wrapped via fmt.Errorf("%w: ...")), and the HTTP layer maps
// them to status codes in one place.
package fault

import (
	"errors"
	"net/http"
)

var (
	// ErrValidation - malformed input, missing required field or location.
	ErrValidation = errors.New("validation failed")
	// ErrConflict - lost a race for a resource, e.g. listing already reserved.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState - the record is in a state that forbids the operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidTransition - state machine rule violated.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrUnauthorized - actor not entitled to the action.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound - referenced listing or negotiation absent.
	ErrNotFound = errors.New("not found")
)

// HTTPStatus maps a domain error to the response code the API returns.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
