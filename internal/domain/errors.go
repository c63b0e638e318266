package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrForbidden        = errors.New("forbidden")

	// validation; rejected before any store access
	ErrInvalidStatus  = errors.New("invalid status")
	ErrTerminalState  = errors.New("review is deleted")
	ErrMissingSubject = errors.New("missing subject id")
	ErrMissingField   = errors.New("missing required field")
	ErrInvalidField   = errors.New("invalid field")

	// transactional; retried up to the budget, then surfaced
	ErrConflict         = errors.New("transaction conflict")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Retryable reports whether a transaction failing with err may be re-run.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrStoreUnavailable)
}
