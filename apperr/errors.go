// Package apperr defines the error kinds shared by the hint workflow, the
// scoring recorder and the persistence layer. Callers wrap the sentinels with
// fmt.Errorf("%w: ...") and test them with errors.Is.
package apperr

import "errors"

var (
	// ErrNotFound means a request, hint, challenge, team or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState means the target is no longer in the state the action
	// expects, typically because another resolver won the race.
	ErrInvalidState = errors.New("invalid state")
	// ErrPermissionDenied means the actor lacks the required role.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInsufficientCurrency means no free hint is left and the balance does not cover the cost.
	ErrInsufficientCurrency = errors.New("insufficient hint currency")
	// ErrConcurrencyConflict means a row lock could not be acquired in time.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrTransientStore means the store was unavailable; the whole operation may be retried.
	ErrTransientStore = errors.New("transient store error")
)

// Retryable reports whether the caller may retry the whole operation with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrTransientStore)
}

// Expected reports whether err belongs to the taxonomy above. Anything else
// is an internal failure.
func Expected(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrInvalidState, ErrPermissionDenied,
		ErrInsufficientCurrency, ErrConcurrencyConflict, ErrTransientStore,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Message returns the text shown to end users for err.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrInvalidState):
		return "already resolved"
	case errors.Is(err, ErrPermissionDenied):
		return "only the team captain or an admin can do that"
	case errors.Is(err, ErrInsufficientCurrency):
		return "no free hints left and not enough hint currency"
	case errors.Is(err, ErrConcurrencyConflict), errors.Is(err, ErrTransientStore):
		return "temporarily unavailable, retry later"
	default:
		return "internal error"
	}
}
