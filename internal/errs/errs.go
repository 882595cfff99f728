package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation covers malformed input: non-positive amounts,
	// unsupported networks, currency mismatches.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized means the actor is not permitted to drive this
	// transition (wrong party for take/markpaid/release/cancel).
	ErrUnauthorized = errors.New("actor not permitted")

	// ErrNotFound covers unknown orders and ledger accounts.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds means a transfer would drive the sender
	// balance negative. No mutation occurs.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotInitialized means a required system account was never
	// provisioned. Fatal until an operator runs the bootstrap step.
	ErrNotInitialized = errors.New("system account not provisioned")

	// ErrExternalService marks a transient failure reaching an external
	// ledger backend. Eligible for retry with backoff.
	ErrExternalService = errors.New("external ledger service failure")
)

// Validationf wraps ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// InvalidStateError is returned when a transition is not legal from the
// order's current status. It names both sides so callers can render a
// specific message.
type InvalidStateError struct {
	Current  string
	Required string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid order state: currently %s, requires %s", e.Current, e.Required)
}

// ConfigurationError marks an operator misconfiguration, e.g. a fee
// percentage at or above 100%.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// PartialReleaseError reports a release whose first leg was applied but
// whose second leg failed. The order stays in RELEASE_PENDING and must be
// re-driven; it is never RELEASED until both legs completed.
type PartialReleaseError struct {
	OrderID      string
	ReleaseTxRef string
	Err          error
}

func (e *PartialReleaseError) Error() string {
	return fmt.Sprintf("partial release of order %s: buyer leg %s applied, fee leg failed: %v", e.OrderID, e.ReleaseTxRef, e.Err)
}

func (e *PartialReleaseError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrExternalService)
}
