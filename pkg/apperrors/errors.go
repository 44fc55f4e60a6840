// Package apperrors defines the error-kind taxonomy shared across the
// engine manager, grid/strategy workers, indicator cache and risk core
// (spec.md §7). Each kind is a sentinel error; call sites wrap it with
// fmt.Errorf("%w: ...", apperrors.ErrX) so errors.Is still matches while
// carrying a human-readable detail.
package apperrors

import "errors"

// Kind-level sentinels. Use errors.Is(err, apperrors.ErrX) to classify an
// error returned from anywhere in the system.
var (
	// ErrValidation marks bad configuration or input.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks an unknown id (grid, strategy, backtest job, order).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists marks a duplicate id on a start/create operation.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInsufficientHistory marks an indicator/strategy call made before
	// its warm-up window has elapsed. Never surfaced to a user; callers
	// treat it as "no signal yet" (spec.md §7).
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrNoMarketData marks a missing best-bid/ask quote.
	ErrNoMarketData = errors.New("no market data")
	// ErrExchangeTransient marks a retryable exchange error.
	ErrExchangeTransient = errors.New("transient exchange error")
	// ErrExchangePermanent marks a non-retryable exchange error (auth,
	// malformed request); such errors are not retried.
	ErrExchangePermanent = errors.New("permanent exchange error")
	// ErrRiskRejected marks a submission refused by the risk gate.
	ErrRiskRejected = errors.New("risk rejected")
	// ErrKillSwitchActive marks a start operation refused while the global
	// kill switch is active.
	ErrKillSwitchActive = errors.New("kill switch active")
	// ErrTimeout marks an operation that exceeded its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrInternal marks a violation of a stated invariant; always surfaced
	// as a critical alert.
	ErrInternal = errors.New("internal error")
)

// Kind classifies an error into one of the named sentinels above, defaulting
// to ErrInternal when none match. Useful at an API boundary that needs to
// pick an HTTP status / log level from an opaque error value.
func Kind(err error) error {
	for _, k := range []error{
		ErrValidation, ErrNotFound, ErrAlreadyExists, ErrInsufficientHistory,
		ErrNoMarketData, ErrExchangeTransient, ErrExchangePermanent,
		ErrRiskRejected, ErrKillSwitchActive, ErrTimeout, ErrInternal,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}
