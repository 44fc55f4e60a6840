package apperrors

import "errors"

// Exchange-level sentinels. These are finer-grained than the top-level
// Kind taxonomy in errors.go; an ExchangeClient wraps each failure in the
// matching one of these, then ExchangeKind maps it to
// ErrExchangeTransient or ErrExchangePermanent for the retry/circuit-breaker
// layer and for callers that only care about the coarse Kind.
var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrOrderRejected         = errors.New("order rejected")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrExchangeNetwork       = errors.New("network error")
	ErrInvalidSymbol         = errors.New("invalid symbol")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrExchangeMaintenance   = errors.New("exchange maintenance")
	ErrOrderNotFound         = errors.New("order not found")
	ErrDuplicateOrder        = errors.New("duplicate order")
	ErrInvalidOrderParameter = errors.New("invalid order parameter")
	ErrSystemOverload        = errors.New("system overload")
	ErrTimestampOutOfBounds  = errors.New("timestamp out of bounds")
)

// transientExchangeErrors lists the exchange sentinels a retry policy should
// treat as transient. Everything else (bad params, auth, duplicate order) is
// permanent: retrying cannot change the outcome.
var transientExchangeErrors = []error{
	ErrRateLimitExceeded,
	ErrExchangeNetwork,
	ErrExchangeMaintenance,
	ErrSystemOverload,
}

// IsTransientExchangeError reports whether err is a retryable exchange
// failure, for use as a failsafe-go retry policy's predicate selecting which
// errors are retried.
func IsTransientExchangeError(err error) bool {
	for _, t := range transientExchangeErrors {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// permanentExchangeErrors lists the sentinels that mean retrying cannot
// change the outcome: spec.md §4.4's "persistent authentication or
// conformance error" that must transition a worker to failed rather than
// be retried.
var permanentExchangeErrors = []error{
	ErrAuthenticationFailed,
	ErrInvalidSymbol,
	ErrInvalidOrderParameter,
	ErrDuplicateOrder,
}

// IsPermanentExchangeError reports whether err is one of the known
// non-retryable exchange sentinels. Unlike ExchangeKind, this does not
// default to true for arbitrary errors (a risk rejection or a missing quote
// must not be treated as a worker-fatal exchange failure).
func IsPermanentExchangeError(err error) bool {
	for _, p := range permanentExchangeErrors {
		if errors.Is(err, p) {
			return true
		}
	}
	return false
}

// ExchangeKind maps an exchange-level sentinel to its coarse top-level Kind.
func ExchangeKind(err error) error {
	if err == nil {
		return nil
	}
	if IsTransientExchangeError(err) {
		return ErrExchangeTransient
	}
	return ErrExchangePermanent
}
