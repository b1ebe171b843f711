// Package apperr defines the error taxonomy shared by all services. Handlers
// map these sentinels to HTTP status codes with errors.Is; the retry helper
// uses them to separate transient failures from permanent ones.
package apperr

import "errors"

var (
	// ErrInvalidMilestone covers a milestone index out of range, an archived
	// milestone, or an operation that is illegal in the milestone's current
	// state (e.g. proof against a completed milestone).
	ErrInvalidMilestone = errors.New("invalid milestone")

	// ErrInvalidArgument covers malformed input: empty proofs, bad addresses,
	// unparseable amounts. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds means the custody signer's token balance cannot
	// cover the milestone amount. No transfer is attempted.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrRateLimited is transient; callers retry it with bounded backoff.
	ErrRateLimited = errors.New("rate limited")

	// ErrTransactionReverted is terminal for the attempt. The milestone stays
	// completed and unpaid, so a later release is safe.
	ErrTransactionReverted = errors.New("transaction reverted")

	// ErrTransactionTimeout means confirmation was not observed in time. The
	// transfer may still land; the outcome is unknown, not failed, and the
	// reconciler owns settling it.
	ErrTransactionTimeout = errors.New("transaction confirmation timeout")

	// ErrDuplicatePayment is the idempotency guard: a transfer hash is already
	// recorded for the milestone, confirmed or still in flight.
	ErrDuplicatePayment = errors.New("duplicate payment")

	// ErrUpstreamUnavailable is a collaborator/network failure. Reads retry it;
	// submissions must not, because the outcome may be ambiguous.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
