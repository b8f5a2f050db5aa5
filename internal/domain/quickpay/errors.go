package quickpay

import "errors"

var (
	// ErrInvalidSignature is returned for a malformed signature or one not made by the session signer.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrDuplicatePaymentID is returned when the payment id already has a ledger record.
	ErrDuplicatePaymentID = errors.New("duplicate payment id")

	// ErrPaymentNotFound is returned when no ledger record exists for the payment id.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrVersionConflict is returned when the ledger row changed since it was read.
	ErrVersionConflict = errors.New("payment was modified concurrently")

	// ErrNotCancellable is returned when cancel is requested for a payment no longer waiting in the queue.
	ErrNotCancellable = errors.New("payment can no longer be cancelled")

	// ErrSubmissionFailed marks a retryable on-chain submission failure.
	ErrSubmissionFailed = errors.New("on-chain submission failed")

	// ErrRetryExhausted marks a payment that failed after its retry budget.
	ErrRetryExhausted = errors.New("retry budget exhausted")

	// ErrStaleRequestDropped marks a payment evicted for waiting too long.
	ErrStaleRequestDropped = errors.New("stale request dropped")

	// ErrInvalidTransition is returned when a status change violates the payment state machine.
	ErrInvalidTransition = errors.New("invalid payment status transition")
)
