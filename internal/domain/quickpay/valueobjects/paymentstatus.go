package valueobjects

// PaymentStatus is the ledger state of a quick-pay payment.
type PaymentStatus string

const (
	PaymentStatusQueued       PaymentStatus = "queued"
	PaymentStatusSubmitting   PaymentStatus = "submitting"
	PaymentStatusRetryPending PaymentStatus = "retry_pending"
	PaymentStatusConfirmed    PaymentStatus = "confirmed"
	PaymentStatusFailed       PaymentStatus = "failed"
	PaymentStatusExpired      PaymentStatus = "expired"
	PaymentStatusCancelled    PaymentStatus = "cancelled"
)

// PendingStatuses are the non-terminal states reloaded on recovery.
var PendingStatuses = []PaymentStatus{
	PaymentStatusQueued,
	PaymentStatusSubmitting,
	PaymentStatusRetryPending,
}

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusQueued, PaymentStatusSubmitting, PaymentStatusRetryPending,
		PaymentStatusConfirmed, PaymentStatusFailed, PaymentStatusExpired, PaymentStatusCancelled:
		return true
	default:
		return false
	}
}

// IsPending reports whether the payment still awaits a terminal outcome.
func (s PaymentStatus) IsPending() bool {
	return s == PaymentStatusQueued || s == PaymentStatusSubmitting || s == PaymentStatusRetryPending
}

// IsWaiting reports whether the payment sits in the queue, not on the wire.
func (s PaymentStatus) IsWaiting() bool {
	return s == PaymentStatusQueued || s == PaymentStatusRetryPending
}

func (s PaymentStatus) IsFinal() bool {
	return !s.IsPending()
}

// LedgerState collapses the status into the coarse pending/confirmed/failed view.
func (s PaymentStatus) LedgerState() string {
	switch {
	case s.IsPending():
		return "pending"
	case s == PaymentStatusConfirmed:
		return "confirmed"
	default:
		return "failed"
	}
}

func (s PaymentStatus) String() string {
	return string(s)
}
