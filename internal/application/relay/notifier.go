package relay

import (
	"context"
	"time"
)

// PaymentEvent reports a terminal payment outcome.
type PaymentEvent struct {
	PaymentID  string    `json:"payment_id"`
	SessionID  string    `json:"session_id"`
	Status     string    `json:"status"`
	TxHash     string    `json:"tx_hash,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	RetryCount int       `json:"retry_count"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier is told about every terminal outcome. Publishing is best-effort.
type Notifier interface {
	PublishPaymentEvent(ctx context.Context, event PaymentEvent) error
}

type nopNotifier struct{}

func (nopNotifier) PublishPaymentEvent(context.Context, PaymentEvent) error { return nil }

// NopNotifier discards events.
func NopNotifier() Notifier { return nopNotifier{} }
