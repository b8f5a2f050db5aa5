package quickpay

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Repository is the durable payment ledger.
type Repository interface {
	// Create returns ErrDuplicatePaymentID when the payment id already exists.
	Create(ctx context.Context, p *Payment) error
	// Update persists p if the stored row is still at the version p was loaded with,
	// otherwise ErrVersionConflict.
	Update(ctx context.Context, p *Payment) error
	GetByPaymentID(ctx context.Context, paymentID string) (*Payment, error)
	// ListPending returns all non-terminal payments, oldest first.
	ListPending(ctx context.Context) ([]*Payment, error)
	// ListWaiting returns queued and retry-pending payments not in exclude, oldest first.
	ListWaiting(ctx context.Context, exclude []string, limit int) ([]*Payment, error)
	ListBySession(ctx context.Context, sessionID common.Hash, limit int) ([]*Payment, error)
}
