package usecases

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/orris-inc/quickpay/internal/application/relay"
	"github.com/orris-inc/quickpay/internal/domain/session"
)

// SessionLookup serves session reads on the submit path.
type SessionLookup interface {
	Get(ctx context.Context, id common.Hash) (*session.Session, error)
	// Invalidate drops any cached copy of the session.
	Invalidate(id common.Hash)
}

// RateLimiter throttles submissions per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// QuotaLedger reserves and releases daily quota, running fn in the same transaction.
type QuotaLedger interface {
	ReserveWith(ctx context.Context, id common.Hash, amount uint64, asOf time.Time, fn func(ctx context.Context) error) (*session.Session, error)
	ReleaseWith(ctx context.Context, id common.Hash, amount uint64, reservedOn time.Time, fn func(ctx context.Context) error) error
}

// PaymentQueue is the relayer working set, present when the relayer runs in process.
type PaymentQueue interface {
	Enqueue(qp relay.QueuedPayment) error
	Remove(paymentID string) bool
}

// RelayerStatusProvider reports the live relayer state.
type RelayerStatusProvider interface {
	Status() relay.Status
}
