package session

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Store is the durable session record. Reserve and Release run check-and-update
// under a row lock and return the session state after the change.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id common.Hash) (*Session, error)
	Reserve(ctx context.Context, id common.Hash, amount uint64, asOf time.Time) (*Session, error)
	Release(ctx context.Context, id common.Hash, amount uint64, reservedOn time.Time) (*Session, error)
	Revoke(ctx context.Context, id common.Hash, at time.Time) (*Session, error)
	ListByOwner(ctx context.Context, owner common.Address) ([]*Session, error)
}
