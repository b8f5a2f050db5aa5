// Package quota serialises reserve/release bookkeeping per session.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/orris-inc/quickpay/internal/domain/session"
	"github.com/orris-inc/quickpay/internal/shared/keylock"
	"github.com/orris-inc/quickpay/internal/shared/logger"
)

// TxRunner runs fn in a database transaction carried by ctx.
type TxRunner interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Enforcer applies single and daily limit checks. The in-process lock keeps two
// requests for one session from racing inside this process; the store's row lock
// covers other processes. Neither is held across network calls.
type Enforcer struct {
	store  session.Store
	tx     TxRunner
	locks  *keylock.KeyedMutex
	logger logger.Interface
}

func NewEnforcer(store session.Store, tx TxRunner, logger logger.Interface) *Enforcer {
	return &Enforcer{
		store:  store,
		tx:     tx,
		locks:  keylock.New(),
		logger: logger,
	}
}

// ReserveWith reserves quota and runs fn in the same transaction. If fn fails the
// reservation is rolled back with it.
func (e *Enforcer) ReserveWith(ctx context.Context, id common.Hash, amount uint64, asOf time.Time, fn func(ctx context.Context) error) (*session.Session, error) {
	unlock := e.locks.Lock(id.Hex())
	defer unlock()

	var updated *session.Session
	err := e.tx.RunInTransaction(ctx, func(txCtx context.Context) error {
		s, err := e.store.Reserve(txCtx, id, amount, asOf)
		if err != nil {
			return err
		}
		updated = s
		if fn != nil {
			return fn(txCtx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debugw("quota reserved",
		"session_id", id.Hex(),
		"amount", amount,
		"used_today", updated.UsedToday(),
		"daily_limit", updated.DailyLimit(),
	)
	return updated, nil
}

// ReleaseWith releases a reservation and runs fn (typically the ledger update
// recording why) in the same transaction.
func (e *Enforcer) ReleaseWith(ctx context.Context, id common.Hash, amount uint64, reservedOn time.Time, fn func(ctx context.Context) error) error {
	unlock := e.locks.Lock(id.Hex())
	defer unlock()

	var updated *session.Session
	err := e.tx.RunInTransaction(ctx, func(txCtx context.Context) error {
		s, err := e.store.Release(txCtx, id, amount, reservedOn)
		if err != nil {
			return fmt.Errorf("failed to release quota: %w", err)
		}
		updated = s
		if fn != nil {
			return fn(txCtx)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Debugw("quota released",
		"session_id", id.Hex(),
		"amount", amount,
		"used_today", updated.UsedToday(),
	)
	return nil
}
