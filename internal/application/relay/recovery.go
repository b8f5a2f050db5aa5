package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/orris-inc/quickpay/internal/domain/quickpay"
	vo "github.com/orris-inc/quickpay/internal/domain/quickpay/valueobjects"
)

// RecoveryResult summarises a Recover run.
type RecoveryResult struct {
	Pending   int `json:"pending"`
	Requeued  int `json:"requeued"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
	InFlight  int `json:"in_flight"`
}

// Recover rebuilds the working set from the ledger after a restart or a change
// of leadership. Payments left in Submitting are resolved against the chain
// before anything is resubmitted.
func (r *BatchRelayer) Recover(ctx context.Context) (*RecoveryResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrBatchInProgress
	}
	defer r.running.Store(false)

	pending, err := r.ledger.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}

	r.queue.Reset()
	r.mu.Lock()
	r.inFlight = make(map[string]inFlight)
	r.mu.Unlock()

	result := &RecoveryResult{Pending: len(pending)}
	for _, p := range pending {
		switch p.Status() {
		case vo.PaymentStatusSubmitting:
			r.recoverSubmitting(ctx, p, result)
		default:
			if err := r.queue.Enqueue(QueuedFromPayment(p)); err == nil {
				result.Requeued++
			}
		}
	}

	r.logger.Infow("relayer recovered pending payments",
		"pending", result.Pending,
		"requeued", result.Requeued,
		"confirmed", result.Confirmed,
		"failed", result.Failed,
		"retried", result.Retried,
		"in_flight", result.InFlight,
	)
	return result, nil
}

func (r *BatchRelayer) recoverSubmitting(ctx context.Context, p *quickpay.Payment, result *RecoveryResult) {
	if p.TxHash() == "" {
		// Either never broadcast, or broadcast but the hash was not persisted.
		settled, err := r.gateway.IsPaymentSettled(ctx, p.OnChainPaymentID())
		if err != nil {
			r.logger.Warnw("cannot query settlement during recovery", "payment_id", p.PaymentID(), "error", err)
			r.track(p)
			result.InFlight++
			return
		}
		if settled {
			if r.confirm(ctx, p, "", 0) == outcomeConfirmed {
				result.Confirmed++
			}
			return
		}
		// The contract rejects a second execution of the same payment id, so a
		// copy still in a mempool cannot double-settle.
		if err := p.RequeueAfterRecovery(); err != nil {
			return
		}
		if err := r.ledger.Update(ctx, p); err != nil {
			if !errors.Is(err, quickpay.ErrVersionConflict) {
				r.logger.Errorw("failed to requeue recovered payment", "payment_id", p.PaymentID(), "error", err)
			}
			return
		}
		if err := r.queue.Enqueue(QueuedFromPayment(p)); err == nil {
			result.Requeued++
		}
		return
	}

	o, _ := r.resolveSubmitting(ctx, p)
	switch o {
	case outcomeConfirmed:
		result.Confirmed++
	case outcomeFailed:
		result.Failed++
	case outcomeRetry:
		result.Retried++
	case outcomeInFlight:
		result.InFlight++
	}
}
