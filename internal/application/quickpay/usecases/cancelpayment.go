package usecases

import (
	"context"
	"errors"
	"time"

	"github.com/orris-inc/quickpay/internal/application/quickpay/apperr"
	"github.com/orris-inc/quickpay/internal/application/quickpay/dto"
	"github.com/orris-inc/quickpay/internal/domain/quickpay"
	"github.com/orris-inc/quickpay/internal/shared/biztime"
	"github.com/orris-inc/quickpay/internal/shared/logger"
)

type CancelPaymentUseCase struct {
	ledger     quickpay.Repository
	quota      QuotaLedger
	queue      PaymentQueue
	staleAfter time.Duration
	logger     logger.Interface
	now        func() time.Time
}

func NewCancelPaymentUseCase(
	ledger quickpay.Repository,
	quota QuotaLedger,
	queue PaymentQueue,
	staleAfter time.Duration,
	logger logger.Interface,
) *CancelPaymentUseCase {
	return &CancelPaymentUseCase{
		ledger:     ledger,
		quota:      quota,
		queue:      queue,
		staleAfter: staleAfter,
		logger:     logger,
		now:        biztime.NowUTC,
	}
}

// SetClock replaces the time source.
func (uc *CancelPaymentUseCase) SetClock(now func() time.Time) {
	uc.now = now
}

// Execute withdraws a payment that is still waiting for settlement and hands its
// quota back. Payments the relayer has started on, and stale payments the
// relayer is about to expire, cannot be cancelled.
func (uc *CancelPaymentUseCase) Execute(ctx context.Context, paymentID string) (*dto.PaymentDTO, error) {
	p, err := uc.ledger.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, apperr.Translate(err)
	}

	now := uc.now()
	if p.IsStale(now, uc.staleAfter) {
		return nil, apperr.Translate(quickpay.ErrNotCancellable, "payment is stale")
	}
	if err := p.Cancel(now); err != nil {
		return nil, apperr.Translate(err, "status="+p.Status().String())
	}

	persist := func(txCtx context.Context) error {
		return uc.ledger.Update(txCtx, p)
	}
	if amount, day, ok := p.ReleaseReservation(); ok {
		err = uc.quota.ReleaseWith(ctx, p.SessionID(), amount, day, persist)
	} else {
		err = persist(ctx)
	}
	if err != nil {
		if errors.Is(err, quickpay.ErrVersionConflict) {
			uc.logger.Infow("cancel lost race with relayer", "payment_id", paymentID)
			return nil, apperr.Translate(quickpay.ErrNotCancellable, "payment is being settled")
		}
		uc.logger.Errorw("failed to cancel payment", "payment_id", paymentID, "error", err)
		return nil, apperr.Translate(err)
	}

	if uc.queue != nil {
		uc.queue.Remove(paymentID)
	}

	uc.logger.Infow("payment cancelled",
		"payment_id", paymentID,
		"session_id", p.SessionID().Hex(),
		"amount", p.Amount(),
	)
	return dto.ToPaymentDTO(p), nil
}
