package usecases

import (
	"context"

	"github.com/orris-inc/quickpay/internal/application/quickpay/apperr"
	"github.com/orris-inc/quickpay/internal/application/relay"
	"github.com/orris-inc/quickpay/internal/domain/quickpay"
	"github.com/orris-inc/quickpay/internal/shared/logger"
)

type GetRelayerStatusUseCase struct {
	relayer RelayerStatusProvider
	ledger  quickpay.Repository
	logger  logger.Interface
}

// NewGetRelayerStatusUseCase reports the in-process relayer when there is one.
// With a nil relayer the queue figures come from the ledger's waiting payments.
func NewGetRelayerStatusUseCase(relayer RelayerStatusProvider, ledger quickpay.Repository, logger logger.Interface) *GetRelayerStatusUseCase {
	return &GetRelayerStatusUseCase{
		relayer: relayer,
		ledger:  ledger,
		logger:  logger,
	}
}

func (uc *GetRelayerStatusUseCase) Execute(ctx context.Context) (*relay.Status, error) {
	if uc.relayer != nil {
		st := uc.relayer.Status()
		return &st, nil
	}

	pending, err := uc.ledger.ListPending(ctx)
	if err != nil {
		uc.logger.Errorw("failed to list pending payments", "error", err)
		return nil, apperr.Translate(err)
	}

	st := &relay.Status{}
	for _, p := range pending {
		if !p.Status().IsWaiting() {
			st.InFlight++
			continue
		}
		st.QueueLength++
		if st.OldestPaymentTimestamp == nil || p.EnqueuedAt().Before(*st.OldestPaymentTimestamp) {
			enqueued := p.EnqueuedAt()
			st.OldestPaymentTimestamp = &enqueued
		}
	}
	return st, nil
}
