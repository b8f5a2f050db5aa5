package usecases

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/orris-inc/quickpay/internal/application/quickpay/apperr"
	"github.com/orris-inc/quickpay/internal/application/quickpay/dto"
	"github.com/orris-inc/quickpay/internal/domain/quickpay"
	"github.com/orris-inc/quickpay/internal/shared/logger"
	"github.com/orris-inc/quickpay/internal/shared/mapper"
)

const (
	defaultSessionPaymentsLimit = 50
	maxSessionPaymentsLimit     = 200
)

type GetPaymentStatusUseCase struct {
	ledger quickpay.Repository
	logger logger.Interface
}

func NewGetPaymentStatusUseCase(ledger quickpay.Repository, logger logger.Interface) *GetPaymentStatusUseCase {
	return &GetPaymentStatusUseCase{
		ledger: ledger,
		logger: logger,
	}
}

func (uc *GetPaymentStatusUseCase) Execute(ctx context.Context, paymentID string) (*dto.PaymentDTO, error) {
	p, err := uc.ledger.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, apperr.Translate(err)
	}
	return dto.ToPaymentDTO(p), nil
}

// ListSessionPayments returns a session's most recent payments, newest first.
func (uc *GetPaymentStatusUseCase) ListSessionPayments(ctx context.Context, sessionID common.Hash, limit int) ([]*dto.PaymentDTO, error) {
	if limit <= 0 {
		limit = defaultSessionPaymentsLimit
	}
	if limit > maxSessionPaymentsLimit {
		limit = maxSessionPaymentsLimit
	}
	payments, err := uc.ledger.ListBySession(ctx, sessionID, limit)
	if err != nil {
		uc.logger.Errorw("failed to list session payments", "session_id", sessionID.Hex(), "error", err)
		return nil, apperr.Translate(err)
	}
	return mapper.MapSlice(payments, dto.ToPaymentDTO), nil
}
