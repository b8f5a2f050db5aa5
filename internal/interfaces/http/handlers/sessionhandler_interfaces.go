package handlers

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/orris-inc/quickpay/internal/application/quickpay/dto"
	"github.com/orris-inc/quickpay/internal/application/quickpay/usecases"
)

// Use case interfaces for SessionHandler

type createSessionUseCase interface {
	Execute(ctx context.Context, cmd usecases.CreateSessionCommand) (*usecases.CreateSessionResult, error)
}

type getSessionUseCase interface {
	Execute(ctx context.Context, query usecases.GetSessionQuery) (*usecases.GetSessionResult, error)
}

type revokeSessionUseCase interface {
	Execute(ctx context.Context, cmd usecases.RevokeSessionCommand) (*usecases.RevokeSessionResult, error)
}

type listSessionPaymentsUseCase interface {
	ListSessionPayments(ctx context.Context, sessionID common.Hash, limit int) ([]*dto.PaymentDTO, error)
}
