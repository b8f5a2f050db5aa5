package usecases

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/orris-inc/quickpay/internal/application/quickpay/apperr"
	"github.com/orris-inc/quickpay/internal/application/relay/settlement"
	"github.com/orris-inc/quickpay/internal/domain/session"
	"github.com/orris-inc/quickpay/internal/shared/logger"
)

type GetSessionQuery struct {
	SessionID      common.Hash
	IncludeOnChain bool
}

type GetSessionResult struct {
	Session *session.Session
	OnChain *settlement.OnChainSession // nil when not requested or unavailable
}

type GetSessionUseCase struct {
	store   session.Store
	gateway settlement.Gateway
	logger  logger.Interface
}

func NewGetSessionUseCase(store session.Store, gateway settlement.Gateway, logger logger.Interface) *GetSessionUseCase {
	return &GetSessionUseCase{
		store:   store,
		gateway: gateway,
		logger:  logger,
	}
}

// Execute reads the store directly so usage figures are current.
func (uc *GetSessionUseCase) Execute(ctx context.Context, query GetSessionQuery) (*GetSessionResult, error) {
	s, err := uc.store.Get(ctx, query.SessionID)
	if err != nil {
		return nil, apperr.Translate(err)
	}

	result := &GetSessionResult{Session: s}
	if query.IncludeOnChain && uc.gateway != nil {
		onChain, err := uc.gateway.GetSession(ctx, query.SessionID)
		if err != nil {
			uc.logger.Warnw("failed to read on-chain session", "session_id", query.SessionID.Hex(), "error", err)
		} else {
			result.OnChain = onChain
		}
	}
	return result, nil
}
