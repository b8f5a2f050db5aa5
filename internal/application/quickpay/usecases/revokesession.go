package usecases

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/orris-inc/quickpay/internal/application/quickpay/apperr"
	"github.com/orris-inc/quickpay/internal/application/relay/settlement"
	"github.com/orris-inc/quickpay/internal/domain/session"
	"github.com/orris-inc/quickpay/internal/shared/biztime"
	"github.com/orris-inc/quickpay/internal/shared/logger"
)

type RevokeSessionCommand struct {
	SessionID common.Hash
}

type RevokeSessionResult struct {
	Session *session.Session
	// OnChainActive is the contract's view after revocation, nil when unavailable.
	OnChainActive *bool
}

type RevokeSessionUseCase struct {
	store   session.Store
	cache   SessionLookup
	gateway settlement.Gateway
	logger  logger.Interface
	now     func() time.Time
}

func NewRevokeSessionUseCase(
	store session.Store,
	cache SessionLookup,
	gateway settlement.Gateway,
	logger logger.Interface,
) *RevokeSessionUseCase {
	return &RevokeSessionUseCase{
		store:   store,
		cache:   cache,
		gateway: gateway,
		logger:  logger,
		now:     biztime.NowUTC,
	}
}

// Execute deactivates the session. Revoking twice is not an error. Payments
// already accepted fail with session_inactive when the relayer reaches them.
func (uc *RevokeSessionUseCase) Execute(ctx context.Context, cmd RevokeSessionCommand) (*RevokeSessionResult, error) {
	s, err := uc.store.Revoke(ctx, cmd.SessionID, uc.now())
	if err != nil {
		return nil, apperr.Translate(err)
	}
	if uc.cache != nil {
		uc.cache.Invalidate(cmd.SessionID)
	}

	result := &RevokeSessionResult{Session: s}
	if uc.gateway != nil {
		onChain, err := uc.gateway.GetSession(ctx, cmd.SessionID)
		if err != nil {
			uc.logger.Warnw("failed to read on-chain session after revoke", "session_id", cmd.SessionID.Hex(), "error", err)
		} else if onChain != nil {
			active := onChain.Active
			result.OnChainActive = &active
		}
	}

	uc.logger.Infow("session revoked", "session_id", cmd.SessionID.Hex(), "revoked_at", s.RevokedAt())
	return result, nil
}
