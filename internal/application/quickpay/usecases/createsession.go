package usecases

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/orris-inc/quickpay/internal/application/quickpay/apperr"
	"github.com/orris-inc/quickpay/internal/application/quickpay/signature"
	"github.com/orris-inc/quickpay/internal/application/relay/settlement"
	"github.com/orris-inc/quickpay/internal/domain/quickpay"
	"github.com/orris-inc/quickpay/internal/domain/session"
	"github.com/orris-inc/quickpay/internal/shared/biztime"
	sharedErrors "github.com/orris-inc/quickpay/internal/shared/errors"
	"github.com/orris-inc/quickpay/internal/shared/logger"
)

type CreateSessionCommand struct {
	// Owner must match the address recovered from OwnerSignature.
	Owner          common.Address
	Signer         common.Address
	SingleLimit    uint64
	DailyLimit     uint64
	ExpiryDays     uint32
	OwnerSignature []byte
}

type CreateSessionResult struct {
	Session *session.Session
	// Created is false when the same signed creation message was already registered.
	Created bool
}

type CreateSessionUseCase struct {
	store    session.Store
	verifier *signature.Verifier
	gateway  settlement.Gateway
	logger   logger.Interface
	now      func() time.Time
}

func NewCreateSessionUseCase(
	store session.Store,
	verifier *signature.Verifier,
	gateway settlement.Gateway,
	logger logger.Interface,
) *CreateSessionUseCase {
	return &CreateSessionUseCase{
		store:    store,
		verifier: verifier,
		gateway:  gateway,
		logger:   logger,
		now:      biztime.NowUTC,
	}
}

// SetClock replaces the time source.
func (uc *CreateSessionUseCase) SetClock(now func() time.Time) {
	uc.now = now
}

func (uc *CreateSessionUseCase) Execute(ctx context.Context, cmd CreateSessionCommand) (*CreateSessionResult, error) {
	if cmd.Owner == (common.Address{}) {
		return nil, sharedErrors.NewValidationError("owner address is required").
			WithReason(sharedErrors.ReasonInvalidRequest)
	}

	owner, err := uc.verifier.RecoverSessionOwner(signature.CreateSessionMessage{
		Signer:      cmd.Signer,
		SingleLimit: cmd.SingleLimit,
		DailyLimit:  cmd.DailyLimit,
		ExpiryDays:  cmd.ExpiryDays,
	}, cmd.OwnerSignature)
	if err != nil {
		uc.logger.Warnw("session creation signature rejected", "signer", cmd.Signer.Hex(), "error", err)
		return nil, apperr.Translate(err)
	}
	if cmd.Owner != owner {
		uc.logger.Warnw("session creation signed by another address",
			"claimed_owner", cmd.Owner.Hex(),
			"recovered_owner", owner.Hex(),
		)
		return nil, apperr.Translate(quickpay.ErrInvalidSignature, "signature does not belong to owner")
	}

	s, err := session.NewSession(session.CreateParams{
		Owner:           owner,
		Signer:          cmd.Signer,
		SingleLimit:     cmd.SingleLimit,
		DailyLimit:      cmd.DailyLimit,
		ExpiryDays:      cmd.ExpiryDays,
		OwnerSignature:  cmd.OwnerSignature,
		ProtocolVersion: uc.verifier.ProtocolVersion(),
	}, uc.now())
	if err != nil {
		return nil, sharedErrors.NewValidationError("invalid session parameters", err.Error()).
			WithReason(sharedErrors.ReasonInvalidRequest)
	}

	existing, err := uc.store.Get(ctx, s.ID())
	if err == nil {
		uc.logger.Infow("session already registered", "session_id", s.ID().Hex(), "owner", owner.Hex())
		return &CreateSessionResult{Session: existing}, nil
	}
	if !errors.Is(err, session.ErrSessionNotFound) {
		uc.logger.Errorw("failed to look up session", "session_id", s.ID().Hex(), "error", err)
		return nil, apperr.Translate(err)
	}

	if registrar, ok := uc.gateway.(settlement.SessionRegistrar); ok {
		txHash, err := registrar.RegisterSession(ctx, settlement.RegisterRequest{
			SessionID:      s.ID(),
			Owner:          owner,
			Signer:         cmd.Signer,
			SingleLimit:    new(big.Int).SetUint64(cmd.SingleLimit),
			DailyLimit:     new(big.Int).SetUint64(cmd.DailyLimit),
			Expiry:         s.Expiry(),
			OwnerSignature: cmd.OwnerSignature,
		})
		switch {
		case err == nil:
			s.SetRegistrationTx(txHash)
		case errors.Is(err, settlement.ErrRejected) && uc.adoptRegistered(ctx, s):
			// An earlier attempt registered the session but failed to persist it.
			uc.logger.Infow("session already registered on chain, persisting", "session_id", s.ID().Hex())
		default:
			uc.logger.Errorw("failed to register session on chain", "session_id", s.ID().Hex(), "error", err)
			return nil, apperr.Translate(fmt.Errorf("%w: register session: %v", quickpay.ErrSubmissionFailed, err))
		}
	}

	if err := uc.store.Create(ctx, s); err != nil {
		if errors.Is(err, session.ErrSessionExists) {
			existing, getErr := uc.store.Get(ctx, s.ID())
			if getErr == nil {
				return &CreateSessionResult{Session: existing}, nil
			}
		}
		uc.logger.Errorw("failed to persist session", "session_id", s.ID().Hex(), "error", err)
		return nil, apperr.Translate(err)
	}

	uc.logger.Infow("session created",
		"session_id", s.ID().Hex(),
		"owner", owner.Hex(),
		"signer", cmd.Signer.Hex(),
		"single_limit", cmd.SingleLimit,
		"daily_limit", cmd.DailyLimit,
		"expiry", s.Expiry(),
		"registration_tx", s.RegistrationTxHash(),
	)
	return &CreateSessionResult{Session: s, Created: true}, nil
}

// adoptRegistered reports whether the contract already holds s with the same
// owner, signer and limits. On a match s takes the on-chain expiry, which was
// fixed by the first registration.
func (uc *CreateSessionUseCase) adoptRegistered(ctx context.Context, s *session.Session) bool {
	onChain, err := uc.gateway.GetSession(ctx, s.ID())
	if err != nil {
		uc.logger.Warnw("cannot read on-chain session after rejected registration",
			"session_id", s.ID().Hex(), "error", err)
		return false
	}
	if !onChain.Active ||
		onChain.Owner != s.Owner() ||
		onChain.Signer != s.Signer() ||
		!equalsUint64(onChain.SingleLimit, s.SingleLimit()) ||
		!equalsUint64(onChain.DailyLimit, s.DailyLimit()) {
		uc.logger.Warnw("on-chain session does not match creation request", "session_id", s.ID().Hex())
		return false
	}
	s.AdoptExpiry(onChain.Expiry)
	return true
}

func equalsUint64(v *big.Int, want uint64) bool {
	return v != nil && v.IsUint64() && v.Uint64() == want
}
