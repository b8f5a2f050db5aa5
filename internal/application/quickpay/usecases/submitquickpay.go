package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orris-inc/quickpay/internal/application/quickpay/apperr"
	"github.com/orris-inc/quickpay/internal/application/quickpay/dto"
	"github.com/orris-inc/quickpay/internal/application/quickpay/signature"
	"github.com/orris-inc/quickpay/internal/application/relay"
	"github.com/orris-inc/quickpay/internal/domain/quickpay"
	"github.com/orris-inc/quickpay/internal/shared/biztime"
	sharedErrors "github.com/orris-inc/quickpay/internal/shared/errors"
	"github.com/orris-inc/quickpay/internal/shared/logger"
)

type SubmitQuickPayCommand struct {
	Request quickpay.Request
}

type SubmitQuickPayUseCase struct {
	sessions SessionLookup
	verifier *signature.Verifier
	quota    QuotaLedger
	ledger   quickpay.Repository
	queue    PaymentQueue
	limiter  RateLimiter
	logger   logger.Interface
	now      func() time.Time
}

// NewSubmitQuickPayUseCase builds the synchronous submit path. queue and limiter
// may be nil: without a queue the relayer picks accepted payments up from the ledger.
func NewSubmitQuickPayUseCase(
	sessions SessionLookup,
	verifier *signature.Verifier,
	quota QuotaLedger,
	ledger quickpay.Repository,
	queue PaymentQueue,
	limiter RateLimiter,
	logger logger.Interface,
) *SubmitQuickPayUseCase {
	return &SubmitQuickPayUseCase{
		sessions: sessions,
		verifier: verifier,
		quota:    quota,
		ledger:   ledger,
		queue:    queue,
		limiter:  limiter,
		logger:   logger,
		now:      biztime.NowUTC,
	}
}

// SetClock replaces the time source.
func (uc *SubmitQuickPayUseCase) SetClock(now func() time.Time) {
	uc.now = now
}

// Execute authorizes a quick-pay request and accepts it for settlement. On
// success the quota is reserved and the ledger holds a queued record; nothing
// has been sent to the chain yet.
func (uc *SubmitQuickPayUseCase) Execute(ctx context.Context, cmd SubmitQuickPayCommand) (*dto.SubmitResult, error) {
	req := cmd.Request
	if err := req.Validate(); err != nil {
		if errors.Is(err, quickpay.ErrInvalidSignature) {
			return nil, apperr.Translate(err)
		}
		return nil, sharedErrors.NewValidationError("invalid quick-pay request", err.Error()).
			WithReason(sharedErrors.ReasonInvalidRequest)
	}

	if uc.limiter != nil {
		allowed, err := uc.limiter.Allow(ctx, "quickpay:session:"+req.SessionID.Hex())
		if err != nil {
			uc.logger.Warnw("rate limiter unavailable, allowing request", "session_id", req.SessionID.Hex(), "error", err)
		} else if !allowed {
			return nil, sharedErrors.NewTooManyRequestsError("too many payment requests for session").
				WithReason(sharedErrors.ReasonRateLimited)
		}
	}

	s, err := uc.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, apperr.Translate(err)
	}

	if err := uc.verifier.VerifyQuickPay(req, s); err != nil {
		uc.logger.Warnw("quick-pay signature rejected",
			"session_id", req.SessionID.Hex(),
			"payment_id", req.PaymentID,
			"error", err,
		)
		return nil, apperr.Translate(err)
	}

	if existing, err := uc.ledger.GetByPaymentID(ctx, req.PaymentID); err == nil {
		return nil, uc.duplicate(existing)
	} else if !errors.Is(err, quickpay.ErrPaymentNotFound) {
		uc.logger.Errorw("failed to look up payment", "payment_id", req.PaymentID, "error", err)
		return nil, apperr.Translate(err)
	}

	now := uc.now()
	payment, err := quickpay.NewPayment(req, now, now)
	if err != nil {
		return nil, apperr.Translate(err)
	}

	updated, err := uc.quota.ReserveWith(ctx, req.SessionID, req.Amount, now, func(txCtx context.Context) error {
		return uc.ledger.Create(txCtx, payment)
	})
	if err != nil {
		if errors.Is(err, quickpay.ErrDuplicatePaymentID) {
			if existing, getErr := uc.ledger.GetByPaymentID(ctx, req.PaymentID); getErr == nil {
				return nil, uc.duplicate(existing)
			}
			return nil, apperr.Translate(err)
		}
		if apperr.IsBusinessRejection(err) {
			uc.logger.Infow("quick-pay rejected",
				"session_id", req.SessionID.Hex(),
				"payment_id", req.PaymentID,
				"amount", req.Amount,
				"reason", apperr.Reason(err),
			)
		} else {
			uc.logger.Errorw("failed to accept quick-pay", "payment_id", req.PaymentID, "error", err)
		}
		return nil, apperr.Translate(err)
	}

	if uc.queue != nil {
		if err := uc.queue.Enqueue(relay.QueuedFromPayment(payment)); err != nil && !errors.Is(err, quickpay.ErrDuplicatePaymentID) {
			// The ledger row is durable; the relayer refills from it.
			uc.logger.Warnw("failed to enqueue accepted payment", "payment_id", req.PaymentID, "error", err)
		}
	}

	uc.logger.Infow("quick-pay accepted",
		"session_id", req.SessionID.Hex(),
		"payment_id", req.PaymentID,
		"to", req.To.Hex(),
		"amount", req.Amount,
		"remaining_today", updated.RemainingToday(now),
	)

	return &dto.SubmitResult{
		PaymentID:      req.PaymentID,
		Status:         payment.Status().String(),
		SessionID:      req.SessionID.Hex(),
		RemainingToday: updated.RemainingToday(now),
		AcceptedAt:     now,
	}, nil
}

func (uc *SubmitQuickPayUseCase) duplicate(existing *quickpay.Payment) error {
	uc.logger.Infow("duplicate quick-pay submission",
		"payment_id", existing.PaymentID(),
		"status", existing.Status(),
	)
	return apperr.Translate(quickpay.ErrDuplicatePaymentID, fmt.Sprintf("status=%s", existing.Status()))
}
