package handlers

import (
	"context"

	"github.com/orris-inc/quickpay/internal/application/quickpay/dto"
	"github.com/orris-inc/quickpay/internal/application/quickpay/usecases"
	"github.com/orris-inc/quickpay/internal/application/relay"
)

// Use case interfaces for QuickPayHandler

type submitQuickPayUseCase interface {
	Execute(ctx context.Context, cmd usecases.SubmitQuickPayCommand) (*dto.SubmitResult, error)
}

type getPaymentStatusUseCase interface {
	Execute(ctx context.Context, paymentID string) (*dto.PaymentDTO, error)
}

type cancelPaymentUseCase interface {
	Execute(ctx context.Context, paymentID string) (*dto.PaymentDTO, error)
}

type getRelayerStatusUseCase interface {
	Execute(ctx context.Context) (*relay.Status, error)
}
