package mappers

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/orris-inc/quickpay/internal/domain/quickpay"
	vo "github.com/orris-inc/quickpay/internal/domain/quickpay/valueobjects"
	"github.com/orris-inc/quickpay/internal/infrastructure/persistence/models"
)

func PaymentToModel(p *quickpay.Payment) *models.PaymentModel {
	model := &models.PaymentModel{
		ID:            p.ID(),
		PaymentID:     p.PaymentID(),
		SessionID:     p.SessionID().Hex(),
		ToAddress:     p.To().Hex(),
		Amount:        p.Amount(),
		Signature:     hexutil.Encode(p.Signature()),
		Nonce:         p.Nonce(),
		Status:        p.Status().String(),
		Reserved:      p.IsReserved(),
		ReservedOn:    p.ReservedOn(),
		TxHash:        p.TxHash(),
		BlockNumber:   p.BlockNumber(),
		FailureReason: truncate(p.FailureReason(), 255),
		RetryCount:    p.RetryCount(),
		NextAttemptAt: p.NextAttemptAt(),
		EnqueuedAt:    p.EnqueuedAt(),
		SubmittedAt:   p.SubmittedAt(),
		SettledAt:     p.SettledAt(),
		Version:       p.Version(),
		CreatedAt:     p.CreatedAt(),
		UpdatedAt:     p.UpdatedAt(),
	}

	if len(p.Metadata()) > 0 {
		model.Metadata = p.Metadata()
	}

	return model
}

func PaymentToDomain(model *models.PaymentModel) (*quickpay.Payment, error) {
	status := vo.PaymentStatus(model.Status)
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid payment status: %s", model.Status)
	}
	if !isHash(model.SessionID) {
		return nil, fmt.Errorf("invalid session id on payment %s", model.PaymentID)
	}
	sig, err := hexutil.Decode(model.Signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature on payment %s: %w", model.PaymentID, err)
	}

	metadata := map[string]interface{}(model.Metadata)
	if metadata == nil {
		metadata = make(map[string]interface{})
	}

	return quickpay.ReconstructPaymentWithParams(quickpay.PaymentReconstructParams{
		ID: model.ID,
		Request: quickpay.Request{
			SessionID: common.HexToHash(model.SessionID),
			PaymentID: model.PaymentID,
			To:        common.HexToAddress(model.ToAddress),
			Amount:    model.Amount,
			Signature: sig,
			Nonce:     model.Nonce,
		},
		Status:        status,
		Reserved:      model.Reserved,
		ReservedOn:    utcPtr(model.ReservedOn),
		TxHash:        model.TxHash,
		BlockNumber:   model.BlockNumber,
		FailureReason: model.FailureReason,
		RetryCount:    model.RetryCount,
		NextAttemptAt: utcPtr(model.NextAttemptAt),
		EnqueuedAt:    model.EnqueuedAt.UTC(),
		SubmittedAt:   utcPtr(model.SubmittedAt),
		SettledAt:     utcPtr(model.SettledAt),
		Metadata:      metadata,
		Version:       model.Version,
		CreatedAt:     model.CreatedAt.UTC(),
		UpdatedAt:     model.UpdatedAt.UTC(),
	}), nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func isHash(s string) bool {
	b, err := hexutil.Decode(s)
	return err == nil && len(b) == common.HashLength
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
