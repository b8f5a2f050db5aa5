package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/orris-inc/quickpay/internal/domain/quickpay"
	vo "github.com/orris-inc/quickpay/internal/domain/quickpay/valueobjects"
	"github.com/orris-inc/quickpay/internal/infrastructure/persistence/mappers"
	"github.com/orris-inc/quickpay/internal/infrastructure/persistence/models"
	"github.com/orris-inc/quickpay/internal/shared/db"
	"github.com/orris-inc/quickpay/internal/shared/mapper"
)

// PaymentRepository implements quickpay.Repository on the payment ledger table.
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, p *quickpay.Payment) error {
	model := mappers.PaymentToModel(p)
	model.Version = 1

	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		if isDuplicate(err) {
			return quickpay.ErrDuplicatePaymentID
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}

	// Write back the auto-generated ID to the domain object
	p.SetID(model.ID)
	p.SetVersion(model.Version)
	return nil
}

// Update writes p only if the row is still at p's version, and bumps the version.
func (r *PaymentRepository) Update(ctx context.Context, p *quickpay.Payment) error {
	model := mappers.PaymentToModel(p)
	next := p.Version() + 1

	result := db.GetTxFromContext(ctx, r.db).
		Model(&models.PaymentModel{}).
		Where("payment_id = ? AND version = ?", model.PaymentID, p.Version()).
		Updates(map[string]interface{}{
			"status":          model.Status,
			"reserved":        model.Reserved,
			"reserved_on":     model.ReservedOn,
			"tx_hash":         model.TxHash,
			"block_number":    model.BlockNumber,
			"failure_reason":  model.FailureReason,
			"retry_count":     model.RetryCount,
			"next_attempt_at": model.NextAttemptAt,
			"submitted_at":    model.SubmittedAt,
			"settled_at":      model.SettledAt,
			"metadata":        model.Metadata,
			"version":         next,
			"updated_at":      model.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update payment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return quickpay.ErrVersionConflict
	}

	p.SetVersion(next)
	return nil
}

func (r *PaymentRepository) GetByPaymentID(ctx context.Context, paymentID string) (*quickpay.Payment, error) {
	var model models.PaymentModel

	if err := db.GetTxFromContext(ctx, r.db).
		Where("payment_id = ?", paymentID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, quickpay.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return mappers.PaymentToDomain(&model)
}

func (r *PaymentRepository) ListPending(ctx context.Context) ([]*quickpay.Payment, error) {
	var paymentModels []*models.PaymentModel

	if err := db.GetTxFromContext(ctx, r.db).
		Where("status IN ?", statusStrings(vo.PendingStatuses)).
		Order("enqueued_at ASC, id ASC").
		Find(&paymentModels).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}

	return toDomainPayments(paymentModels)
}

func (r *PaymentRepository) ListWaiting(ctx context.Context, exclude []string, limit int) ([]*quickpay.Payment, error) {
	var paymentModels []*models.PaymentModel

	query := db.GetTxFromContext(ctx, r.db).
		Where("status IN ?", statusStrings([]vo.PaymentStatus{vo.PaymentStatusQueued, vo.PaymentStatusRetryPending}))
	if len(exclude) > 0 {
		query = query.Where("payment_id NOT IN ?", exclude)
	}
	if err := query.
		Order("enqueued_at ASC, id ASC").
		Limit(limit).
		Find(&paymentModels).Error; err != nil {
		return nil, fmt.Errorf("failed to list waiting payments: %w", err)
	}

	return toDomainPayments(paymentModels)
}

// ListBySession returns the newest payments first.
func (r *PaymentRepository) ListBySession(ctx context.Context, sessionID common.Hash, limit int) ([]*quickpay.Payment, error) {
	var paymentModels []*models.PaymentModel

	if err := db.GetTxFromContext(ctx, r.db).
		Where("session_id = ?", sessionID.Hex()).
		Order("enqueued_at DESC, id DESC").
		Limit(limit).
		Find(&paymentModels).Error; err != nil {
		return nil, fmt.Errorf("failed to list session payments: %w", err)
	}

	return toDomainPayments(paymentModels)
}

func toDomainPayments(paymentModels []*models.PaymentModel) ([]*quickpay.Payment, error) {
	return mapper.MapSliceWithError(paymentModels, mappers.PaymentToDomain)
}

func statusStrings(statuses []vo.PaymentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = s.String()
	}
	return out
}
