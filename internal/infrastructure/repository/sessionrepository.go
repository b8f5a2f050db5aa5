package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"github.com/orris-inc/quickpay/internal/domain/session"
	"github.com/orris-inc/quickpay/internal/infrastructure/persistence/mappers"
	"github.com/orris-inc/quickpay/internal/infrastructure/persistence/models"
	"github.com/orris-inc/quickpay/internal/shared/db"
	sharedErrors "github.com/orris-inc/quickpay/internal/shared/errors"
	"github.com/orris-inc/quickpay/internal/shared/mapper"
)

// SessionRepository implements session.Store. Quota changes read the row with a
// lock and write it back in the same transaction.
type SessionRepository struct {
	db *gorm.DB
	tx *db.TransactionManager
}

func NewSessionRepository(gdb *gorm.DB) *SessionRepository {
	return &SessionRepository{
		db: gdb,
		tx: db.NewTransactionManager(gdb),
	}
}

func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	model := mappers.SessionToModel(s)
	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		if isDuplicate(err) {
			return session.ErrSessionExists
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id common.Hash) (*session.Session, error) {
	var model models.SessionModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("session_id = ?", id.Hex()).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return mappers.SessionToDomain(&model)
}

func (r *SessionRepository) Reserve(ctx context.Context, id common.Hash, amount uint64, asOf time.Time) (*session.Session, error) {
	return r.mutate(ctx, id, func(s *session.Session) (bool, error) {
		if err := s.Reserve(amount, asOf); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (r *SessionRepository) Release(ctx context.Context, id common.Hash, amount uint64, reservedOn time.Time) (*session.Session, error) {
	return r.mutate(ctx, id, func(s *session.Session) (bool, error) {
		return s.Release(amount, reservedOn), nil
	})
}

func (r *SessionRepository) Revoke(ctx context.Context, id common.Hash, at time.Time) (*session.Session, error) {
	return r.mutate(ctx, id, func(s *session.Session) (bool, error) {
		return s.Revoke(at), nil
	})
}

func (r *SessionRepository) ListByOwner(ctx context.Context, owner common.Address) ([]*session.Session, error) {
	var sessionModels []*models.SessionModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("owner = ?", owner.Hex()).
		Order("created_at DESC").
		Find(&sessionModels).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return mapper.MapSliceWithError(sessionModels, mappers.SessionToDomain)
}

// mutate loads the session under a row lock, applies fn and persists the result
// when fn reports a change. It joins the caller's transaction when there is one.
func (r *SessionRepository) mutate(ctx context.Context, id common.Hash, fn func(s *session.Session) (bool, error)) (*session.Session, error) {
	var result *session.Session
	err := r.tx.RunInTransaction(ctx, func(txCtx context.Context) error {
		tx := db.GetTxFromContext(txCtx, r.db)

		var model models.SessionModel
		if err := db.ForUpdate(tx).Where("session_id = ?", id.Hex()).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return session.ErrSessionNotFound
			}
			return fmt.Errorf("failed to lock session: %w", err)
		}

		s, err := mappers.SessionToDomain(&model)
		if err != nil {
			return err
		}
		changed, err := fn(s)
		if err != nil {
			return err
		}
		result = s
		if !changed {
			return nil
		}

		updated := mappers.SessionToModel(s)
		res := tx.Model(&models.SessionModel{}).
			Where("id = ?", model.ID).
			Updates(map[string]interface{}{
				"used_today":      updated.UsedToday,
				"last_reset_date": updated.LastResetDate,
				"active":          updated.Active,
				"revoked_at":      updated.RevokedAt,
				"version":         updated.Version,
				"updated_at":      updated.UpdatedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update session: %w", res.Error)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || sharedErrors.IsDuplicateError(err)
}
