package mappers

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/orris-inc/quickpay/internal/domain/session"
	"github.com/orris-inc/quickpay/internal/infrastructure/persistence/models"
)

func SessionToModel(s *session.Session) *models.SessionModel {
	return &models.SessionModel{
		SessionID:          s.ID().Hex(),
		Owner:              s.Owner().Hex(),
		Signer:             s.Signer().Hex(),
		SingleLimit:        s.SingleLimit(),
		DailyLimit:         s.DailyLimit(),
		UsedToday:          s.UsedToday(),
		LastResetDate:      s.LastResetDate(),
		Expiry:             s.Expiry(),
		Active:             s.IsActive(),
		ProtocolVersion:    s.ProtocolVersion(),
		RegistrationTxHash: s.RegistrationTxHash(),
		RevokedAt:          s.RevokedAt(),
		Version:            s.Version(),
		CreatedAt:          s.CreatedAt(),
		UpdatedAt:          s.UpdatedAt(),
	}
}

func SessionToDomain(model *models.SessionModel) (*session.Session, error) {
	if !isHash(model.SessionID) {
		return nil, fmt.Errorf("invalid session id %q", model.SessionID)
	}
	if !common.IsHexAddress(model.Owner) || !common.IsHexAddress(model.Signer) {
		return nil, fmt.Errorf("invalid address on session %s", model.SessionID)
	}

	return session.ReconstructSession(session.ReconstructParams{
		ID:                 common.HexToHash(model.SessionID),
		Owner:              common.HexToAddress(model.Owner),
		Signer:             common.HexToAddress(model.Signer),
		SingleLimit:        model.SingleLimit,
		DailyLimit:         model.DailyLimit,
		UsedToday:          model.UsedToday,
		LastResetDate:      model.LastResetDate,
		Expiry:             model.Expiry,
		Active:             model.Active,
		ProtocolVersion:    model.ProtocolVersion,
		RegistrationTxHash: model.RegistrationTxHash,
		RevokedAt:          utcPtr(model.RevokedAt),
		Version:            model.Version,
		CreatedAt:          model.CreatedAt.UTC(),
		UpdatedAt:          model.UpdatedAt.UTC(),
	}), nil
}
