package migration

import (
	"github.com/orris-inc/quickpay/internal/infrastructure/persistence/models"
)

func AutoMigrateModels() []interface{} {
	return []interface{}{
		&models.SessionModel{},
		&models.PaymentModel{},
	}
}
