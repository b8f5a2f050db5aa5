package http

import (
	"gorm.io/gorm"

	"github.com/orris-inc/quickpay/internal/infrastructure/repository"
)

// repositories holds all repository instances.
type repositories struct {
	sessionRepo *repository.SessionRepository
	paymentRepo *repository.PaymentRepository
}

// newRepositories creates all repository instances from the database connection.
func newRepositories(db *gorm.DB) *repositories {
	return &repositories{
		sessionRepo: repository.NewSessionRepository(db),
		paymentRepo: repository.NewPaymentRepository(db),
	}
}
