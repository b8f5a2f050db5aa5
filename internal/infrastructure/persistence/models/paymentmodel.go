package models

import (
	"time"

	"gorm.io/datatypes"
)

// PaymentModel is one row of the payment ledger.
type PaymentModel struct {
	ID            uint   `gorm:"primaryKey"`
	PaymentID     string `gorm:"uniqueIndex;size:128;not null"`
	SessionID     string `gorm:"size:66;not null;index:idx_payment_session_enqueued,priority:1"`
	ToAddress     string `gorm:"size:42;not null"`
	Amount        uint64 `gorm:"not null"`
	Signature     string `gorm:"size:132;not null"` // 0x-prefixed hex
	Nonce         uint64 `gorm:"not null;default:0"`
	Status        string `gorm:"size:20;not null;index:idx_payment_status_enqueued,priority:1"`
	Reserved      bool   `gorm:"not null;default:false"`
	ReservedOn    *time.Time
	TxHash        string `gorm:"size:66;index"`
	BlockNumber   *uint64
	FailureReason string `gorm:"size:255"`
	RetryCount    int    `gorm:"not null;default:0"`
	NextAttemptAt *time.Time
	EnqueuedAt    time.Time `gorm:"not null;index:idx_payment_status_enqueued,priority:2;index:idx_payment_session_enqueued,priority:2"`
	SubmittedAt   *time.Time
	SettledAt     *time.Time
	Metadata      datatypes.JSONMap
	Version       int `gorm:"not null;default:1"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (PaymentModel) TableName() string {
	return "quickpay_payments"
}
