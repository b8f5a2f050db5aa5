package models

import "time"

// SessionModel represents the database persistence model for quick-pay sessions.
type SessionModel struct {
	ID                 uint      `gorm:"primaryKey"`
	SessionID          string    `gorm:"uniqueIndex;size:66;not null"`
	Owner              string    `gorm:"size:42;not null;index"`
	Signer             string    `gorm:"size:42;not null"`
	SingleLimit        uint64    `gorm:"not null"`
	DailyLimit         uint64    `gorm:"not null"`
	UsedToday          uint64    `gorm:"not null;default:0"`
	LastResetDate      time.Time `gorm:"not null"`
	Expiry             time.Time `gorm:"not null;index"`
	Active             bool      `gorm:"not null;default:true"`
	ProtocolVersion    string    `gorm:"size:16;not null"`
	RegistrationTxHash string    `gorm:"size:66"`
	RevokedAt          *time.Time
	Version            int `gorm:"not null;default:1"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TableName specifies the table name for GORM
func (SessionModel) TableName() string {
	return "quickpay_sessions"
}
