package dto

import (
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/orris-inc/quickpay/internal/domain/quickpay"
	"github.com/orris-inc/quickpay/internal/domain/session"
)

// SessionDTO is the API view of a session.
type SessionDTO struct {
	SessionID          string     `json:"session_id"`
	Owner              string     `json:"owner"`
	Signer             string     `json:"signer"`
	SingleLimit        uint64     `json:"single_limit"`
	DailyLimit         uint64     `json:"daily_limit"`
	UsedToday          uint64     `json:"used_today"`
	RemainingToday     uint64     `json:"remaining_today"`
	LastResetDate      string     `json:"last_reset_date"` // YYYY-MM-DD
	Expiry             time.Time  `json:"expiry"`
	Active             bool       `json:"active"`
	ProtocolVersion    string     `json:"protocol_version"`
	RegistrationTxHash string     `json:"registration_tx_hash,omitempty"`
	RevokedAt          *time.Time `json:"revoked_at,omitempty"`
	OnChainActive      *bool      `json:"on_chain_active,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// ToSessionDTO renders s as of now. Usage from an earlier settlement day reads as zero.
func ToSessionDTO(s *session.Session, now time.Time) *SessionDTO {
	used := s.UsedToday()
	remaining := s.RemainingToday(now)
	if remaining == s.DailyLimit() {
		used = 0
	}
	return &SessionDTO{
		SessionID:          s.ID().Hex(),
		Owner:              s.Owner().Hex(),
		Signer:             s.Signer().Hex(),
		SingleLimit:        s.SingleLimit(),
		DailyLimit:         s.DailyLimit(),
		UsedToday:          used,
		RemainingToday:     remaining,
		LastResetDate:      s.LastResetDate().Format("2006-01-02"),
		Expiry:             s.Expiry(),
		Active:             s.CheckUsable(now) == nil,
		ProtocolVersion:    s.ProtocolVersion(),
		RegistrationTxHash: s.RegistrationTxHash(),
		RevokedAt:          s.RevokedAt(),
		CreatedAt:          s.CreatedAt(),
	}
}

// PaymentDTO is the API view of a ledger record.
type PaymentDTO struct {
	PaymentID     string     `json:"payment_id"`
	SessionID     string     `json:"session_id"`
	To            string     `json:"to"`
	Amount        uint64     `json:"amount"`
	Nonce         uint64     `json:"nonce"`
	Status        string     `json:"status"`
	LedgerState   string     `json:"ledger_state"` // pending | confirmed | failed
	TxHash        string     `json:"tx_hash,omitempty"`
	BlockNumber   *uint64    `json:"block_number,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	RetryCount    int        `json:"retry_count"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	EnqueuedAt    time.Time  `json:"enqueued_at"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
}

func ToPaymentDTO(p *quickpay.Payment) *PaymentDTO {
	return &PaymentDTO{
		PaymentID:     p.PaymentID(),
		SessionID:     p.SessionID().Hex(),
		To:            p.To().Hex(),
		Amount:        p.Amount(),
		Nonce:         p.Nonce(),
		Status:        p.Status().String(),
		LedgerState:   p.Status().LedgerState(),
		TxHash:        p.TxHash(),
		BlockNumber:   p.BlockNumber(),
		FailureReason: p.FailureReason(),
		RetryCount:    p.RetryCount(),
		NextAttemptAt: p.NextAttemptAt(),
		EnqueuedAt:    p.EnqueuedAt(),
		SettledAt:     p.SettledAt(),
	}
}

// SubmitResult is returned when a quick-pay request is accepted.
type SubmitResult struct {
	PaymentID      string    `json:"payment_id"`
	Status         string    `json:"status"`
	SessionID      string    `json:"session_id"`
	RemainingToday uint64    `json:"remaining_today"`
	AcceptedAt     time.Time `json:"accepted_at"`
}

// EncodeSignature renders a signature as 0x-prefixed hex.
func EncodeSignature(sig []byte) string {
	return hexutil.Encode(sig)
}
