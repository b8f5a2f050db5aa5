// Package session models a time-boxed, limit-bounded spending authorization
// tied to a signer key.
package session

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/orris-inc/quickpay/internal/shared/biztime"
)

// MaxExpiryDays bounds how far in the future a session may expire.
const MaxExpiryDays = 365

type Session struct {
	id     common.Hash
	owner  common.Address
	signer common.Address

	singleLimit uint64
	dailyLimit  uint64

	usedToday     uint64
	lastResetDate time.Time // settlement day of the last reset, UTC midnight

	expiry             time.Time
	active             bool
	protocolVersion    string
	registrationTxHash string
	revokedAt          *time.Time

	version   int
	createdAt time.Time
	updatedAt time.Time
}

// CreateParams holds the owner-signed creation terms.
type CreateParams struct {
	Owner           common.Address
	Signer          common.Address
	SingleLimit     uint64
	DailyLimit      uint64
	ExpiryDays      uint32
	OwnerSignature  []byte
	ProtocolVersion string
}

// DeriveSessionID maps an owner's signed creation message to a stable handle, so
// submitting the same signature twice resolves to the same session.
func DeriveSessionID(owner common.Address, ownerSignature []byte) common.Hash {
	return crypto.Keccak256Hash(owner.Bytes(), ownerSignature)
}

func NewSession(p CreateParams, now time.Time) (*Session, error) {
	if p.Owner == (common.Address{}) {
		return nil, fmt.Errorf("owner address is required")
	}
	if p.Signer == (common.Address{}) {
		return nil, fmt.Errorf("signer address is required")
	}
	if p.SingleLimit == 0 || p.DailyLimit == 0 || p.SingleLimit > p.DailyLimit {
		return nil, fmt.Errorf("%w: single=%d daily=%d", ErrInvalidLimits, p.SingleLimit, p.DailyLimit)
	}
	if p.ExpiryDays == 0 || p.ExpiryDays > MaxExpiryDays {
		return nil, fmt.Errorf("expiry days must be between 1 and %d", MaxExpiryDays)
	}
	if len(p.OwnerSignature) == 0 {
		return nil, fmt.Errorf("owner signature is required")
	}

	now = now.UTC()
	return &Session{
		id:              DeriveSessionID(p.Owner, p.OwnerSignature),
		owner:           p.Owner,
		signer:          p.Signer,
		singleLimit:     p.SingleLimit,
		dailyLimit:      p.DailyLimit,
		lastResetDate:   biztime.DayOf(now),
		expiry:          now.Add(time.Duration(p.ExpiryDays) * 24 * time.Hour),
		active:          true,
		protocolVersion: p.ProtocolVersion,
		createdAt:       now,
		updatedAt:       now,
	}, nil
}

// CheckUsable reports whether payments may be enforced against the session at now.
// A session past expiry is unusable even if it was never revoked.
func (s *Session) CheckUsable(now time.Time) error {
	if !s.active {
		return ErrSessionInactive
	}
	if !now.Before(s.expiry) {
		return ErrSessionExpired
	}
	return nil
}

// Reserve provisionally consumes amount from today's quota. Day rollover happens
// before the limit checks.
func (s *Session) Reserve(amount uint64, asOf time.Time) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if err := s.CheckUsable(asOf); err != nil {
		return err
	}

	s.rollover(asOf)

	if amount > s.singleLimit {
		return ErrInsufficientSingleLimit
	}
	// usedToday <= dailyLimit always holds, so the subtraction cannot underflow.
	if amount > s.dailyLimit-s.usedToday {
		return ErrInsufficientDailyLimit
	}

	s.usedToday += amount
	s.touch(asOf)
	return nil
}

// Release undoes a reservation made on reservedOn. A reservation from an earlier
// day was already wiped by rollover, so it is ignored. Returns whether usage changed.
func (s *Session) Release(amount uint64, reservedOn time.Time) bool {
	if amount == 0 || s.usedToday == 0 {
		return false
	}
	if !biztime.DayOf(reservedOn).Equal(s.lastResetDate) {
		return false
	}
	if amount > s.usedToday {
		amount = s.usedToday
	}
	s.usedToday -= amount
	s.touch(biztime.NowUTC())
	return true
}

// Revoke deactivates the session. Revoking twice is a no-op.
func (s *Session) Revoke(now time.Time) bool {
	if !s.active {
		return false
	}
	now = now.UTC()
	s.active = false
	s.revokedAt = &now
	s.touch(now)
	return true
}

// AdoptExpiry replaces the locally computed expiry with the one the contract
// recorded when the session was first registered.
func (s *Session) AdoptExpiry(expiry time.Time) {
	s.expiry = expiry.UTC()
}

// SetRegistrationTx records the on-chain registration transaction.
func (s *Session) SetRegistrationTx(txHash string) {
	s.registrationTxHash = txHash
	s.updatedAt = biztime.NowUTC()
}

// RemainingToday returns the quota still available on the settlement day of asOf.
func (s *Session) RemainingToday(asOf time.Time) uint64 {
	if biztime.DayOf(asOf).After(s.lastResetDate) {
		return s.dailyLimit
	}
	return s.dailyLimit - s.usedToday
}

func (s *Session) rollover(asOf time.Time) {
	day := biztime.DayOf(asOf)
	if day.After(s.lastResetDate) {
		s.usedToday = 0
		s.lastResetDate = day
	}
}

func (s *Session) touch(now time.Time) {
	s.updatedAt = now.UTC()
	s.version++
}

func (s *Session) ID() common.Hash            { return s.id }
func (s *Session) Owner() common.Address      { return s.owner }
func (s *Session) Signer() common.Address     { return s.signer }
func (s *Session) SingleLimit() uint64        { return s.singleLimit }
func (s *Session) DailyLimit() uint64         { return s.dailyLimit }
func (s *Session) UsedToday() uint64          { return s.usedToday }
func (s *Session) LastResetDate() time.Time   { return s.lastResetDate }
func (s *Session) Expiry() time.Time          { return s.expiry }
func (s *Session) IsActive() bool             { return s.active }
func (s *Session) ProtocolVersion() string    { return s.protocolVersion }
func (s *Session) RegistrationTxHash() string { return s.registrationTxHash }
func (s *Session) RevokedAt() *time.Time      { return s.revokedAt }
func (s *Session) Version() int               { return s.version }
func (s *Session) CreatedAt() time.Time       { return s.createdAt }
func (s *Session) UpdatedAt() time.Time       { return s.updatedAt }

// Clone returns a copy safe to hand out from caches.
func (s *Session) Clone() *Session {
	cp := *s
	if s.revokedAt != nil {
		t := *s.revokedAt
		cp.revokedAt = &t
	}
	return &cp
}

// ReconstructParams holds the persisted state of a session.
type ReconstructParams struct {
	ID                 common.Hash
	Owner              common.Address
	Signer             common.Address
	SingleLimit        uint64
	DailyLimit         uint64
	UsedToday          uint64
	LastResetDate      time.Time
	Expiry             time.Time
	Active             bool
	ProtocolVersion    string
	RegistrationTxHash string
	RevokedAt          *time.Time
	Version            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func ReconstructSession(p ReconstructParams) *Session {
	return &Session{
		id:                 p.ID,
		owner:              p.Owner,
		signer:             p.Signer,
		singleLimit:        p.SingleLimit,
		dailyLimit:         p.DailyLimit,
		usedToday:          p.UsedToday,
		lastResetDate:      p.LastResetDate.UTC(),
		expiry:             p.Expiry.UTC(),
		active:             p.Active,
		protocolVersion:    p.ProtocolVersion,
		registrationTxHash: p.RegistrationTxHash,
		revokedAt:          p.RevokedAt,
		version:            p.Version,
		createdAt:          p.CreatedAt,
		updatedAt:          p.UpdatedAt,
	}
}
