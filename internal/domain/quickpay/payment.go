// Package quickpay models the payment ledger: one record per payment id, moving
// through Queued -> Submitting -> Confirmed, or via RetryPending to Failed.
package quickpay

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	vo "github.com/orris-inc/quickpay/internal/domain/quickpay/valueobjects"
	"github.com/orris-inc/quickpay/internal/shared/biztime"
)

const (
	// MaxPaymentIDLength bounds the caller-supplied idempotency key.
	MaxPaymentIDLength = 128

	// SignatureLength is r || s || v.
	SignatureLength = 65

	metadataAttempts = "attempts"
)

// Request is a signed quick-pay request as received from the caller.
type Request struct {
	SessionID common.Hash
	PaymentID string
	To        common.Address
	Amount    uint64
	Signature []byte
	Nonce     uint64
}

// Validate checks the request shape. It does not verify the signature.
func (r Request) Validate() error {
	if r.SessionID == (common.Hash{}) {
		return fmt.Errorf("session id is required")
	}
	if r.PaymentID == "" || len(r.PaymentID) > MaxPaymentIDLength {
		return fmt.Errorf("payment id must be 1-%d characters", MaxPaymentIDLength)
	}
	if r.To == (common.Address{}) {
		return fmt.Errorf("payee address is required")
	}
	if r.Amount == 0 {
		return fmt.Errorf("amount must be positive")
	}
	if len(r.Signature) != SignatureLength {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, SignatureLength, len(r.Signature))
	}
	return nil
}

// OnChainPaymentID returns the bytes32 form of a payment id used by the settlement contract.
func OnChainPaymentID(paymentID string) common.Hash {
	return crypto.Keccak256Hash([]byte(paymentID))
}

type Payment struct {
	id      uint
	request Request
	status  vo.PaymentStatus

	reserved   bool
	reservedOn *time.Time

	txHash        string
	blockNumber   *uint64
	failureReason string
	retryCount    int
	nextAttemptAt *time.Time

	enqueuedAt  time.Time
	submittedAt *time.Time
	settledAt   *time.Time

	metadata map[string]interface{}

	version   int // row version as last read or written
	createdAt time.Time
	updatedAt time.Time
}

// NewPayment creates a queued ledger record. reservedOn is the settlement day the
// synchronous path reserved quota on.
func NewPayment(req Request, enqueuedAt, reservedOn time.Time) (*Payment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	enqueuedAt = enqueuedAt.UTC()
	day := biztime.DayOf(reservedOn)
	return &Payment{
		request:    req,
		status:     vo.PaymentStatusQueued,
		reserved:   true,
		reservedOn: &day,
		enqueuedAt: enqueuedAt,
		metadata:   make(map[string]interface{}),
		createdAt:  enqueuedAt,
		updatedAt:  enqueuedAt,
	}, nil
}

// MarkReserved records a quota reservation taken by the relayer before a retry.
func (p *Payment) MarkReserved(asOf time.Time) error {
	if !p.status.IsWaiting() {
		return fmt.Errorf("%w: reserve in status %s", ErrInvalidTransition, p.status)
	}
	day := biztime.DayOf(asOf)
	p.reserved = true
	p.reservedOn = &day
	p.touch()
	return nil
}

// ReleaseReservation clears the reservation and returns what the caller must
// hand back to the session store.
func (p *Payment) ReleaseReservation() (amount uint64, reservedOn time.Time, ok bool) {
	if !p.reserved || p.reservedOn == nil {
		return 0, time.Time{}, false
	}
	reservedOn = *p.reservedOn
	p.reserved = false
	p.reservedOn = nil
	p.touch()
	return p.request.Amount, reservedOn, true
}

func (p *Payment) MarkSubmitting(now time.Time) error {
	if !p.status.IsWaiting() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.status, vo.PaymentStatusSubmitting)
	}
	now = now.UTC()
	p.status = vo.PaymentStatusSubmitting
	p.submittedAt = &now
	p.nextAttemptAt = nil
	p.txHash = ""
	p.touch()
	return nil
}

// RecordTx stores the hash of the transaction carrying the current attempt.
func (p *Payment) RecordTx(txHash string) error {
	if p.status != vo.PaymentStatusSubmitting {
		return fmt.Errorf("%w: record tx in status %s", ErrInvalidTransition, p.status)
	}
	p.txHash = txHash
	p.touch()
	return nil
}

// MarkConfirmed is accepted from any pending status: recovery may learn of a
// settlement for a payment that never left the queue state.
func (p *Payment) MarkConfirmed(txHash string, blockNumber uint64, now time.Time) error {
	if p.status == vo.PaymentStatusConfirmed {
		return nil
	}
	if !p.status.IsPending() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.status, vo.PaymentStatusConfirmed)
	}
	now = now.UTC()
	p.status = vo.PaymentStatusConfirmed
	if txHash != "" {
		p.txHash = txHash
	}
	if blockNumber > 0 {
		p.blockNumber = &blockNumber
	}
	p.settledAt = &now
	p.nextAttemptAt = nil
	p.failureReason = ""
	p.touch()
	return nil
}

// MarkRetryPending records a failed attempt and schedules the next one.
func (p *Payment) MarkRetryPending(reason string, nextAttemptAt time.Time) error {
	if p.status != vo.PaymentStatusSubmitting {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.status, vo.PaymentStatusRetryPending)
	}
	p.appendAttempt(reason)
	next := nextAttemptAt.UTC()
	p.status = vo.PaymentStatusRetryPending
	p.retryCount++
	p.failureReason = reason
	p.nextAttemptAt = &next
	p.txHash = ""
	p.touch()
	return nil
}

// RecordFailedAttempt counts an attempt that will not be retried.
func (p *Payment) RecordFailedAttempt(reason string) {
	p.appendAttempt(reason)
	p.retryCount++
	p.touch()
}

// DiscardTx moves the current transaction into the attempt history without
// counting a retry. Used when that transaction failed but the payment itself
// settled through an earlier one.
func (p *Payment) DiscardTx(reason string) {
	if p.txHash == "" {
		return
	}
	p.appendAttempt(reason)
	p.txHash = ""
	p.touch()
}

// AttemptTxHashes lists the transactions of earlier attempts, newest first.
func (p *Payment) AttemptTxHashes() []string {
	attempts, _ := p.metadata[metadataAttempts].([]interface{})
	hashes := make([]string, 0, len(attempts))
	for i := len(attempts) - 1; i >= 0; i-- {
		entry, _ := attempts[i].(map[string]interface{})
		if h, _ := entry["tx_hash"].(string); h != "" {
			hashes = append(hashes, h)
		}
	}
	return hashes
}

func (p *Payment) MarkFailed(reason string, now time.Time) error {
	if p.status.IsFinal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.status, vo.PaymentStatusFailed)
	}
	now = now.UTC()
	p.status = vo.PaymentStatusFailed
	p.failureReason = reason
	p.settledAt = &now
	p.nextAttemptAt = nil
	p.touch()
	return nil
}

// MarkExpired drops a payment that waited longer than the staleness threshold.
func (p *Payment) MarkExpired(reason string, now time.Time) error {
	if !p.status.IsWaiting() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.status, vo.PaymentStatusExpired)
	}
	now = now.UTC()
	p.status = vo.PaymentStatusExpired
	p.failureReason = reason
	p.settledAt = &now
	p.nextAttemptAt = nil
	p.touch()
	return nil
}

// Cancel withdraws a payment that has never been submitted. Retry-pending
// payments already reached the chain once and stay with the relayer.
func (p *Payment) Cancel(now time.Time) error {
	if p.status != vo.PaymentStatusQueued {
		return ErrNotCancellable
	}
	now = now.UTC()
	p.status = vo.PaymentStatusCancelled
	p.settledAt = &now
	p.nextAttemptAt = nil
	p.touch()
	return nil
}

// RequeueAfterRecovery returns a submitting payment whose transaction never
// reached the chain to the queue without counting an attempt.
func (p *Payment) RequeueAfterRecovery() error {
	if p.status != vo.PaymentStatusSubmitting {
		return fmt.Errorf("%w: requeue in status %s", ErrInvalidTransition, p.status)
	}
	p.status = vo.PaymentStatusQueued
	p.txHash = ""
	p.touch()
	return nil
}

// IsStale reports whether the payment has waited longer than staleAfter since acceptance.
func (p *Payment) IsStale(now time.Time, staleAfter time.Duration) bool {
	return staleAfter > 0 && now.Sub(p.enqueuedAt) > staleAfter
}

func (p *Payment) appendAttempt(reason string) {
	if p.metadata == nil {
		p.metadata = make(map[string]interface{})
	}
	attempts, _ := p.metadata[metadataAttempts].([]interface{})
	attempts = append(attempts, map[string]interface{}{
		"attempt": p.retryCount + 1,
		"tx_hash": p.txHash,
		"reason":  reason,
		"at":      biztime.FormatMetadataTime(biztime.NowUTC()),
	})
	p.metadata[metadataAttempts] = attempts
}

func (p *Payment) touch() {
	p.updatedAt = biztime.NowUTC()
}

func (p *Payment) ID() uint                         { return p.id }
func (p *Payment) Request() Request                 { return p.request }
func (p *Payment) SessionID() common.Hash           { return p.request.SessionID }
func (p *Payment) PaymentID() string                { return p.request.PaymentID }
func (p *Payment) OnChainPaymentID() common.Hash    { return OnChainPaymentID(p.request.PaymentID) }
func (p *Payment) To() common.Address               { return p.request.To }
func (p *Payment) Amount() uint64                   { return p.request.Amount }
func (p *Payment) Signature() []byte                { return p.request.Signature }
func (p *Payment) Nonce() uint64                    { return p.request.Nonce }
func (p *Payment) Status() vo.PaymentStatus         { return p.status }
func (p *Payment) IsReserved() bool                 { return p.reserved }
func (p *Payment) ReservedOn() *time.Time           { return p.reservedOn }
func (p *Payment) TxHash() string                   { return p.txHash }
func (p *Payment) BlockNumber() *uint64             { return p.blockNumber }
func (p *Payment) FailureReason() string            { return p.failureReason }
func (p *Payment) RetryCount() int                  { return p.retryCount }
func (p *Payment) NextAttemptAt() *time.Time        { return p.nextAttemptAt }
func (p *Payment) EnqueuedAt() time.Time            { return p.enqueuedAt }
func (p *Payment) SubmittedAt() *time.Time          { return p.submittedAt }
func (p *Payment) SettledAt() *time.Time            { return p.settledAt }
func (p *Payment) Metadata() map[string]interface{} { return p.metadata }
func (p *Payment) Version() int                     { return p.version }
func (p *Payment) CreatedAt() time.Time             { return p.createdAt }
func (p *Payment) UpdatedAt() time.Time             { return p.updatedAt }

// SetID sets the ledger row id after persistence.
func (p *Payment) SetID(id uint) {
	p.id = id
}

// SetVersion records the row version after a successful write.
func (p *Payment) SetVersion(v int) {
	p.version = v
}

// PaymentReconstructParams holds the persisted state of a payment.
type PaymentReconstructParams struct {
	ID            uint
	Request       Request
	Status        vo.PaymentStatus
	Reserved      bool
	ReservedOn    *time.Time
	TxHash        string
	BlockNumber   *uint64
	FailureReason string
	RetryCount    int
	NextAttemptAt *time.Time
	EnqueuedAt    time.Time
	SubmittedAt   *time.Time
	SettledAt     *time.Time
	Metadata      map[string]interface{}
	Version       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func ReconstructPaymentWithParams(p PaymentReconstructParams) *Payment {
	metadata := p.Metadata
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	return &Payment{
		id:            p.ID,
		request:       p.Request,
		status:        p.Status,
		reserved:      p.Reserved,
		reservedOn:    p.ReservedOn,
		txHash:        p.TxHash,
		blockNumber:   p.BlockNumber,
		failureReason: p.FailureReason,
		retryCount:    p.RetryCount,
		nextAttemptAt: p.NextAttemptAt,
		enqueuedAt:    p.EnqueuedAt,
		submittedAt:   p.SubmittedAt,
		settledAt:     p.SettledAt,
		metadata:      metadata,
		version:       p.Version,
		createdAt:     p.CreatedAt,
		updatedAt:     p.UpdatedAt,
	}
}
