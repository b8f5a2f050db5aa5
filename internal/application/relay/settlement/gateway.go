// Package settlement defines the relayer's contract with the on-chain
// settlement contract. Implementations live in infrastructure/settlement.
package settlement

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrRejected means the call definitely did not settle the payment: the
	// transaction was refused before broadcast or reverted.
	ErrRejected = errors.New("settlement rejected")

	// ErrAmbiguous means the outcome is unknown (timeout after broadcast). The
	// payment must be re-queried before any retry or compensation.
	ErrAmbiguous = errors.New("settlement outcome unknown")

	// ErrSessionNotRegistered is returned by GetSession for unknown sessions.
	ErrSessionNotRegistered = errors.New("session not registered on chain")
)

// TxStatus is the chain-side state of a submitted transaction.
type TxStatus string

const (
	TxStatusPending   TxStatus = "pending"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusReverted  TxStatus = "reverted"
	// TxStatusDropped means the node knows nothing about the transaction.
	// Right after broadcast this can be propagation lag, so callers apply a grace period.
	TxStatusDropped TxStatus = "dropped"
)

func (s TxStatus) IsFinal() bool {
	return s == TxStatusConfirmed || s == TxStatusReverted
}

// TxResult is the answer to a transaction status query.
type TxResult struct {
	Status      TxStatus
	BlockNumber uint64
}

// ExecuteRequest carries one session-authorized payment to the contract.
type ExecuteRequest struct {
	SessionID common.Hash
	To        common.Address
	Amount    *big.Int
	PaymentID common.Hash // keccak256 of the caller's payment id
	Signature []byte
}

// OnChainSession is the contract's view of a session.
type OnChainSession struct {
	Owner       common.Address
	Signer      common.Address
	SingleLimit *big.Int
	DailyLimit  *big.Int
	UsedToday   *big.Int
	Expiry      time.Time
	Active      bool
}

// Gateway is consumed by the batch relayer. Every call is a fallible,
// latency-variable network call.
type Gateway interface {
	// ExecuteWithSession broadcasts the payment and returns its transaction hash.
	// On ErrAmbiguous the hash is still returned when it is known.
	ExecuteWithSession(ctx context.Context, req ExecuteRequest) (string, error)
	GetSession(ctx context.Context, sessionID common.Hash) (*OnChainSession, error)
	GetTransactionStatus(ctx context.Context, txHash string) (TxResult, error)
	// IsPaymentSettled asks the contract whether paymentID was already executed.
	IsPaymentSettled(ctx context.Context, paymentID common.Hash) (bool, error)
}

// RegisterRequest carries an owner-signed session to the contract.
type RegisterRequest struct {
	SessionID      common.Hash
	Owner          common.Address
	Signer         common.Address
	SingleLimit    *big.Int
	DailyLimit     *big.Int
	Expiry         time.Time
	OwnerSignature []byte
}

// SessionRegistrar is implemented by gateways that can register sessions on chain.
type SessionRegistrar interface {
	RegisterSession(ctx context.Context, req RegisterRequest) (string, error)
}
