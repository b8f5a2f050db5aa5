package settlement

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	relaysettlement "github.com/orris-inc/quickpay/internal/application/relay/settlement"
	"github.com/orris-inc/quickpay/internal/shared/logger"
)

// Outcome scripts how the mock chain treats one payment.
type Outcome string

const (
	// OutcomeConfirm mines the transaction on the first status query.
	OutcomeConfirm Outcome = "confirm"
	// OutcomeRevert mines the transaction as reverted.
	OutcomeRevert Outcome = "revert"
	// OutcomeReject refuses the call before broadcast.
	OutcomeReject Outcome = "reject"
	// OutcomeTimeout broadcasts but reports an unknown outcome; the
	// transaction still confirms.
	OutcomeTimeout Outcome = "timeout"
	// OutcomePending keeps the transaction pending for PendingPolls queries.
	OutcomePending Outcome = "pending"
	// OutcomeDrop broadcasts a transaction the chain then forgets.
	OutcomeDrop Outcome = "drop"
)

// Script is a scripted outcome for one on-chain payment id.
type Script struct {
	Outcome      Outcome
	PendingPolls int
}

type mockTx struct {
	paymentID    common.Hash
	sessionID    common.Hash
	amount       *big.Int
	outcome      Outcome
	pendingPolls int
	block        uint64
	final        relaysettlement.TxStatus
}

// MockGateway is a deterministic in-memory chain for development and tests.
// Payment ids are deduplicated like the real contract: executing a settled
// id reverts.
type MockGateway struct {
	mu       sync.Mutex
	sessions map[common.Hash]*relaysettlement.OnChainSession
	txs      map[string]*mockTx
	executed map[common.Hash]string
	scripts  map[common.Hash]Script
	nonce    uint64
	block    uint64
	now      func() time.Time
	logger   logger.Interface
}

var (
	_ relaysettlement.Gateway          = (*MockGateway)(nil)
	_ relaysettlement.SessionRegistrar = (*MockGateway)(nil)
)

func NewMockGateway(log logger.Interface) *MockGateway {
	return &MockGateway{
		sessions: make(map[common.Hash]*relaysettlement.OnChainSession),
		txs:      make(map[string]*mockTx),
		executed: make(map[common.Hash]string),
		scripts:  make(map[common.Hash]Script),
		block:    1,
		now:      time.Now,
		logger:   log,
	}
}

// SetScript fixes the outcome of the next execution of paymentID.
func (m *MockGateway) SetScript(paymentID common.Hash, s Script) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[paymentID] = s
}

// RevokeSession deactivates a registered session, as the owner would on chain.
func (m *MockGateway) RevokeSession(sessionID common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.Active = false
	}
}

// Executed returns the settling transaction of paymentID, if any.
func (m *MockGateway) Executed(paymentID common.Hash) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.executed[paymentID]
	return tx, ok
}

func (m *MockGateway) RegisterSession(_ context.Context, req relaysettlement.RegisterRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[req.SessionID]; ok {
		return "", fmt.Errorf("%w: session already registered", relaysettlement.ErrRejected)
	}
	m.sessions[req.SessionID] = &relaysettlement.OnChainSession{
		Owner:       req.Owner,
		Signer:      req.Signer,
		SingleLimit: new(big.Int).Set(req.SingleLimit),
		DailyLimit:  new(big.Int).Set(req.DailyLimit),
		UsedToday:   new(big.Int),
		Expiry:      req.Expiry.UTC(),
		Active:      true,
	}
	txHash := m.nextHash(req.SessionID)
	m.block++
	m.txs[txHash] = &mockTx{sessionID: req.SessionID, final: relaysettlement.TxStatusConfirmed, block: m.block}

	m.logger.Debugw("mock session registered", "session_id", req.SessionID.Hex(), "tx_hash", txHash)
	return txHash, nil
}

func (m *MockGateway) ExecuteWithSession(_ context.Context, req relaysettlement.ExecuteRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	script := m.scripts[req.PaymentID]
	delete(m.scripts, req.PaymentID)
	if script.Outcome == "" {
		script.Outcome = OutcomeConfirm
	}
	if script.Outcome == OutcomeReject {
		return "", fmt.Errorf("%w: scripted rejection", relaysettlement.ErrRejected)
	}

	txHash := m.nextHash(req.PaymentID)
	tx := &mockTx{
		paymentID:    req.PaymentID,
		sessionID:    req.SessionID,
		amount:       new(big.Int).Set(req.Amount),
		outcome:      script.Outcome,
		pendingPolls: script.PendingPolls,
	}
	// Contract-level checks decide the receipt, as a revert would on chain.
	if _, done := m.executed[req.PaymentID]; done || !m.sessionAllows(req) {
		tx.outcome = OutcomeRevert
	}
	m.txs[txHash] = tx

	m.logger.Debugw("mock payment broadcast",
		"payment_id", req.PaymentID.Hex(),
		"tx_hash", txHash,
		"outcome", tx.outcome,
	)
	if script.Outcome == OutcomeTimeout {
		return txHash, fmt.Errorf("%w: scripted timeout", relaysettlement.ErrAmbiguous)
	}
	return txHash, nil
}

// sessionAllows applies the contract's session checks. Sessions the mock has
// never seen are accepted so a restarted dev process keeps settling.
func (m *MockGateway) sessionAllows(req relaysettlement.ExecuteRequest) bool {
	s, ok := m.sessions[req.SessionID]
	if !ok {
		return true
	}
	if !s.Active || !m.now().Before(s.Expiry) {
		return false
	}
	if req.Amount.Cmp(s.SingleLimit) > 0 {
		return false
	}
	return new(big.Int).Add(s.UsedToday, req.Amount).Cmp(s.DailyLimit) <= 0
}

func (m *MockGateway) GetTransactionStatus(_ context.Context, txHash string) (relaysettlement.TxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[txHash]
	if !ok {
		return relaysettlement.TxResult{Status: relaysettlement.TxStatusDropped}, nil
	}
	if tx.final != "" {
		return relaysettlement.TxResult{Status: tx.final, BlockNumber: tx.block}, nil
	}

	switch tx.outcome {
	case OutcomeDrop:
		delete(m.txs, txHash)
		return relaysettlement.TxResult{Status: relaysettlement.TxStatusDropped}, nil
	case OutcomePending:
		if tx.pendingPolls > 0 {
			tx.pendingPolls--
			return relaysettlement.TxResult{Status: relaysettlement.TxStatusPending}, nil
		}
	}
	m.mine(txHash, tx)
	return relaysettlement.TxResult{Status: tx.final, BlockNumber: tx.block}, nil
}

// mine finalizes tx, re-checking dedup at inclusion time.
func (m *MockGateway) mine(txHash string, tx *mockTx) {
	m.block++
	tx.block = m.block
	if tx.outcome == OutcomeRevert {
		tx.final = relaysettlement.TxStatusReverted
		return
	}
	if _, done := m.executed[tx.paymentID]; done {
		tx.final = relaysettlement.TxStatusReverted
		return
	}
	tx.final = relaysettlement.TxStatusConfirmed
	m.executed[tx.paymentID] = txHash
	if s, ok := m.sessions[tx.sessionID]; ok {
		s.UsedToday = new(big.Int).Add(s.UsedToday, tx.amount)
	}
}

func (m *MockGateway) GetSession(_ context.Context, sessionID common.Hash) (*relaysettlement.OnChainSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, relaysettlement.ErrSessionNotRegistered
	}
	cp := *s
	cp.SingleLimit = new(big.Int).Set(s.SingleLimit)
	cp.DailyLimit = new(big.Int).Set(s.DailyLimit)
	cp.UsedToday = new(big.Int).Set(s.UsedToday)
	return &cp, nil
}

// IsPaymentSettled settles any broadcast-but-unqueried transaction for the id
// first, so a timed-out broadcast is visible to reconciliation.
func (m *MockGateway) IsPaymentSettled(_ context.Context, paymentID common.Hash) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.executed[paymentID]; ok {
		return true, nil
	}
	for hash, tx := range m.txs {
		if tx.paymentID == paymentID && tx.final == "" && tx.outcome == OutcomeTimeout {
			m.mine(hash, tx)
		}
	}
	_, ok := m.executed[paymentID]
	return ok, nil
}

func (m *MockGateway) nextHash(seed common.Hash) string {
	m.nonce++
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], m.nonce)
	return crypto.Keccak256Hash(seed.Bytes(), n[:]).Hex()
}
