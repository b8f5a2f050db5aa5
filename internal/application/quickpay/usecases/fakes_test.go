package usecases

import (
	"context"
	"crypto/ecdsa"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/quickpay/internal/application/quickpay/signature"
	"github.com/orris-inc/quickpay/internal/application/relay"
	"github.com/orris-inc/quickpay/internal/application/relay/settlement"
	"github.com/orris-inc/quickpay/internal/domain/quickpay"
	"github.com/orris-inc/quickpay/internal/domain/session"
	sharedErrors "github.com/orris-inc/quickpay/internal/shared/errors"
)

var (
	testContract = common.HexToAddress("0x0000000000000000000000000000000000005e77")
	testPayee    = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testNow      = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
)

const testChainID = 84532

func reasonOf(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	appErr := sharedErrors.GetAppError(err)
	require.NotNil(t, appErr, "expected AppError, got %v", err)
	return appErr.Reason
}

// memStore is a session.Store and SessionLookup.
type memStore struct {
	mu          sync.Mutex
	sessions    map[common.Hash]*session.Session
	invalidated []common.Hash
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[common.Hash]*session.Session)}
}

func (m *memStore) Create(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID()]; ok {
		return session.ErrSessionExists
	}
	m.sessions[s.ID()] = s.Clone()
	return nil
}

func (m *memStore) Get(_ context.Context, id common.Hash) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *memStore) Reserve(_ context.Context, id common.Hash, amount uint64, asOf time.Time) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	if err := s.Reserve(amount, asOf); err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

func (m *memStore) Release(_ context.Context, id common.Hash, amount uint64, reservedOn time.Time) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	s.Release(amount, reservedOn)
	return s.Clone(), nil
}

func (m *memStore) Revoke(_ context.Context, id common.Hash, at time.Time) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	s.Revoke(at)
	return s.Clone(), nil
}

func (m *memStore) ListByOwner(_ context.Context, owner common.Address) ([]*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*session.Session
	for _, s := range m.sessions {
		if s.Owner() == owner {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (m *memStore) Invalidate(id common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, id)
}

func (m *memStore) usedToday(id common.Hash) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id].UsedToday()
}

// memQuota reserves through the store and undoes the reservation when fn fails,
// standing in for a transaction rollback.
type memQuota struct {
	store *memStore
}

func (q *memQuota) ReserveWith(ctx context.Context, id common.Hash, amount uint64, asOf time.Time, fn func(ctx context.Context) error) (*session.Session, error) {
	s, err := q.store.Reserve(ctx, id, amount, asOf)
	if err != nil {
		return nil, err
	}
	if fn != nil {
		if err := fn(ctx); err != nil {
			_, _ = q.store.Release(ctx, id, amount, asOf)
			return nil, err
		}
	}
	return s, nil
}

func (q *memQuota) ReleaseWith(ctx context.Context, id common.Hash, amount uint64, reservedOn time.Time, fn func(ctx context.Context) error) error {
	if fn != nil {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	_, err := q.store.Release(ctx, id, amount, reservedOn)
	return err
}

func clonePayment(p *quickpay.Payment) *quickpay.Payment {
	return quickpay.ReconstructPaymentWithParams(quickpay.PaymentReconstructParams{
		ID:            p.ID(),
		Request:       p.Request(),
		Status:        p.Status(),
		Reserved:      p.IsReserved(),
		ReservedOn:    p.ReservedOn(),
		TxHash:        p.TxHash(),
		BlockNumber:   p.BlockNumber(),
		FailureReason: p.FailureReason(),
		RetryCount:    p.RetryCount(),
		NextAttemptAt: p.NextAttemptAt(),
		EnqueuedAt:    p.EnqueuedAt(),
		SubmittedAt:   p.SubmittedAt(),
		SettledAt:     p.SettledAt(),
		Metadata:      p.Metadata(),
		Version:       p.Version(),
		CreatedAt:     p.CreatedAt(),
		UpdatedAt:     p.UpdatedAt(),
	})
}

type memLedger struct {
	mu   sync.Mutex
	rows map[string]*quickpay.Payment
	// createErr, when set, is returned by the next Create.
	createErr error
}

func newMemLedger() *memLedger {
	return &memLedger{rows: make(map[string]*quickpay.Payment)}
}

func (l *memLedger) Create(_ context.Context, p *quickpay.Payment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.createErr != nil {
		err := l.createErr
		l.createErr = nil
		return err
	}
	if _, ok := l.rows[p.PaymentID()]; ok {
		return quickpay.ErrDuplicatePaymentID
	}
	p.SetID(uint(len(l.rows) + 1))
	p.SetVersion(1)
	l.rows[p.PaymentID()] = clonePayment(p)
	return nil
}

func (l *memLedger) Update(_ context.Context, p *quickpay.Payment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, ok := l.rows[p.PaymentID()]
	if !ok {
		return quickpay.ErrPaymentNotFound
	}
	if stored.Version() != p.Version() {
		return quickpay.ErrVersionConflict
	}
	p.SetVersion(p.Version() + 1)
	l.rows[p.PaymentID()] = clonePayment(p)
	return nil
}

func (l *memLedger) GetByPaymentID(_ context.Context, paymentID string) (*quickpay.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.rows[paymentID]
	if !ok {
		return nil, quickpay.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (l *memLedger) list(filter func(*quickpay.Payment) bool) []*quickpay.Payment {
	var out []*quickpay.Payment
	for _, p := range l.rows {
		if filter(p) {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt().Before(out[j].EnqueuedAt()) })
	return out
}

func (l *memLedger) ListPending(context.Context) ([]*quickpay.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list(func(p *quickpay.Payment) bool { return p.Status().IsPending() }), nil
}

func (l *memLedger) ListWaiting(_ context.Context, _ []string, limit int) ([]*quickpay.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.list(func(p *quickpay.Payment) bool { return p.Status().IsWaiting() })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *memLedger) ListBySession(_ context.Context, sessionID common.Hash, limit int) ([]*quickpay.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.list(func(p *quickpay.Payment) bool { return p.SessionID() == sessionID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// put stores p as-is, bypassing Create.
func (l *memLedger) put(p *quickpay.Payment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p.SetVersion(1)
	l.rows[p.PaymentID()] = clonePayment(p)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) ExecuteWithSession(ctx context.Context, req settlement.ExecuteRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) GetSession(ctx context.Context, sessionID common.Hash) (*settlement.OnChainSession, error) {
	args := m.Called(ctx, sessionID)
	s, _ := args.Get(0).(*settlement.OnChainSession)
	return s, args.Error(1)
}

func (m *mockGateway) GetTransactionStatus(ctx context.Context, txHash string) (settlement.TxResult, error) {
	args := m.Called(ctx, txHash)
	return args.Get(0).(settlement.TxResult), args.Error(1)
}

func (m *mockGateway) IsPaymentSettled(ctx context.Context, paymentID common.Hash) (bool, error) {
	args := m.Called(ctx, paymentID)
	return args.Bool(0), args.Error(1)
}

type mockRegistrarGateway struct {
	mockGateway
}

func (m *mockRegistrarGateway) RegisterSession(ctx context.Context, req settlement.RegisterRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Allow(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

type mockRelayer struct {
	mock.Mock
}

func (m *mockRelayer) Status() relay.Status {
	args := m.Called()
	return args.Get(0).(relay.Status)
}

// sessionFixture is a registered session with a known signer key.
type sessionFixture struct {
	verifier  *signature.Verifier
	signerKey *ecdsa.PrivateKey
	session   *session.Session
}

func newSessionFixture(t *testing.T, store *memStore, single, daily uint64) *sessionFixture {
	t.Helper()
	signerKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	s, err := session.NewSession(session.CreateParams{
		Owner:           common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Signer:          crypto.PubkeyToAddress(signerKey.PublicKey),
		SingleLimit:     single,
		DailyLimit:      daily,
		ExpiryDays:      7,
		OwnerSignature:  signerKey.D.Bytes(),
		ProtocolVersion: signature.ProtocolVersion,
	}, testNow)
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), s))

	return &sessionFixture{
		verifier:  signature.NewVerifier(testChainID, testContract),
		signerKey: signerKey,
		session:   s,
	}
}

func (f *sessionFixture) request(t *testing.T, paymentID string, amount uint64) quickpay.Request {
	t.Helper()
	req := quickpay.Request{
		SessionID: f.session.ID(),
		PaymentID: paymentID,
		To:        testPayee,
		Amount:    amount,
		Nonce:     1,
	}
	digest, err := f.verifier.QuickPayDigest(req, signature.ProtocolVersion)
	require.NoError(t, err)
	req.Signature, err = signature.SignDigest(digest, f.signerKey)
	require.NoError(t, err)
	return req
}
