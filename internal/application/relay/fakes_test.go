package relay

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/quickpay/internal/application/relay/settlement"
	"github.com/orris-inc/quickpay/internal/domain/quickpay"
	"github.com/orris-inc/quickpay/internal/domain/session"
	"github.com/orris-inc/quickpay/internal/shared/logger"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func clonePayment(p *quickpay.Payment) *quickpay.Payment {
	meta := make(map[string]interface{}, len(p.Metadata()))
	for k, v := range p.Metadata() {
		meta[k] = v
	}
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
		Metadata:      meta,
		Version:       p.Version(),
		CreatedAt:     p.CreatedAt(),
		UpdatedAt:     p.UpdatedAt(),
	})
}

// memLedger mirrors the repository's optimistic version check.
type memLedger struct {
	mu   sync.Mutex
	rows map[string]*quickpay.Payment
}

func newMemLedger() *memLedger {
	return &memLedger{rows: make(map[string]*quickpay.Payment)}
}

func (l *memLedger) Create(_ context.Context, p *quickpay.Payment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
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

func (l *memLedger) sorted(filter func(*quickpay.Payment) bool) []*quickpay.Payment {
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
	return l.sorted(func(p *quickpay.Payment) bool { return p.Status().IsPending() }), nil
}

func (l *memLedger) ListWaiting(_ context.Context, exclude []string, limit int) ([]*quickpay.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	out := l.sorted(func(p *quickpay.Payment) bool { return p.Status().IsWaiting() && !skip[p.PaymentID()] })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *memLedger) ListBySession(_ context.Context, sessionID common.Hash, _ int) ([]*quickpay.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sorted(func(p *quickpay.Payment) bool { return p.SessionID() == sessionID }), nil
}

func (l *memLedger) mustGet(t *testing.T, paymentID string) *quickpay.Payment {
	t.Helper()
	p, err := l.GetByPaymentID(context.Background(), paymentID)
	require.NoError(t, err)
	return p
}

// memSessions is both the session reader and the quota ledger.
type memSessions struct {
	mu       sync.Mutex
	sessions map[common.Hash]*session.Session
}

func (m *memSessions) Get(_ context.Context, id common.Hash) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *memSessions) ReserveWith(ctx context.Context, id common.Hash, amount uint64, asOf time.Time, fn func(ctx context.Context) error) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	cp := s.Clone()
	if err := cp.Reserve(amount, asOf); err != nil {
		return nil, err
	}
	if fn != nil {
		if err := fn(ctx); err != nil {
			return nil, err
		}
	}
	m.sessions[id] = cp
	return cp.Clone(), nil
}

func (m *memSessions) ReleaseWith(ctx context.Context, id common.Hash, amount uint64, reservedOn time.Time, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := m.sessions[id].Clone()
	cp.Release(amount, reservedOn)
	if fn != nil {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	m.sessions[id] = cp
	return nil
}

func (m *memSessions) usedToday(id common.Hash) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id].UsedToday()
}

func (m *memSessions) revoke(id common.Hash, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id].Revoke(at)
}

type behaviour int

const (
	behaveConfirm behaviour = iota
	behaveRevert
	behaveTimeout // broadcast, outcome unknown, stays pending
	behaveReject  // refused before broadcast
)

// fakeGateway scripts one behaviour per attempt; the last one repeats.
type fakeGateway struct {
	mu       sync.Mutex
	scripts  map[string][]behaviour
	txs      map[string]settlement.TxResult
	txOwner  map[string]common.Hash
	settled  map[common.Hash]bool
	executed map[common.Hash]int
	seq      int
	block    uint64
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		scripts:  make(map[string][]behaviour),
		txs:      make(map[string]settlement.TxResult),
		txOwner:  make(map[string]common.Hash),
		settled:  make(map[common.Hash]bool),
		executed: make(map[common.Hash]int),
		block:    100,
	}
}

func (g *fakeGateway) script(paymentID string, b ...behaviour) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[quickpay.OnChainPaymentID(paymentID).Hex()] = b
}

func (g *fakeGateway) ExecuteWithSession(_ context.Context, req settlement.ExecuteRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := req.PaymentID.Hex()
	b := behaveConfirm
	if steps := g.scripts[key]; len(steps) > 0 {
		b = steps[0]
		if len(steps) > 1 {
			g.scripts[key] = steps[1:]
		}
	}
	g.executed[req.PaymentID]++
	if b == behaveReject {
		return "", fmt.Errorf("%w: nonce too low", settlement.ErrRejected)
	}

	g.seq++
	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("tx-%d", g.seq))).Hex()
	g.txOwner[hash] = req.PaymentID
	switch b {
	case behaveConfirm:
		if g.settled[req.PaymentID] {
			g.txs[hash] = settlement.TxResult{Status: settlement.TxStatusReverted}
			break
		}
		g.block++
		g.txs[hash] = settlement.TxResult{Status: settlement.TxStatusConfirmed, BlockNumber: g.block}
		g.settled[req.PaymentID] = true
	case behaveRevert:
		g.txs[hash] = settlement.TxResult{Status: settlement.TxStatusReverted}
	case behaveTimeout:
		g.txs[hash] = settlement.TxResult{Status: settlement.TxStatusPending}
		return hash, fmt.Errorf("%w: context deadline exceeded", settlement.ErrAmbiguous)
	}
	return hash, nil
}

// mine resolves a pending transaction as confirmed.
func (g *fakeGateway) mine(txHash string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.block++
	g.txs[txHash] = settlement.TxResult{Status: settlement.TxStatusConfirmed, BlockNumber: g.block}
	g.settled[g.txOwner[txHash]] = true
}

func (g *fakeGateway) GetSession(context.Context, common.Hash) (*settlement.OnChainSession, error) {
	return nil, settlement.ErrSessionNotRegistered
}

func (g *fakeGateway) GetTransactionStatus(_ context.Context, txHash string) (settlement.TxResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	res, ok := g.txs[txHash]
	if !ok {
		return settlement.TxResult{Status: settlement.TxStatusDropped}, nil
	}
	return res, nil
}

func (g *fakeGateway) IsPaymentSettled(_ context.Context, paymentID common.Hash) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.settled[paymentID], nil
}

func (g *fakeGateway) executions(paymentID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.executed[quickpay.OnChainPaymentID(paymentID)]
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []PaymentEvent
}

func (n *recordingNotifier) PublishPaymentEvent(_ context.Context, e PaymentEvent) error {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) statuses() map[string]string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]string, len(n.events))
	for _, e := range n.events {
		out[e.PaymentID] = e.Status
	}
	return out
}

type harness struct {
	relayer   *BatchRelayer
	ledger    *memLedger
	sessions  *memSessions
	gateway   *fakeGateway
	queue     *PaymentQueue
	notifier  *recordingNotifier
	clock     *fakeClock
	sessionID common.Hash
}

func newHarness(t *testing.T, single, daily uint64) *harness {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}

	s, err := session.NewSession(session.CreateParams{
		Owner:          common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Signer:         common.HexToAddress("0x2222222222222222222222222222222222222222"),
		SingleLimit:    single,
		DailyLimit:     daily,
		ExpiryDays:     30,
		OwnerSignature: []byte(t.Name()),
	}, clock.Now())
	require.NoError(t, err)

	h := &harness{
		ledger:    newMemLedger(),
		sessions:  &memSessions{sessions: map[common.Hash]*session.Session{s.ID(): s}},
		gateway:   newFakeGateway(),
		queue:     NewPaymentQueue(10 * time.Minute),
		notifier:  &recordingNotifier{},
		clock:     clock,
		sessionID: s.ID(),
	}
	h.relayer = NewBatchRelayer(
		h.ledger, h.sessions, h.sessions, h.gateway, h.queue,
		RetryPolicy{MaxRetries: 3, InitialInterval: time.Second, MaxInterval: 10 * time.Second, Multiplier: 2},
		h.notifier,
		Config{
			BatchSize:           10,
			Workers:             2,
			SubmitTimeout:       time.Second,
			ConfirmTimeout:      50 * time.Millisecond,
			ConfirmPollInterval: 5 * time.Millisecond,
			DroppedAfter:        time.Hour,
		},
		logger.NewNop(),
	)
	h.relayer.SetClock(clock.Now)
	return h
}

// accept mimics the synchronous submit path: reserve, write the ledger, enqueue.
func (h *harness) accept(t *testing.T, paymentID string, amount uint64) {
	t.Helper()
	now := h.clock.Now()
	p, err := quickpay.NewPayment(quickpay.Request{
		SessionID: h.sessionID,
		PaymentID: paymentID,
		To:        common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Amount:    amount,
		Signature: make([]byte, quickpay.SignatureLength),
	}, now, now)
	require.NoError(t, err)

	_, err = h.sessions.ReserveWith(context.Background(), h.sessionID, amount, now, func(ctx context.Context) error {
		return h.ledger.Create(ctx, p)
	})
	require.NoError(t, err)
	require.NoError(t, h.queue.Enqueue(QueuedFromPayment(p)))
	// keep enqueue times distinct so FIFO order is deterministic
	h.clock.Advance(time.Millisecond)
}

func (h *harness) run(t *testing.T) *BatchResult {
	t.Helper()
	res, err := h.relayer.ProcessBatch(context.Background())
	require.NoError(t, err)
	return res
}
