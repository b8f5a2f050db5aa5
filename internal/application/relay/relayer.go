// Package relay settles accepted quick-pay payments on chain. The BatchRelayer
// owns the in-memory queue and in-flight set; the ledger is the durable record
// it recovers from.
package relay

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/orris-inc/quickpay/internal/application/quickpay/apperr"
	"github.com/orris-inc/quickpay/internal/application/relay/settlement"
	"github.com/orris-inc/quickpay/internal/domain/quickpay"
	"github.com/orris-inc/quickpay/internal/domain/session"
	sharedErrors "github.com/orris-inc/quickpay/internal/shared/errors"
	"github.com/orris-inc/quickpay/internal/shared/logger"
)

// ErrBatchInProgress is returned when ProcessBatch is called while a batch runs.
var ErrBatchInProgress = errors.New("batch already in progress")

// QuotaLedger is the quota bookkeeping the relayer needs.
type QuotaLedger interface {
	ReserveWith(ctx context.Context, id common.Hash, amount uint64, asOf time.Time, fn func(ctx context.Context) error) (*session.Session, error)
	ReleaseWith(ctx context.Context, id common.Hash, amount uint64, reservedOn time.Time, fn func(ctx context.Context) error) error
}

// SessionReader loads sessions.
type SessionReader interface {
	Get(ctx context.Context, id common.Hash) (*session.Session, error)
}

type Config struct {
	BatchSize           int
	Workers             int
	SubmitTimeout       time.Duration
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
	// DroppedAfter is the grace period before an unknown transaction counts as dropped.
	DroppedAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 15 * time.Second
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 45 * time.Second
	}
	if c.ConfirmPollInterval <= 0 {
		c.ConfirmPollInterval = 2 * time.Second
	}
	if c.DroppedAfter <= 0 {
		c.DroppedAfter = 10 * time.Minute
	}
	return c
}

// inFlight is a submitted payment whose outcome is not yet known.
type inFlight struct {
	sessionID   common.Hash
	txHash      string
	submittedAt time.Time
}

type outcome int

const (
	outcomeConfirmed outcome = iota
	outcomeFailed
	outcomeRetry
	outcomeInFlight
	outcomeSkipped
	outcomeError
)

// blocksSession reports whether later payments of the same session must wait.
func (o outcome) blocksSession() bool {
	return o == outcomeRetry || o == outcomeInFlight || o == outcomeError
}

// BatchResult summarises one ProcessBatch run.
type BatchResult struct {
	mu         sync.Mutex
	Drained    int `json:"drained"`
	Confirmed  int `json:"confirmed"`
	Failed     int `json:"failed"`
	Retried    int `json:"retried"`
	InFlight   int `json:"in_flight"`
	Expired    int `json:"expired"`
	Deferred   int `json:"deferred"`
	Skipped    int `json:"skipped"`
	Errors     int `json:"errors"`
	Reconciled int `json:"reconciled"`
}

func (r *BatchResult) record(o outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch o {
	case outcomeConfirmed:
		r.Confirmed++
	case outcomeFailed:
		r.Failed++
	case outcomeRetry:
		r.Retried++
	case outcomeInFlight:
		r.InFlight++
	case outcomeSkipped:
		r.Skipped++
	case outcomeError:
		r.Errors++
	}
}

func (r *BatchResult) add(field *int, n int) {
	r.mu.Lock()
	*field += n
	r.mu.Unlock()
}

// Status is the relayer observability snapshot.
type Status struct {
	QueueStatus
	InFlight  int          `json:"in_flight"`
	LastRunAt *time.Time   `json:"last_run_at,omitempty"`
	LastRun   *BatchResult `json:"last_run,omitempty"`
}

type BatchRelayer struct {
	ledger   quickpay.Repository
	sessions SessionReader
	quota    QuotaLedger
	gateway  settlement.Gateway
	queue    *PaymentQueue
	retry    RetryPolicy
	notifier Notifier
	cfg      Config
	logger   logger.Interface
	now      func() time.Time

	running atomic.Bool

	mu        sync.Mutex
	inFlight  map[string]inFlight
	lastRunAt *time.Time
	lastRun   *BatchResult
}

func NewBatchRelayer(
	ledger quickpay.Repository,
	sessions SessionReader,
	quota QuotaLedger,
	gateway settlement.Gateway,
	queue *PaymentQueue,
	retry RetryPolicy,
	notifier Notifier,
	cfg Config,
	logger logger.Interface,
) *BatchRelayer {
	if notifier == nil {
		notifier = NopNotifier()
	}
	return &BatchRelayer{
		ledger:   ledger,
		sessions: sessions,
		quota:    quota,
		gateway:  gateway,
		queue:    queue,
		retry:    retry,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		inFlight: make(map[string]inFlight),
	}
}

// SetClock replaces the time source.
func (r *BatchRelayer) SetClock(now func() time.Time) {
	r.now = now
}

// Queue returns the working set shared with the submit path.
func (r *BatchRelayer) Queue() *PaymentQueue {
	return r.queue
}

// ProcessBatch runs one settlement cycle: resolve in-flight transactions, top the
// queue up from the ledger, drain up to BatchSize payments and settle them with
// per-session FIFO order and bounded parallelism across sessions.
func (r *BatchRelayer) ProcessBatch(ctx context.Context) (*BatchResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrBatchInProgress
	}
	defer r.running.Store(false)

	r.queue.setProcessing(true)
	defer r.queue.setProcessing(false)

	result := &BatchResult{}
	r.reconcileInFlight(ctx, result)

	if err := r.refill(ctx); err != nil {
		r.logger.Warnw("failed to refill queue from ledger", "error", err)
	}

	now := r.now()
	ready, stale := r.queue.Drain(r.cfg.BatchSize, now, r.blockedSessions())
	result.Drained = len(ready)

	for _, qp := range stale {
		if r.expire(ctx, qp) {
			result.Expired++
		}
	}

	groups, order := groupBySession(ready)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, sid := range order {
		payments := groups[sid]
		g.Go(func() error {
			r.processSession(gctx, payments, result)
			return nil
		})
	}
	_ = g.Wait()

	r.mu.Lock()
	finished := r.now()
	r.lastRunAt = &finished
	r.lastRun = result
	r.mu.Unlock()

	if result.Drained > 0 || result.Reconciled > 0 || result.Expired > 0 {
		r.logger.Infow("relay batch completed",
			"drained", result.Drained,
			"confirmed", result.Confirmed,
			"failed", result.Failed,
			"retried", result.Retried,
			"in_flight", result.InFlight,
			"expired", result.Expired,
			"deferred", result.Deferred,
			"reconciled", result.Reconciled,
		)
	}
	return result, nil
}

// Status has no side effects.
func (r *BatchRelayer) Status() Status {
	st := Status{QueueStatus: r.queue.Status()}
	st.IsProcessing = r.running.Load()

	r.mu.Lock()
	defer r.mu.Unlock()
	st.InFlight = len(r.inFlight)
	st.LastRunAt = r.lastRunAt
	st.LastRun = r.lastRun
	return st
}

func groupBySession(ready []QueuedPayment) (map[common.Hash][]QueuedPayment, []common.Hash) {
	groups := make(map[common.Hash][]QueuedPayment)
	var order []common.Hash
	for _, qp := range ready {
		sid := qp.Request.SessionID
		if _, ok := groups[sid]; !ok {
			order = append(order, sid)
		}
		groups[sid] = append(groups[sid], qp)
	}
	return groups, order
}

func (r *BatchRelayer) processSession(ctx context.Context, payments []QueuedPayment, result *BatchResult) {
	for i, qp := range payments {
		o := r.processPayment(ctx, qp)
		result.record(o)
		if !o.blocksSession() {
			continue
		}
		for _, rest := range payments[i+1:] {
			r.queue.Requeue(rest)
		}
		if n := len(payments) - i - 1; n > 0 {
			result.add(&result.Deferred, n)
		}
		return
	}
}

func (r *BatchRelayer) processPayment(ctx context.Context, qp QueuedPayment) outcome {
	log := r.logger.With("payment_id", qp.Request.PaymentID, "session_id", qp.Request.SessionID.Hex())

	p, err := r.ledger.GetByPaymentID(ctx, qp.Request.PaymentID)
	if err != nil {
		log.Errorw("failed to load payment", "error", err)
		r.queue.Requeue(qp)
		return outcomeError
	}

	if !p.Status().IsWaiting() {
		// Cancelled or resolved elsewhere since it was queued.
		log.Debugw("skipping payment no longer waiting", "status", p.Status())
		return outcomeSkipped
	}

	now := r.now()

	s, err := r.sessions.Get(ctx, p.SessionID())
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return r.fail(ctx, p, apperr.Reason(err))
	case err != nil:
		log.Errorw("failed to load session", "error", err)
		r.queue.Requeue(qp)
		return outcomeError
	}
	if err := s.CheckUsable(now); err != nil {
		log.Warnw("session no longer usable, failing payment", "reason", apperr.Reason(err))
		return r.fail(ctx, p, apperr.Reason(err))
	}

	if !p.IsReserved() {
		_, err := r.quota.ReserveWith(ctx, p.SessionID(), p.Amount(), now, func(txCtx context.Context) error {
			if err := p.MarkReserved(now); err != nil {
				return err
			}
			return r.ledger.Update(txCtx, p)
		})
		switch {
		case err == nil:
		case apperr.IsBusinessRejection(err):
			log.Infow("quota reservation rejected before submission", "reason", apperr.Reason(err))
			return r.fail(ctx, p, apperr.Reason(err))
		case errors.Is(err, quickpay.ErrVersionConflict):
			return outcomeSkipped
		default:
			log.Errorw("failed to reserve quota", "error", err)
			r.queue.Requeue(qp)
			return outcomeError
		}
	}

	if err := p.MarkSubmitting(now); err != nil {
		log.Errorw("unexpected state before submission", "error", err)
		return outcomeSkipped
	}
	if err := r.ledger.Update(ctx, p); err != nil {
		if errors.Is(err, quickpay.ErrVersionConflict) {
			log.Infow("payment changed concurrently, skipping")
			return outcomeSkipped
		}
		log.Errorw("failed to mark payment submitting", "error", err)
		r.queue.Requeue(qp)
		return outcomeError
	}

	return r.submit(ctx, p)
}

// submit sends a payment already marked Submitting and drives it to an outcome.
func (r *BatchRelayer) submit(ctx context.Context, p *quickpay.Payment) outcome {
	log := r.logger.With("payment_id", p.PaymentID(), "session_id", p.SessionID().Hex())

	execCtx, cancel := context.WithTimeout(ctx, r.cfg.SubmitTimeout)
	txHash, err := r.gateway.ExecuteWithSession(execCtx, settlement.ExecuteRequest{
		SessionID: p.SessionID(),
		To:        p.To(),
		Amount:    new(big.Int).SetUint64(p.Amount()),
		PaymentID: p.OnChainPaymentID(),
		Signature: p.Signature(),
	})
	cancel()

	if txHash != "" {
		if recErr := p.RecordTx(txHash); recErr == nil {
			if upErr := r.ledger.Update(ctx, p); upErr != nil {
				log.Errorw("failed to persist tx hash", "tx_hash", txHash, "error", upErr)
			}
		}
	}

	if err != nil {
		if errors.Is(err, settlement.ErrRejected) {
			log.Warnw("settlement rejected", "tx_hash", txHash, "error", err)
			return r.handleFailure(ctx, p, sharedErrors.ReasonSubmissionFailed)
		}
		// Anything else may have reached the chain.
		log.Warnw("settlement outcome unknown, will re-query", "tx_hash", txHash, "error", err)
		r.track(p)
		return outcomeInFlight
	}

	log.Infow("payment submitted", "tx_hash", txHash)
	res := r.awaitConfirmation(ctx, txHash, r.now())
	return r.applyTxResult(ctx, p, res)
}

// awaitConfirmation polls until the transaction is final or ConfirmTimeout elapses.
func (r *BatchRelayer) awaitConfirmation(ctx context.Context, txHash string, submittedAt time.Time) settlement.TxResult {
	deadline := time.NewTimer(r.cfg.ConfirmTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(r.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	last := settlement.TxResult{Status: settlement.TxStatusPending}
	for {
		res, err := r.gateway.GetTransactionStatus(ctx, txHash)
		if err != nil {
			r.logger.Debugw("transaction status query failed", "tx_hash", txHash, "error", err)
		} else {
			last = r.withGrace(res, submittedAt)
			if last.Status.IsFinal() || last.Status == settlement.TxStatusDropped {
				return last
			}
		}

		select {
		case <-ctx.Done():
			return last
		case <-deadline.C:
			return last
		case <-ticker.C:
		}
	}
}

// withGrace reports a just-broadcast unknown transaction as pending.
func (r *BatchRelayer) withGrace(res settlement.TxResult, submittedAt time.Time) settlement.TxResult {
	if res.Status == settlement.TxStatusDropped && r.now().Sub(submittedAt) < r.cfg.DroppedAfter {
		return settlement.TxResult{Status: settlement.TxStatusPending}
	}
	return res
}

func (r *BatchRelayer) applyTxResult(ctx context.Context, p *quickpay.Payment, res settlement.TxResult) outcome {
	switch res.Status {
	case settlement.TxStatusConfirmed:
		return r.confirm(ctx, p, p.TxHash(), res.BlockNumber)
	case settlement.TxStatusReverted:
		return r.handleFailure(ctx, p, "reverted")
	case settlement.TxStatusDropped:
		return r.handleFailure(ctx, p, "dropped")
	default:
		r.track(p)
		return outcomeInFlight
	}
}

// handleFailure compensates a definite failure. The contract is asked first
// whether the payment settled anyway (an earlier attempt may have landed).
func (r *BatchRelayer) handleFailure(ctx context.Context, p *quickpay.Payment, reason string) outcome {
	log := r.logger.With("payment_id", p.PaymentID(), "session_id", p.SessionID().Hex())

	settled, err := r.gateway.IsPaymentSettled(ctx, p.OnChainPaymentID())
	if err != nil {
		log.Warnw("cannot confirm payment is unsettled, deferring compensation", "error", err)
		r.track(p)
		return outcomeInFlight
	}
	if settled {
		failedTx := p.TxHash()
		p.DiscardTx(reason)
		txHash, block := r.findSettlingTx(ctx, p, failedTx)
		log.Infow("payment already settled on chain", "failed_tx", failedTx, "settling_tx", txHash)
		return r.confirm(ctx, p, txHash, block)
	}

	failures := p.RetryCount() + 1
	if r.retry.Exhausted(failures) {
		p.RecordFailedAttempt(reason)
		if err := p.MarkFailed(sharedErrors.ReasonRetryExhausted, r.now()); err != nil {
			log.Errorw("unexpected state on failure", "error", err)
			return outcomeError
		}
		if err := r.persistReleasing(ctx, p); err != nil {
			log.Errorw("failed to persist exhausted payment", "error", err)
			r.track(p)
			return outcomeError
		}
		r.untrack(p.PaymentID())
		log.Warnw("payment failed after retries", "retry_count", p.RetryCount(), "last_reason", reason)
		r.notify(ctx, p)
		return outcomeFailed
	}

	next := r.now().Add(r.retry.Delay(failures))
	if err := p.MarkRetryPending(reason, next); err != nil {
		log.Errorw("unexpected state on retry", "error", err)
		return outcomeError
	}
	if err := r.persistReleasing(ctx, p); err != nil {
		log.Errorw("failed to persist retry", "error", err)
		r.track(p)
		return outcomeError
	}
	r.untrack(p.PaymentID())
	r.queue.Requeue(QueuedFromPayment(p))

	log.Infow("payment scheduled for retry",
		"retry_count", p.RetryCount(),
		"next_attempt_at", next,
		"reason", reason,
	)
	return outcomeRetry
}

// findSettlingTx returns the earlier attempt that confirmed on chain, if any
// of them is still known to the node.
func (r *BatchRelayer) findSettlingTx(ctx context.Context, p *quickpay.Payment, skip string) (string, uint64) {
	for _, h := range p.AttemptTxHashes() {
		if h == skip {
			continue
		}
		res, err := r.gateway.GetTransactionStatus(ctx, h)
		if err != nil {
			r.logger.Debugw("transaction status query failed", "tx_hash", h, "error", err)
			continue
		}
		if res.Status == settlement.TxStatusConfirmed {
			return h, res.BlockNumber
		}
	}
	return "", 0
}

func (r *BatchRelayer) confirm(ctx context.Context, p *quickpay.Payment, txHash string, block uint64) outcome {
	if !p.IsReserved() {
		r.logger.Warnw("payment settled without an active reservation",
			"payment_id", p.PaymentID(),
			"session_id", p.SessionID().Hex(),
		)
	}
	if err := p.MarkConfirmed(txHash, block, r.now()); err != nil {
		r.logger.Errorw("unexpected state on confirmation", "payment_id", p.PaymentID(), "error", err)
		return outcomeError
	}
	if err := r.ledger.Update(ctx, p); err != nil {
		r.logger.Errorw("failed to persist confirmation", "payment_id", p.PaymentID(), "error", err)
		r.track(p)
		return outcomeError
	}
	r.untrack(p.PaymentID())
	r.logger.Infow("payment confirmed",
		"payment_id", p.PaymentID(),
		"session_id", p.SessionID().Hex(),
		"tx_hash", p.TxHash(),
		"block_number", block,
	)
	r.notify(ctx, p)
	return outcomeConfirmed
}

// fail terminates a waiting payment for a non-retryable reason.
func (r *BatchRelayer) fail(ctx context.Context, p *quickpay.Payment, reason string) outcome {
	if err := p.MarkFailed(reason, r.now()); err != nil {
		return outcomeSkipped
	}
	if err := r.persistReleasing(ctx, p); err != nil {
		if errors.Is(err, quickpay.ErrVersionConflict) {
			return outcomeSkipped
		}
		r.logger.Errorw("failed to persist failed payment", "payment_id", p.PaymentID(), "error", err)
		r.queue.Requeue(QueuedFromPayment(p))
		return outcomeError
	}
	r.notify(ctx, p)
	return outcomeFailed
}

// expire drops a stale entry: ledger to Expired, reservation released.
func (r *BatchRelayer) expire(ctx context.Context, qp QueuedPayment) bool {
	p, err := r.ledger.GetByPaymentID(ctx, qp.Request.PaymentID)
	if err != nil {
		r.logger.Errorw("failed to load stale payment", "payment_id", qp.Request.PaymentID, "error", err)
		return false
	}
	if err := p.MarkExpired(sharedErrors.ReasonStaleRequestDropped, r.now()); err != nil {
		return false
	}
	if err := r.persistReleasing(ctx, p); err != nil {
		r.logger.Errorw("failed to expire stale payment", "payment_id", p.PaymentID(), "error", err)
		return false
	}
	r.logger.Warnw("stale payment dropped",
		"payment_id", p.PaymentID(),
		"session_id", p.SessionID().Hex(),
		"enqueued_at", p.EnqueuedAt(),
	)
	r.notify(ctx, p)
	return true
}

// persistReleasing writes p and, if it still holds a reservation, releases it in
// the same transaction.
func (r *BatchRelayer) persistReleasing(ctx context.Context, p *quickpay.Payment) error {
	amount, reservedOn, ok := p.ReleaseReservation()
	if !ok {
		return r.ledger.Update(ctx, p)
	}
	return r.quota.ReleaseWith(ctx, p.SessionID(), amount, reservedOn, func(txCtx context.Context) error {
		return r.ledger.Update(txCtx, p)
	})
}

// refill tops the queue up with waiting ledger rows not already held in memory,
// which covers payments accepted by another process.
func (r *BatchRelayer) refill(ctx context.Context) error {
	exclude := r.queue.PaymentIDs()
	r.mu.Lock()
	for id := range r.inFlight {
		exclude = append(exclude, id)
	}
	r.mu.Unlock()

	rows, err := r.ledger.ListWaiting(ctx, exclude, r.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list waiting payments: %w", err)
	}
	for _, p := range rows {
		_ = r.queue.Enqueue(QueuedFromPayment(p))
	}
	return nil
}

func (r *BatchRelayer) reconcileInFlight(ctx context.Context, result *BatchResult) {
	r.mu.Lock()
	pending := make(map[string]inFlight, len(r.inFlight))
	for id, f := range r.inFlight {
		pending[id] = f
	}
	r.mu.Unlock()

	for paymentID := range pending {
		p, err := r.ledger.GetByPaymentID(ctx, paymentID)
		if err != nil {
			r.logger.Warnw("failed to load in-flight payment", "payment_id", paymentID, "error", err)
			continue
		}
		if o, resolved := r.resolveSubmitting(ctx, p); resolved {
			result.Reconciled++
			result.record(o)
		}
	}
}

// resolveSubmitting re-derives the state of a payment left in Submitting. It
// never resubmits: the chain is queried first.
func (r *BatchRelayer) resolveSubmitting(ctx context.Context, p *quickpay.Payment) (outcome, bool) {
	if p.Status().IsFinal() || p.Status().IsWaiting() {
		r.untrack(p.PaymentID())
		return outcomeSkipped, false
	}

	if p.TxHash() != "" {
		res, err := r.gateway.GetTransactionStatus(ctx, p.TxHash())
		if err != nil {
			r.logger.Warnw("in-flight status query failed", "payment_id", p.PaymentID(), "tx_hash", p.TxHash(), "error", err)
			r.track(p)
			return outcomeInFlight, false
		}
		res = r.withGrace(res, r.submittedAt(p))
		if res.Status == settlement.TxStatusPending {
			r.track(p)
			return outcomeInFlight, false
		}
		return r.applyTxResult(ctx, p, res), true
	}

	settled, err := r.gateway.IsPaymentSettled(ctx, p.OnChainPaymentID())
	if err != nil {
		r.track(p)
		return outcomeInFlight, false
	}
	if settled {
		return r.confirm(ctx, p, "", 0), true
	}
	if r.now().Sub(r.submittedAt(p)) < r.cfg.DroppedAfter {
		r.track(p)
		return outcomeInFlight, false
	}
	return r.handleFailure(ctx, p, "dropped"), true
}

func (r *BatchRelayer) submittedAt(p *quickpay.Payment) time.Time {
	if t := p.SubmittedAt(); t != nil {
		return *t
	}
	return p.UpdatedAt()
}

func (r *BatchRelayer) track(p *quickpay.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight[p.PaymentID()] = inFlight{
		sessionID:   p.SessionID(),
		txHash:      p.TxHash(),
		submittedAt: r.submittedAt(p),
	}
}

func (r *BatchRelayer) untrack(paymentID string) {
	r.mu.Lock()
	delete(r.inFlight, paymentID)
	r.mu.Unlock()
}

func (r *BatchRelayer) blockedSessions() map[common.Hash]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	blocked := make(map[common.Hash]bool, len(r.inFlight))
	for _, f := range r.inFlight {
		blocked[f.sessionID] = true
	}
	return blocked
}

func (r *BatchRelayer) notify(ctx context.Context, p *quickpay.Payment) {
	event := PaymentEvent{
		PaymentID:  p.PaymentID(),
		SessionID:  p.SessionID().Hex(),
		Status:     p.Status().String(),
		TxHash:     p.TxHash(),
		Reason:     p.FailureReason(),
		RetryCount: p.RetryCount(),
		OccurredAt: r.now(),
	}
	if err := r.notifier.PublishPaymentEvent(ctx, event); err != nil {
		r.logger.Warnw("failed to publish payment event", "payment_id", p.PaymentID(), "error", err)
	}
}
