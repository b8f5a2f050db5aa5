package relay

import (
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/orris-inc/quickpay/internal/domain/quickpay"
)

// QueuedPayment is an accepted request waiting for settlement.
type QueuedPayment struct {
	Request       quickpay.Request
	EnqueuedAt    time.Time
	RetryCount    int
	NextAttemptAt time.Time // zero when due immediately
}

// QueuedFromPayment builds the queue entry for a ledger record.
func QueuedFromPayment(p *quickpay.Payment) QueuedPayment {
	qp := QueuedPayment{
		Request:    p.Request(),
		EnqueuedAt: p.EnqueuedAt(),
		RetryCount: p.RetryCount(),
	}
	if next := p.NextAttemptAt(); next != nil {
		qp.NextAttemptAt = *next
	}
	return qp
}

func (qp QueuedPayment) isDue(now time.Time) bool {
	return qp.NextAttemptAt.IsZero() || !now.Before(qp.NextAttemptAt)
}

// QueueStatus is an observability snapshot of the queue.
type QueueStatus struct {
	QueueLength            int        `json:"queue_length"`
	OldestPaymentTimestamp *time.Time `json:"oldest_payment_timestamp,omitempty"`
	IsProcessing           bool       `json:"is_processing"`
}

// PaymentQueue is the in-memory working set of payments awaiting settlement,
// ordered by enqueue time and keyed by payment id. The ledger is the durable copy.
type PaymentQueue struct {
	mu         sync.Mutex
	entries    []QueuedPayment
	index      map[string]struct{}
	staleAfter time.Duration
	processing bool
}

func NewPaymentQueue(staleAfter time.Duration) *PaymentQueue {
	return &PaymentQueue{
		index:      make(map[string]struct{}),
		staleAfter: staleAfter,
	}
}

// Enqueue inserts qp in enqueue-time order.
func (q *PaymentQueue) Enqueue(qp QueuedPayment) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.index[qp.Request.PaymentID]; ok {
		return quickpay.ErrDuplicatePaymentID
	}
	q.insertLocked(qp)
	return nil
}

// Requeue puts a drained entry back, replacing any copy still queued.
func (q *PaymentQueue) Requeue(qp QueuedPayment) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.index[qp.Request.PaymentID]; ok {
		q.removeLocked(qp.Request.PaymentID)
	}
	q.insertLocked(qp)
}

// Drain removes and returns up to max entries, oldest first. Entries past the
// staleness threshold are removed and returned separately. A retry that is not
// yet due holds back every later entry of its session, as does any session in
// blocked, so per-session order survives retries.
func (q *PaymentQueue) Drain(max int, now time.Time, blocked map[common.Hash]bool) (ready, stale []QueuedPayment) {
	q.mu.Lock()
	defer q.mu.Unlock()

	held := make(map[common.Hash]bool, len(blocked))
	for k, v := range blocked {
		held[k] = v
	}

	kept := q.entries[:0]
	for _, qp := range q.entries {
		sid := qp.Request.SessionID
		switch {
		case q.isStale(qp, now):
			stale = append(stale, qp)
			delete(q.index, qp.Request.PaymentID)
		case held[sid]:
			kept = append(kept, qp)
		case !qp.isDue(now):
			held[sid] = true
			kept = append(kept, qp)
		case len(ready) < max:
			ready = append(ready, qp)
			delete(q.index, qp.Request.PaymentID)
		default:
			// Batch full: later entries of this session must wait too.
			held[sid] = true
			kept = append(kept, qp)
		}
	}
	// clear the tail so dropped entries can be collected
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = QueuedPayment{}
	}
	q.entries = kept
	return ready, stale
}

// Remove drops a payment from the queue. Returns whether it was queued.
func (q *PaymentQueue) Remove(paymentID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.index[paymentID]; !ok {
		return false
	}
	q.removeLocked(paymentID)
	return true
}

// Cancel removes paymentID if it is queued and not yet stale.
func (q *PaymentQueue) Cancel(paymentID string, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.index[paymentID]; !ok {
		return quickpay.ErrNotCancellable
	}
	for _, qp := range q.entries {
		if qp.Request.PaymentID == paymentID && q.isStale(qp, now) {
			return quickpay.ErrNotCancellable
		}
	}
	q.removeLocked(paymentID)
	return nil
}

func (q *PaymentQueue) Contains(paymentID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.index[paymentID]
	return ok
}

func (q *PaymentQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// PaymentIDs returns the ids currently queued.
func (q *PaymentQueue) PaymentIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, 0, len(q.entries))
	for _, qp := range q.entries {
		ids = append(ids, qp.Request.PaymentID)
	}
	return ids
}

// Reset empties the queue.
func (q *PaymentQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
	q.index = make(map[string]struct{})
}

// Status has no side effects.
func (q *PaymentQueue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := QueueStatus{
		QueueLength:  len(q.entries),
		IsProcessing: q.processing,
	}
	if len(q.entries) > 0 {
		oldest := q.entries[0].EnqueuedAt
		st.OldestPaymentTimestamp = &oldest
	}
	return st
}

func (q *PaymentQueue) setProcessing(v bool) {
	q.mu.Lock()
	q.processing = v
	q.mu.Unlock()
}

func (q *PaymentQueue) isStale(qp QueuedPayment, now time.Time) bool {
	return q.staleAfter > 0 && now.Sub(qp.EnqueuedAt) > q.staleAfter
}

func (q *PaymentQueue) insertLocked(qp QueuedPayment) {
	i := sort.Search(len(q.entries), func(i int) bool {
		return q.entries[i].EnqueuedAt.After(qp.EnqueuedAt)
	})
	q.entries = append(q.entries, QueuedPayment{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = qp
	q.index[qp.Request.PaymentID] = struct{}{}
}

func (q *PaymentQueue) removeLocked(paymentID string) {
	for i, qp := range q.entries {
		if qp.Request.PaymentID == paymentID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	delete(q.index, paymentID)
}
