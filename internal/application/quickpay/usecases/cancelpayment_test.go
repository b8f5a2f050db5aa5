package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vo "github.com/orris-inc/quickpay/internal/domain/quickpay/valueobjects"
	sharedErrors "github.com/orris-inc/quickpay/internal/shared/errors"
	"github.com/orris-inc/quickpay/internal/shared/logger"
)

func newCancelUseCase(h *submitHarness, now time.Time) *CancelPaymentUseCase {
	uc := NewCancelPaymentUseCase(h.ledger, &memQuota{store: h.store}, h.queue, time.Hour, logger.NewNop())
	uc.SetClock(func() time.Time { return now })
	return uc
}

func TestCancelPayment_ReleasesQuota(t *testing.T) {
	h := newSubmitHarness(t, 100, 150, nil)
	require.NoError(t, h.submit(t, "p1", 80))
	require.Equal(t, uint64(80), h.store.usedToday(h.fixture.session.ID()))

	out, err := newCancelUseCase(h, testNow.Add(time.Minute)).Execute(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, vo.PaymentStatusCancelled.String(), out.Status)
	assert.Equal(t, "failed", out.LedgerState)
	assert.Equal(t, uint64(0), h.store.usedToday(h.fixture.session.ID()))
	assert.False(t, h.queue.Contains("p1"))

	p, err := h.ledger.GetByPaymentID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, vo.PaymentStatusCancelled, p.Status())
	assert.False(t, p.IsReserved())

	// the freed quota can be spent again
	require.NoError(t, h.submit(t, "p2", 100))
}

func TestCancelPayment_NotCancellable(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, h *submitHarness)
		at      time.Time
		reason  string
	}{
		{
			name: "already submitting",
			prepare: func(t *testing.T, h *submitHarness) {
				p, err := h.ledger.GetByPaymentID(context.Background(), "p1")
				require.NoError(t, err)
				require.NoError(t, p.MarkSubmitting(testNow))
				require.NoError(t, h.ledger.Update(context.Background(), p))
			},
			at:     testNow.Add(time.Minute),
			reason: sharedErrors.ReasonNotCancellable,
		},
		{
			name: "retry pending after a reverted attempt",
			prepare: func(t *testing.T, h *submitHarness) {
				p, err := h.ledger.GetByPaymentID(context.Background(), "p1")
				require.NoError(t, err)
				require.NoError(t, p.MarkSubmitting(testNow))
				require.NoError(t, p.RecordTx("0x01"))
				require.NoError(t, p.MarkRetryPending("reverted", testNow.Add(30*time.Second)))
				require.NoError(t, h.ledger.Update(context.Background(), p))
			},
			at:     testNow.Add(time.Minute),
			reason: sharedErrors.ReasonNotCancellable,
		},
		{
			name:    "stale",
			prepare: func(t *testing.T, h *submitHarness) {},
			at:      testNow.Add(2 * time.Hour),
			reason:  sharedErrors.ReasonNotCancellable,
		},
		{
			name: "already cancelled",
			prepare: func(t *testing.T, h *submitHarness) {
				_, err := newCancelUseCase(h, testNow).Execute(context.Background(), "p1")
				require.NoError(t, err)
			},
			at:     testNow.Add(time.Minute),
			reason: sharedErrors.ReasonNotCancellable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newSubmitHarness(t, 100, 150, nil)
			require.NoError(t, h.submit(t, "p1", 80))
			tt.prepare(t, h)
			used := h.store.usedToday(h.fixture.session.ID())

			_, err := newCancelUseCase(h, tt.at).Execute(context.Background(), "p1")
			assert.Equal(t, tt.reason, reasonOf(t, err))
			assert.Equal(t, used, h.store.usedToday(h.fixture.session.ID()))
		})
	}
}

func TestCancelPayment_NotFound(t *testing.T) {
	h := newSubmitHarness(t, 100, 150, nil)
	_, err := newCancelUseCase(h, testNow).Execute(context.Background(), "missing")
	assert.Equal(t, sharedErrors.ReasonPaymentNotFound, reasonOf(t, err))
}
