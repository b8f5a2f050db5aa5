package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/quickpay/internal/domain/quickpay"
	vo "github.com/orris-inc/quickpay/internal/domain/quickpay/valueobjects"
)

var testSessionID = common.HexToHash("0x5e55")

func newTestPayment(t *testing.T, paymentID string, enqueuedAt time.Time) *quickpay.Payment {
	t.Helper()
	sig := make([]byte, quickpay.SignatureLength)
	sig[64] = 27
	p, err := quickpay.NewPayment(quickpay.Request{
		SessionID: testSessionID,
		PaymentID: paymentID,
		To:        common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Amount:    25,
		Signature: sig,
		Nonce:     9,
	}, enqueuedAt, enqueuedAt)
	require.NoError(t, err)
	return p
}

func TestPaymentRepository_CreateAndGet(t *testing.T) {
	repo := NewPaymentRepository(setupTestDB(t))
	ctx := context.Background()

	p := newTestPayment(t, "p1", testNow)
	require.NoError(t, repo.Create(ctx, p))
	assert.NotZero(t, p.ID())
	assert.Equal(t, 1, p.Version())

	assert.ErrorIs(t, repo.Create(ctx, newTestPayment(t, "p1", testNow)), quickpay.ErrDuplicatePaymentID)

	got, err := repo.GetByPaymentID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, p.Request(), got.Request())
	assert.Equal(t, vo.PaymentStatusQueued, got.Status())
	assert.True(t, got.IsReserved())
	require.NotNil(t, got.ReservedOn())
	assert.True(t, got.EnqueuedAt().Equal(testNow))

	_, err = repo.GetByPaymentID(ctx, "missing")
	assert.ErrorIs(t, err, quickpay.ErrPaymentNotFound)
}

func TestPaymentRepository_UpdateOptimisticVersion(t *testing.T) {
	repo := NewPaymentRepository(setupTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newTestPayment(t, "p1", testNow)))

	first, err := repo.GetByPaymentID(ctx, "p1")
	require.NoError(t, err)
	stale, err := repo.GetByPaymentID(ctx, "p1")
	require.NoError(t, err)

	require.NoError(t, first.MarkSubmitting(testNow.Add(time.Second)))
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, 2, first.Version())

	require.NoError(t, stale.Cancel(testNow.Add(time.Second)))
	assert.ErrorIs(t, repo.Update(ctx, stale), quickpay.ErrVersionConflict)

	got, err := repo.GetByPaymentID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, vo.PaymentStatusSubmitting, got.Status())
	assert.Equal(t, 2, got.Version())
}

func TestPaymentRepository_PersistsAttemptHistory(t *testing.T) {
	repo := NewPaymentRepository(setupTestDB(t))
	ctx := context.Background()
	p := newTestPayment(t, "p1", testNow)
	require.NoError(t, repo.Create(ctx, p))

	require.NoError(t, p.MarkSubmitting(testNow))
	require.NoError(t, p.RecordTx("0xfeed"))
	require.NoError(t, p.MarkRetryPending("execution reverted", testNow.Add(time.Minute)))
	require.NoError(t, repo.Update(ctx, p))

	got, err := repo.GetByPaymentID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, vo.PaymentStatusRetryPending, got.Status())
	assert.Equal(t, 1, got.RetryCount())
	require.NotNil(t, got.NextAttemptAt())
	assert.True(t, got.NextAttemptAt().Equal(testNow.Add(time.Minute)))

	attempts, ok := got.Metadata()["attempts"].([]interface{})
	require.True(t, ok)
	require.Len(t, attempts, 1)
	attempt := attempts[0].(map[string]interface{})
	assert.Equal(t, "execution reverted", attempt["reason"])
	assert.Equal(t, "0xfeed", attempt["tx_hash"])
}

func TestPaymentRepository_Listing(t *testing.T) {
	repo := NewPaymentRepository(setupTestDB(t))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, repo.Create(ctx, newTestPayment(t, fmt.Sprintf("p%d", i), testNow.Add(time.Duration(i)*time.Second))))
	}

	submitting, err := repo.GetByPaymentID(ctx, "p1")
	require.NoError(t, err)
	require.NoError(t, submitting.MarkSubmitting(testNow))
	require.NoError(t, repo.Update(ctx, submitting))

	confirmed, err := repo.GetByPaymentID(ctx, "p2")
	require.NoError(t, err)
	require.NoError(t, confirmed.MarkSubmitting(testNow))
	require.NoError(t, confirmed.MarkConfirmed("0xbeef", 12, testNow))
	require.NoError(t, repo.Update(ctx, confirmed))

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p0", "p1", "p3"}, paymentIDs(pending))

	waiting, err := repo.ListWaiting(ctx, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"p0", "p3"}, paymentIDs(waiting))

	waiting, err = repo.ListWaiting(ctx, []string{"p0"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"p3"}, paymentIDs(waiting))

	waiting, err = repo.ListWaiting(ctx, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"p0"}, paymentIDs(waiting))

	bySession, err := repo.ListBySession(ctx, testSessionID, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"p3", "p2", "p1"}, paymentIDs(bySession))
}

func paymentIDs(payments []*quickpay.Payment) []string {
	ids := make([]string, len(payments))
	for i, p := range payments {
		ids[i] = p.PaymentID()
	}
	return ids
}
