package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/quickpay/internal/application/relay"
	"github.com/orris-inc/quickpay/internal/shared/logger"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Recover(ctx context.Context) (*relay.RecoveryResult, error) {
	args := m.Called(ctx)
	if r := args.Get(0); r != nil {
		return r.(*relay.RecoveryResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRunner) ProcessBatch(ctx context.Context) (*relay.BatchResult, error) {
	args := m.Called(ctx)
	if r := args.Get(0); r != nil {
		return r.(*relay.BatchResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// scriptedLock answers TryAcquire from a fixed sequence.
type scriptedLock struct {
	answers  []bool
	errs     []error
	calls    int
	released int
}

func (l *scriptedLock) TryAcquire(context.Context) (bool, error) {
	i := l.calls
	l.calls++
	var err error
	if i < len(l.errs) {
		err = l.errs[i]
	}
	if err != nil {
		return false, err
	}
	return l.answers[i], nil
}

func (l *scriptedLock) Release(context.Context) error {
	l.released++
	return nil
}

func TestRelayJob_RecoversOnEachLeadershipAcquisition(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Recover", mock.Anything).Return(&relay.RecoveryResult{}, nil)
	runner.On("ProcessBatch", mock.Anything).Return(&relay.BatchResult{}, nil)

	// leader, leader, lost, lock error, leader again
	lock := &scriptedLock{
		answers: []bool{true, true, false, false, true},
		errs:    []error{nil, nil, nil, errors.New("redis down"), nil},
	}
	job := NewRelayJob(runner, lock, logger.NewNop())
	ctx := context.Background()

	job.RunCycle(ctx)
	job.RunCycle(ctx)
	assert.True(t, job.leader)
	job.RunCycle(ctx)
	assert.False(t, job.leader)
	job.RunCycle(ctx)
	assert.False(t, job.leader)
	job.RunCycle(ctx)
	assert.True(t, job.leader)

	runner.AssertNumberOfCalls(t, "Recover", 2)
	runner.AssertNumberOfCalls(t, "ProcessBatch", 3)
}

func TestRelayJob_WithoutLockAlwaysRuns(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Recover", mock.Anything).Return(&relay.RecoveryResult{}, nil).Once()
	runner.On("ProcessBatch", mock.Anything).Return(&relay.BatchResult{Drained: 1, Confirmed: 1}, nil)

	job := NewRelayJob(runner, nil, logger.NewNop())
	job.RunCycle(context.Background())
	job.RunCycle(context.Background())

	runner.AssertExpectations(t)
	runner.AssertNumberOfCalls(t, "ProcessBatch", 2)
	require.NoError(t, job.Resign(context.Background()))
}

func TestRelayJob_RecoveryFailureRetriedNextCycle(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Recover", mock.Anything).Return(nil, errors.New("db down")).Once()
	runner.On("Recover", mock.Anything).Return(&relay.RecoveryResult{}, nil).Once()
	runner.On("ProcessBatch", mock.Anything).Return(&relay.BatchResult{}, nil)

	job := NewRelayJob(runner, nil, logger.NewNop())
	job.RunCycle(context.Background())
	runner.AssertNotCalled(t, "ProcessBatch", mock.Anything)

	job.RunCycle(context.Background())
	runner.AssertNumberOfCalls(t, "Recover", 2)
	runner.AssertNumberOfCalls(t, "ProcessBatch", 1)
}

func TestRelayJob_ResignReleasesLock(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Recover", mock.Anything).Return(&relay.RecoveryResult{}, nil)
	runner.On("ProcessBatch", mock.Anything).Return(&relay.BatchResult{}, nil)
	lock := &scriptedLock{answers: []bool{true}}

	job := NewRelayJob(runner, lock, logger.NewNop())
	job.RunCycle(context.Background())
	require.NoError(t, job.Resign(context.Background()))

	assert.Equal(t, 1, lock.released)
	assert.False(t, job.leader)
	require.NoError(t, job.Resign(context.Background()))
	assert.Equal(t, 1, lock.released)
}

type countingRunner struct {
	batches atomic.Int32
}

func (c *countingRunner) Recover(context.Context) (*relay.RecoveryResult, error) {
	return &relay.RecoveryResult{}, nil
}

func (c *countingRunner) ProcessBatch(context.Context) (*relay.BatchResult, error) {
	c.batches.Add(1)
	return &relay.BatchResult{}, nil
}

func TestSchedulerManager_RunsRelayJob(t *testing.T) {
	m, err := NewSchedulerManager(logger.NewNop())
	require.NoError(t, err)

	runner := &countingRunner{}
	require.NoError(t, m.RegisterRelayJob(NewRelayJob(runner, nil, logger.NewNop()), 20*time.Millisecond, time.Second))
	assert.Len(t, m.Jobs(), 1)

	m.Start()
	assert.True(t, m.IsStarted())
	assert.Eventually(t, func() bool { return runner.batches.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Stop())
	assert.False(t, m.IsStarted())
}

func TestSchedulerManager_RejectsZeroInterval(t *testing.T) {
	m, err := NewSchedulerManager(logger.NewNop())
	require.NoError(t, err)
	assert.Error(t, m.RegisterRelayJob(NewRelayJob(&countingRunner{}, nil, logger.NewNop()), 0, 0))
}
