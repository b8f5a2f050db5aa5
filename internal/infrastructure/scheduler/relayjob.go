package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/orris-inc/quickpay/internal/application/relay"
	"github.com/orris-inc/quickpay/internal/shared/biztime"
	"github.com/orris-inc/quickpay/internal/shared/logger"
)

// RelayRunner is the batch relayer as seen by the scheduler.
type RelayRunner interface {
	Recover(ctx context.Context) (*relay.RecoveryResult, error)
	ProcessBatch(ctx context.Context) (*relay.BatchResult, error)
}

// LeaderLock elects one relayer process. TryAcquire also renews.
type LeaderLock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// RelayJob runs one relayer cycle per tick, but only on the lock holder.
// Leadership changes trigger a recovery before the next batch, since another
// process may have moved payments in the meantime.
type RelayJob struct {
	runner RelayRunner
	lock   LeaderLock
	logger logger.Interface

	mu        sync.Mutex
	leader    bool
	recovered bool
}

// NewRelayJob builds a job. A nil lock makes this process the only relayer.
func NewRelayJob(runner RelayRunner, lock LeaderLock, log logger.Interface) *RelayJob {
	return &RelayJob{
		runner: runner,
		lock:   lock,
		logger: log,
	}
}

// RunCycle acquires or renews leadership, recovers if needed and processes one batch.
func (j *RelayJob) RunCycle(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.acquire(ctx) {
		return
	}

	if !j.recovered {
		if _, err := j.runner.Recover(ctx); err != nil {
			if !errors.Is(err, relay.ErrBatchInProgress) {
				j.logger.Errorw("relayer recovery failed", "error", err)
			}
			return
		}
		j.recovered = true
	}

	startTime := biztime.NowUTC()
	result, err := j.runner.ProcessBatch(ctx)
	if err != nil {
		if errors.Is(err, relay.ErrBatchInProgress) {
			j.logger.Debugw("relayer batch still running, skipping cycle")
			return
		}
		j.logger.Errorw("relayer batch failed",
			"error", err,
			"duration", time.Since(startTime),
		)
		return
	}

	if result.Drained > 0 || result.Reconciled > 0 || result.Expired > 0 {
		j.logger.Infow("relayer batch processed",
			"drained", result.Drained,
			"confirmed", result.Confirmed,
			"failed", result.Failed,
			"retried", result.Retried,
			"in_flight", result.InFlight,
			"expired", result.Expired,
			"reconciled", result.Reconciled,
			"duration", time.Since(startTime),
		)
	} else {
		j.logger.Debugw("relayer batch idle", "duration", time.Since(startTime))
	}
}

// acquire must be called with mu held.
func (j *RelayJob) acquire(ctx context.Context) bool {
	if j.lock == nil {
		j.leader = true
		return true
	}

	ok, err := j.lock.TryAcquire(ctx)
	if err != nil {
		// Without the lock we cannot rule out another active relayer.
		j.logger.Warnw("relayer lock unavailable, skipping cycle", "error", err)
		j.demote()
		return false
	}
	if !ok {
		if j.leader {
			j.logger.Warnw("relayer leadership lost")
		}
		j.demote()
		return false
	}
	if !j.leader {
		j.logger.Infow("relayer leadership acquired")
		j.leader = true
	}
	return true
}

func (j *RelayJob) demote() {
	j.leader = false
	j.recovered = false
}

// Resign releases leadership so a standby can take over without waiting for the TTL.
func (j *RelayJob) Resign(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.lock == nil || !j.leader {
		return nil
	}
	j.demote()
	return j.lock.Release(ctx)
}
