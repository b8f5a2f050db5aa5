package relay

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds on-chain submission attempts and spaces them out exponentially.
type RetryPolicy struct {
	MaxRetries          int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:          3,
		InitialInterval:     5 * time.Second,
		MaxInterval:         5 * time.Minute,
		Multiplier:          2,
		RandomizationFactor: 0.2,
	}
}

// Exhausted reports whether a payment that has failed failures times may not be retried.
func (p RetryPolicy) Exhausted(failures int) bool {
	return failures >= p.MaxRetries
}

// Delay returns the wait before the attempt following the given number of failures.
func (p RetryPolicy) Delay(failures int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.RandomizationFactor
	b.Reset()

	delay := b.InitialInterval
	for i := 0; i < failures; i++ {
		delay = b.NextBackOff()
	}
	if delay == backoff.Stop || delay <= 0 {
		return p.MaxInterval
	}
	return delay
}
