package syncengine

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// backoffStop is the sentinel cenkalti/backoff returns once a backoff is
// exhausted. Reusing the library's own rather than inventing one keeps the
// check valid regardless of the underlying policy's MaxElapsedTime/MaxRetries.
const backoffStop = backoff.Stop

// persistRetryPolicy bounds how long a worker retries a chunk whose
// persistence call failed before giving up and returning an error that
// stops that one worker: the cursor never advances past the failed chunk,
// but a sibling contract's worker keeps running.
func persistRetryPolicy() retryPolicy {
	return retryPolicy{
		InitialInterval: time.Second,
		MaxInterval:     time.Minute,
		MaxElapsedTime:  10 * time.Minute,
	}
}

type retryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

func (p retryPolicy) backOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = p.MaxElapsedTime
	return eb
}
