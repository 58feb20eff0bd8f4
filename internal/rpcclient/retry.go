package rpcclient

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is the retry/backoff schedule applied to every RPC call:
// exponential backoff starting at 500ms, capped at 30s, with ±20% jitter,
// bounded to a fixed number of attempts.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Jitter          float64
	MaxRetries      uint64
}

// DefaultRetryPolicy matches spec §4.2's failure policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Jitter:          0.2,
		MaxRetries:      5,
	}
}

// backOff builds a fresh bounded exponential backoff for one call. A fresh
// instance per call is required since backoff.ExponentialBackOff is
// stateful (it tracks elapsed/attempt count internally).
func (p RetryPolicy) backOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.RandomizationFactor = p.Jitter
	eb.Multiplier = 2
	eb.MaxElapsedTime = 0 // bounded by MaxRetries instead of wall-clock
	return backoff.WithMaxRetries(eb, p.MaxRetries)
}
