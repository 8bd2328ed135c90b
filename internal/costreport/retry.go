package costreport

import "time"

// RetryPolicy bounds whole-fetch retries with exponential backoff.
type RetryPolicy struct {
	Attempts int
	Min      time.Duration
	Max      time.Duration
}

// DefaultRetryPolicy is 3 attempts, backoff from 1s capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Min: time.Second, Max: 10 * time.Second}
}

// Backoff returns the delay after the given failed attempt (1-based): 2^(attempt-1) seconds clamped to [Min, Max].
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Max
	if attempt <= 31 {
		d = time.Duration(1<<uint(attempt-1)) * time.Second
	}
	if d < p.Min {
		d = p.Min
	}
	if d > p.Max {
		d = p.Max
	}
	return d
}
