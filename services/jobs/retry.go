package jobs

import (
	"math/rand"
	"time"
)

// RetryPolicy controls how often and how fast a failed run is attempted again.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

func (p RetryPolicy) normalized() RetryPolicy {
	q := p
	if q.MaxAttempts <= 0 {
		q.MaxAttempts = 1
	}
	if q.BaseDelay <= 0 {
		q.BaseDelay = 200 * time.Millisecond
	}
	if q.MaxDelay <= 0 {
		q.MaxDelay = 5 * time.Second
	}
	if q.MaxDelay < q.BaseDelay {
		q.MaxDelay = q.BaseDelay
	}
	return q
}

// backoff returns the wait before the given retry (0-based).
func backoff(attempt int, base, max time.Duration, jitter bool) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	d := base << attempt
	if d > max || d <= 0 {
		d = max
	}
	if !jitter {
		return d
	}
	// +/- 50% jitter
	half := d / 2
	if half <= 0 {
		return d
	}
	delta := time.Duration(rand.Int63n(int64(half))) // #nosec G404 non-crypto
	return half + delta
}
