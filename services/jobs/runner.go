package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrNoFunction is returned when an event has no registered handler.
var ErrNoFunction = errors.New("jobs: no function registered for event")

// FailureHandler is called once when a run gives up.
type FailureHandler func(ctx context.Context, ev Event, err error)

type function struct {
	handler   Function
	onFailure FailureHandler
}

// Option customises a registered function.
type Option func(*function)

// WithOnFailure registers a hook that runs after the final failed attempt.
func WithOnFailure(h FailureHandler) Option {
	return func(f *function) { f.onFailure = h }
}

// Runner executes registered functions with retries. Each run gets its own
// step journal; retries replay completed steps instead of re-running them.
type Runner struct {
	mu        sync.RWMutex
	functions map[string]*function
	policy    RetryPolicy
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a Runner that retries according to policy.
func NewRunner(policy RetryPolicy) *Runner {
	return &Runner{
		functions: make(map[string]*function),
		policy:    policy.normalized(),
		sleep:     sleepContext,
	}
}

// Register binds fn to events named eventName.
func (r *Runner) Register(eventName string, fn Function, opts ...Option) {
	f := &function{handler: fn}
	for _, opt := range opts {
		opt(f)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.functions[eventName] = f
}

// Execute runs the function registered for ev until it succeeds, fails with
// a non-retriable error, or exhausts its attempts.
func (r *Runner) Execute(ctx context.Context, ev Event) (any, error) {
	r.mu.RLock()
	f, ok := r.functions[ev.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoFunction, ev.Name)
	}

	logger := slog.With("eventId", ev.ID, "event", ev.Name)
	steps := NewMemoSteps()

	var lastErr error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := backoff(attempt-1, r.policy.BaseDelay, r.policy.MaxDelay, r.policy.Jitter)
			logger.Debug("Retrying run", "attempt", attempt+1, "wait", wait)
			if err := r.sleep(ctx, wait); err != nil {
				lastErr = err
				break
			}
		}

		out, err := f.handler(ctx, Input{Event: ev, Attempt: attempt, Step: steps})
		if err == nil {
			return out, nil
		}
		lastErr = err

		if IsNonRetriable(err) {
			logger.Warn("Run failed with non-retriable error", "attempt", attempt+1, "error", err)
			break
		}
		logger.Warn("Run attempt failed", "attempt", attempt+1, "error", err)
	}

	if f.onFailure != nil {
		f.onFailure(context.WithoutCancel(ctx), ev, lastErr)
	}
	return nil, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
