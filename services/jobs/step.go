package jobs

import (
	"context"
	"fmt"
	"sync"
)

// StepRunner executes named units of work. A step that has already
// completed in this run returns its recorded result without running again.
type StepRunner interface {
	Run(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error)
}

// RunStep is the typed form of StepRunner.Run.
func RunStep[T any](ctx context.Context, steps StepRunner, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	out, err := steps.Run(ctx, name, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	if out == nil {
		return zero, nil
	}
	v, ok := out.(T)
	if !ok {
		return zero, fmt.Errorf("step %q: recorded result has type %T, want %T", name, out, zero)
	}
	return v, nil
}

// MemoSteps records step results in memory for the lifetime of one run.
// It is shared by every attempt of the same run.
type MemoSteps struct {
	mu      sync.Mutex
	results map[string]any
	order   []string
}

// NewMemoSteps returns an empty step journal.
func NewMemoSteps() *MemoSteps {
	return &MemoSteps{results: make(map[string]any)}
}

// Run executes fn unless a step with the same name already succeeded.
func (s *MemoSteps) Run(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error) {
	s.mu.Lock()
	if out, ok := s.results[name]; ok {
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := fn(ctx)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", name, err)
	}

	s.mu.Lock()
	s.results[name] = out
	s.order = append(s.order, name)
	s.mu.Unlock()
	return out, nil
}

// Completed lists the names of succeeded steps in completion order.
func (s *MemoSteps) Completed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}
