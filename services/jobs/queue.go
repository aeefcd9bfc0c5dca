package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var (
	// ErrQueueClosed is returned by Send after Close.
	ErrQueueClosed = errors.New("jobs: queue closed")
	// ErrQueueFull is returned by TrySend when the buffer has no room.
	ErrQueueFull = errors.New("jobs: queue full")
)

// LocalQueue runs events in-process on a fixed pool of workers.
type LocalQueue struct {
	runner  *Runner
	events  chan Event
	workers int

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewLocalQueue creates a queue with the given worker count and buffer size.
func NewLocalQueue(runner *Runner, workers, size int) *LocalQueue {
	if workers <= 0 {
		workers = 1
	}
	return &LocalQueue{
		runner:  runner,
		events:  make(chan Event, size),
		workers: workers,
		done:    make(chan struct{}),
	}
}

// Start launches the workers. They exit when ctx is done or the queue is closed.
func (q *LocalQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
}

func (q *LocalQueue) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			q.drain(ctx)
			return
		case ev := <-q.events:
			q.run(ctx, ev)
		}
	}
}

// drain runs whatever is still buffered after Close.
func (q *LocalQueue) drain(ctx context.Context) {
	for {
		select {
		case ev := <-q.events:
			q.run(ctx, ev)
		default:
			return
		}
	}
}

func (q *LocalQueue) run(ctx context.Context, ev Event) {
	if _, err := q.runner.Execute(ctx, ev); err != nil {
		slog.Error("Job run failed", "eventId", ev.ID, "event", ev.Name, "error", err)
	}
}

// Send enqueues ev, blocking while the buffer is full. A Send blocked on a
// full buffer returns ErrQueueClosed as soon as the queue is closed.
func (q *LocalQueue) Send(ctx context.Context, ev Event) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.events <- ev:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend enqueues ev without blocking.
func (q *LocalQueue) TrySend(ev Event) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.events <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events and waits for the workers to finish what is
// already queued. It is safe to call more than once.
func (q *LocalQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
	q.wg.Wait()
}
