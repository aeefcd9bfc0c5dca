package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runNATSServer(t *testing.T) string {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	s := natsserver.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s.ClientURL()
}

func connectNATS(t *testing.T, url string) *natsgo.Conn {
	t.Helper()
	nc, err := natsgo.Connect(url)
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

// eventLog records which event IDs a runner executed and how often.
type eventLog struct {
	mu   sync.Mutex
	runs map[string]int
}

func (l *eventLog) record(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.runs == nil {
		l.runs = make(map[string]int)
	}
	l.runs[id]++
}

func (l *eventLog) snapshot() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.runs))
	for k, v := range l.runs {
		out[k] = v
	}
	return out
}

func (l *eventLog) total() int {
	n := 0
	for _, v := range l.snapshot() {
		n += v
	}
	return n
}

// startWorker wires a runner, a local queue and a NATS listener on its own
// connection, the way one replica does.
func startWorker(t *testing.T, url string, log *eventLog, gate <-chan struct{}, workers, size int) *NATSQueue {
	t.Helper()
	r := newTestRunner(1)
	r.Register("test/nats", func(_ context.Context, in Input) (any, error) {
		if gate != nil {
			<-gate
		}
		log.record(in.Event.ID)
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	local := NewLocalQueue(r, workers, size)
	local.Start(ctx)

	nc := connectNATS(t, url)
	q := NewNATSQueue(nc, local)
	require.NoError(t, q.Listen(ctx, "test/nats"))
	require.NoError(t, nc.Flush())

	t.Cleanup(func() {
		q.Close()
		cancel()
		local.Close()
	})
	return q
}

func sendEvents(t *testing.T, q *NATSQueue, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ev, err := NewEvent("test/nats", map[string]int{"i": i})
		require.NoError(t, err)
		require.NoError(t, q.Send(context.Background(), ev))
		ids = append(ids, ev.ID)
	}
	return ids
}

func TestNATSQueue_HandsEventsToLocalQueue(t *testing.T) {
	url := runNATSServer(t)
	log := &eventLog{}
	startWorker(t, url, log, nil, 1, 4)

	sender := NewNATSQueue(connectNATS(t, url), nil)
	ids := sendEvents(t, sender, 1)

	require.Eventually(t, func() bool { return log.total() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, map[string]int{ids[0]: 1}, log.snapshot())
}

func TestNATSQueue_QueueGroupRunsEachEventOnce(t *testing.T) {
	url := runNATSServer(t)
	log := &eventLog{}
	startWorker(t, url, log, nil, 2, 16)
	startWorker(t, url, log, nil, 2, 16)

	sender := NewNATSQueue(connectNATS(t, url), nil)
	ids := sendEvents(t, sender, 20)

	require.Eventually(t, func() bool { return log.total() == 20 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	runs := log.snapshot()
	assert.Len(t, runs, 20)
	for _, id := range ids {
		assert.Equal(t, 1, runs[id], "event %s", id)
	}
}

func TestNATSQueue_FullLocalQueueRedelivers(t *testing.T) {
	url := runNATSServer(t)
	log := &eventLog{}
	gate := make(chan struct{})
	worker := startWorker(t, url, log, gate, 1, 1)
	worker.redeliverDelay = 20 * time.Millisecond

	sender := NewNATSQueue(connectNATS(t, url), nil)
	ids := sendEvents(t, sender, 4)

	// One run holds the worker and one fills the buffer; the rest bounce.
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, log.total())
	close(gate)

	require.Eventually(t, func() bool { return log.total() == 4 }, 3*time.Second, 10*time.Millisecond)
	runs := log.snapshot()
	for _, id := range ids {
		assert.Equal(t, 1, runs[id], "event %s", id)
	}
}

func TestNATSQueue_IgnoresMalformedMessages(t *testing.T) {
	url := runNATSServer(t)
	log := &eventLog{}
	startWorker(t, url, log, nil, 1, 4)

	nc := connectNATS(t, url)
	require.NoError(t, nc.Publish(Subject("test/nats"), []byte("not json")))

	ids := sendEvents(t, NewNATSQueue(nc, nil), 1)
	require.Eventually(t, func() bool { return log.total() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, map[string]int{ids[0]: 1}, log.snapshot())
}

func TestNATSQueue_ListenWithoutLocalQueue(t *testing.T) {
	url := runNATSServer(t)
	q := NewNATSQueue(connectNATS(t, url), nil)

	assert.Error(t, q.Listen(context.Background(), "test/nats"))
}
