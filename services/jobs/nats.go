package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	natsgo "github.com/nats-io/nats.go"
)

const (
	subjectPrefix = "jobs."
	workerGroup   = "nodeflow-workers"

	defaultRedeliverDelay = 250 * time.Millisecond
)

// NATSQueue distributes events over NATS so any replica can run them.
// Runs are handed to a LocalQueue on the receiving side.
//
// The subscription callback never blocks on the local buffer. When it is
// full the event is published again after redeliverDelay, so the queue
// group can hand it to a replica with room.
type NATSQueue struct {
	nc             *natsgo.Conn
	local          *LocalQueue
	subs           []*natsgo.Subscription
	redeliverDelay time.Duration
}

// NewNATSQueue wraps an open connection. local executes received events and
// may be nil on a replica that only sends.
func NewNATSQueue(nc *natsgo.Conn, local *LocalQueue) *NATSQueue {
	return &NATSQueue{nc: nc, local: local, redeliverDelay: defaultRedeliverDelay}
}

// Subject returns the NATS subject used for events named name.
func Subject(name string) string {
	return subjectPrefix + name
}

// Send publishes ev to its subject.
func (q *NATSQueue) Send(_ context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := q.nc.Publish(Subject(ev.Name), payload); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Listen joins the worker queue group for each event name.
func (q *NATSQueue) Listen(_ context.Context, names ...string) error {
	if q.local == nil {
		return errors.New("jobs: listen needs a local queue")
	}
	for _, name := range names {
		sub, err := q.nc.QueueSubscribe(Subject(name), workerGroup, q.receive)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", name, err)
		}
		q.subs = append(q.subs, sub)
	}
	return nil
}

func (q *NATSQueue) receive(msg *natsgo.Msg) {
	var ev Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		slog.Error("Dropping malformed job event", "subject", msg.Subject, "error", err)
		return
	}

	err := q.local.TrySend(ev)
	switch {
	case err == nil:
	case errors.Is(err, ErrQueueFull):
		slog.Warn("Local job queue full, redelivering", "eventId", ev.ID, "after", q.redeliverDelay)
		subject, data := msg.Subject, msg.Data
		time.AfterFunc(q.redeliverDelay, func() {
			if err := q.nc.Publish(subject, data); err != nil {
				slog.Error("Failed to redeliver job event", "eventId", ev.ID, "error", err)
			}
		})
	default:
		slog.Error("Failed to enqueue job event", "eventId", ev.ID, "error", err)
	}
}

// Close drains the subscriptions.
func (q *NATSQueue) Close() {
	for _, sub := range q.subs {
		if err := sub.Drain(); err != nil {
			slog.Warn("Failed to drain subscription", "subject", sub.Subject, "error", err)
		}
	}
}
