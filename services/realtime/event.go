// Package realtime carries node execution status from running workflows to
// subscribed editor clients.
package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is the lifecycle state of a node within a run.
type Status string

const (
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// StatusTopic is the topic every node status event is published on.
const StatusTopic = "status"

// StatusEvent reports one node's state on a channel/topic pair.
type StatusEvent struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Topic     string    `json:"topic"`
	NodeID    string    `json:"nodeId"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// NewStatusEvent stamps a status event with a time-ordered ID.
func NewStatusEvent(channel, nodeID string, status Status) StatusEvent {
	now := time.Now().UTC()
	return StatusEvent{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Channel:   channel,
		Topic:     StatusTopic,
		NodeID:    nodeID,
		Status:    status,
		Timestamp: now,
	}
}

// Publisher delivers status events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev StatusEvent) error
}

// Notify publishes a status for nodeID on channel. Failures are logged, not
// returned: status delivery never changes the outcome of a node.
func Notify(ctx context.Context, p Publisher, channel, nodeID string, status Status) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, NewStatusEvent(channel, nodeID, status)); err != nil {
		slog.Warn("Failed to publish node status", "channel", channel, "nodeId", nodeID, "status", status, "error", err)
	}
}
