package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	natsgo "github.com/nats-io/nats.go"
)

// NATSPublisher forwards status events to NATS so other replicas and
// gateways can relay them.
type NATSPublisher struct {
	nc *natsgo.Conn
}

// NewNATSPublisher wraps an open NATS connection.
func NewNATSPublisher(nc *natsgo.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

// Subject is realtime.<channel>.<topic>.
func Subject(channel, topic string) string {
	return "realtime." + channel + "." + topic
}

func (p *NATSPublisher) Publish(_ context.Context, ev StatusEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	return p.nc.Publish(Subject(ev.Channel, ev.Topic), payload)
}

// Relay subscribes to every realtime subject and republishes into hub, so
// clients connected to this replica see events produced elsewhere. Each
// message is published into hub once; malformed payloads are dropped.
func Relay(nc *natsgo.Conn, hub *Hub) (*natsgo.Subscription, error) {
	return nc.Subscribe("realtime.>", func(msg *natsgo.Msg) {
		var ev StatusEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Warn("Dropping malformed status event", "subject", msg.Subject, "error", err)
			return
		}
		_ = hub.Publish(context.Background(), ev)
	})
}
