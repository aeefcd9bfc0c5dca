package realtime

import (
	"context"
	"sync"
)

// Filter selects which events a subscription receives. An empty NodeID
// matches every node on the channel/topic.
type Filter struct {
	Channel string
	Topic   string
	NodeID  string
}

func (f Filter) matches(ev StatusEvent) bool {
	if f.Channel != ev.Channel || f.Topic != ev.Topic {
		return false
	}
	return f.NodeID == "" || f.NodeID == ev.NodeID
}

type subscription struct {
	filter Filter
	ch     chan StatusEvent
}

type latestKey struct {
	channel, topic, nodeID string
}

// Hub is an in-process publisher that delivers events to subscribers and
// remembers the most recent event per node.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	latest map[latestKey]StatusEvent
	buffer int
}

// NewHub creates a Hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[*subscription]struct{}),
		latest: make(map[latestKey]StatusEvent),
		buffer: buffer,
	}
}

// Publish records ev and delivers it to matching subscribers. Slow
// subscribers drop events rather than block the run.
func (h *Hub) Publish(_ context.Context, ev StatusEvent) error {
	h.mu.Lock()
	key := latestKey{ev.Channel, ev.Topic, ev.NodeID}
	if prev, ok := h.latest[key]; !ok || !ev.Timestamp.Before(prev.Timestamp) {
		h.latest[key] = ev
	}
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if !sub.filter.matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of matching events and a function that ends
// the subscription and closes the channel.
func (h *Hub) Subscribe(f Filter) (<-chan StatusEvent, func()) {
	sub := &subscription{filter: f, ch: make(chan StatusEvent, h.buffer)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Latest returns the most recent event for the node on channel/topic.
func (h *Hub) Latest(channel, topic, nodeID string) (StatusEvent, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ev, ok := h.latest[latestKey{channel, topic, nodeID}]
	return ev, ok
}
