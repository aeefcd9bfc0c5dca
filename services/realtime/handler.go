package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// Handler exposes a Hub over HTTP.
type Handler struct {
	hub *Hub
}

// NewHandler creates HTTP handlers backed by hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// LoadRoutes registers realtime HTTP handlers on the given router.
func (h *Handler) LoadRoutes(parentRouter *mux.Router) {
	router := parentRouter.PathPrefix("/realtime").Subrouter()
	router.HandleFunc("/{channel}/{topic}/stream", h.HandleStream).Methods("GET")
	router.HandleFunc("/{channel}/{topic}/latest", h.HandleLatest).Methods("GET")
}

// HandleLatest returns the most recent event for ?nodeId= on the channel/topic.
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	w.Header().Set("Content-Type", "application/json")

	nodeID := r.URL.Query().Get("nodeId")
	if nodeID == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"message": "nodeId is required"})
		return
	}

	ev, ok := h.hub.Latest(vars["channel"], vars["topic"], nodeID)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "no status published"})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ev)
}

// HandleStream streams matching events as Server-Sent Events until the
// client disconnects. ?nodeId= narrows the stream to one node.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	vars := mux.Vars(r)
	filter := Filter{
		Channel: vars["channel"],
		Topic:   vars["topic"],
		NodeID:  r.URL.Query().Get("nodeId"),
	}
	events, cancel := h.hub.Subscribe(filter)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Replay the current state so late subscribers render immediately.
	if filter.NodeID != "" {
		if ev, ok := h.hub.Latest(filter.Channel, filter.Topic, filter.NodeID); ok {
			writeSSE(w, ev)
		}
	}
	flusher.Flush()

	slog.Debug("Realtime subscriber connected", "channel", filter.Channel, "topic", filter.Topic, "nodeId", filter.NodeID)
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev StatusEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Topic, payload)
}
