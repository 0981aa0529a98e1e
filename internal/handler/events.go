package handler

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"remote-lab-api/internal/notify"
)

// EventsHandler streams lifecycle and queue events to dashboard clients over
// Server-Sent Events.
type EventsHandler struct {
	Hub    *notify.Hub
	Logger *log.Logger
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(hub *notify.Hub, logger *log.Logger) *EventsHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &EventsHandler{
		Hub:    hub,
		Logger: logger,
	}
}

// StreamHandler subscribes the client to the event hub and pushes every event
// as an SSE data frame until the client disconnects. There is no replay;
// clients only see events published while connected.
func (h *EventsHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, unsubscribe := h.Hub.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.Logger.Printf("Failed to encode event: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
