package stream

import (
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// eventBuffer is the per-listener frame-change buffer.
const eventBuffer = 16

// NewEventBroadcaster returns a broadcaster for frame-change events.
func NewEventBroadcaster() *Broadcaster[int] {
	return NewBroadcaster[int](eventBuffer)
}

// EventsHandler streams frame-change events as Server-Sent Events. Each event
// is the new frame index, or -1 when playback goes idle.
type EventsHandler struct {
	broadcaster *Broadcaster[int]
	current     func() int
}

// NewEventsHandler creates an SSE handler. current reports the frame sent to
// a client as soon as it connects.
func NewEventsHandler(b *Broadcaster[int], current func() int) *EventsHandler {
	return &EventsHandler{broadcaster: b, current: current}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	log.WithField("listeners", h.broadcaster.ListenerCount()).Debug("Event listener connected")

	if _, err := fmt.Fprintf(w, "data: %d\n\n", h.current()); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame := <-listener.C:
			if _, err := fmt.Fprintf(w, "data: %d\n\n", frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
