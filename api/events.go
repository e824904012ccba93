package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dagm95/CXinas-bakery-system/generic"
)

const sseHeartbeat = 25 * time.Second

// StreamEvents relays change events as server-sent events until the client
// disconnects. Each event names the topic and the employees whose documents
// changed; clients re-fetch what they display.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "Event stream not configured", nil)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported", nil)
		return
	}

	// The server's WriteTimeout would otherwise cut the stream.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ctx := r.Context()
	events := make(chan generic.Event, 16)
	done := make(chan error, 1)
	go func() {
		done <- h.Events.Subscribe(ctx, func(ev generic.Event) {
			select {
			case events <- ev:
			default:
			}
		})
	}()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-done:
			if err != nil {
				h.Logger.Warn("event subscription ended", zap.Error(err))
			}
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-events:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Topic, payload)
			flusher.Flush()
		}
	}
}
