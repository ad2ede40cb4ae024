package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"chatrelay/internal/domain"
)

// streamSSE writes stream events to the response as server-sent events,
// one frame per event: "data: <json>\n\n", flushed immediately so no token
// waits on a buffer. Client disconnect surfaces via r.Context() and ends
// the loop; the generator shares that context and cancels upstream.
func streamSSE(w http.ResponseWriter, r *http.Request, events <-chan domain.StreamEvent, logger *slog.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported", "")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// Tell nginx-style proxies not to buffer the response.
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug("sse client disconnected")
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				logger.Warn("sse marshal failed", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				logger.Debug("sse write failed", "error", err)
				return
			}
			flusher.Flush()
			if evt.Terminal() {
				return
			}
		}
	}
}
