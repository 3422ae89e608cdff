package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rahlquantum/pairing-server-go/internal/httputil"
	"github.com/rahlquantum/pairing-server-go/internal/supervisor"
)

const heartbeatInterval = 30 * time.Second

// EventsHandler streams connection state transitions as server-sent events.
// Every reader shares the supervisor's one persistent subscription point;
// nothing is registered per request beyond the outgoing channel.
type EventsHandler struct {
	sup *supervisor.Supervisor
}

func NewEventsHandler(sup *supervisor.Supervisor) *EventsHandler {
	return &EventsHandler{sup: sup}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"ok":    false,
			"error": "Streaming not supported",
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	changes, cancel := h.sup.Subscribe()
	defer cancel()

	log.Info().Msg("sse connection established")

	h.sendEvent(w, flusher, "connected", map[string]any{
		"state": h.sup.State(),
	})

	ctx := r.Context()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sse connection closed by client")
			return

		case change := <-changes:
			if err := h.sendEvent(w, flusher, "state_change", change); err != nil {
				log.Error().Err(err).Msg("failed to send state change event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
