package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fentz26/tripassist/internal/callback"
	"github.com/fentz26/tripassist/internal/models"
)

// StreamTimeoutMessage is sent when no result arrives before the stream timeout.
const StreamTimeoutMessage = "the itinerary service did not respond in time"

// final reports whether r ends a stream.
func final(r models.Result) bool {
	return r.Status.Terminal() || r.Status == models.SessionStatusNotFound
}

// handleStream handles GET /stream?sessionId= as server-sent events. Exactly one
// data event is written, then the stream closes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get(callback.SessionParam)
	if id == "" {
		s.writeError(w, r, ErrMissingSessionID)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before reading the store: a result published between the read and
	// the subscription would otherwise be missed.
	ch, cancel := s.service.Subscribe(id)
	defer cancel()

	current, err := s.service.Status(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.metrics.ActiveStreams.Inc()
	defer s.metrics.ActiveStreams.Dec()

	log := s.logger.WithField("session_id", id)
	send := func(result models.Result) {
		data, err := json.Marshal(result)
		if err != nil {
			log.WithError(err).Error("Failed to encode stream result")
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
		s.metrics.Deliveries.WithLabelValues("stream", string(result.Status)).Inc()
	}

	if final(current) {
		send(current)
		return
	}

	keepAlive := time.NewTicker(s.opts.KeepAlive)
	defer keepAlive.Stop()
	timeout := time.NewTimer(s.opts.StreamTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug("Stream client disconnected")
			return

		case result, ok := <-ch:
			if !ok {
				return
			}
			send(result)
			return

		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()

			// Results written by another process without a shared notifier are
			// picked up here.
			if latest, err := s.service.Status(r.Context(), id); err == nil && final(latest) {
				send(latest)
				return
			}

		case <-timeout.C:
			log.Warn("Stream timed out waiting for a result")
			send(models.FailedResult(models.FailureTimeout, StreamTimeoutMessage))
			return
		}
	}
}
