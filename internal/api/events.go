package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/clipforge/clipforge-agent/internal/playback"
)

const (
	defaultEventPing = 15 * time.Second
	eventBuffer      = 64
)

// eventsHandler streams server-sent events: one "status" event on connect,
// then "tick" for every playback position change and "action" for every
// action log line. Slow clients lose ticks rather than stall playback.
func eventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			WriteError(w, http.StatusInternalServerError, "streaming unsupported", "INTERNAL_ERROR")
			return
		}

		ping := cfg.EventPing
		if ping <= 0 {
			ping = defaultEventPing
		}

		actions, unsubscribe := cfg.Session.Actions().Subscribe(eventBuffer)
		defer unsubscribe()

		ticks := make(chan playback.Tick, eventBuffer)
		stopObserving := cfg.Session.Observe(func(t playback.Tick) {
			select {
			case ticks <- t:
			default:
			}
		})
		defer stopObserving()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		if err := writeEvent(w, "status", cfg.Session.Status()); err != nil {
			return
		}
		flusher.Flush()

		ticker := time.NewTicker(ping)
		defer ticker.Stop()

		for {
			var err error
			select {
			case <-r.Context().Done():
				return
			case t := <-ticks:
				err = writeEvent(w, "tick", t)
			case a, ok := <-actions:
				if !ok {
					return
				}
				err = writeEvent(w, "action", ActionToResponse(a))
			case <-ticker.C:
				_, err = fmt.Fprint(w, ": ping\n\n")
			}
			if err != nil {
				cfg.Logger.Debug("events client gone", "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}
