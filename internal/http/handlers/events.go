package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"carousel/internal/events"
)

// JobEvents streams change events of one job as server-sent events. The
// current job is sent first so late subscribers never miss state.
func (a *App) JobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	// Subscribe before reading so nothing published in between is lost.
	sub := a.Events.Subscribe(jobID)
	defer sub.Close()
	job, err := a.Jobs.Get(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.stream(w, r, sub, func(s *sseWriter) bool {
		return s.send("snapshot", job)
	}, func(ev events.Event) bool {
		return true
	})
}

// UserEvents streams change events of every job owned by the caller.
func (a *App) UserEvents(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	sub := a.Events.Subscribe("")
	defer sub.Close()

	a.stream(w, r, sub, nil, func(ev events.Event) bool {
		return ev.UserID == userID
	})
}

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseWriter) send(name string, v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return false
	}
	s.flusher.Flush()
	return true
}

func (s *sseWriter) ping() bool {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return false
	}
	s.flusher.Flush()
	return true
}

func (a *App) stream(w http.ResponseWriter, r *http.Request, sub *events.Subscription, first func(*sseWriter) bool, keep func(events.Event) bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	s := &sseWriter{w: w, flusher: flusher}
	if first != nil && !first(s) {
		return
	}
	flusher.Flush()

	heartbeat := a.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if !keep(ev) {
				continue
			}
			if !s.send(string(ev.Kind), ev) {
				return
			}
		case <-ticker.C:
			if !s.ping() {
				return
			}
		}
	}
}
