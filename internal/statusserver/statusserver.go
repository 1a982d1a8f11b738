// Package statusserver exposes a running session's state over HTTP: a
// point-in-time JSON snapshot and a Server-Sent-Events stream of the same
// events the CLI/tray subscribe to in-process. It is the concrete shape of
// spec.md §6.3's "event subscription, counter snapshot, current state
// snapshot" for any shell that can speak HTTP, adapted directly from the
// teacher's internal/server/server.go: an http.ServeMux, an http.Server
// with explicit timeouts, and the same writeJSON/writeError helpers.
package statusserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kestrelsoft/screenmemory/internal/eventbus"
	"github.com/kestrelsoft/screenmemory/internal/session"
)

// Snapshotter is the read-only view the status server needs from the
// engine; satisfied by *engine.Engine without importing it back (avoiding
// a server->engine->server cycle).
type Snapshotter interface {
	Snapshot() session.Snapshot
}

// Server serves /status and /events for one session.
type Server struct {
	snap Snapshotter
	bus  *eventbus.Bus
	mux  *http.ServeMux
}

// New wires a Server around snap and bus.
func New(snap Snapshotter, bus *eventbus.Bus) *Server {
	s := &Server{snap: snap, bus: bus}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /events", s.handleEvents)
	return s
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // /events is a long-lived stream; no write deadline.
		IdleTimeout:  60 * time.Second,
	}
	return srv.ListenAndServe()
}

type statusResponse struct {
	State    session.State    `json:"state"`
	Counters session.Counters `json:"counters"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.snap.Snapshot()
	writeJSON(w, http.StatusOK, statusResponse{State: snap.State, Counters: snap.Counters})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, payload)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
