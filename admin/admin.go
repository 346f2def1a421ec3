// Package admin exposes an HTTP sidecar for observing a running
// kvstored: an SSE feed of every executed command (the wire-protocol
// equivalent of MONITOR, browsable from outside a RESP client) and a
// JSON snapshot of server statistics. Adapted from web/web.go's
// broker-backed SSE handler, retargeted from SQL query events to
// command events and with the EXPLAIN endpoint replaced by INFO.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mickamy/kvstore/broker"
)

// InfoProvider supplies the JSON body for GET /api/info. Defined here
// (the consumer) rather than in package server, so admin has no
// compile-time dependency on server's concrete types.
type InfoProvider func() Info

// Info is the admin endpoint's view of server state, the same
// information INFO reports, reshaped for JSON instead of the wire's
// colon-delimited text.
type Info struct {
	UptimeSeconds     int64 `json:"uptime_seconds"`
	ConnectedClients  int   `json:"connected_clients"`
	ConnectedReplicas int   `json:"connected_replicas"`
	UsedMemoryBytes   int64 `json:"used_memory_bytes"`
	MaxMemoryBytes    int64 `json:"max_memory_bytes"`
	DirtySinceSave    int64 `json:"dirty_since_save"`
	TotalKeys         int64 `json:"total_keys"`
	Role              string `json:"role"`
}

// Server serves the admin HTTP API.
type Server struct {
	httpServer *http.Server
	broker     *broker.Broker
	info       InfoProvider
}

// New creates a Server backed by b for the event feed and info for the
// /api/info endpoint.
func New(b *broker.Broker, info InfoProvider) *Server {
	s := &Server{broker: b, info: info}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/events", s.handleSSE)
	mux.HandleFunc("GET /api/info", s.handleInfo)

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Serve starts the HTTP server on the given listener.
func (s *Server) Serve(lis net.Listener) error {
	if err := s.httpServer.Serve(lis); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("admin: shutdown: %w", err)
	}
	return nil
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

type eventJSON struct {
	DB      int      `json:"db"`
	Client  string   `json:"client"`
	Command []string `json:"command"`
	Unix    int64    `json:"unix"`
}

func eventToJSON(ev broker.Event) eventJSON {
	cmd := make([]string, len(ev.Command))
	copy(cmd, ev.Command)
	return eventJSON{DB: ev.DB, Client: ev.Client, Command: cmd, Unix: ev.Unix}
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	flusher.Flush()

	ch, unsub := s.broker.Subscribe()
	defer unsub()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(eventToJSON(ev))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.info == nil {
		json.NewEncoder(w).Encode(Info{Role: "master"})
		return
	}
	json.NewEncoder(w).Encode(s.info())
}
