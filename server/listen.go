package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/mickamy/kvstore/command"
)

// Server binds the Engine to a TCP listener. Grounded on proxy/proxy.go's
// Proxy interface and proxy/mysql's accept loop, adapted from a 1:1
// relay to an N:1 fan-in into a single Engine.
type Server struct {
	engine *Engine
	hooks  *command.Hooks

	mu       sync.Mutex
	listener net.Listener
	clients  map[uint64]*Client
}

// New creates a Server around engine. hooks wires SAVE/BGSAVE/INFO/etc
// into the rest of the process (rdb, aof, repl); it may be nil, in
// which case those commands degrade to stand-ins (see command/admin.go).
func New(engine *Engine, hooks *command.Hooks) *Server {
	return &Server{engine: engine, hooks: hooks, clients: make(map[uint64]*Client)}
}

// ListenAndServe binds addr and accepts connections until ctx is done or
// an unrecoverable accept error occurs.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("server: accept: %w", err)
			}
		}
		c := s.engine.Accept(conn, s.hooks)
		s.mu.Lock()
		s.clients[c.ID] = c
		s.mu.Unlock()
		go s.reapOnClose(c)
	}
}

// reapOnClose removes a client from the registry once its connection
// ends, so INFO's connected-clients count stays accurate.
func (s *Server) reapOnClose(c *Client) {
	<-c.done
	s.mu.Lock()
	delete(s.clients, c.ID)
	s.mu.Unlock()
}

// ClientCount reports the number of currently connected clients, used by
// INFO.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close stops accepting new connections and closes every live one.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for _, c := range s.clients {
		c.close()
	}
	return nil
}
