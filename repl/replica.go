package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mickamy/kvstore/resp"
)

// State is this process's own replication role.
type State int

const (
	None State = iota
	MustConnect
	Connected
)

func (s State) String() string {
	switch s {
	case MustConnect:
		return "must_connect"
	case Connected:
		return "connected"
	default:
		return "none"
	}
}

// Replica drives the client half of the handshake against a master and
// hands the resulting socket to the engine for the live command stream.
type Replica struct {
	MasterAddr string
	AuthPass   string

	state State
}

// NewReplica configures a replica pointed at host:port.
func NewReplica(host, port, authPass string) *Replica {
	return &Replica{MasterAddr: net.JoinHostPort(host, port), AuthPass: authPass, state: MustConnect}
}

// State reports the current handshake state, for INFO.
func (r *Replica) State() State { return r.state }

// Handshake dials the master, authenticates if configured, issues SYNC,
// and calls loadSnapshot with exactly the bulk snapshot's bytes (the
// caller typically wraps rdb.Load). It returns the now-bare socket
// positioned right after the bulk payload so the caller can hand it to
// Engine.AcceptReplicaLink, which thereafter treats the master socket as
// a regular client connection carrying the ongoing command stream.
func (r *Replica) Handshake(ctx context.Context, loadSnapshot func(r io.Reader, size int) error) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", r.MasterAddr)
	if err != nil {
		return nil, fmt.Errorf("repl: dial master: %w", err)
	}

	br := bufio.NewReader(conn)

	if r.AuthPass != "" {
		if _, err := conn.Write(resp.AppendBulkStrings(nil, []string{"AUTH", r.AuthPass})); err != nil {
			conn.Close()
			return nil, fmt.Errorf("repl: AUTH: %w", err)
		}
		if _, err := br.ReadString('\n'); err != nil {
			conn.Close()
			return nil, fmt.Errorf("repl: AUTH reply: %w", err)
		}
	}

	if _, err := conn.Write(resp.AppendBulkStrings(nil, []string{"SYNC"})); err != nil {
		conn.Close()
		return nil, fmt.Errorf("repl: SYNC: %w", err)
	}

	sizeLine, err := br.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("repl: read bulk header: %w", err)
	}
	size, err := parseBulkHeader(sizeLine)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("repl: bad bulk header %q: %w", sizeLine, err)
	}

	if err := loadSnapshot(br, size); err != nil {
		conn.Close()
		return nil, fmt.Errorf("repl: load snapshot: %w", err)
	}

	r.state = Connected
	return conn, nil
}

func parseBulkHeader(line string) (int, error) {
	if len(line) < 2 || line[0] != '$' {
		return 0, fmt.Errorf("missing $ prefix")
	}
	trimmed := line[1:]
	for len(trimmed) > 0 && (trimmed[len(trimmed)-1] == '\n' || trimmed[len(trimmed)-1] == '\r') {
		trimmed = trimmed[:len(trimmed)-1]
	}
	return strconv.Atoi(trimmed)
}

// RunWithReconnect repeatedly calls connect (typically: dial, Handshake,
// hand the link to Engine.AcceptReplicaLink, then block until that link
// closes) until ctx is cancelled, backing off exponentially between
// failures, matching how the rest of this codebase treats transient
// network failures.
func (r *Replica) RunWithReconnect(ctx context.Context, connect func(context.Context) error) {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // never give up; only ctx ends the loop
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		r.state = MustConnect
		if err := connect(ctx); err != nil {
			wait := b.NextBackOff()
			if wait == backoff.Stop {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()
	}
}
