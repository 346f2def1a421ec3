package server

import (
	"bufio"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/mickamy/kvstore/command"
	"github.com/mickamy/kvstore/resp"
)

// Client is one connected socket. A reader goroutine owns parsing and
// feeds complete commands to the engine; a writer goroutine owns the
// socket's write side and drains outbox, the Go-idiomatic replacement
// for a single-threaded writable-callback dance.
type Client struct {
	ID   uint64
	UUID string // per-connection identifier, grounded on proxy/mysql's use of uuid for event IDs
	conn net.Conn

	ctx *command.Context

	outbox chan []byte
	done   chan struct{}
	once   sync.Once

	// monitoring marks a client that issued MONITOR: it never gets normal
	// replies again, only broadcast command events.
	monitoring bool

	// masterLink marks the socket back to our replication master: we
	// execute whatever it sends but never write a reply to it — writes
	// back to a master are always suppressed.
	masterLink bool

	// lastInteraction is the unix-second time of the client's most recent
	// command, updated by the engine on each dispatch. The cron tick
	// compares this against the configured idle timeout.
	lastInteraction int64
}

const outboxBuffer = 256

func newClient(id uint64, conn net.Conn, ctx *command.Context) *Client {
	return &Client{
		ID:     id,
		UUID:   uuid.NewString(),
		conn:   conn,
		ctx:    ctx,
		outbox: make(chan []byte, outboxBuffer),
		done:   make(chan struct{}),
	}
}

// enqueue appends a framed reply to the client's outbox. While the outbox
// is full it blocks until the writer goroutine drains an entry or the
// connection closes: a client that stops reading its socket fills the
// TCP send buffer, then the outbox, and then stalls the caller — the
// back-pressure a per-tick byte budget gives, expressed through a
// channel instead.
func (c *Client) enqueue(b []byte) {
	if c.masterLink {
		return
	}
	select {
	case c.outbox <- b:
	case <-c.done:
	}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Done returns a channel closed once this connection ends, so callers
// outside the package (the replication dial loop in cmd/kvstored) can
// block until a replica link drops and trigger a reconnect.
func (c *Client) Done() <-chan struct{} { return c.done }

// writeLoop drains the outbox using net.Buffers so that several queued
// replies coalesce into one writev syscall, the direct analogue of
// §4.11's "glue" optimization for small replies.
func (c *Client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case first, ok := <-c.outbox:
			if !ok {
				return
			}
			bufs := net.Buffers{first}
		drain:
			for {
				select {
				case b, ok := <-c.outbox:
					if !ok {
						break drain
					}
					bufs = append(bufs, b)
				default:
					break drain
				}
			}
			if _, err := bufs.WriteTo(c.conn); err != nil {
				c.close()
				return
			}
		}
	}
}

// readLoop blocks on Read, incrementally parses commands with package
// resp, and forwards each complete command to submit. It returns when
// the connection closes or a protocol error forces it shut.
func (c *Client) readLoop(submit func(*Client, [][]byte)) {
	defer c.close()
	parser := resp.NewParser()
	r := bufio.NewReaderSize(c.conn, 64*1024)
	buf := make([]byte, 64*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			parser.Feed(buf[:n])
			for {
				args, ok, perr := parser.Next()
				if perr != nil {
					c.enqueue(resp.AppendError(nil, "ERR Protocol error: "+perr.Error()))
					return
				}
				if !ok {
					break
				}
				submit(c, args)
			}
		}
		if err != nil {
			return
		}
	}
}
