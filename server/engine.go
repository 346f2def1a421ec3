// Package server implements the engine goroutine, per-connection
// client state, and TCP listener: one reader and one writer goroutine
// per connection, funneling into a single engine goroutine that is the
// sole mutator of every keyspace. This is the Go-native replacement for
// a poll()-driven single-threaded event loop, grounded on the
// relay-pair goroutine idiom in proxy/mysql/conn.go's
// relayClientToUpstream / relayUpstreamToClient, generalized from a 1:1
// relay to an N:1 fan-in.
package server

import (
	"context"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/mickamy/kvstore/aof"
	"github.com/mickamy/kvstore/broker"
	"github.com/mickamy/kvstore/command"
	"github.com/mickamy/kvstore/expire"
	"github.com/mickamy/kvstore/memory"
	"github.com/mickamy/kvstore/resp"
	"github.com/mickamy/kvstore/stats"
	"github.com/mickamy/kvstore/store"
	"github.com/mickamy/kvstore/value"
	"github.com/mickamy/kvstore/vm"
)

type request struct {
	client *Client
	args   [][]byte
}

// blockedClient is a client parked on BLPOP/BRPOP, tracked by the engine
// itself rather than by the generic store.Waiter, since only the engine
// knows which end of the list to pop from and how to reply.
type blockedClient struct {
	client      *Client
	db          *store.DB
	keys        []string
	fromLeft    bool
	hasDeadline bool
	deadline    int64 // unix seconds
}

// Engine owns every database and is the only goroutine that ever
// mutates them; everything else communicates with it through the
// requests channel.
type Engine struct {
	dbs         []*store.DB
	tracker     *memory.Tracker
	brk         *broker.Broker
	dirty       int64
	requirePass string
	startUnix   int64

	requests chan request
	closed   chan uint64

	nextClientID uint64
	nextWaiterID uint64
	blocked      map[uint64]*blockedClient
	clients      map[uint64]*Client
	idleTimeout  int64

	replFeed ReplicationFeed
	aofFeed  AOFFeed

	counters *stats.Counters
	hotKeys  *stats.HotKeyDetector

	pager       *vm.Pager
	pool        *vm.Pool
	vmMaxMemory int64
}

// ReplicationFeed receives every successful write command so package repl
// can fan it out to connected replicas ("every mutating command is also
// enqueued into the replica's output queue"). Defined here, the consumer
// side, so package repl has no import-cycle back to package server.
type ReplicationFeed interface {
	Feed(dbIndex int, args [][]byte)
}

// SetReplicationFeed wires a repl.Master (or any ReplicationFeed) into
// the dispatch loop. Passing nil disables feeding, the default state for
// a server with no replicas configured.
func (e *Engine) SetReplicationFeed(f ReplicationFeed) { e.replFeed = f }

// AOFFeed receives every successful write command for durable replay, the
// same role ReplicationFeed plays for replicas. Defined here, the
// consumer side, so package aof has no import-cycle back to package
// server.
type AOFFeed interface {
	Append(args []string) error
}

// SetAOFFeed wires an *aof.Log (or any AOFFeed) into the dispatch loop.
// Passing nil disables logging, the default state when appendonly is off.
func (e *Engine) SetAOFFeed(f AOFFeed) { e.aofFeed = f }

// SetPager wires the VM pager into the cron-driven swap-out scan. pool
// may be nil for blocking mode, in which case swap-out runs synchronously
// on the engine goroutine instead of through worker jobs. vmMax is the
// vm-max-memory threshold above which swapping begins. Every database's
// swap-in path is wired at the same time, so a read of a SWAPPED key
// works regardless of whether swap-out ever triggers again.
func (e *Engine) SetPager(p *vm.Pager, pool *vm.Pool, vmMax int64) {
	e.pager = p
	e.pool = pool
	e.vmMaxMemory = vmMax
	for _, db := range e.dbs {
		db.SetSwapIn(p.SwapIn)
	}
}

const requestQueueDepth = 4096

// NewEngine creates an Engine with numDBs independent keyspaces and the
// given memory cap (0 = unlimited).
func NewEngine(numDBs int, memCapBytes int64, requirePass string) *Engine {
	dbs := make([]*store.DB, numDBs)
	for i := range dbs {
		dbs[i] = store.NewDB()
	}
	return &Engine{
		dbs:         dbs,
		tracker:     memory.NewTracker(memCapBytes),
		brk:         broker.New(),
		requirePass: requirePass,
		startUnix:   store.Now(),
		requests:    make(chan request, requestQueueDepth),
		closed:      make(chan uint64, requestQueueDepth),
		blocked:     make(map[uint64]*blockedClient),
		clients:     make(map[uint64]*Client),
		counters:    stats.NewCounters(),
		hotKeys:     stats.NewHotKeyDetector(100, time.Second, 10*time.Second),
	}
}

// SetIdleTimeout configures the number of idle seconds the cron tick
// tolerates before closing a client's connection. 0 disables the check.
// Master and replica links are always exempt.
func (e *Engine) SetIdleTimeout(seconds int) { e.idleTimeout = int64(seconds) }

// CommandStats exposes the INFO commandstats section.
func (e *Engine) CommandStats() []stats.CommandCount { return e.counters.Snapshot() }

// Broker exposes the command-event feed for MONITOR and the admin SSE
// endpoint.
func (e *Engine) Broker() *broker.Broker { return e.brk }

// DBs exposes the keyspaces for the rdb/aof writers, which run from the
// engine goroutine during SAVE/BGSAVE (never concurrently with Run's
// dispatch loop, since those hooks are themselves invoked through
// Dispatch).
func (e *Engine) DBs() []*store.DB { return e.dbs }

// Dirty returns the current mutation counter.
func (e *Engine) Dirty() int64 { return e.dirty }

// ResetDirty zeroes the counter, called after a successful snapshot. This
// loses mutations that land during the save; see DESIGN.md for why we
// keep that race rather than add a snapshot-start cursor.
func (e *Engine) ResetDirty() { e.dirty = 0 }

// newClientContext builds the per-connection command.Context, pinned to
// db 0 and requiring AUTH first if a password is configured.
func (e *Engine) newClientContext(hooks *command.Hooks) *command.Context {
	return &command.Context{
		DB:            e.dbs[0],
		DBIndex:       0,
		AllDBs:        e.dbs,
		Mem:           e.tracker,
		Dirty:         &e.dirty,
		Now:           store.Now(),
		Authenticated: e.requirePass == "",
		RequirePass:   e.requirePass,
		Hooks:         hooks,
	}
}

// Accept registers a freshly connected socket, wiring its reader/writer
// goroutines and context, and returns the Client handle.
func (e *Engine) Accept(conn net.Conn, hooks *command.Hooks) *Client {
	e.nextClientID++
	c := newClient(e.nextClientID, conn, e.newClientContext(hooks))
	c.lastInteraction = store.Now()
	e.clients[c.ID] = c
	go e.reapClient(c)
	go c.writeLoop()
	go c.readLoop(e.submit)
	return c
}

// reapClient notifies the engine goroutine once c's connection closes, so
// it can drop c from the client registry; the idle-timeout scan in
// onCronTick must never look at a dead client.
func (e *Engine) reapClient(c *Client) {
	<-c.done
	e.closed <- c.ID
}

// AcceptReplicaLink registers the socket back to our replication master
// once the SYNC handshake and bulk transfer have already been consumed
// by package repl: further traffic on conn is ordinary commands that
// must run through the single engine goroutine like any other client,
// except replies are never written back. Master/replica links are always
// exempt from the idle-client timeout.
func (e *Engine) AcceptReplicaLink(conn net.Conn, hooks *command.Hooks) *Client {
	c := e.Accept(conn, hooks)
	c.masterLink = true
	c.ctx.Authenticated = true
	return c
}

// submit is called from a client's reader goroutine; it only ever
// enqueues onto the engine's channel; no keyspace is touched here.
func (e *Engine) submit(c *Client, args [][]byte) {
	select {
	case e.requests <- request{client: c, args: args}:
	case <-c.done:
	}
}

// Run is the engine's event loop: the single select statement that
// plays the role of a poll()-driven main thread, now driven by Go's
// channel receive instead. The cron tick folds in active expiration, the
// memory reclaim pass, VM swap-out, and idle-client disconnection.
func (e *Engine) Run(ctx context.Context) {
	cron := time.NewTicker(100 * time.Millisecond)
	defer cron.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-e.requests:
			e.process(req)
		case id := <-e.closed:
			delete(e.clients, id)
		case <-cron.C:
			e.onCronTick()
		}
	}
}

func (e *Engine) process(req request) {
	if len(req.args) == 0 {
		return
	}
	req.client.lastInteraction = store.Now()
	name := strings.ToUpper(string(req.args[0]))
	e.counters.Record(req.args)
	if len(req.args) > 1 {
		if alert := e.hotKeys.Touch(string(req.args[1]), time.Unix(store.Now(), 0)); alert != nil {
			e.brk.Publish(broker.Event{
				DB:      req.client.ctx.DBIndex,
				Client:  "hotkey-detector",
				Command: []string{"HOTKEY", alert.Key, strconv.Itoa(alert.Count)},
				Unix:    store.Now(),
			})
		}
	}
	reply := command.Dispatch(req.client.ctx, req.args)

	switch {
	case reply.Kind == command.Pending && len(reply.BlockKeys) > 0:
		e.park(req.client, reply)
		return
	case name == "SHUTDOWN":
		req.client.close()
		return
	case name == "MONITOR":
		req.client.monitoring = true
		req.client.enqueue(resp.AppendSimpleString(nil, "OK"))
		return
	case name == "SYNC":
		// Real SYNC takes over the raw socket before any further RESP
		// framing; that handoff happens in package repl against its own
		// listener, not through ordinary command dispatch, so a plain
		// client sending SYNC here is refused.
		req.client.enqueue(resp.AppendError(nil, "ERR SYNC must be initiated on the replication listener"))
		return
	}

	req.client.enqueue(command.Encode(nil, reply))
	e.brk.Publish(broker.Event{
		DB:      req.client.ctx.DBIndex,
		Client:  req.client.UUID,
		Command: argsToStrings(req.args),
		Unix:    store.Now(),
	})
	if reply.Kind != command.ErrKind {
		e.afterMutation(req.client.ctx.DB, name, req.args)
		if spec, ok := command.Lookup(name); ok && spec.Flags&command.Write != 0 {
			if e.replFeed != nil {
				e.replFeed.Feed(req.client.ctx.DBIndex, req.args)
			}
			if e.aofFeed != nil {
				rewritten := aof.ExpireAtRewrite(argsToStrings(req.args), store.Now())
				if err := e.aofFeed.Append(rewritten); err != nil {
					log.Printf("aof: append: %v", err)
				}
			}
		}
	}
}

// afterMutation wakes any BLPOP/BRPOP clients a push command may have
// just satisfied. It only inspects the handful of commands capable of
// adding list elements, so most dispatches take this branch for free.
func (e *Engine) afterMutation(db *store.DB, name string, args [][]byte) {
	switch name {
	case "LPUSH", "RPUSH":
		if len(args) >= 2 {
			e.serveWaiters(db, string(args[1]))
		}
	case "RPOPLPUSH":
		if len(args) >= 3 {
			e.serveWaiters(db, string(args[2]))
		}
	}
}

func (e *Engine) serveWaiters(db *store.DB, key string) {
	for {
		v, found := db.Read(key, store.Now())
		if !found || len(v.ListData) == 0 {
			return
		}
		w := db.PopWaiter(key)
		if w == nil {
			return
		}
		bc, ok := e.blocked[w.ID]
		if !ok {
			continue // stale: already served via another key, or timed out
		}
		var elem string
		if bc.fromLeft {
			elem = v.ListData[0]
			v.ListData = v.ListData[1:]
		} else {
			elem = v.ListData[len(v.ListData)-1]
			v.ListData = v.ListData[:len(v.ListData)-1]
		}
		if len(v.ListData) == 0 {
			db.Delete(key)
		}
		db.RemoveWaiter(bc.keys, w.ID)
		delete(e.blocked, w.ID)
		reply := command.ReplyArray(command.ReplyBulkString(key), command.ReplyBulkString(elem))
		bc.client.enqueue(command.Encode(nil, reply))
	}
}

func (e *Engine) park(c *Client, reply command.Reply) {
	e.nextWaiterID++
	id := e.nextWaiterID
	bc := &blockedClient{
		client:   c,
		db:       c.ctx.DB,
		keys:     reply.BlockKeys,
		fromLeft: reply.FromLeft,
	}
	if reply.BlockTimeout > 0 {
		bc.hasDeadline = true
		timeout := int64(reply.BlockTimeout)
		if timeout < 1 {
			timeout = 1
		}
		bc.deadline = store.Now() + timeout
	}
	e.blocked[id] = bc
	for _, k := range reply.BlockKeys {
		c.ctx.DB.AddWaiter(k, &store.Waiter{ID: id})
	}
}

func (e *Engine) onCronTick() {
	now := store.Now()

	for id, bc := range e.blocked {
		if bc.hasDeadline && now >= bc.deadline {
			delete(e.blocked, id)
			bc.db.RemoveWaiter(bc.keys, id)
			bc.client.enqueue(command.Encode(nil, command.ReplyNilArray()))
		}
	}

	expire.Sweep(e.dbs, now)

	if e.tracker.OverCap() {
		memory.Reclaim(e.dbs, e.tracker, now, func(db *store.DB, key string) {
			e.dirty++
		})
	}

	if e.pager != nil {
		e.swapOutTick(now)
	}

	if e.idleTimeout > 0 {
		e.closeIdleClients(now)
	}
}

// closeIdleClients drops any non-replication connection that has sent no
// command in the last idleTimeout seconds. Master and replica links never
// time out.
func (e *Engine) closeIdleClients(now int64) {
	for _, c := range e.clients {
		if c.masterLink {
			continue
		}
		if now-c.lastInteraction >= e.idleTimeout {
			c.close()
		}
	}
}

// swapOutTick implements the per-tick swap-out candidate scan: once
// resident memory exceeds vm-max-memory, sample up to 5 MEMORY-state
// keys per database, score by idle-seconds x log(1 + estimated-bytes),
// and swap out whichever sample scores highest.
func (e *Engine) swapOutTick(now int64) {
	if e.tracker.Used() < e.vmMaxMemory {
		return
	}
	for i, db := range e.dbs {
		keys, vals, access := db.MemoryResidentKeys(now)
		if len(keys) == 0 {
			continue
		}
		idx := vm.SampleUpTo(len(keys), 5)
		sKeys := make([]string, len(idx))
		sVals := make([]*value.Value, len(idx))
		sAccess := make([]int64, len(idx))
		for j, k := range idx {
			sKeys[j], sVals[j], sAccess[j] = keys[k], vals[k], access[k]
		}
		best, ok := vm.SwapOutCandidate(sKeys, sVals, sAccess, now)
		if !ok {
			continue
		}
		key, v := sKeys[best], sVals[best]
		if e.pool != nil {
			e.pool.Submit(vm.Job{Kind: vm.DoSwap, Key: key, Value: v, DBIndex: i})
			continue
		}
		if desc, err := e.pager.SwapOut(v, now); err == nil {
			db.InstallSwap(key, desc)
		}
	}
	e.drainSwapCompletions()
}

// drainSwapCompletions installs every DO_SWAP result the worker pool has
// finished since the last tick, the Go-channel equivalent of a self-pipe
// completion signal for threaded mode.
func (e *Engine) drainSwapCompletions() {
	if e.pool == nil {
		return
	}
	for {
		select {
		case res := <-e.pool.Completions:
			if res.Job.Kind == vm.DoSwap && res.Err == nil && res.Desc != nil {
				if res.Job.DBIndex >= 0 && res.Job.DBIndex < len(e.dbs) {
					e.dbs[res.Job.DBIndex].InstallSwap(res.Job.Key, res.Desc)
				}
			}
		default:
			return
		}
	}
}

func argsToStrings(args [][]byte) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = string(a)
	}
	return out
}
