// Package command implements the dispatcher and handlers for every
// supported command: the name->Spec table (table.go), per-family
// handlers (strings.go, generic.go, list.go, set.go, zset.go,
// transactions.go, connection.go, admin.go, sort.go), and the Reply
// value handlers return (reply.go), which package server encodes onto
// the wire.
package command

import (
	"sync/atomic"

	"github.com/mickamy/kvstore/memory"
	"github.com/mickamy/kvstore/store"
)

// Context is the per-dispatch environment a handler runs in. One engine
// goroutine (package server) owns a single Context and calls handlers
// synchronously, one at a time, which is what gives the whole system its
// single-threaded dispatch ordering.
type Context struct {
	DB      *store.DB
	DBIndex int
	AllDBs  []*store.DB

	Mem   *memory.Tracker
	Dirty *int64 // mutation counter shared across the server, the save-policy trigger
	Now   int64

	Authenticated bool
	RequirePass   string

	// MultiQueue is non-nil while this client is inside MULTI...EXEC;
	// mutating commands are queued here instead of dispatched.
	MultiQueue *[]QueuedCommand
	MultiError bool

	// Hooks wires admin/persistence/replication side effects that live
	// outside package command (rdb, aof, repl, vm) without command
	// importing any of them directly. Nil hooks degrade to a reasonable
	// stand-in reply rather than a crash, since a server can legitimately
	// run with persistence or replication disabled.
	Hooks *Hooks
}

// Hooks are the admin-command entry points into the rest of the server,
// injected by package server at startup.
type Hooks struct {
	Save             func() error
	BGSave           func()
	BGRewriteAOF     func()
	LastSaveUnix     func() int64
	Shutdown         func(nosave bool)
	SlaveOf          func(host, port string) error
	SlaveOfNoOne     func()
	InfoString       func() string
	DebugObject      func(key string) (string, bool)
	DebugSwapOut     func(key string) bool
	DebugReload      func() error
	DebugLoadAOF     func() error
}

// QueuedCommand is one command deferred by MULTI for later EXEC.
type QueuedCommand struct {
	Spec *Spec
	Args [][]byte
}

// MarkDirty adds n to the shared dirty counter, the save-policy trigger.
func (ctx *Context) MarkDirty(n int64) {
	if ctx.Dirty != nil {
		atomic.AddInt64(ctx.Dirty, n)
	}
}

// SelectDB switches the context's active database, implementing SELECT
// and the post-MOVE/EXEC database pinning.
func (ctx *Context) SelectDB(index int) bool {
	if index < 0 || index >= len(ctx.AllDBs) {
		return false
	}
	ctx.DBIndex = index
	ctx.DB = ctx.AllDBs[index]
	return true
}
