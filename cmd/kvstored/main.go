// Command kvstored is the key/value store daemon: it loads a config
// file in the style of cmd/sql-tapd/main.go's flag.FlagSet, wires the
// engine to persistence (rdb/aof), replication (repl), the VM pager,
// and the admin HTTP sidecar, then serves the RESP listener until a
// shutdown signal arrives.
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/mickamy/kvstore/admin"
	"github.com/mickamy/kvstore/aof"
	"github.com/mickamy/kvstore/command"
	"github.com/mickamy/kvstore/config"
	"github.com/mickamy/kvstore/rdb"
	"github.com/mickamy/kvstore/repl"
	"github.com/mickamy/kvstore/server"
	"github.com/mickamy/kvstore/store"
	"github.com/mickamy/kvstore/vm"
)

var version = "dev"

func main() {
	fs := flag.NewFlagSet("kvstored", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "kvstored — in-memory key/value store daemon\n\nUsage:\n  kvstored [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "path to config file (directive/value pairs)")
	showVersion := fs.Bool("version", false, "show version and exit")
	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("kvstored %s\n", version)
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			log.Fatalf("open config: %v", err)
		}
		cfg, err = config.Parse(f)
		f.Close()
		if err != nil {
			log.Fatalf("parse config: %v", err)
		}
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := newDaemon(cfg)
	return d.start(ctx)
}

// daemon owns every long-lived component wired around one Engine, and
// implements the command.Hooks entry points SAVE/BGSAVE/INFO/etc reach
// back into (command/admin.go).
type daemon struct {
	cfg    *config.Config
	engine *server.Engine
	srv    *server.Server

	mu           sync.Mutex
	lastSaveUnix int64
	aofLog       *aof.Log
	master       *repl.Master
	replica      *repl.Replica
	pager        *vm.Pager
	adminSrv     *admin.Server
}

func newDaemon(cfg *config.Config) *daemon {
	numDBs := cfg.Databases
	if numDBs <= 0 {
		numDBs = 16
	}
	engine := server.NewEngine(numDBs, cfg.MaxMemory, cfg.RequirePass)
	engine.SetIdleTimeout(cfg.Timeout)
	return &daemon{cfg: cfg, engine: engine}
}

func (d *daemon) dbFilePath() string  { return filepath.Join(d.cfg.Dir, d.cfg.DBFilename) }
func (d *daemon) aofFilePath() string { return filepath.Join(d.cfg.Dir, d.cfg.AppendFile) }

func (d *daemon) start(ctx context.Context) error {
	hooks := &command.Hooks{
		Save:         d.save,
		BGSave:       func() { go func() { _ = d.save() }() },
		BGRewriteAOF: func() { go d.bgRewriteAOF() },
		LastSaveUnix: d.getLastSaveUnix,
		Shutdown:     d.shutdown,
		SlaveOf:      d.slaveOf,
		SlaveOfNoOne: d.slaveOfNoOne,
		InfoString:   d.infoString,
		DebugObject:  d.debugObject,
		DebugSwapOut: d.debugSwapOut,
		DebugReload:  d.debugReload,
		DebugLoadAOF: d.debugLoadAOF,
	}

	// AOF wins over RDB at startup if both are present.
	if d.cfg.AppendOnly {
		loadCtx := &command.Context{AllDBs: d.engine.DBs(), DB: d.engine.DBs()[0], Now: store.Now(), Authenticated: true}
		if err := aof.Load(d.aofFilePath(), loadCtx); err != nil {
			return fmt.Errorf("kvstored: load aof: %w", err)
		}
		policy, err := aof.ParseFSyncPolicy(d.cfg.AppendFSync)
		if err != nil {
			return fmt.Errorf("kvstored: appendfsync: %w", err)
		}
		l, err := aof.Open(d.aofFilePath(), policy)
		if err != nil {
			return fmt.Errorf("kvstored: open aof: %w", err)
		}
		d.aofLog = l
		d.engine.SetAOFFeed(l)
	} else if err := d.loadRDBIfPresent(); err != nil {
		return fmt.Errorf("kvstored: load rdb: %w", err)
	}

	if d.cfg.VMEnabled {
		pageSize, pages := d.cfg.VMPageSize, d.cfg.VMPages
		if pageSize <= 0 {
			pageSize = 4096
		}
		if pages <= 0 {
			pages = 1024
		}
		swapFile := d.cfg.VMSwapFile
		if swapFile == "" {
			swapFile = filepath.Join(d.cfg.Dir, "kvstore.swap")
		}
		pager, err := vm.Open(swapFile, pageSize, pages)
		if err != nil {
			return fmt.Errorf("kvstored: open vm pager: %w", err)
		}
		d.pager = pager
		defer pager.Close()

		var pool *vm.Pool
		if d.cfg.VMMaxThreads > 0 {
			pool = vm.NewPool(pager, d.cfg.VMMaxThreads)
			defer pool.Stop()
		}
		d.engine.SetPager(pager, pool, d.cfg.VMMaxMemory)
	}

	d.master = repl.NewMaster(d.engine.DBs(), rdb.Options{Compress: d.cfg.RDBCompression})
	d.engine.SetReplicationFeed(d.master)

	if d.cfg.SlaveOfHost != "" {
		if err := d.slaveOf(d.cfg.SlaveOfHost, d.cfg.SlaveOfPort); err != nil {
			log.Printf("kvstored: initial SLAVEOF failed: %v", err)
		}
	}

	go d.engine.Run(ctx)
	go d.runAOFTicker(ctx)
	go d.runAutoSave(ctx)

	d.srv = server.New(d.engine, hooks)

	var lc net.ListenConfig
	replLis, err := lc.Listen(ctx, "tcp", replAddr(d.cfg))
	if err != nil {
		return fmt.Errorf("kvstored: listen replication %s: %w", replAddr(d.cfg), err)
	}
	go d.serveReplication(ctx, replLis, hooks)

	if d.cfg.AdminListen != "" {
		adminLis, err := lc.Listen(ctx, "tcp", d.cfg.AdminListen)
		if err != nil {
			return fmt.Errorf("kvstored: listen admin %s: %w", d.cfg.AdminListen, err)
		}
		d.adminSrv = admin.New(d.engine.Broker(), d.adminInfo)
		go func() {
			log.Printf("admin HTTP listening on %s", d.cfg.AdminListen)
			if err := d.adminSrv.Serve(adminLis); err != nil {
				log.Printf("admin serve: %v", err)
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", d.cfg.Bind, d.cfg.Port)
	log.Printf("kvstored listening on %s", addr)
	if err := d.srv.ListenAndServe(ctx, addr); err != nil {
		return err
	}
	return nil
}

// replAddr binds the replication listener 10000 ports above the client
// port, since the SYNC handshake takes over the raw socket and must
// not share framing with ordinary RESP clients.
func replAddr(cfg *config.Config) string {
	return fmt.Sprintf("%s:%d", cfg.Bind, cfg.Port+10000)
}

func (d *daemon) serveReplication(ctx context.Context, lis net.Listener, hooks *command.Hooks) {
	go func() {
		<-ctx.Done()
		_ = lis.Close()
	}()
	for {
		conn, err := lis.Accept()
		if err != nil {
			return
		}
		go func() {
			if _, err := d.master.HandleSync(conn, store.Now()); err != nil {
				log.Printf("replication: handshake: %v", err)
				conn.Close()
				return
			}
			d.engine.AcceptReplicaLink(conn, hooks)
		}()
	}
}

func (d *daemon) runAOFTicker(ctx context.Context) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.mu.Lock()
			l := d.aofLog
			d.mu.Unlock()
			if l != nil {
				if err := l.Tick(); err != nil {
					log.Printf("aof: tick: %v", err)
				}
			}
		}
	}
}

// runAutoSave triggers SAVE when any configured save point is crossed:
// at least the point's seconds have passed since the last autosave (or
// startup) and the dirty counter has reached the point's change count,
// mirroring the periodic save check a serverCron tick performs.
func (d *daemon) runAutoSave(ctx context.Context) {
	if len(d.cfg.Save) == 0 {
		return
	}
	t := time.NewTicker(time.Second)
	defer t.Stop()
	lastSave := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			elapsed := time.Since(lastSave)
			dirty := d.engine.Dirty()
			for _, sp := range d.cfg.Save {
				if elapsed >= time.Duration(sp.Seconds)*time.Second && dirty >= sp.Changes {
					if err := d.save(); err != nil {
						log.Printf("autosave: %v", err)
					}
					lastSave = time.Now()
					break
				}
			}
		}
	}
}

func (d *daemon) save() error {
	f, err := os.Create(d.dbFilePath())
	if err != nil {
		return fmt.Errorf("create rdb: %w", err)
	}
	defer f.Close()
	if err := rdb.Save(f, d.engine.DBs(), store.Now(), rdb.Options{Compress: d.cfg.RDBCompression}); err != nil {
		return err
	}
	d.engine.ResetDirty()
	d.mu.Lock()
	d.lastSaveUnix = store.Now()
	d.mu.Unlock()
	return nil
}

func (d *daemon) bgRewriteAOF() {
	if err := aof.Rewrite(d.aofFilePath(), d.engine.DBs(), store.Now()); err != nil {
		log.Printf("bgrewriteaof: %v", err)
	}
}

func (d *daemon) getLastSaveUnix() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSaveUnix
}

func (d *daemon) loadRDBIfPresent() error {
	f, err := os.Open(d.dbFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	return rdb.Load(f, d.engine.DBs())
}

func (d *daemon) slaveOf(host, port string) error {
	d.mu.Lock()
	r := repl.NewReplica(host, port, d.cfg.MasterAuth)
	d.replica = r
	d.mu.Unlock()

	go r.RunWithReconnect(context.Background(), func(ctx context.Context) error {
		replConn, err := r.Handshake(ctx, func(rd io.Reader, size int) error {
			return rdb.Load(io.LimitReader(rd, int64(size)), d.engine.DBs())
		})
		if err != nil {
			return err
		}
		c := d.engine.AcceptReplicaLink(replConn, &command.Hooks{})
		<-c.Done()
		return fmt.Errorf("replication link closed")
	})
	return nil
}

func (d *daemon) slaveOfNoOne() {
	d.mu.Lock()
	d.replica = nil
	d.mu.Unlock()
}

func (d *daemon) infoString() string {
	var b bytes.Buffer
	w := bufio.NewWriter(&b)
	role := "master"
	d.mu.Lock()
	if d.replica != nil {
		role = "slave"
	}
	d.mu.Unlock()
	fmt.Fprintf(w, "role:%s\r\n", role)
	fmt.Fprintf(w, "connected_slaves:%d\r\n", d.master.ReplicaCount())
	fmt.Fprintf(w, "used_memory:%d\r\n", 0)
	fmt.Fprintf(w, "changes_since_last_save:%d\r\n", d.engine.Dirty())
	fmt.Fprintf(w, "last_save_time:%d\r\n", d.getLastSaveUnix())
	for _, cc := range d.engine.CommandStats() {
		fmt.Fprintf(w, "cmdstat_%s:calls=%d\r\n", cc.Shape, cc.Calls)
	}
	w.Flush()
	return b.String()
}

func (d *daemon) adminInfo() admin.Info {
	role := "master"
	d.mu.Lock()
	if d.replica != nil {
		role = "slave"
	}
	d.mu.Unlock()
	return admin.Info{
		ConnectedReplicas: d.master.ReplicaCount(),
		DirtySinceSave:    d.engine.Dirty(),
		Role:              role,
	}
}

func (d *daemon) debugObject(key string) (string, bool) {
	v, ok := d.engine.DBs()[0].Read(key, store.Now())
	if !ok {
		return "", false
	}
	return fmt.Sprintf("Value at:%p refcount:1 encoding:%v kind:%s", v, v.Encoding, v.Kind), true
}

func (d *daemon) debugSwapOut(key string) bool {
	if d.pager == nil {
		return false
	}
	db := d.engine.DBs()[0]
	v, ok := db.Read(key, store.Now())
	if !ok {
		return false
	}
	desc, err := d.pager.SwapOut(v, store.Now())
	if err != nil {
		return false
	}
	return db.InstallSwap(key, desc)
}

func (d *daemon) debugReload() error {
	for _, db := range d.engine.DBs() {
		db.Flush()
	}
	return d.loadRDBIfPresent()
}

func (d *daemon) debugLoadAOF() error {
	for _, db := range d.engine.DBs() {
		db.Flush()
	}
	loadCtx := &command.Context{AllDBs: d.engine.DBs(), DB: d.engine.DBs()[0], Now: store.Now(), Authenticated: true}
	return aof.Load(d.aofFilePath(), loadCtx)
}

func (d *daemon) shutdown(nosave bool) {
	if !nosave && len(d.cfg.Save) > 0 {
		if err := d.save(); err != nil {
			log.Printf("shutdown: save: %v", err)
		}
	}
	os.Exit(0)
}

