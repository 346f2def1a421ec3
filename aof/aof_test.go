package aof_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mickamy/kvstore/aof"
	"github.com/mickamy/kvstore/command"
	"github.com/mickamy/kvstore/memory"
	"github.com/mickamy/kvstore/store"
	"github.com/mickamy/kvstore/value"
)

func newTestContext() *command.Context {
	dbs := []*store.DB{store.NewDB(), store.NewDB()}
	dirty := int64(0)
	return &command.Context{
		DB:            dbs[0],
		DBIndex:       0,
		AllDBs:        dbs,
		Mem:           memory.NewTracker(0),
		Dirty:         &dirty,
		Now:           1000,
		Authenticated: true,
	}
}

func TestAppendAndReplay(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")

	log, err := aof.Open(path, aof.FSyncAlways)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := log.Append([]string{"SET", "foo", "bar"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Append([]string{"RPUSH", "mylist", "a", "b"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ctx := newTestContext()
	if err := aof.Load(path, ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, ok := ctx.DB.Read("foo", 1000)
	if !ok || string(v.StringBytes()) != "bar" {
		t.Fatalf("foo = %v, %v", v, ok)
	}
	v, ok = ctx.DB.Read("mylist", 1000)
	if !ok || len(v.ListData) != 2 {
		t.Fatalf("mylist = %v, %v", v, ok)
	}
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	t.Parallel()
	ctx := newTestContext()
	if err := aof.Load(filepath.Join(t.TempDir(), "nope.aof"), ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestExpireAtRewrite(t *testing.T) {
	t.Parallel()
	got := aof.ExpireAtRewrite([]string{"EXPIRE", "k", "10"}, 1000)
	want := []string{"EXPIREAT", "k", "1010"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestExpireAtRewriteLeavesOtherCommandsAlone(t *testing.T) {
	t.Parallel()
	args := []string{"SET", "k", "v"}
	got := aof.ExpireAtRewrite(args, 1000)
	for i := range args {
		if got[i] != args[i] {
			t.Fatalf("got %v, want unchanged %v", got, args)
		}
	}
}

func TestRewriteProducesReplayableFile(t *testing.T) {
	t.Parallel()
	dbs := []*store.DB{store.NewDB()}
	dbs[0].Set("k1", mustString("v1"))
	dbs[0].Set("k2", mustString("v2"))

	dir := t.TempDir()
	path := filepath.Join(dir, "rewrite.aof")
	if err := aof.Rewrite(path, dbs, 1000); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Stat: %v", err)
	}

	ctx := newTestContext()
	if err := aof.Load(path, ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, ok := ctx.DB.Read("k1", 1000)
	if !ok || string(v.StringBytes()) != "v1" {
		t.Fatalf("k1 = %v, %v", v, ok)
	}
}

func mustString(s string) *value.Value { return value.NewString([]byte(s)) }
