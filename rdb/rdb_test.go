package rdb_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mickamy/kvstore/rdb"
	"github.com/mickamy/kvstore/store"
	"github.com/mickamy/kvstore/value"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dbs := []*store.DB{store.NewDB(), store.NewDB()}
	dbs[0].Set("greeting", value.NewString([]byte("hello world")))
	dbs[0].Set("counter", value.NewStringFromInt(42))
	dbs[0].SetExpiry("counter", 9999999999, 0)

	list := value.NewList()
	list.ListData = []string{"a", "b", "c"}
	dbs[0].Set("mylist", list)

	set := value.NewSet()
	set.SetData["x"] = struct{}{}
	set.SetData["y"] = struct{}{}
	dbs[0].Set("myset", set)

	zset := value.NewZSet()
	zset.ZSetData["alice"] = 1.5
	zset.ZSetData["bob"] = -3
	dbs[0].Set("myzset", zset)

	hash := value.NewHash()
	hash.HashData["field1"] = "val1"
	dbs[1].Set("myhash", hash)

	var buf bytes.Buffer
	if err := rdb.Save(&buf, dbs, 0, rdb.Options{Compress: true}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := []*store.DB{store.NewDB(), store.NewDB()}
	if err := rdb.Load(&buf, loaded); err != nil {
		t.Fatalf("Load: %v", err)
	}

	v, ok := loaded[0].Read("greeting", 0)
	if !ok || string(v.StringBytes()) != "hello world" {
		t.Fatalf("greeting = %v, %v", v, ok)
	}
	v, ok = loaded[0].Read("counter", 0)
	if !ok || string(v.StringBytes()) != "42" {
		t.Fatalf("counter = %v, %v", v, ok)
	}
	if ttl := loaded[0].TTL("counter", 0); ttl <= 0 {
		t.Errorf("counter TTL = %d, want > 0", ttl)
	}

	v, ok = loaded[0].Read("mylist", 0)
	if !ok || len(v.ListData) != 3 || v.ListData[1] != "b" {
		t.Fatalf("mylist = %v, %v", v, ok)
	}

	v, ok = loaded[0].Read("myset", 0)
	if !ok || len(v.SetData) != 2 {
		t.Fatalf("myset = %v, %v", v, ok)
	}

	v, ok = loaded[0].Read("myzset", 0)
	if !ok || v.ZSetData["alice"] != 1.5 || v.ZSetData["bob"] != -3 {
		t.Fatalf("myzset = %v, %v", v, ok)
	}

	v, ok = loaded[1].Read("myhash", 0)
	if !ok || v.HashData["field1"] != "val1" {
		t.Fatalf("myhash = %v, %v", v, ok)
	}
}

func TestSaveLoadLongStringCompressed(t *testing.T) {
	t.Parallel()
	dbs := []*store.DB{store.NewDB()}
	long := strings.Repeat("the quick brown fox jumps ", 50)
	dbs[0].Set("big", value.NewString([]byte(long)))

	var buf bytes.Buffer
	if err := rdb.Save(&buf, dbs, 0, rdb.Options{Compress: true}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded := []*store.DB{store.NewDB()}
	if err := rdb.Load(&buf, loaded); err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, ok := loaded[0].Read("big", 0)
	if !ok || string(v.StringBytes()) != long {
		t.Fatalf("big round-trip mismatch")
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	t.Parallel()
	err := rdb.Load(bytes.NewReader([]byte("NOTRDB0001")), []*store.DB{store.NewDB()})
	if err != rdb.ErrBadMagic {
		t.Fatalf("err = %v, want ErrBadMagic", err)
	}
}

func TestSaveSkipsEmptyDatabases(t *testing.T) {
	t.Parallel()
	dbs := []*store.DB{store.NewDB(), store.NewDB()}
	dbs[1].Set("only", value.NewString([]byte("v")))

	var buf bytes.Buffer
	if err := rdb.Save(&buf, dbs, 0, rdb.Options{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded := []*store.DB{store.NewDB(), store.NewDB()}
	if err := rdb.Load(&buf, loaded); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded[0].Size() != 0 {
		t.Errorf("db0 size = %d, want 0", loaded[0].Size())
	}
	if loaded[1].Size() != 1 {
		t.Errorf("db1 size = %d, want 1", loaded[1].Size())
	}
}

func TestSaveLoadNegativeAndZeroScores(t *testing.T) {
	t.Parallel()
	dbs := []*store.DB{store.NewDB()}
	zset := value.NewZSet()
	zset.ZSetData["zero"] = 0
	zset.ZSetData["neg"] = -99.25
	dbs[0].Set("z", zset)

	var buf bytes.Buffer
	if err := rdb.Save(&buf, dbs, 0, rdb.Options{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded := []*store.DB{store.NewDB()}
	if err := rdb.Load(&buf, loaded); err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, _ := loaded[0].Read("z", 0)
	if v.ZSetData["zero"] != 0 || v.ZSetData["neg"] != -99.25 {
		t.Fatalf("scores = %v", v.ZSetData)
	}
}
