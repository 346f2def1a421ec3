package store

import (
	"testing"

	"github.com/mickamy/kvstore/value"
)

func TestReadExpiresLazily(t *testing.T) {
	t.Parallel()

	db := NewDB()
	db.Set("k", value.NewString([]byte("v")))
	db.SetExpiry("k", 100, 50)

	if _, ok := db.Read("k", 50); !ok {
		t.Fatalf("expected key present before expiry")
	}
	if _, ok := db.Read("k", 200); ok {
		t.Fatalf("expected key expired")
	}
	if db.Size() != 0 {
		t.Fatalf("expired key should have been deleted, size = %d", db.Size())
	}
}

func TestPrepareWriteDeletesTTLKey(t *testing.T) {
	t.Parallel()

	db := NewDB()
	db.Set("list", value.NewList())
	db.SetExpiry("list", 1000, 0)

	// Writing to a TTL'd key deletes it first, even for a handler that
	// would otherwise only append to it.
	db.PrepareWrite("list", 0)
	if db.Exists("list", 0) {
		t.Fatalf("expected TTL'd key to be dropped by PrepareWrite")
	}
}

func TestRenameDeletesTargetFirst(t *testing.T) {
	t.Parallel()

	db := NewDB()
	db.Set("src", value.NewString([]byte("s")))
	db.Set("dst", value.NewString([]byte("d")))

	if !db.Rename("src", "dst", 0) {
		t.Fatalf("rename failed")
	}
	v, ok := db.Read("dst", 0)
	if !ok || string(v.StringBytes()) != "s" {
		t.Fatalf("dst should hold source's value")
	}
	if db.Exists("src", 0) {
		t.Fatalf("src should no longer exist")
	}
}

func TestMoveFailsIfTargetExists(t *testing.T) {
	t.Parallel()

	src := NewDB()
	dst := NewDB()
	src.Set("k", value.NewString([]byte("1")))
	dst.Set("k", value.NewString([]byte("2")))

	if src.MoveTo(dst, "k", 0) {
		t.Fatalf("move should fail when target already has the key")
	}
	if !src.Exists("k", 0) {
		t.Fatalf("source key should remain after failed move")
	}
}

func TestMoveSucceedsAndRemovesSource(t *testing.T) {
	t.Parallel()

	src := NewDB()
	dst := NewDB()
	src.Set("k", value.NewString([]byte("1")))

	if !src.MoveTo(dst, "k", 0) {
		t.Fatalf("move should succeed")
	}
	if src.Exists("k", 0) {
		t.Fatalf("source should no longer have key")
	}
	if !dst.Exists("k", 0) {
		t.Fatalf("dest should have key")
	}
}

func TestWaiterFIFOOrder(t *testing.T) {
	t.Parallel()

	db := NewDB()
	w1 := &Waiter{ID: 1, Notify: make(chan string, 1)}
	w2 := &Waiter{ID: 2, Notify: make(chan string, 1)}
	db.AddWaiter("q", w1)
	db.AddWaiter("q", w2)

	if got := db.PopWaiter("q"); got.ID != 1 {
		t.Fatalf("expected waiter 1 first, got %d", got.ID)
	}
	if got := db.PopWaiter("q"); got.ID != 2 {
		t.Fatalf("expected waiter 2 second, got %d", got.ID)
	}
	if db.PopWaiter("q") != nil {
		t.Fatalf("expected no more waiters")
	}
}

func TestTTLValues(t *testing.T) {
	t.Parallel()

	db := NewDB()
	if got := db.TTL("missing", 0); got != -2 {
		t.Fatalf("TTL of missing key = %d, want -2", got)
	}
	db.Set("persistent", value.NewString([]byte("v")))
	if got := db.TTL("persistent", 0); got != -1 {
		t.Fatalf("TTL of persistent key = %d, want -1", got)
	}
	db.SetExpiry("persistent", 100, 90)
	if got := db.TTL("persistent", 90); got != 10 {
		t.Fatalf("TTL = %d, want 10", got)
	}
}
