package store

import (
	"testing"

	"github.com/mickamy/kvstore/value"
)

func TestZAddUpdateSemantics(t *testing.T) {
	t.Parallel()

	v := value.NewZSet()
	if !ZAdd(v, "x", 1) {
		t.Fatalf("first add of x should report new")
	}
	if !ZAdd(v, "y", 2) {
		t.Fatalf("first add of y should report new")
	}
	if ZAdd(v, "x", 1) {
		t.Fatalf("re-adding x with same score should report update, not new")
	}

	members := ZWalk(v)
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if members[0].Member != "x" || members[1].Member != "y" {
		t.Fatalf("expected ascending order x,y got %+v", members)
	}
}

func TestZIncrByAccumulates(t *testing.T) {
	t.Parallel()

	v := value.NewZSet()
	got := ZIncrBy(v, "m", 5)
	if got != 5 {
		t.Fatalf("first incrby = %v, want 5", got)
	}
	got = ZIncrBy(v, "m", -2)
	if got != 3 {
		t.Fatalf("second incrby = %v, want 3", got)
	}
	score, ok := ZScore(v, "m")
	if !ok || score != 3 {
		t.Fatalf("ZScore = %v, %v, want 3, true", score, ok)
	}
}

func TestZRangeByScoreAndRemove(t *testing.T) {
	t.Parallel()

	v := value.NewZSet()
	ZAdd(v, "a", 1)
	ZAdd(v, "b", 2)
	ZAdd(v, "c", 3)

	got := ZRangeByScore(v, 2, 3, 0, -1)
	if len(got) != 2 || got[0].Member != "b" || got[1].Member != "c" {
		t.Fatalf("got %+v", got)
	}

	removed := ZRemRangeByScore(v, 2, 3)
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if ZCard(v) != 1 {
		t.Fatalf("card after removal = %d, want 1", ZCard(v))
	}
}

func TestZRemClearsIndex(t *testing.T) {
	t.Parallel()

	v := value.NewZSet()
	ZAdd(v, "a", 1)
	if !ZRem(v, "a") {
		t.Fatalf("expected removal to succeed")
	}
	if ZRem(v, "a") {
		t.Fatalf("second removal should report absent")
	}
	if len(ZWalk(v)) != 0 {
		t.Fatalf("expected empty skiplist after removing only member")
	}
}
