package memory_test

import (
	"testing"

	"github.com/mickamy/kvstore/memory"
	"github.com/mickamy/kvstore/store"
	"github.com/mickamy/kvstore/value"
)

func TestEstimateGrowsWithPayload(t *testing.T) {
	t.Parallel()

	small := value.NewString([]byte("x"))
	big := value.NewString([]byte("this is a much longer string payload"))

	if memory.Estimate("k", big) <= memory.Estimate("k", small) {
		t.Fatalf("expected larger payload to estimate larger")
	}
}

func TestEstimateIntEncodingCheaperThanRaw(t *testing.T) {
	t.Parallel()

	raw := value.NewString([]byte("12345678901234567890"))
	intval := value.NewStringFromInt(12345)

	if memory.Estimate("k", intval) >= memory.Estimate("k", raw) {
		t.Fatalf("expected int encoding to estimate cheaper than raw digits")
	}
}

func TestEstimateCollectionKinds(t *testing.T) {
	t.Parallel()

	list := value.NewList()
	list.ListData = []string{"a", "b", "c"}

	set := value.NewSet()
	set.SetData["a"] = struct{}{}
	set.SetData["b"] = struct{}{}

	zset := value.NewZSet()
	zset.ZSetData["a"] = 1
	zset.ZSetData["b"] = 2

	hash := value.NewHash()
	hash.HashData["f"] = "v"

	tests := []struct {
		name string
		v    *value.Value
	}{
		{"list", list},
		{"set", set},
		{"zset", zset},
		{"hash", hash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := memory.Estimate("key", tt.v); got <= 0 {
				t.Fatalf("Estimate(%s) = %d, want > 0", tt.name, got)
			}
		})
	}
}

func TestTrackerOverCap(t *testing.T) {
	t.Parallel()

	tr := memory.NewTracker(100)
	if tr.OverCap() {
		t.Fatalf("fresh tracker should not be over cap")
	}
	tr.Add(150)
	if !tr.OverCap() {
		t.Fatalf("expected tracker to be over cap after Add(150)")
	}
	tr.Add(-100)
	if tr.OverCap() {
		t.Fatalf("expected tracker back under cap, used=%d cap=%d", tr.Used(), tr.Cap())
	}
}

func TestTrackerZeroCapIsUnlimited(t *testing.T) {
	t.Parallel()

	tr := memory.NewTracker(0)
	tr.Add(1 << 40)
	if tr.OverCap() {
		t.Fatalf("zero cap must mean unlimited")
	}
}

func TestTrackerSetCap(t *testing.T) {
	t.Parallel()

	tr := memory.NewTracker(0)
	tr.Add(500)
	if tr.OverCap() {
		t.Fatalf("should not be over cap before SetCap")
	}
	tr.SetCap(100)
	if !tr.OverCap() {
		t.Fatalf("expected over cap after lowering cap below used")
	}
}

func TestReclaimDeletesClosestToExpiry(t *testing.T) {
	t.Parallel()

	db := store.NewDB()
	now := store.Now()
	db.Set("far", value.NewString([]byte("v")))
	db.SetExpiry("far", now+1000, now)
	db.Set("near", value.NewString([]byte("v")))
	db.SetExpiry("near", now+1, now)

	tr := memory.NewTracker(1)
	tr.Add(2)

	var freedKeys []string
	ok := memory.Reclaim([]*store.DB{db}, tr, now, func(_ *store.DB, key string) {
		freedKeys = append(freedKeys, key)
		tr.Add(-1)
	})
	if !ok {
		t.Fatalf("expected Reclaim to bring tracker back under cap")
	}
	if len(freedKeys) != 1 || freedKeys[0] != "near" {
		t.Fatalf("expected to reclaim 'near' first, got %v", freedKeys)
	}
	if _, ok := db.Read("near", now); ok {
		t.Fatalf("expected 'near' to be deleted")
	}
	if _, ok := db.Read("far", now); !ok {
		t.Fatalf("expected 'far' to survive a single reclaim pass")
	}
}

func TestReclaimStopsWhenNoVolatileKeysRemain(t *testing.T) {
	t.Parallel()

	db := store.NewDB()
	now := store.Now()
	db.Set("persistent", value.NewString([]byte("v")))

	tr := memory.NewTracker(1)
	tr.Add(1000)

	ok := memory.Reclaim([]*store.DB{db}, tr, now, func(*store.DB, string) {})
	if ok {
		t.Fatalf("expected Reclaim to report still-over-cap when nothing volatile to evict")
	}
}
