package vm_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mickamy/kvstore/value"
	"github.com/mickamy/kvstore/vm"
)

func TestSwapOutSwapInRoundTrip(t *testing.T) {
	t.Parallel()
	pager, err := vm.Open(filepath.Join(t.TempDir(), "swap.bin"), 256, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pager.Close()

	v := value.NewList()
	v.ListData = []string{"a", "b", "c", "d"}

	desc, err := pager.SwapOut(v, 1000)
	if err != nil {
		t.Fatalf("SwapOut: %v", err)
	}
	if desc.SwappedKind != value.List {
		t.Errorf("SwappedKind = %v", desc.SwappedKind)
	}

	back, err := pager.SwapIn(desc)
	if err != nil {
		t.Fatalf("SwapIn: %v", err)
	}
	if len(back.ListData) != 4 || back.ListData[2] != "c" {
		t.Fatalf("round trip mismatch: %v", back.ListData)
	}
}

func TestSwapInFreesPages(t *testing.T) {
	t.Parallel()
	pager, err := vm.Open(filepath.Join(t.TempDir(), "swap.bin"), 64, 8)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pager.Close()

	before := pager.FreePages()
	v := value.NewString([]byte("some payload bytes here"))
	desc, err := pager.SwapOut(v, 0)
	if err != nil {
		t.Fatalf("SwapOut: %v", err)
	}
	if pager.FreePages() >= before {
		t.Fatalf("FreePages did not shrink after SwapOut")
	}
	if _, err := pager.SwapIn(desc); err != nil {
		t.Fatalf("SwapIn: %v", err)
	}
	if pager.FreePages() != before {
		t.Fatalf("FreePages = %d after SwapIn, want %d", pager.FreePages(), before)
	}
}

func TestSwapOutFailsWhenFileIsFull(t *testing.T) {
	t.Parallel()
	pager, err := vm.Open(filepath.Join(t.TempDir(), "swap.bin"), 16, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pager.Close()

	big := value.NewString(make([]byte, 1000))
	if _, err := pager.SwapOut(big, 0); err == nil {
		t.Fatalf("expected error for oversized payload")
	}
}

func TestPoolPrepareAndDoSwap(t *testing.T) {
	t.Parallel()
	pager, err := vm.Open(filepath.Join(t.TempDir(), "swap.bin"), 256, 64)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pager.Close()

	pool := vm.NewPool(pager, 2)
	defer pool.Stop()

	v := value.NewString([]byte("pooled payload"))
	pool.Submit(vm.Job{Kind: vm.PrepareSwap, Key: "k", Value: v})

	select {
	case res := <-pool.Completions:
		if res.Err != nil {
			t.Fatalf("PrepareSwap: %v", res.Err)
		}
		if res.PageCount < 1 {
			t.Fatalf("PageCount = %d", res.PageCount)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for PrepareSwap completion")
	}

	pool.Submit(vm.Job{Kind: vm.DoSwap, Key: "k", Value: v})
	select {
	case res := <-pool.Completions:
		if res.Err != nil {
			t.Fatalf("DoSwap: %v", res.Err)
		}
		if res.Desc == nil {
			t.Fatal("Desc is nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for DoSwap completion")
	}
}

func TestSwapOutCandidatePicksHighestScore(t *testing.T) {
	t.Parallel()
	keys := []string{"cold", "hot"}
	values := []*value.Value{
		value.NewString([]byte("x")),
		value.NewString([]byte("y")),
	}
	lastAccess := []int64{0, 900}
	best, ok := vm.SwapOutCandidate(keys, values, lastAccess, 1000)
	if !ok || keys[best] != "cold" {
		t.Fatalf("best = %d (%v), want cold (idle longer)", best, ok)
	}
}

func TestSampleUpToBoundsAndDedups(t *testing.T) {
	t.Parallel()
	idx := vm.SampleUpTo(10, 5)
	if len(idx) != 5 {
		t.Fatalf("len = %d, want 5", len(idx))
	}
	seen := make(map[int]bool)
	for _, i := range idx {
		if seen[i] {
			t.Fatalf("duplicate index %d", i)
		}
		seen[i] = true
		if i < 0 || i >= 10 {
			t.Fatalf("index %d out of range", i)
		}
	}
}
