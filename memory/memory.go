// Package memory implements byte-ceiling enforcement and the reclaim
// pass, plus the per-value size estimator they need. The estimator
// technique (fixed per-field overheads, summed recursively over
// collection payloads) is grounded on a go-redis reference's
// Item.ApproxMemoryUsage.
package memory

import (
	"sync/atomic"

	"github.com/mickamy/kvstore/value"
)

const (
	stringHeader        = 16 // Go string/slice header: pointer + length
	mapEntryOverhead    = 48 // amortized per-entry bucket overhead
	valueHeaderOverhead = 64 // approximate Value struct footprint
)

// Estimate returns an approximate resident size in bytes for key and v,
// used both by DENYOOM accounting and by the pager's swappability score
// (idle-seconds × log(1 + estimated-bytes)).
func Estimate(key string, v *value.Value) int64 {
	size := int64(stringHeader+len(key)) + valueHeaderOverhead
	switch v.Kind {
	case value.String:
		if v.Encoding == value.Int {
			size += 8
		} else {
			size += int64(stringHeader + len(v.Bytes))
		}
	case value.List:
		for _, e := range v.ListData {
			size += int64(stringHeader+len(e)) + 8
		}
	case value.Set:
		for m := range v.SetData {
			size += int64(stringHeader+len(m)) + mapEntryOverhead
		}
	case value.ZSet:
		for m := range v.ZSetData {
			size += int64(stringHeader+len(m)) + 8 + mapEntryOverhead
		}
	case value.Hash:
		for f, val := range v.HashData {
			size += int64(stringHeader+len(f)+stringHeader+len(val)) + mapEntryOverhead
		}
	}
	return size
}

// Tracker maintains the server's running used-memory figure against a
// configured cap. Updates happen from the single engine goroutine, so a
// plain int64 with atomic access (rather than a mutex) is enough and
// keeps reads from DEBUG/INFO lock-free.
type Tracker struct {
	capBytes int64
	used     int64
}

// NewTracker creates a Tracker with the given byte ceiling. A cap of 0
// means unlimited, matching Redis's maxmemory=0 convention.
func NewTracker(capBytes int64) *Tracker {
	return &Tracker{capBytes: capBytes}
}

func (t *Tracker) Add(delta int64)      { atomic.AddInt64(&t.used, delta) }
func (t *Tracker) Used() int64          { return atomic.LoadInt64(&t.used) }
func (t *Tracker) Cap() int64           { return atomic.LoadInt64(&t.capBytes) }
func (t *Tracker) SetCap(capBytes int64) { atomic.StoreInt64(&t.capBytes, capBytes) }

// OverCap reports whether used-memory currently exceeds the configured
// cap. A zero cap means no limit is enforced.
func (t *Tracker) OverCap() bool {
	c := t.Cap()
	return c > 0 && t.Used() > c
}
