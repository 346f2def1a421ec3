// Package store implements the keyspace: N independent databases, each a
// key->value map plus an expiry map plus a blocking-waiters map, together
// with the skiplist index and glob matching for KEYS.
package store

import (
	"sync"
	"time"
	"unsafe"

	"github.com/mickamy/kvstore/value"
)

// Waiter is a client parked on a blocking list operation. store only
// orders and stores the handles; the server package registers waiters by
// ID alone, leaves Notify nil, and serves wakeups itself via PopWaiter.
type Waiter struct {
	ID     uint64
	Notify chan string // optional; nothing in this package sends on it
}

// DB is one of the server's N independent keyspaces.
type DB struct {
	mu         sync.Mutex
	entries    map[string]*value.Value
	expiries   map[string]int64 // key -> absolute unix seconds
	waiters    map[string][]*Waiter
	lastAccess map[string]int64 // key -> unix seconds of last Read, for pager scoring

	// swapIn reconstructs a SWAPPED value's payload from the pager; nil
	// until the VM pager is enabled, in which case readLocked calls it
	// transparently on a swapped key.
	swapIn func(desc *value.SwapDescriptor) (*value.Value, error)
}

// NewDB creates an empty keyspace.
func NewDB() *DB {
	return &DB{
		entries:    make(map[string]*value.Value),
		expiries:   make(map[string]int64),
		waiters:    make(map[string][]*Waiter),
		lastAccess: make(map[string]int64),
	}
}

// SetSwapIn wires the pager's swap-in function so a read of a SWAPPED key
// transparently reloads it into memory: seek and deserialize, transition
// back to MEMORY, and free the pages it held.
func (db *DB) SetSwapIn(f func(desc *value.SwapDescriptor) (*value.Value, error)) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.swapIn = f
}

// Lock/Unlock expose the DB's mutex so the single engine goroutine, the
// sole mutator of keyspace state, can group several operations (e.g. a
// multi-key MSET) atomically without re-entering per-call locking. Only
// the engine goroutine ever calls these; pager workers only ever touch a
// value's payload and the swap file, never DB state directly.
func (db *DB) Lock()   { db.mu.Lock() }
func (db *DB) Unlock() { db.mu.Unlock() }

func (db *DB) isExpiredLocked(key string, now int64) bool {
	exp, ok := db.expiries[key]
	return ok && exp <= now
}

// deleteLocked removes key from entries and expiries, leaving any parked
// waiters in place — they time out on their own deadline; deletion does
// not wake them.
func (db *DB) deleteLocked(key string) bool {
	if _, ok := db.entries[key]; !ok {
		return false
	}
	delete(db.entries, key)
	delete(db.expiries, key)
	delete(db.lastAccess, key)
	return true
}

// Read looks up key, lazily expiring it first if its TTL has passed.
func (db *DB) Read(key string, now int64) (*value.Value, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.readLocked(key, now)
}

func (db *DB) readLocked(key string, now int64) (*value.Value, bool) {
	if db.isExpiredLocked(key, now) {
		db.deleteLocked(key)
		return nil, false
	}
	v, ok := db.entries[key]
	if !ok {
		return nil, false
	}
	if v.Swap != nil && v.Swap.Storage == value.Swapped && db.swapIn != nil {
		if loaded, err := db.swapIn(v.Swap); err == nil {
			loaded.Swap = nil
			db.entries[key] = loaded
			v = loaded
		}
	}
	db.lastAccess[key] = now
	return v, ok
}

// MemoryResidentKeys returns every unexpired key currently resident in
// memory (not swapped out), its value, and its last-access time — the
// population the VM pager samples from when picking a swap-out candidate.
func (db *DB) MemoryResidentKeys(now int64) ([]string, []*value.Value, []int64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var keys []string
	var vals []*value.Value
	var access []int64
	for k, v := range db.entries {
		if db.isExpiredLocked(k, now) {
			continue
		}
		if v.Swap != nil && v.Swap.Storage != value.Memory {
			continue
		}
		keys = append(keys, k)
		vals = append(vals, v)
		if t, ok := db.lastAccess[k]; ok {
			access = append(access, t)
		} else {
			access = append(access, now)
		}
	}
	return keys, vals, access
}

// InstallSwap replaces key's in-memory payload with desc, the transition a
// completed swap-out performs once the pager has durably written the
// value's bytes: mark its pages used, set storage to Swapped, and drop
// the in-memory value. A Value in Swapped holds only its Kind and the
// descriptor, never payload. Returns false if key no longer exists (it
// may have been deleted or overwritten since the candidate scan ran).
func (db *DB) InstallSwap(key string, desc *value.SwapDescriptor) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	v, ok := db.entries[key]
	if !ok {
		return false
	}
	db.entries[key] = &value.Value{Kind: v.Kind, Swap: desc}
	return true
}

// PrepareWrite implements the pre-write hook: if key has a TTL entry, it
// is deleted entirely first, matching Redis's lookupKeyWrite behavior.
// Callers must invoke this before any mutating handler touches an
// existing key, even for partial mutations like LPUSH.
func (db *DB) PrepareWrite(key string, now int64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.prepareWriteLocked(key, now)
}

func (db *DB) prepareWriteLocked(key string, now int64) {
	if _, hasTTL := db.expiries[key]; hasTTL {
		db.deleteLocked(key)
		return
	}
	// Even without a TTL, a lazily-expired key must not linger.
	if db.isExpiredLocked(key, now) {
		db.deleteLocked(key)
	}
}

// Set installs v under key, clearing any existing expiry (a fresh SET
// establishes a persistent key unless EXPIRE is applied afterwards).
func (db *DB) Set(key string, v *value.Value) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.entries[key] = v
	delete(db.expiries, key)
}

// SetLocked is Set for callers already holding db.mu (engine batch ops).
func (db *DB) SetLocked(key string, v *value.Value) {
	db.entries[key] = v
	delete(db.expiries, key)
}

// Delete removes key. Returns true if it existed.
func (db *DB) Delete(key string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.deleteLocked(key)
}

// Exists reports whether key is present and unexpired.
func (db *DB) Exists(key string, now int64) bool {
	_, ok := db.Read(key, now)
	return ok
}

// SetExpiry installs an absolute-seconds expiry for key. Returns false if
// key does not exist.
func (db *DB) SetExpiry(key string, at int64, now int64) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.readLocked(key, now); !ok {
		return false
	}
	db.expiries[key] = at
	return true
}

// PersistExpiry removes key's TTL, making it persistent. Returns true if a
// TTL existed.
func (db *DB) PersistExpiry(key string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.expiries[key]; !ok {
		return false
	}
	delete(db.expiries, key)
	return true
}

// TTL returns the remaining seconds for key: -1 if it exists with no
// expiry, -2 if it does not exist (lazily expiring it first).
func (db *DB) TTL(key string, now int64) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.readLocked(key, now); !ok {
		return -2
	}
	exp, hasTTL := db.expiries[key]
	if !hasTTL {
		return -1
	}
	remaining := exp - now
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// ExpiryAt returns key's absolute expiry and whether one is set.
func (db *DB) ExpiryAt(key string) (int64, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	at, ok := db.expiries[key]
	return at, ok
}

// Rename moves source to target atomically relative to other clients:
// target is deleted, then source is moved onto it.
func (db *DB) Rename(source, target string, now int64) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	v, ok := db.readLocked(source, now)
	if !ok {
		return false
	}
	db.deleteLocked(target)
	db.entries[target] = v
	if exp, hasTTL := db.expiries[source]; hasTTL {
		db.expiries[target] = exp
	}
	db.deleteLocked(source)
	return true
}

// RenameIfAbsent renames only if target does not already exist.
func (db *DB) RenameIfAbsent(source, target string, now int64) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.readLocked(source, now); !ok {
		return false, nil
	}
	if _, ok := db.readLocked(target, now); ok {
		return false, nil
	}
	v := db.entries[source]
	db.entries[target] = v
	if exp, hasTTL := db.expiries[source]; hasTTL {
		db.expiries[target] = exp
	}
	db.deleteLocked(source)
	return true, nil
}

// MoveTo moves key from db into dst. Fails if dst already has the key.
func (db *DB) MoveTo(dst *DB, key string, now int64) bool {
	// Deterministic lock order prevents deadlock against the reverse MOVE.
	first, second := db, dst
	if first == second {
		return false
	}
	if uintptr(unsafe.Pointer(first)) > uintptr(unsafe.Pointer(second)) {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	v, ok := db.readLocked(key, now)
	if !ok {
		return false
	}
	if _, ok := dst.readLocked(key, now); ok {
		return false
	}
	dst.entries[key] = v
	if exp, hasTTL := db.expiries[key]; hasTTL {
		dst.expiries[key] = exp
	}
	db.deleteLocked(key)
	return true
}

// Keys returns every unexpired key matching pattern. Lazily expires as it
// scans, same as any read path.
func (db *DB) Keys(pattern string, now int64) []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []string
	for k := range db.entries {
		if db.isExpiredLocked(k, now) {
			continue
		}
		if GlobMatch(pattern, k) {
			out = append(out, k)
		}
	}
	return out
}

// Snapshot returns every unexpired key's value and absolute expiry (0 if
// none), for RDB/AOF dump. Collection payloads are not deep-copied; this
// is safe because SAVE/BGSAVE only ever run synchronously within the
// engine goroutine that owns this DB, so nothing else can be mutating
// the same entries concurrently.
func (db *DB) Snapshot(now int64) []SnapshotEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]SnapshotEntry, 0, len(db.entries))
	for k, v := range db.entries {
		if db.isExpiredLocked(k, now) {
			continue
		}
		out = append(out, SnapshotEntry{Key: k, Value: v, ExpireAt: db.expiries[k]})
	}
	return out
}

// SnapshotEntry is one key's worth of data for RDB/AOF dump.
type SnapshotEntry struct {
	Key      string
	Value    *value.Value
	ExpireAt int64 // 0 if the key carries no TTL
}

// RandomKey returns an arbitrary unexpired key, or "" if the DB is empty.
// Go's map iteration order is already randomized per-process, which gives
// us the "random" requirement without extra bookkeeping.
func (db *DB) RandomKey(now int64) string {
	db.mu.Lock()
	defer db.mu.Unlock()
	for k := range db.entries {
		if !db.isExpiredLocked(k, now) {
			return k
		}
	}
	return ""
}

// Size returns the number of keys, including not-yet-lazily-expired ones
// (DBSIZE does not force a full expiry sweep either).
func (db *DB) Size() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.entries)
}

// Flush empties the database.
func (db *DB) Flush() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.entries = make(map[string]*value.Value)
	db.expiries = make(map[string]int64)
	db.lastAccess = make(map[string]int64)
}

// VolatileSample returns up to n keys that carry a TTL, for the memory
// reclaimer and the expiration engine's sampling sweep.
func (db *DB) VolatileSample(n int) []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]string, 0, n)
	for k := range db.expiries {
		out = append(out, k)
		if len(out) >= n {
			break
		}
	}
	return out
}

// ExpirySweepSample returns up to n (key, expiry) pairs for the cron's
// probabilistic expiration sweep.
type ExpiryEntry struct {
	Key string
	At  int64
}

func (db *DB) ExpirySweepSample(n int) []ExpiryEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]ExpiryEntry, 0, n)
	for k, at := range db.expiries {
		out = append(out, ExpiryEntry{Key: k, At: at})
		if len(out) >= n {
			break
		}
	}
	return out
}

// ExpireIfDue deletes key if its TTL has passed as of now. Returns true if
// it deleted the key.
func (db *DB) ExpireIfDue(key string, now int64) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.isExpiredLocked(key, now) {
		db.deleteLocked(key)
		return true
	}
	return false
}

// AddWaiter parks w on key's FIFO waiter queue.
func (db *DB) AddWaiter(key string, w *Waiter) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.waiters[key] = append(db.waiters[key], w)
}

// PopWaiter removes and returns the oldest waiter on key, implementing
// FIFO fairness among blocked clients. Returns nil if none.
func (db *DB) PopWaiter(key string) *Waiter {
	db.mu.Lock()
	defer db.mu.Unlock()
	q := db.waiters[key]
	if len(q) == 0 {
		return nil
	}
	w := q[0]
	rest := q[1:]
	if len(rest) == 0 {
		delete(db.waiters, key)
	} else {
		db.waiters[key] = rest
	}
	return w
}

// RemoveWaiter cancels a parked waiter across all keys it registered on
// (used when its blocking deadline fires).
func (db *DB) RemoveWaiter(keys []string, id uint64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, key := range keys {
		q := db.waiters[key]
		for i, w := range q {
			if w.ID == id {
				db.waiters[key] = append(q[:i], q[i+1:]...)
				break
			}
		}
		if len(db.waiters[key]) == 0 {
			delete(db.waiters, key)
		}
	}
}

// Now is the single clock read used across the keyspace for expiry
// comparisons; centralized so tests can reason about a fixed instant.
func Now() int64 { return time.Now().Unix() }
