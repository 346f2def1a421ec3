package memory

import "github.com/mickamy/kvstore/store"

// candidate pairs a database with one of its volatile (TTL-carrying) keys.
type candidate struct {
	db  *store.DB
	key string
	at  int64
}

// Reclaim evicts volatile keys to bring used memory back under cap:
// across databases, sample three keys with TTLs and delete the one
// closest to expiry; repeat until under cap or no volatile keys remain.
// freed is called once per deleted key so the caller can debit the
// Tracker and fire any AOF/replication feed for the implicit DEL (an
// eviction is itself a mutation).
//
// Returns true if the tracker is no longer over cap when Reclaim returns
// (whether because it reclaimed enough, or because the cap was already
// satisfied).
func Reclaim(dbs []*store.DB, tracker *Tracker, now int64, freed func(db *store.DB, key string)) bool {
	for tracker.OverCap() {
		var sample []candidate
		for _, db := range dbs {
			for _, k := range db.VolatileSample(3 - len(sample)) {
				if at, ok := db.ExpiryAt(k); ok {
					sample = append(sample, candidate{db: db, key: k, at: at})
				}
			}
			if len(sample) >= 3 {
				break
			}
		}
		if len(sample) == 0 {
			return !tracker.OverCap()
		}

		best := sample[0]
		for _, c := range sample[1:] {
			if c.at < best.at {
				best = c
			}
		}
		if best.db.Delete(best.key) {
			freed(best.db, best.key)
		}
	}
	return true
}
