// Package expire implements the active expiration cycle: on every cron
// tick, each database is sampled for expired keys and swept repeatedly
// as long as the sample looks densely expired, so that volatile keys
// which are never read still get reclaimed.
package expire

import "github.com/mickamy/kvstore/store"

const (
	sampleSize    = 100
	repeatIfRatio = 0.25
)

// Sweep runs one cron tick's worth of active expiration over dbs. For each
// database it samples up to 100 keys carrying a TTL; if more than 25% of
// the sample had already expired, it repeats immediately for that
// database (the classic "loop again" rule), since a skewed sample
// means there's likely more expired stock to clear. Returns the total
// number of keys it deleted, for INFO/stats reporting.
func Sweep(dbs []*store.DB, now int64) int {
	total := 0
	for _, db := range dbs {
		total += sweepOne(db, now)
	}
	return total
}

func sweepOne(db *store.DB, now int64) int {
	deleted := 0
	for {
		sample := db.ExpirySweepSample(sampleSize)
		if len(sample) == 0 {
			return deleted
		}

		expiredInSample := 0
		for _, e := range sample {
			if db.ExpireIfDue(e.Key, now) {
				expiredInSample++
				deleted++
			}
		}

		if float64(expiredInSample) <= float64(len(sample))*repeatIfRatio {
			return deleted
		}
		// More than a quarter of the sample was expired: the map is
		// likely still dense with stale keys, so sweep again this tick
		// rather than waiting for the next cron cycle.
	}
}
