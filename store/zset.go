package store

import "github.com/mickamy/kvstore/value"

// zsetIndex returns v's skiplist index, lazily creating one. v must be a
// value.ZSet kind; callers enforce that via type checks at the command
// layer.
func zsetIndex(v *value.Value) *skiplist {
	if v.ZIndex == nil {
		sl := newSkiplist()
		for member, score := range v.ZSetData {
			sl.insert(score, member)
		}
		v.ZIndex = sl
	}
	return v.ZIndex.(*skiplist)
}

// ZAdd inserts or updates member's score. Returns true if member is new.
// Inserting a new member costs one skiplist insert plus one map insert;
// updating an existing member is a skiplist delete+insert.
func ZAdd(v *value.Value, member string, score float64) bool {
	sl := zsetIndex(v)
	old, exists := v.ZSetData[member]
	v.ZSetData[member] = score
	if !exists {
		sl.insert(score, member)
		return true
	}
	sl.update(old, score, member)
	return false
}

// ZIncrBy atomically adds delta to member's score (default 0) and applies
// the same update path as ZAdd. Returns the new score.
func ZIncrBy(v *value.Value, member string, delta float64) float64 {
	old := v.ZSetData[member]
	next := old + delta
	if _, exists := v.ZSetData[member]; !exists {
		v.ZSetData[member] = next
		zsetIndex(v).insert(next, member)
		return next
	}
	v.ZSetData[member] = next
	zsetIndex(v).update(old, next, member)
	return next
}

// ZRem removes member. Returns true if it was present.
func ZRem(v *value.Value, member string) bool {
	score, exists := v.ZSetData[member]
	if !exists {
		return false
	}
	delete(v.ZSetData, member)
	zsetIndex(v).delete(score, member)
	return true
}

// ZScore returns member's score and whether it is present.
func ZScore(v *value.Value, member string) (float64, bool) {
	s, ok := v.ZSetData[member]
	return s, ok
}

// ZCard returns the number of members.
func ZCard(v *value.Value) int { return len(v.ZSetData) }

// ZRangeByScore returns members with min <= score <= max in ascending
// order, honoring offset/limit. limit < 0 is unbounded.
func ZRangeByScore(v *value.Value, min, max float64, offset, limit int) []value.ZMember {
	nodes := zsetIndex(v).rangeByScore(min, max, offset, limit)
	out := make([]value.ZMember, len(nodes))
	for i, n := range nodes {
		out[i] = value.ZMember{Member: n.member, Score: n.score}
	}
	return out
}

// ZRemRangeByScore removes every member with min <= score <= max and
// returns the count removed.
func ZRemRangeByScore(v *value.Value, min, max float64) int {
	nodes := zsetIndex(v).rangeByScore(min, max, 0, -1)
	for _, n := range nodes {
		delete(v.ZSetData, n.member)
		zsetIndex(v).delete(n.score, n.member)
	}
	return len(nodes)
}

// ZRangeByIndex returns members in ascending rank order for [start, stop]
// inclusive, with negative indices already resolved by the caller.
func ZRangeByIndex(v *value.Value, start, stop int) []value.ZMember {
	nodes := zsetIndex(v).byIndexRange(start, stop)
	out := make([]value.ZMember, len(nodes))
	for i, n := range nodes {
		out[i] = value.ZMember{Member: n.member, Score: n.score}
	}
	return out
}

// ZWalk returns every member in ascending (score, member) order, used by
// SORT and the skiplist-order testable property.
func ZWalk(v *value.Value) []value.ZMember {
	nodes := zsetIndex(v).walk()
	out := make([]value.ZMember, len(nodes))
	for i, n := range nodes {
		out[i] = value.ZMember{Member: n.member, Score: n.score}
	}
	return out
}

// ZLevel exposes the skiplist's current level height, for DEBUG/tests
// asserting the level <= 32 invariant.
func ZLevel(v *value.Value) int { return zsetIndex(v).level }
