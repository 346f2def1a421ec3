// Package value implements the tagged value model: typed objects carrying
// a kind, an encoding, a refcount, and an optional swap descriptor for the
// virtual-memory pager (see package vm).
package value

import (
	"fmt"
	"strconv"
)

// Kind identifies the logical type of a Value's payload.
type Kind int

const (
	String Kind = iota
	List
	Set
	ZSet
	Hash
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case List:
		return "list"
	case Set:
		return "set"
	case ZSet:
		return "zset"
	case Hash:
		return "hash"
	default:
		return "unknown"
	}
}

// Encoding distinguishes how a String value's payload is physically stored.
// Only String values carry a meaningful Encoding; every other Kind is RAW.
type Encoding int

const (
	Raw Encoding = iota
	Int
)

// Storage describes where a Value's payload currently lives, per the
// pager's state machine: MEMORY <-> SWAPPING -> SWAPPED -> LOADING -> MEMORY.
type Storage int

const (
	Memory Storage = iota
	Swapping
	Swapped
	Loading
)

func (s Storage) String() string {
	switch s {
	case Memory:
		return "memory"
	case Swapping:
		return "swapping"
	case Swapped:
		return "swapped"
	case Loading:
		return "loading"
	default:
		return "unknown"
	}
}

// SwapDescriptor records where a swapped-out Value's bytes live on the swap
// file. It is populated only while Storage != Memory; a Value in Swapped
// holds a descriptor and no payload.
type SwapDescriptor struct {
	Page         int64
	PageCount    int64
	LastAccess   int64 // unix seconds
	SwappedKind  Kind
	Storage      Storage
}

// ZMember pairs a sorted-set member with its score, used for bulk range
// results; the skiplist itself lives in package store.
type ZMember struct {
	Member string
	Score  float64
}

// Value is the tagged union holding every key's payload. Exactly one of
// the payload fields is meaningful, selected by Kind (and, for String, by
// Encoding).
type Value struct {
	Kind     Kind
	Encoding Encoding
	refcount int32

	// String payload: Bytes when Encoding == Raw, Int when Encoding == Int.
	Bytes []byte
	Int   int64

	// List payload: an ordered sequence, front = index 0.
	ListData []string

	// Set payload: unique members.
	SetData map[string]struct{}

	// ZSet payload: member -> score, the authoritative score for ZADD
	// semantics. The ordering index is an opaque pointer here (concretely
	// a *store.skiplist) so that package value need not depend on package
	// store; only store's ZSet helpers ever type-assert it.
	ZSetData map[string]float64
	ZIndex   any

	// Hash payload: carried for RDB/AOF completeness even though no HASH
	// command is exposed on the wire.
	HashData map[string]string

	Swap *SwapDescriptor
}

// NewString creates a raw-encoded string Value with refcount 1.
func NewString(b []byte) *Value {
	return &Value{Kind: String, Encoding: Raw, Bytes: b, refcount: 1}
}

// NewStringFromInt creates an integer-encoded string Value with refcount 1.
func NewStringFromInt(n int64) *Value {
	return &Value{Kind: String, Encoding: Int, Int: n, refcount: 1}
}

// NewList creates an empty LIST Value with refcount 1.
func NewList() *Value {
	return &Value{Kind: List, refcount: 1}
}

// NewSet creates an empty SET Value with refcount 1.
func NewSet() *Value {
	return &Value{Kind: Set, SetData: make(map[string]struct{}), refcount: 1}
}

// NewZSet creates an empty ZSET Value with refcount 1.
func NewZSet() *Value {
	return &Value{Kind: ZSet, ZSetData: make(map[string]float64), refcount: 1}
}

// NewHash creates an empty HASH Value with refcount 1.
func NewHash() *Value {
	return &Value{Kind: Hash, HashData: make(map[string]string), refcount: 1}
}

// Refcount returns the current reference count.
func (v *Value) Refcount() int32 { return v.refcount }

// IncrRef increments the refcount and returns v, for fluent sharing.
func (v *Value) IncrRef() *Value {
	v.refcount++
	return v
}

// DecrRef decrements the refcount. Callers that recycle headers through a
// freelist (package store) do so once this reaches zero; Value itself does
// not free anything, keeping object lifetime separate from allocator
// policy.
func (v *Value) DecrRef() {
	if v.refcount > 0 && !v.IsShared() {
		v.refcount--
	}
}

// MakeShared pins v as a shared immutable singleton: its refcount becomes
// sentinel and is never decremented to zero. Used at startup for common
// replies and the small-integer pool.
const sharedSentinel = 1 << 30

func (v *Value) MakeShared() *Value {
	v.refcount = sharedSentinel
	return v
}

// IsShared reports whether v is a pinned shared singleton.
func (v *Value) IsShared() bool { return v.refcount >= sharedSentinel }

// StringBytes returns the String value's bytes regardless of encoding,
// without mutating v. This is the read path; it never promotes Int to Raw.
func (v *Value) StringBytes() []byte {
	if v.Kind != String {
		return nil
	}
	if v.Encoding == Int {
		return []byte(strconv.FormatInt(v.Int, 10))
	}
	return v.Bytes
}

// TryIntEncode attempts to losslessly reconstruct b as a machine integer.
// It is only safe to apply when refcount==1 and v is not reachable as a
// keyspace key (copy-on-encode); callers enforce that.
func TryIntEncode(b []byte) (int64, bool) {
	if len(b) == 0 || len(b) > 20 {
		return 0, false
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, false
	}
	// Reject encodings with leading zeros or a lone "-0": they would not
	// round-trip back to the same byte string.
	if strconv.FormatInt(n, 10) != string(b) {
		return 0, false
	}
	return n, true
}

// TypeError formats the standard wrong-kind-of-value error.
func (v *Value) TypeError() error {
	return fmt.Errorf("WRONGTYPE Operation against a key holding the wrong kind of value")
}
