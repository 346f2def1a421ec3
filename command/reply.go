package command

import "github.com/mickamy/kvstore/resp"

// Kind tags the shape of a Reply, so Encode knows which resp.Append*
// framer to use.
type Kind int

const (
	Status Kind = iota
	ErrKind
	Int
	Bulk
	NilBulk
	Array
	NilArray
	// Pending marks a blocking-command reply that has not resolved yet;
	// the caller (package server) parks the client instead of writing
	// anything to the wire. See BlockKeys/BlockTimeout.
	Pending
)

// Reply is a handler's result, decoupled from wire encoding so tests can
// assert on structure instead of byte strings.
type Reply struct {
	Kind  Kind
	Str   string // Status text, or error message without its leading "-"
	Int   int64
	Bulk  []byte
	Array []Reply

	// Populated only when Kind == Pending (BLPOP/BRPOP).
	BlockKeys    []string
	BlockTimeout float64 // seconds; 0 means block indefinitely
	FromLeft     bool    // true for BLPOP, false for BRPOP
}

func ReplyOK() Reply                 { return Reply{Kind: Status, Str: "OK"} }
func ReplyStatus(s string) Reply     { return Reply{Kind: Status, Str: s} }
func ReplyError(msg string) Reply    { return Reply{Kind: ErrKind, Str: msg} }
func ReplyInt(n int64) Reply         { return Reply{Kind: Int, Int: n} }
func ReplyBulk(b []byte) Reply       { return Reply{Kind: Bulk, Bulk: b} }
func ReplyBulkString(s string) Reply { return Reply{Kind: Bulk, Bulk: []byte(s)} }
func ReplyNilBulk() Reply            { return Reply{Kind: NilBulk} }
func ReplyNilArray() Reply           { return Reply{Kind: NilArray} }
func ReplyArray(items ...Reply) Reply {
	return Reply{Kind: Array, Array: items}
}

// ReplyBulkStrings wraps a []string as a bulk-string array (KEYS,
// LRANGE, SMEMBERS and friends all reply this shape).
func ReplyBulkStrings(items []string) Reply {
	arr := make([]Reply, len(items))
	for i, s := range items {
		arr[i] = ReplyBulkString(s)
	}
	return Reply{Kind: Array, Array: arr}
}

// Encode appends r's wire framing to dst, recursing into nested arrays.
func Encode(dst []byte, r Reply) []byte {
	switch r.Kind {
	case Status:
		return resp.AppendSimpleString(dst, r.Str)
	case ErrKind:
		return resp.AppendError(dst, r.Str)
	case Int:
		return resp.AppendInteger(dst, r.Int)
	case Bulk:
		return resp.AppendBulk(dst, r.Bulk)
	case NilBulk:
		return resp.AppendNilBulk(dst)
	case NilArray:
		return resp.AppendNilMultiBulk(dst)
	case Array:
		dst = resp.AppendMultiBulkHeader(dst, len(r.Array))
		for _, item := range r.Array {
			dst = Encode(dst, item)
		}
		return dst
	default:
		return dst
	}
}
