package command

import "strings"

// Flag marks cross-cutting properties of a command, read by the
// dispatcher and by package server's AOF/replication feed.
type Flag uint8

const (
	Write Flag = 1 << iota
	DenyOOM
	Admin
	NoAuthRequired // AUTH, PING and QUIT
)

// HandlerFunc is the shape every command handler implements. args[0] is
// the command name itself (matching the historical convention so
// handlers can report their own name in arity errors without a closure).
type HandlerFunc func(ctx *Context, args [][]byte) Reply

// Spec describes one command's arity contract and dispatch behavior.
// Arity follows the classic convention: a positive number is an exact
// argument count (including the command name); a negative number is a
// minimum ("at least abs(n) arguments").
type Spec struct {
	Name    string
	Arity   int
	Flags   Flag
	Handler HandlerFunc
}

func (s *Spec) checkArity(argc int) bool {
	if s.Arity >= 0 {
		return argc == s.Arity
	}
	return argc >= -s.Arity
}

// Table is the name -> Spec dispatch table, built once at startup by
// newTable and never mutated afterward.
var Table = newTable()

func newTable() map[string]*Spec {
	specs := []*Spec{
		// strings.go
		{"GET", 2, 0, cmdGet},
		{"SET", -3, Write | DenyOOM, cmdSet},
		{"SETNX", 3, Write | DenyOOM, cmdSetNX},
		{"GETSET", 3, Write | DenyOOM, cmdGetSet},
		{"MGET", -2, 0, cmdMGet},
		{"MSET", -3, Write | DenyOOM, cmdMSet},
		{"MSETNX", -3, Write | DenyOOM, cmdMSetNX},
		{"INCR", 2, Write | DenyOOM, cmdIncr},
		{"DECR", 2, Write | DenyOOM, cmdDecr},
		{"INCRBY", 3, Write | DenyOOM, cmdIncrBy},
		{"DECRBY", 3, Write | DenyOOM, cmdDecrBy},

		// generic.go
		{"DEL", -2, Write, cmdDel},
		{"EXISTS", 2, 0, cmdExists},
		{"TYPE", 2, 0, cmdType},
		{"KEYS", 2, 0, cmdKeys},
		{"RANDOMKEY", 1, 0, cmdRandomKey},
		{"DBSIZE", 1, 0, cmdDBSize},
		{"RENAME", 3, Write, cmdRename},
		{"RENAMENX", 3, Write, cmdRenameNX},
		{"MOVE", 3, Write, cmdMove},
		{"SELECT", 2, 0, cmdSelect},
		{"EXPIRE", 3, Write, cmdExpire},
		{"EXPIREAT", 3, Write, cmdExpireAt},
		{"PERSIST", 2, Write, cmdPersist},
		{"TTL", 2, 0, cmdTTL},
		{"FLUSHDB", 1, Write | Admin, cmdFlushDB},
		{"FLUSHALL", 1, Write | Admin, cmdFlushAll},

		// list.go
		{"LPUSH", -3, Write | DenyOOM, cmdLPush},
		{"RPUSH", -3, Write | DenyOOM, cmdRPush},
		{"LPOP", 2, Write, cmdLPop},
		{"RPOP", 2, Write, cmdRPop},
		{"LLEN", 2, 0, cmdLLen},
		{"LINDEX", 3, 0, cmdLIndex},
		{"LSET", 4, Write, cmdLSet},
		{"LRANGE", 4, 0, cmdLRange},
		{"LTRIM", 4, Write, cmdLTrim},
		{"LREM", 4, Write, cmdLRem},
		{"RPOPLPUSH", 3, Write | DenyOOM, cmdRPopLPush},
		{"BLPOP", -3, Write, cmdBLPop},
		{"BRPOP", -3, Write, cmdBRPop},

		// set.go
		{"SADD", -3, Write | DenyOOM, cmdSAdd},
		{"SREM", -3, Write, cmdSRem},
		{"SMOVE", 4, Write, cmdSMove},
		{"SISMEMBER", 3, 0, cmdSIsMember},
		{"SCARD", 2, 0, cmdSCard},
		{"SPOP", 2, Write, cmdSPop},
		{"SRANDMEMBER", 2, 0, cmdSRandMember},
		{"SMEMBERS", 2, 0, cmdSMembers},
		{"SINTER", -2, 0, cmdSInter},
		{"SINTERSTORE", -3, Write | DenyOOM, cmdSInterStore},
		{"SUNION", -2, 0, cmdSUnion},
		{"SUNIONSTORE", -3, Write | DenyOOM, cmdSUnionStore},
		{"SDIFF", -2, 0, cmdSDiff},
		{"SDIFFSTORE", -3, Write | DenyOOM, cmdSDiffStore},

		// zset.go
		{"ZADD", -4, Write | DenyOOM, cmdZAdd},
		{"ZINCRBY", 4, Write | DenyOOM, cmdZIncrBy},
		{"ZREM", -3, Write, cmdZRem},
		{"ZREMRANGEBYSCORE", 4, Write, cmdZRemRangeByScore},
		{"ZRANGE", -4, 0, cmdZRange},
		{"ZREVRANGE", -4, 0, cmdZRevRange},
		{"ZRANGEBYSCORE", -4, 0, cmdZRangeByScore},
		{"ZCARD", 2, 0, cmdZCard},
		{"ZSCORE", 3, 0, cmdZScore},

		// transactions.go
		{"MULTI", 1, 0, cmdMulti},
		{"EXEC", 1, 0, cmdExec},
		{"DISCARD", 1, 0, cmdDiscard},

		// connection.go
		{"AUTH", 2, NoAuthRequired, cmdAuth},
		{"PING", -1, NoAuthRequired, cmdPing},
		{"ECHO", 2, 0, cmdEcho},
		{"QUIT", 1, NoAuthRequired, cmdQuit},

		// admin.go
		{"SAVE", 1, Admin, cmdSave},
		{"BGSAVE", 1, Admin, cmdBGSave},
		{"BGREWRITEAOF", 1, Admin, cmdBGRewriteAOF},
		{"LASTSAVE", 1, 0, cmdLastSave},
		{"SHUTDOWN", -1, Admin, cmdShutdown},
		{"SLAVEOF", 3, Admin, cmdSlaveOf},
		{"SYNC", 1, Admin, cmdSync},
		{"MONITOR", 1, Admin, cmdMonitor},
		{"INFO", -1, 0, cmdInfo},
		{"DEBUG", -2, Admin, cmdDebug},

		// sort.go
		{"SORT", -2, Write, cmdSort},
	}

	m := make(map[string]*Spec, len(specs))
	for _, s := range specs {
		m[s.Name] = s
	}
	return m
}

// Lookup finds a command by name, case-insensitively.
func Lookup(name string) (*Spec, bool) {
	s, ok := Table[strings.ToUpper(name)]
	return s, ok
}
