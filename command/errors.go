package command

// Predefined error replies. Handlers that need a parameterized message
// (wrong arity, unknown command) build it inline with ReplyError.

var (
	errWrongType    = ReplyError("WRONGTYPE Operation against a key holding the wrong kind of value")
	errSyntax       = ReplyError("ERR syntax error")
	errNoSuchKey    = ReplyError("ERR no such key")
	errOutOfRange   = ReplyError("ERR index out of range")
	errNotInteger   = ReplyError("ERR value is not an integer or out of range")
	errNotFloat     = ReplyError("ERR value is not a valid float")
	errDenyOOM      = ReplyError("ERR command not allowed when used memory > 'maxmemory'")
	errNotPermitted = ReplyError("ERR operation not permitted")
)

func errWrongArgs(name string) Reply {
	return ReplyError("ERR wrong number of arguments for '" + name + "' command")
}

func errUnknownCommand(name string) Reply {
	return ReplyError("ERR unknown command '" + name + "'")
}
