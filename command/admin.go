package command

import "strings"

func cmdSave(ctx *Context, args [][]byte) Reply {
	if ctx.Hooks == nil || ctx.Hooks.Save == nil {
		return ReplyOK()
	}
	if err := ctx.Hooks.Save(); err != nil {
		return ReplyError("ERR " + err.Error())
	}
	return ReplyOK()
}

func cmdBGSave(ctx *Context, args [][]byte) Reply {
	if ctx.Hooks != nil && ctx.Hooks.BGSave != nil {
		ctx.Hooks.BGSave()
	}
	return ReplyStatus("Background saving started")
}

func cmdBGRewriteAOF(ctx *Context, args [][]byte) Reply {
	if ctx.Hooks != nil && ctx.Hooks.BGRewriteAOF != nil {
		ctx.Hooks.BGRewriteAOF()
	}
	return ReplyStatus("Background append only file rewriting started")
}

func cmdLastSave(ctx *Context, args [][]byte) Reply {
	if ctx.Hooks == nil || ctx.Hooks.LastSaveUnix == nil {
		return ReplyInt(0)
	}
	return ReplyInt(ctx.Hooks.LastSaveUnix())
}

func cmdShutdown(ctx *Context, args [][]byte) Reply {
	nosave := len(args) > 1 && strings.EqualFold(string(args[1]), "NOSAVE")
	if ctx.Hooks != nil && ctx.Hooks.Shutdown != nil {
		ctx.Hooks.Shutdown(nosave)
	}
	// A clean SHUTDOWN never replies; the connection is closed by the
	// caller once the process begins exiting.
	return Reply{Kind: Pending}
}

func cmdSlaveOf(ctx *Context, args [][]byte) Reply {
	host, port := string(args[1]), string(args[2])
	if strings.EqualFold(host, "no") && strings.EqualFold(port, "one") {
		if ctx.Hooks != nil && ctx.Hooks.SlaveOfNoOne != nil {
			ctx.Hooks.SlaveOfNoOne()
		}
		return ReplyOK()
	}
	if ctx.Hooks == nil || ctx.Hooks.SlaveOf == nil {
		return ReplyOK()
	}
	if err := ctx.Hooks.SlaveOf(host, port); err != nil {
		return ReplyError("ERR " + err.Error())
	}
	return ReplyOK()
}

// cmdSync is a marker handler: the actual RDB-then-stream handoff is
// performed by package server/repl once it sees this command name,
// because it requires taking over the connection's write side entirely.
// Returning Pending signals exactly that handoff.
func cmdSync(ctx *Context, args [][]byte) Reply {
	return Reply{Kind: Pending}
}

// cmdMonitor is a marker handler like cmdSync: package server subscribes
// the calling connection to the command-event feed and never sends a
// normal reply again.
func cmdMonitor(ctx *Context, args [][]byte) Reply {
	return Reply{Kind: Pending}
}

func cmdInfo(ctx *Context, args [][]byte) Reply {
	if ctx.Hooks == nil || ctx.Hooks.InfoString == nil {
		return ReplyBulkString("")
	}
	return ReplyBulkString(ctx.Hooks.InfoString())
}

func cmdDebug(ctx *Context, args [][]byte) Reply {
	sub := strings.ToUpper(string(args[1]))
	switch sub {
	case "SEGFAULT":
		panic("DEBUG SEGFAULT")
	case "OBJECT":
		if len(args) != 3 {
			return errWrongArgs("debug")
		}
		if ctx.Hooks == nil || ctx.Hooks.DebugObject == nil {
			return errNoSuchKey
		}
		desc, ok := ctx.Hooks.DebugObject(string(args[2]))
		if !ok {
			return errNoSuchKey
		}
		return ReplyStatus(desc)
	case "SWAPOUT":
		if len(args) != 3 {
			return errWrongArgs("debug")
		}
		if ctx.Hooks == nil || ctx.Hooks.DebugSwapOut == nil {
			return errNoSuchKey
		}
		if !ctx.Hooks.DebugSwapOut(string(args[2])) {
			return errNoSuchKey
		}
		return ReplyOK()
	case "RELOAD":
		if ctx.Hooks != nil && ctx.Hooks.DebugReload != nil {
			if err := ctx.Hooks.DebugReload(); err != nil {
				return ReplyError("ERR " + err.Error())
			}
		}
		return ReplyOK()
	case "LOADAOF":
		if ctx.Hooks != nil && ctx.Hooks.DebugLoadAOF != nil {
			if err := ctx.Hooks.DebugLoadAOF(); err != nil {
				return ReplyError("ERR " + err.Error())
			}
		}
		return ReplyOK()
	default:
		return errSyntax
	}
}
