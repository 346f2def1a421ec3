package command

import "strings"

// Dispatch resolves args[0] to a Spec and runs it, applying the
// cross-cutting checks every command shares: unknown-command, arity,
// auth gating, MULTI queuing, and DENYOOM.
//
// args[0] is the command name; args[1:] are its arguments. Dispatch
// returns Kind == Pending from BLPOP/BRPOP (with BlockKeys set) and, as
// a marker reply without BlockKeys, from SHUTDOWN, SYNC and MONITOR,
// which the engine then handles itself.
func Dispatch(ctx *Context, args [][]byte) Reply {
	if len(args) == 0 {
		return errUnknownCommand("")
	}
	name := strings.ToUpper(string(args[0]))
	spec, ok := Table[name]
	if !ok {
		if ctx.MultiQueue != nil {
			ctx.MultiError = true
		}
		return errUnknownCommand(string(args[0]))
	}
	if !spec.checkArity(len(args)) {
		if ctx.MultiQueue != nil {
			ctx.MultiError = true
		}
		return errWrongArgs(strings.ToLower(name))
	}
	if !ctx.Authenticated && ctx.RequirePass != "" && spec.Flags&NoAuthRequired == 0 {
		return errNotPermitted
	}

	// MULTI queues every command except the three that control the
	// transaction itself.
	if ctx.MultiQueue != nil && name != "MULTI" && name != "EXEC" && name != "DISCARD" {
		*ctx.MultiQueue = append(*ctx.MultiQueue, QueuedCommand{Spec: spec, Args: args})
		return ReplyStatus("QUEUED")
	}

	if spec.Flags&DenyOOM != 0 && ctx.Mem != nil && ctx.Mem.OverCap() {
		return errDenyOOM
	}

	reply := spec.Handler(ctx, args)
	if spec.Flags&Write != 0 && reply.Kind != ErrKind && reply.Kind != Pending {
		ctx.MarkDirty(1)
	}
	return reply
}
