package command

func cmdMulti(ctx *Context, args [][]byte) Reply {
	if ctx.MultiQueue != nil {
		return ReplyError("ERR MULTI calls can not be nested")
	}
	q := make([]QueuedCommand, 0)
	ctx.MultiQueue = &q
	ctx.MultiError = false
	return ReplyOK()
}

func cmdExec(ctx *Context, args [][]byte) Reply {
	if ctx.MultiQueue == nil {
		return ReplyError("ERR EXEC without MULTI")
	}
	queue := *ctx.MultiQueue
	hadError := ctx.MultiError
	ctx.MultiQueue = nil
	ctx.MultiError = false

	if hadError {
		return ReplyError("EXECABORT Transaction discarded because of previous errors.")
	}

	results := make([]Reply, len(queue))
	for i, qc := range queue {
		reply := qc.Spec.Handler(ctx, qc.Args)
		if qc.Spec.Flags&Write != 0 && reply.Kind != ErrKind {
			ctx.MarkDirty(1)
		}
		results[i] = reply
	}
	return ReplyArray(results...)
}

func cmdDiscard(ctx *Context, args [][]byte) Reply {
	if ctx.MultiQueue == nil {
		return ReplyError("ERR DISCARD without MULTI")
	}
	ctx.MultiQueue = nil
	ctx.MultiError = false
	return ReplyOK()
}
