package command

func cmdAuth(ctx *Context, args [][]byte) Reply {
	if ctx.RequirePass == "" {
		return ReplyError("ERR Client sent AUTH, but no password is set")
	}
	if string(args[1]) != ctx.RequirePass {
		return ReplyError("ERR invalid password")
	}
	ctx.Authenticated = true
	return ReplyOK()
}

func cmdPing(ctx *Context, args [][]byte) Reply {
	if len(args) == 2 {
		return ReplyBulk(args[1])
	}
	return ReplyStatus("PONG")
}

func cmdEcho(ctx *Context, args [][]byte) Reply {
	return ReplyBulk(args[1])
}

func cmdQuit(ctx *Context, args [][]byte) Reply {
	return ReplyOK()
}
