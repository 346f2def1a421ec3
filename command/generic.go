package command

import "strconv"

func cmdDel(ctx *Context, args [][]byte) Reply {
	var n int64
	for _, k := range args[1:] {
		if ctx.DB.Delete(string(k)) {
			n++
		}
	}
	return ReplyInt(n)
}

func cmdExists(ctx *Context, args [][]byte) Reply {
	if ctx.DB.Exists(string(args[1]), ctx.Now) {
		return ReplyInt(1)
	}
	return ReplyInt(0)
}

func cmdType(ctx *Context, args [][]byte) Reply {
	v, ok := ctx.DB.Read(string(args[1]), ctx.Now)
	if !ok {
		return ReplyStatus("none")
	}
	return ReplyStatus(v.Kind.String())
}

func cmdKeys(ctx *Context, args [][]byte) Reply {
	return ReplyBulkStrings(ctx.DB.Keys(string(args[1]), ctx.Now))
}

func cmdRandomKey(ctx *Context, args [][]byte) Reply {
	k := ctx.DB.RandomKey(ctx.Now)
	if k == "" {
		return ReplyNilBulk()
	}
	return ReplyBulkString(k)
}

func cmdDBSize(ctx *Context, args [][]byte) Reply {
	return ReplyInt(int64(ctx.DB.Size()))
}

func cmdRename(ctx *Context, args [][]byte) Reply {
	if !ctx.DB.Rename(string(args[1]), string(args[2]), ctx.Now) {
		return errNoSuchKey
	}
	return ReplyOK()
}

func cmdRenameNX(ctx *Context, args [][]byte) Reply {
	ok, _ := ctx.DB.RenameIfAbsent(string(args[1]), string(args[2]), ctx.Now)
	if ok {
		return ReplyInt(1)
	}
	if !ctx.DB.Exists(string(args[1]), ctx.Now) {
		return errNoSuchKey
	}
	return ReplyInt(0)
}

func cmdMove(ctx *Context, args [][]byte) Reply {
	idx, err := strconv.Atoi(string(args[2]))
	if err != nil || idx < 0 || idx >= len(ctx.AllDBs) {
		return errOutOfRange
	}
	if ctx.DB.MoveTo(ctx.AllDBs[idx], string(args[1]), ctx.Now) {
		return ReplyInt(1)
	}
	return ReplyInt(0)
}

func cmdSelect(ctx *Context, args [][]byte) Reply {
	idx, err := strconv.Atoi(string(args[1]))
	if err != nil || !ctx.SelectDB(idx) {
		return errOutOfRange
	}
	return ReplyOK()
}

func cmdExpire(ctx *Context, args [][]byte) Reply {
	seconds, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		return errNotInteger
	}
	if ctx.DB.SetExpiry(string(args[1]), ctx.Now+seconds, ctx.Now) {
		return ReplyInt(1)
	}
	return ReplyInt(0)
}

func cmdExpireAt(ctx *Context, args [][]byte) Reply {
	at, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		return errNotInteger
	}
	if ctx.DB.SetExpiry(string(args[1]), at, ctx.Now) {
		return ReplyInt(1)
	}
	return ReplyInt(0)
}

func cmdPersist(ctx *Context, args [][]byte) Reply {
	if ctx.DB.PersistExpiry(string(args[1])) {
		return ReplyInt(1)
	}
	return ReplyInt(0)
}

func cmdTTL(ctx *Context, args [][]byte) Reply {
	return ReplyInt(ctx.DB.TTL(string(args[1]), ctx.Now))
}

func cmdFlushDB(ctx *Context, args [][]byte) Reply {
	ctx.DB.Flush()
	return ReplyOK()
}

func cmdFlushAll(ctx *Context, args [][]byte) Reply {
	for _, db := range ctx.AllDBs {
		db.Flush()
	}
	return ReplyOK()
}
