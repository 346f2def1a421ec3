package command

import (
	"strconv"

	"github.com/mickamy/kvstore/value"
)

func getString(ctx *Context, key string) (*value.Value, Reply, bool) {
	v, ok := ctx.DB.Read(key, ctx.Now)
	if !ok {
		return nil, Reply{}, true
	}
	if v.Kind != value.String {
		return nil, errWrongType, false
	}
	return v, Reply{}, true
}

func cmdGet(ctx *Context, args [][]byte) Reply {
	v, errReply, ok := getString(ctx, string(args[1]))
	if !ok {
		return errReply
	}
	if v == nil {
		return ReplyNilBulk()
	}
	return ReplyBulk(v.StringBytes())
}

func cmdSet(ctx *Context, args [][]byte) Reply {
	key := string(args[1])
	ctx.DB.PrepareWrite(key, ctx.Now)
	ctx.DB.Set(key, newStringValue(args[2]))
	return ReplyOK()
}

func cmdSetNX(ctx *Context, args [][]byte) Reply {
	key := string(args[1])
	if ctx.DB.Exists(key, ctx.Now) {
		return ReplyInt(0)
	}
	ctx.DB.PrepareWrite(key, ctx.Now)
	ctx.DB.Set(key, newStringValue(args[2]))
	return ReplyInt(1)
}

func cmdGetSet(ctx *Context, args [][]byte) Reply {
	key := string(args[1])
	old, errReply, ok := getString(ctx, key)
	if !ok {
		return errReply
	}
	ctx.DB.PrepareWrite(key, ctx.Now)
	ctx.DB.Set(key, newStringValue(args[2]))
	if old == nil {
		return ReplyNilBulk()
	}
	return ReplyBulk(old.StringBytes())
}

func cmdMGet(ctx *Context, args [][]byte) Reply {
	out := make([]Reply, len(args)-1)
	for i, k := range args[1:] {
		v, ok := ctx.DB.Read(string(k), ctx.Now)
		if !ok || v.Kind != value.String {
			out[i] = ReplyNilBulk()
			continue
		}
		out[i] = ReplyBulk(v.StringBytes())
	}
	return ReplyArray(out...)
}

func cmdMSet(ctx *Context, args [][]byte) Reply {
	pairs := args[1:]
	if len(pairs)%2 != 0 {
		return errWrongArgs("mset")
	}
	for i := 0; i < len(pairs); i += 2 {
		key := string(pairs[i])
		ctx.DB.PrepareWrite(key, ctx.Now)
		ctx.DB.Set(key, newStringValue(pairs[i+1]))
	}
	return ReplyOK()
}

func cmdMSetNX(ctx *Context, args [][]byte) Reply {
	pairs := args[1:]
	if len(pairs)%2 != 0 {
		return errWrongArgs("msetnx")
	}
	for i := 0; i < len(pairs); i += 2 {
		if ctx.DB.Exists(string(pairs[i]), ctx.Now) {
			return ReplyInt(0)
		}
	}
	for i := 0; i < len(pairs); i += 2 {
		key := string(pairs[i])
		ctx.DB.PrepareWrite(key, ctx.Now)
		ctx.DB.Set(key, newStringValue(pairs[i+1]))
	}
	return ReplyInt(1)
}

func cmdIncr(ctx *Context, args [][]byte) Reply {
	return incrDecrBy(ctx, string(args[1]), 1)
}

func cmdDecr(ctx *Context, args [][]byte) Reply {
	return incrDecrBy(ctx, string(args[1]), -1)
}

func cmdIncrBy(ctx *Context, args [][]byte) Reply {
	delta, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		return errNotInteger
	}
	return incrDecrBy(ctx, string(args[1]), delta)
}

func cmdDecrBy(ctx *Context, args [][]byte) Reply {
	delta, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		return errNotInteger
	}
	return incrDecrBy(ctx, string(args[1]), -delta)
}

func incrDecrBy(ctx *Context, key string, delta int64) Reply {
	v, errReply, ok := getString(ctx, key)
	if !ok {
		return errReply
	}
	var current int64
	if v != nil {
		n, isInt := value.TryIntEncode(v.StringBytes())
		if !isInt {
			return errNotInteger
		}
		current = n
	}
	next := current + delta
	ctx.DB.PrepareWrite(key, ctx.Now)
	ctx.DB.Set(key, value.NewStringFromInt(next))
	return ReplyInt(next)
}

// newStringValue builds a String Value, applying the same opportunistic
// int-encoding check Redis performs on every SET-family write.
func newStringValue(b []byte) *value.Value {
	if n, ok := value.TryIntEncode(b); ok {
		return value.NewStringFromInt(n)
	}
	return value.NewString(append([]byte(nil), b...))
}
