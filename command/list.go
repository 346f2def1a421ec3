package command

import (
	"strconv"

	"github.com/mickamy/kvstore/value"
)

// fetchList reads key, enforcing WRONGTYPE. ok is false only on a type
// error; a missing key is (nil, true).
func fetchList(ctx *Context, key string) (*value.Value, Reply, bool) {
	v, found := ctx.DB.Read(key, ctx.Now)
	if !found {
		return nil, Reply{}, true
	}
	if v.Kind != value.List {
		return nil, errWrongType, false
	}
	return v, Reply{}, true
}

func pushCommon(ctx *Context, args [][]byte, left bool) Reply {
	key := string(args[1])
	ctx.DB.PrepareWrite(key, ctx.Now)
	v, errReply, ok := fetchList(ctx, key)
	if !ok {
		return errReply
	}
	isNew := v == nil
	if isNew {
		v = value.NewList()
	}
	for _, e := range args[2:] {
		if left {
			v.ListData = append([]string{string(e)}, v.ListData...)
		} else {
			v.ListData = append(v.ListData, string(e))
		}
	}
	if isNew {
		ctx.DB.Set(key, v)
	}
	return ReplyInt(int64(len(v.ListData)))
}

func cmdLPush(ctx *Context, args [][]byte) Reply { return pushCommon(ctx, args, true) }
func cmdRPush(ctx *Context, args [][]byte) Reply { return pushCommon(ctx, args, false) }

func popCommon(ctx *Context, key string, left bool) Reply {
	v, errReply, ok := fetchList(ctx, key)
	if !ok {
		return errReply
	}
	if v == nil || len(v.ListData) == 0 {
		return ReplyNilBulk()
	}
	var elem string
	if left {
		elem = v.ListData[0]
		v.ListData = v.ListData[1:]
	} else {
		elem = v.ListData[len(v.ListData)-1]
		v.ListData = v.ListData[:len(v.ListData)-1]
	}
	if len(v.ListData) == 0 {
		ctx.DB.Delete(key)
	}
	return ReplyBulkString(elem)
}

func cmdLPop(ctx *Context, args [][]byte) Reply { return popCommon(ctx, string(args[1]), true) }
func cmdRPop(ctx *Context, args [][]byte) Reply { return popCommon(ctx, string(args[1]), false) }

func cmdLLen(ctx *Context, args [][]byte) Reply {
	v, errReply, ok := fetchList(ctx, string(args[1]))
	if !ok {
		return errReply
	}
	if v == nil {
		return ReplyInt(0)
	}
	return ReplyInt(int64(len(v.ListData)))
}

// resolveIndex turns a possibly-negative index into an absolute one
// against a sequence of length n; negative indices count from the tail.
func resolveIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	return i
}

func cmdLIndex(ctx *Context, args [][]byte) Reply {
	v, errReply, ok := fetchList(ctx, string(args[1]))
	if !ok {
		return errReply
	}
	if v == nil {
		return ReplyNilBulk()
	}
	idx, err := strconv.Atoi(string(args[2]))
	if err != nil {
		return errNotInteger
	}
	idx = resolveIndex(idx, len(v.ListData))
	if idx < 0 || idx >= len(v.ListData) {
		return ReplyNilBulk()
	}
	return ReplyBulkString(v.ListData[idx])
}

func cmdLSet(ctx *Context, args [][]byte) Reply {
	v, errReply, ok := fetchList(ctx, string(args[1]))
	if !ok {
		return errReply
	}
	if v == nil {
		return errNoSuchKey
	}
	idx, err := strconv.Atoi(string(args[2]))
	if err != nil {
		return errNotInteger
	}
	idx = resolveIndex(idx, len(v.ListData))
	if idx < 0 || idx >= len(v.ListData) {
		return errOutOfRange
	}
	v.ListData[idx] = string(args[3])
	return ReplyOK()
}

func cmdLRange(ctx *Context, args [][]byte) Reply {
	v, errReply, ok := fetchList(ctx, string(args[1]))
	if !ok {
		return errReply
	}
	if v == nil {
		return ReplyArray()
	}
	start, err1 := strconv.Atoi(string(args[2]))
	stop, err2 := strconv.Atoi(string(args[3]))
	if err1 != nil || err2 != nil {
		return errNotInteger
	}
	n := len(v.ListData)
	start = clamp(resolveIndex(start, n), 0, n)
	stop = resolveIndex(stop, n)
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return ReplyArray()
	}
	return ReplyBulkStrings(append([]string(nil), v.ListData[start:stop+1]...))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func cmdLTrim(ctx *Context, args [][]byte) Reply {
	v, errReply, ok := fetchList(ctx, string(args[1]))
	if !ok {
		return errReply
	}
	if v == nil {
		return ReplyOK()
	}
	start, err1 := strconv.Atoi(string(args[2]))
	stop, err2 := strconv.Atoi(string(args[3]))
	if err1 != nil || err2 != nil {
		return errNotInteger
	}
	n := len(v.ListData)
	start = clamp(resolveIndex(start, n), 0, n)
	stop = resolveIndex(stop, n)
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		v.ListData = nil
	} else {
		v.ListData = append([]string(nil), v.ListData[start:stop+1]...)
	}
	if len(v.ListData) == 0 {
		ctx.DB.Delete(string(args[1]))
	}
	return ReplyOK()
}

func cmdLRem(ctx *Context, args [][]byte) Reply {
	v, errReply, ok := fetchList(ctx, string(args[1]))
	if !ok {
		return errReply
	}
	if v == nil {
		return ReplyInt(0)
	}
	count, err := strconv.Atoi(string(args[2]))
	if err != nil {
		return errNotInteger
	}
	target := string(args[3])

	var kept []string
	removed := 0
	switch {
	case count >= 0:
		limit := count
		if limit == 0 {
			limit = len(v.ListData)
		}
		for _, e := range v.ListData {
			if e == target && removed < limit {
				removed++
				continue
			}
			kept = append(kept, e)
		}
	default:
		limit := -count
		// Walk from the tail so the first `limit` matches removed are the
		// ones nearest the tail, then restore original order.
		rev := make([]string, len(v.ListData))
		copy(rev, v.ListData)
		for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
			rev[i], rev[j] = rev[j], rev[i]
		}
		var keptRev []string
		for _, e := range rev {
			if e == target && removed < limit {
				removed++
				continue
			}
			keptRev = append(keptRev, e)
		}
		kept = make([]string, len(keptRev))
		for i, e := range keptRev {
			kept[len(keptRev)-1-i] = e
		}
	}
	v.ListData = kept
	if len(v.ListData) == 0 {
		ctx.DB.Delete(string(args[1]))
	}
	return ReplyInt(int64(removed))
}

func cmdRPopLPush(ctx *Context, args [][]byte) Reply {
	src := string(args[1])
	dst := string(args[2])

	sv, errReply, ok := fetchList(ctx, src)
	if !ok {
		return errReply
	}
	if sv == nil || len(sv.ListData) == 0 {
		return ReplyNilBulk()
	}

	ctx.DB.PrepareWrite(dst, ctx.Now)
	dv, errReply, ok := fetchList(ctx, dst)
	if !ok {
		return errReply
	}
	elem := sv.ListData[len(sv.ListData)-1]
	sv.ListData = sv.ListData[:len(sv.ListData)-1]
	if len(sv.ListData) == 0 {
		ctx.DB.Delete(src)
	}

	isNew := dv == nil
	if isNew {
		dv = value.NewList()
	}
	dv.ListData = append([]string{elem}, dv.ListData...)
	if isNew {
		ctx.DB.Set(dst, dv)
	}
	return ReplyBulkString(elem)
}

func blockingPop(ctx *Context, args [][]byte, left bool) Reply {
	keys := make([]string, len(args)-2)
	for i, k := range args[1 : len(args)-1] {
		keys[i] = string(k)
	}
	timeoutArg := string(args[len(args)-1])
	timeout, err := strconv.ParseFloat(timeoutArg, 64)
	if err != nil || timeout < 0 {
		return errNotFloat
	}

	for _, key := range keys {
		v, errReply, ok := fetchList(ctx, key)
		if !ok {
			return errReply
		}
		if v == nil || len(v.ListData) == 0 {
			continue
		}
		var elem string
		if left {
			elem = v.ListData[0]
			v.ListData = v.ListData[1:]
		} else {
			elem = v.ListData[len(v.ListData)-1]
			v.ListData = v.ListData[:len(v.ListData)-1]
		}
		if len(v.ListData) == 0 {
			ctx.DB.Delete(key)
		}
		return ReplyArray(ReplyBulkString(key), ReplyBulkString(elem))
	}

	return Reply{Kind: Pending, BlockKeys: keys, BlockTimeout: timeout, FromLeft: left}
}

func cmdBLPop(ctx *Context, args [][]byte) Reply { return blockingPop(ctx, args, true) }
func cmdBRPop(ctx *Context, args [][]byte) Reply { return blockingPop(ctx, args, false) }
