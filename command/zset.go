package command

import (
	"math"
	"strconv"
	"strings"

	"github.com/mickamy/kvstore/resp"
	"github.com/mickamy/kvstore/store"
	"github.com/mickamy/kvstore/value"
)

func fetchZSet(ctx *Context, key string) (*value.Value, Reply, bool) {
	v, found := ctx.DB.Read(key, ctx.Now)
	if !found {
		return nil, Reply{}, true
	}
	if v.Kind != value.ZSet {
		return nil, errWrongType, false
	}
	return v, Reply{}, true
}

func parseScore(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "-inf":
		return math.Inf(-1), nil
	case "+inf", "inf":
		return math.Inf(1), nil
	default:
		return strconv.ParseFloat(s, 64)
	}
}

func cmdZAdd(ctx *Context, args [][]byte) Reply {
	pairs := args[2:]
	if len(pairs)%2 != 0 {
		return errSyntax
	}
	key := string(args[1])
	ctx.DB.PrepareWrite(key, ctx.Now)
	v, errReply, ok := fetchZSet(ctx, key)
	if !ok {
		return errReply
	}
	isNew := v == nil
	if isNew {
		v = value.NewZSet()
	}
	var added int64
	for i := 0; i < len(pairs); i += 2 {
		score, err := parseScore(string(pairs[i]))
		if err != nil {
			return errNotFloat
		}
		if store.ZAdd(v, string(pairs[i+1]), score) {
			added++
		}
	}
	if isNew {
		ctx.DB.Set(key, v)
	}
	return ReplyInt(added)
}

func cmdZIncrBy(ctx *Context, args [][]byte) Reply {
	delta, err := parseScore(string(args[2]))
	if err != nil {
		return errNotFloat
	}
	key := string(args[1])
	ctx.DB.PrepareWrite(key, ctx.Now)
	v, errReply, ok := fetchZSet(ctx, key)
	if !ok {
		return errReply
	}
	isNew := v == nil
	if isNew {
		v = value.NewZSet()
	}
	next := store.ZIncrBy(v, string(args[3]), delta)
	if isNew {
		ctx.DB.Set(key, v)
	}
	return ReplyBulkString(resp.FormatFloat(next))
}

func cmdZRem(ctx *Context, args [][]byte) Reply {
	v, errReply, ok := fetchZSet(ctx, string(args[1]))
	if !ok {
		return errReply
	}
	if v == nil {
		return ReplyInt(0)
	}
	var removed int64
	for _, m := range args[2:] {
		if store.ZRem(v, string(m)) {
			removed++
		}
	}
	if store.ZCard(v) == 0 {
		ctx.DB.Delete(string(args[1]))
	}
	return ReplyInt(removed)
}

func cmdZRemRangeByScore(ctx *Context, args [][]byte) Reply {
	min, err1 := parseScore(string(args[2]))
	max, err2 := parseScore(string(args[3]))
	if err1 != nil || err2 != nil {
		return errNotFloat
	}
	v, errReply, ok := fetchZSet(ctx, string(args[1]))
	if !ok {
		return errReply
	}
	if v == nil {
		return ReplyInt(0)
	}
	n := store.ZRemRangeByScore(v, min, max)
	if store.ZCard(v) == 0 {
		ctx.DB.Delete(string(args[1]))
	}
	return ReplyInt(int64(n))
}

func hasWithScores(rest [][]byte) bool {
	for _, a := range rest {
		if strings.EqualFold(string(a), "WITHSCORES") {
			return true
		}
	}
	return false
}

func membersToReply(members []value.ZMember, withScores bool) Reply {
	out := make([]Reply, 0, len(members)*2)
	for _, m := range members {
		out = append(out, ReplyBulkString(m.Member))
		if withScores {
			out = append(out, ReplyBulkString(resp.FormatFloat(m.Score)))
		}
	}
	return ReplyArray(out...)
}

func rangeByIndexCommon(ctx *Context, args [][]byte, reverse bool) Reply {
	v, errReply, ok := fetchZSet(ctx, string(args[1]))
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
	withScores := hasWithScores(args[4:])

	n := store.ZCard(v)
	start = clamp(resolveIndex(start, n), 0, n)
	stop = resolveIndex(stop, n)
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return ReplyArray()
	}

	members := store.ZRangeByIndex(v, start, stop)
	if reverse {
		for i, j := 0, len(members)-1; i < j; i, j = i+1, j-1 {
			members[i], members[j] = members[j], members[i]
		}
	}
	return membersToReply(members, withScores)
}

func cmdZRange(ctx *Context, args [][]byte) Reply    { return rangeByIndexCommon(ctx, args, false) }
func cmdZRevRange(ctx *Context, args [][]byte) Reply { return rangeByIndexCommon(ctx, args, true) }

func cmdZRangeByScore(ctx *Context, args [][]byte) Reply {
	v, errReply, ok := fetchZSet(ctx, string(args[1]))
	if !ok {
		return errReply
	}
	min, err1 := parseScore(string(args[2]))
	max, err2 := parseScore(string(args[3]))
	if err1 != nil || err2 != nil {
		return errNotFloat
	}

	withScores := false
	offset, limit := 0, -1
	rest := args[4:]
	for i := 0; i < len(rest); i++ {
		switch strings.ToUpper(string(rest[i])) {
		case "WITHSCORES":
			withScores = true
		case "LIMIT":
			if i+2 >= len(rest) {
				return errSyntax
			}
			o, errO := strconv.Atoi(string(rest[i+1]))
			l, errL := strconv.Atoi(string(rest[i+2]))
			if errO != nil || errL != nil {
				return errNotInteger
			}
			offset, limit = o, l
			i += 2
		default:
			return errSyntax
		}
	}

	if v == nil {
		return ReplyArray()
	}
	members := store.ZRangeByScore(v, min, max, offset, limit)
	return membersToReply(members, withScores)
}

func cmdZCard(ctx *Context, args [][]byte) Reply {
	v, errReply, ok := fetchZSet(ctx, string(args[1]))
	if !ok {
		return errReply
	}
	if v == nil {
		return ReplyInt(0)
	}
	return ReplyInt(int64(store.ZCard(v)))
}

func cmdZScore(ctx *Context, args [][]byte) Reply {
	v, errReply, ok := fetchZSet(ctx, string(args[1]))
	if !ok {
		return errReply
	}
	if v == nil {
		return ReplyNilBulk()
	}
	score, exists := store.ZScore(v, string(args[2]))
	if !exists {
		return ReplyNilBulk()
	}
	return ReplyBulkString(resp.FormatFloat(score))
}
