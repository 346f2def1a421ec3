package command

import "github.com/mickamy/kvstore/value"

func fetchSet(ctx *Context, key string) (*value.Value, Reply, bool) {
	v, found := ctx.DB.Read(key, ctx.Now)
	if !found {
		return nil, Reply{}, true
	}
	if v.Kind != value.Set {
		return nil, errWrongType, false
	}
	return v, Reply{}, true
}

func cmdSAdd(ctx *Context, args [][]byte) Reply {
	key := string(args[1])
	ctx.DB.PrepareWrite(key, ctx.Now)
	v, errReply, ok := fetchSet(ctx, key)
	if !ok {
		return errReply
	}
	isNew := v == nil
	if isNew {
		v = value.NewSet()
	}
	var added int64
	for _, m := range args[2:] {
		member := string(m)
		if _, exists := v.SetData[member]; !exists {
			v.SetData[member] = struct{}{}
			added++
		}
	}
	if isNew {
		ctx.DB.Set(key, v)
	}
	return ReplyInt(added)
}

func cmdSRem(ctx *Context, args [][]byte) Reply {
	v, errReply, ok := fetchSet(ctx, string(args[1]))
	if !ok {
		return errReply
	}
	if v == nil {
		return ReplyInt(0)
	}
	var removed int64
	for _, m := range args[2:] {
		member := string(m)
		if _, exists := v.SetData[member]; exists {
			delete(v.SetData, member)
			removed++
		}
	}
	if len(v.SetData) == 0 {
		ctx.DB.Delete(string(args[1]))
	}
	return ReplyInt(removed)
}

func cmdSMove(ctx *Context, args [][]byte) Reply {
	src, dst, member := string(args[1]), string(args[2]), string(args[3])
	sv, errReply, ok := fetchSet(ctx, src)
	if !ok {
		return errReply
	}
	if sv == nil {
		return ReplyInt(0)
	}
	if _, exists := sv.SetData[member]; !exists {
		return ReplyInt(0)
	}

	ctx.DB.PrepareWrite(dst, ctx.Now)
	dv, errReply, ok := fetchSet(ctx, dst)
	if !ok {
		return errReply
	}
	delete(sv.SetData, member)
	if len(sv.SetData) == 0 {
		ctx.DB.Delete(src)
	}
	isNew := dv == nil
	if isNew {
		dv = value.NewSet()
	}
	dv.SetData[member] = struct{}{}
	if isNew {
		ctx.DB.Set(dst, dv)
	}
	return ReplyInt(1)
}

func cmdSIsMember(ctx *Context, args [][]byte) Reply {
	v, errReply, ok := fetchSet(ctx, string(args[1]))
	if !ok {
		return errReply
	}
	if v == nil {
		return ReplyInt(0)
	}
	if _, exists := v.SetData[string(args[2])]; exists {
		return ReplyInt(1)
	}
	return ReplyInt(0)
}

func cmdSCard(ctx *Context, args [][]byte) Reply {
	v, errReply, ok := fetchSet(ctx, string(args[1]))
	if !ok {
		return errReply
	}
	if v == nil {
		return ReplyInt(0)
	}
	return ReplyInt(int64(len(v.SetData)))
}

func cmdSPop(ctx *Context, args [][]byte) Reply {
	key := string(args[1])
	v, errReply, ok := fetchSet(ctx, key)
	if !ok {
		return errReply
	}
	if v == nil || len(v.SetData) == 0 {
		return ReplyNilBulk()
	}
	for m := range v.SetData {
		delete(v.SetData, m)
		if len(v.SetData) == 0 {
			ctx.DB.Delete(key)
		}
		return ReplyBulkString(m)
	}
	return ReplyNilBulk()
}

func cmdSRandMember(ctx *Context, args [][]byte) Reply {
	v, errReply, ok := fetchSet(ctx, string(args[1]))
	if !ok {
		return errReply
	}
	if v == nil || len(v.SetData) == 0 {
		return ReplyNilBulk()
	}
	for m := range v.SetData {
		return ReplyBulkString(m)
	}
	return ReplyNilBulk()
}

func cmdSMembers(ctx *Context, args [][]byte) Reply {
	v, errReply, ok := fetchSet(ctx, string(args[1]))
	if !ok {
		return errReply
	}
	if v == nil {
		return ReplyArray()
	}
	return ReplyBulkStrings(setKeys(v.SetData))
}

func setKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func loadSets(ctx *Context, keys [][]byte) ([]map[string]struct{}, Reply, bool) {
	sets := make([]map[string]struct{}, 0, len(keys))
	for _, k := range keys {
		v, errReply, ok := fetchSet(ctx, string(k))
		if !ok {
			return nil, errReply, false
		}
		if v == nil {
			sets = append(sets, nil)
			continue
		}
		sets = append(sets, v.SetData)
	}
	return sets, Reply{}, true
}

func cmdSInter(ctx *Context, args [][]byte) Reply {
	sets, errReply, ok := loadSets(ctx, args[1:])
	if !ok {
		return errReply
	}
	return ReplyBulkStrings(setKeys(intersectSets(sets)))
}

func cmdSInterStore(ctx *Context, args [][]byte) Reply {
	sets, errReply, ok := loadSets(ctx, args[2:])
	if !ok {
		return errReply
	}
	return storeSetResult(ctx, string(args[1]), intersectSets(sets))
}

func cmdSUnion(ctx *Context, args [][]byte) Reply {
	sets, errReply, ok := loadSets(ctx, args[1:])
	if !ok {
		return errReply
	}
	return ReplyBulkStrings(setKeys(unionSets(sets)))
}

func cmdSUnionStore(ctx *Context, args [][]byte) Reply {
	sets, errReply, ok := loadSets(ctx, args[2:])
	if !ok {
		return errReply
	}
	return storeSetResult(ctx, string(args[1]), unionSets(sets))
}

func cmdSDiff(ctx *Context, args [][]byte) Reply {
	sets, errReply, ok := loadSets(ctx, args[1:])
	if !ok {
		return errReply
	}
	return ReplyBulkStrings(setKeys(diffSets(sets)))
}

func cmdSDiffStore(ctx *Context, args [][]byte) Reply {
	sets, errReply, ok := loadSets(ctx, args[2:])
	if !ok {
		return errReply
	}
	return storeSetResult(ctx, string(args[1]), diffSets(sets))
}

func storeSetResult(ctx *Context, dst string, result map[string]struct{}) Reply {
	ctx.DB.PrepareWrite(dst, ctx.Now)
	if len(result) == 0 {
		ctx.DB.Delete(dst)
		return ReplyInt(0)
	}
	v := value.NewSet()
	v.SetData = result
	ctx.DB.Set(dst, v)
	return ReplyInt(int64(len(result)))
}

func intersectSets(sets []map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	if len(sets) == 0 || sets[0] == nil {
		return out
	}
	for m := range sets[0] {
		present := true
		for _, s := range sets[1:] {
			if s == nil {
				present = false
				break
			}
			if _, exists := s[m]; !exists {
				present = false
				break
			}
		}
		if present {
			out[m] = struct{}{}
		}
	}
	return out
}

func unionSets(sets []map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range sets {
		for m := range s {
			out[m] = struct{}{}
		}
	}
	return out
}

func diffSets(sets []map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	if len(sets) == 0 {
		return out
	}
	for m := range sets[0] {
		out[m] = struct{}{}
	}
	for _, s := range sets[1:] {
		for m := range s {
			delete(out, m)
		}
	}
	return out
}
