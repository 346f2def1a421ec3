package command

import (
	"sort"
	"strconv"
	"strings"

	"github.com/mickamy/kvstore/store"
	"github.com/mickamy/kvstore/value"
)

type sortOptions struct {
	by      string
	get     []string
	offset  int
	limit   int // -1 means unbounded
	desc    bool
	alpha   bool
	storeTo string
	hasStore bool
}

func parseSortOptions(args [][]byte) (sortOptions, Reply, bool) {
	opts := sortOptions{limit: -1}
	for i := 0; i < len(args); i++ {
		tok := strings.ToUpper(string(args[i]))
		switch tok {
		case "BY":
			if i+1 >= len(args) {
				return opts, errSyntax, false
			}
			i++
			opts.by = string(args[i])
		case "GET":
			if i+1 >= len(args) {
				return opts, errSyntax, false
			}
			i++
			opts.get = append(opts.get, string(args[i]))
		case "LIMIT":
			if i+2 >= len(args) {
				return opts, errSyntax, false
			}
			off, err1 := strconv.Atoi(string(args[i+1]))
			lim, err2 := strconv.Atoi(string(args[i+2]))
			if err1 != nil || err2 != nil {
				return opts, errNotInteger, false
			}
			opts.offset, opts.limit = off, lim
			i += 2
		case "ASC":
			opts.desc = false
		case "DESC":
			opts.desc = true
		case "ALPHA":
			opts.alpha = true
		case "STORE":
			if i+1 >= len(args) {
				return opts, errSyntax, false
			}
			i++
			opts.storeTo = string(args[i])
			opts.hasStore = true
		default:
			return opts, errSyntax, false
		}
	}
	return opts, Reply{}, true
}

// substitutePattern replaces the first "*" in pattern with element,
// implementing the BY/GET external-key lookup. Only the plain key form
// is supported; a "key->field" hash-field form is not, since no HASH
// command is exposed on the wire.
func substitutePattern(pattern, element string) string {
	return strings.Replace(pattern, "*", element, 1)
}

func cmdSort(ctx *Context, args [][]byte) Reply {
	key := string(args[1])
	v, found := ctx.DB.Read(key, ctx.Now)
	if found && v.Kind != value.List && v.Kind != value.Set && v.Kind != value.ZSet {
		return errWrongType
	}

	opts, errReply, ok := parseSortOptions(args[2:])
	if !ok {
		return errReply
	}

	var elements []string
	switch {
	case !found:
		elements = nil
	case v.Kind == value.List:
		elements = append([]string(nil), v.ListData...)
	case v.Kind == value.Set:
		elements = setKeys(v.SetData)
	case v.Kind == value.ZSet:
		for _, m := range store.ZWalk(v) {
			elements = append(elements, m.Member)
		}
	}

	skipSort := opts.by != "" && !strings.Contains(opts.by, "*")
	if !skipSort {
		weight := func(e string) string {
			if opts.by == "" {
				return e
			}
			lookupKey := substitutePattern(opts.by, e)
			lv, ok := ctx.DB.Read(lookupKey, ctx.Now)
			if !ok || lv.Kind != value.String {
				return ""
			}
			return string(lv.StringBytes())
		}

		if opts.alpha {
			sort.SliceStable(elements, func(i, j int) bool {
				return weight(elements[i]) < weight(elements[j])
			})
		} else {
			weights := make([]float64, len(elements))
			for i, e := range elements {
				w := weight(e)
				if w == "" {
					w = "0"
				}
				n, err := strconv.ParseFloat(w, 64)
				if err != nil {
					return ReplyError("ERR One or more scores can't be converted into double")
				}
				weights[i] = n
			}
			idx := make([]int, len(elements))
			for i := range idx {
				idx[i] = i
			}
			sort.SliceStable(idx, func(i, j int) bool { return weights[idx[i]] < weights[idx[j]] })
			sorted := make([]string, len(elements))
			for i, pos := range idx {
				sorted[i] = elements[pos]
			}
			elements = sorted
		}
		if opts.desc {
			for i, j := 0, len(elements)-1; i < j; i, j = i+1, j-1 {
				elements[i], elements[j] = elements[j], elements[i]
			}
		}
	}

	start := clamp(opts.offset, 0, len(elements))
	end := len(elements)
	if opts.limit >= 0 {
		end = clamp(start+opts.limit, start, len(elements))
	}
	elements = elements[start:end]

	var replies []Reply
	var storeData []string
	emit := func(s string, nilValue bool) {
		if opts.hasStore {
			storeData = append(storeData, s) // RDB/AOF-stored lists carry no nils
			return
		}
		if nilValue {
			replies = append(replies, ReplyNilBulk())
		} else {
			replies = append(replies, ReplyBulkString(s))
		}
	}
	for _, e := range elements {
		if len(opts.get) == 0 {
			emit(e, false)
			continue
		}
		for _, pattern := range opts.get {
			if pattern == "#" {
				emit(e, false)
				continue
			}
			lookupKey := substitutePattern(pattern, e)
			lv, ok := ctx.DB.Read(lookupKey, ctx.Now)
			if !ok || lv.Kind != value.String {
				emit("", true)
				continue
			}
			emit(string(lv.StringBytes()), false)
		}
	}

	if opts.hasStore {
		ctx.DB.PrepareWrite(opts.storeTo, ctx.Now)
		if len(storeData) == 0 {
			ctx.DB.Delete(opts.storeTo)
			return ReplyInt(0)
		}
		lv := value.NewList()
		lv.ListData = storeData
		ctx.DB.Set(opts.storeTo, lv)
		return ReplyInt(int64(len(storeData)))
	}
	return ReplyArray(replies...)
}
