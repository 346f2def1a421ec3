package rdb

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/mickamy/kvstore/store"
	"github.com/mickamy/kvstore/value"
)

// ErrBadMagic is returned when the stream does not begin with "REDIS".
var ErrBadMagic = errors.New("rdb: bad magic header")

// Load replaces the contents of every db in dbs with the snapshot read
// from r. dbs must already exist (one per configured database); a
// select-db op code beyond len(dbs) is an error.
func Load(r io.Reader, dbs []*store.DB) error {
	br := bufio.NewReader(r)

	header := make([]byte, len(magic)+len(version))
	if _, err := io.ReadFull(br, header); err != nil {
		return fmt.Errorf("rdb: read header: %w", err)
	}
	if string(header[:len(magic)]) != magic {
		return ErrBadMagic
	}

	for _, db := range dbs {
		db.Flush()
	}

	cur := 0
	var pendingExpire int64
	haveExpire := false

	for {
		op, err := br.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		switch op {
		case opEOF:
			return nil
		case opSelectDB:
			n, _, err := readLength(br)
			if err != nil {
				return err
			}
			if int(n) >= len(dbs) {
				return fmt.Errorf("rdb: select-db %d out of range (have %d)", n, len(dbs))
			}
			cur = int(n)
		case opExpireTime:
			var buf [4]byte
			if _, err := io.ReadFull(br, buf[:]); err != nil {
				return err
			}
			pendingExpire = int64(buf[0]) | int64(buf[1])<<8 | int64(buf[2])<<16 | int64(buf[3])<<24
			haveExpire = true
			continue
		case opString, opList, opSet, opZSet, opHash:
			key, err := readString(br)
			if err != nil {
				return err
			}
			v, err := readValue(br, op)
			if err != nil {
				return err
			}
			db := dbs[cur]
			db.Set(string(key), v)
			if haveExpire {
				db.SetExpiry(string(key), pendingExpire, store.Now())
			}
		default:
			return fmt.Errorf("rdb: unknown op code %d", op)
		}
		haveExpire = false
	}
}

// DecodeValue reads back what EncodeValue wrote for a value of the given
// kind, the pager's swap-in counterpart to EncodeValue's swap-out.
func DecodeValue(br *bufio.Reader, kind value.Kind) (*value.Value, error) {
	op, err := kindToOp(kind)
	if err != nil {
		return nil, err
	}
	return readValue(br, op)
}

func kindToOp(kind value.Kind) (byte, error) {
	switch kind {
	case value.String:
		return opString, nil
	case value.List:
		return opList, nil
	case value.Set:
		return opSet, nil
	case value.ZSet:
		return opZSet, nil
	case value.Hash:
		return opHash, nil
	default:
		return 0, fmt.Errorf("rdb: DecodeValue: unknown kind %v", kind)
	}
}

func readValue(br *bufio.Reader, op byte) (*value.Value, error) {
	switch op {
	case opString:
		b, err := readString(br)
		if err != nil {
			return nil, err
		}
		if n, ok := value.TryIntEncode(b); ok {
			return value.NewStringFromInt(n), nil
		}
		return value.NewString(b), nil
	case opList:
		n, _, err := readLength(br)
		if err != nil {
			return nil, err
		}
		v := value.NewList()
		for i := uint64(0); i < n; i++ {
			e, err := readString(br)
			if err != nil {
				return nil, err
			}
			v.ListData = append(v.ListData, string(e))
		}
		return v, nil
	case opSet:
		n, _, err := readLength(br)
		if err != nil {
			return nil, err
		}
		v := value.NewSet()
		for i := uint64(0); i < n; i++ {
			e, err := readString(br)
			if err != nil {
				return nil, err
			}
			v.SetData[string(e)] = struct{}{}
		}
		return v, nil
	case opZSet:
		n, _, err := readLength(br)
		if err != nil {
			return nil, err
		}
		v := value.NewZSet()
		for i := uint64(0); i < n; i++ {
			m, err := readString(br)
			if err != nil {
				return nil, err
			}
			score, err := readScore(br)
			if err != nil {
				return nil, err
			}
			v.ZSetData[string(m)] = score
		}
		return v, nil
	case opHash:
		n, _, err := readLength(br)
		if err != nil {
			return nil, err
		}
		v := value.NewHash()
		for i := uint64(0); i < n; i++ {
			f, err := readString(br)
			if err != nil {
				return nil, err
			}
			val, err := readString(br)
			if err != nil {
				return nil, err
			}
			v.HashData[string(f)] = string(val)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("rdb: readValue: unexpected op %d", op)
	}
}
