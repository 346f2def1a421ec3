// Package rdb encodes and decodes point-in-time snapshots of the
// keyspace. Length encoding, op codes, and the special STRING encodings
// follow Redis's RDB format; the long-string compression codec is
// klauspost/compress's flate implementation standing in for Redis's LZF.
package rdb

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/klauspost/compress/flate"

	"github.com/mickamy/kvstore/resp"
	"github.com/mickamy/kvstore/store"
	"github.com/mickamy/kvstore/value"
)

const (
	magic   = "REDIS"
	version = "0001"
)

// Op codes for the snapshot format.
const (
	opString byte = 0
	opList   byte = 1
	opSet    byte = 2
	opZSet   byte = 3
	opHash   byte = 4

	opExpireTime byte = 253
	opSelectDB   byte = 254
	opEOF        byte = 255
)

// Length-encoding tags, the top two bits of the first length byte.
const (
	len6Bit   = 0x00
	len14Bit  = 0x40
	len32Bit  = 0x80
	lenSpecial = 0xC0
)

// Special STRING encodings, carried in the low 6 bits when lenSpecial is set.
const (
	encInt8 byte = 0
	encInt16 byte = 1
	encInt32 byte = 2
	encCompressed byte = 3
)

// minCompressLen is the payload size above which writeString attempts
// compression.
const minCompressLen = 20

// maxIntEncodeLen is the payload size at or under which writeString
// attempts integer encoding (enough digits for any int32 plus sign, the
// widest special integer encoding).
const maxIntEncodeLen = 11

// Options controls optional snapshot behavior.
type Options struct {
	// Compress enables LZF-equivalent compression for long strings,
	// gated by the rdbcompression directive.
	Compress bool
}

// Save writes every database's live keys to w in snapshot format.
func Save(w io.Writer, dbs []*store.DB, now int64, opts Options) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(magic); err != nil {
		return err
	}
	if _, err := bw.WriteString(version); err != nil {
		return err
	}
	for i, db := range dbs {
		entries := db.Snapshot(now)
		if len(entries) == 0 {
			continue
		}
		if err := writeOp(bw, opSelectDB); err != nil {
			return err
		}
		if err := writeLength(bw, uint64(i)); err != nil {
			return err
		}
		for _, e := range entries {
			if e.ExpireAt > 0 {
				if err := writeOp(bw, opExpireTime); err != nil {
					return err
				}
				if err := binary.Write(bw, binary.LittleEndian, uint32(e.ExpireAt)); err != nil {
					return err
				}
			}
			if err := writeEntry(bw, e.Key, e.Value, opts); err != nil {
				return err
			}
		}
	}
	if err := writeOp(bw, opEOF); err != nil {
		return err
	}
	return bw.Flush()
}

func writeOp(w io.Writer, op byte) error {
	_, err := w.Write([]byte{op})
	return err
}

func writeEntry(w io.Writer, key string, v *value.Value, opts Options) error {
	var op byte
	switch v.Kind {
	case value.String:
		op = opString
	case value.List:
		op = opList
	case value.Set:
		op = opSet
	case value.ZSet:
		op = opZSet
	case value.Hash:
		op = opHash
	default:
		return fmt.Errorf("rdb: unknown kind %v", v.Kind)
	}
	if err := writeOp(w, op); err != nil {
		return err
	}
	if err := writeString(w, []byte(key), opts); err != nil {
		return err
	}
	return EncodeValue(w, v, opts)
}

// EncodeValue writes v's payload alone (no key, no leading op code), the
// same snapshot object format the pager uses to serialize a value before
// swapping it out.
func EncodeValue(w io.Writer, v *value.Value, opts Options) error {
	switch v.Kind {
	case value.String:
		return writeString(w, v.StringBytes(), opts)
	case value.List:
		if err := writeLength(w, uint64(len(v.ListData))); err != nil {
			return err
		}
		for _, e := range v.ListData {
			if err := writeString(w, []byte(e), opts); err != nil {
				return err
			}
		}
		return nil
	case value.Set:
		if err := writeLength(w, uint64(len(v.SetData))); err != nil {
			return err
		}
		for m := range v.SetData {
			if err := writeString(w, []byte(m), opts); err != nil {
				return err
			}
		}
		return nil
	case value.ZSet:
		if err := writeLength(w, uint64(len(v.ZSetData))); err != nil {
			return err
		}
		for m, score := range v.ZSetData {
			if err := writeString(w, []byte(m), opts); err != nil {
				return err
			}
			if err := writeScore(w, score); err != nil {
				return err
			}
		}
		return nil
	case value.Hash:
		if err := writeLength(w, uint64(len(v.HashData))); err != nil {
			return err
		}
		for f, val := range v.HashData {
			if err := writeString(w, []byte(f), opts); err != nil {
				return err
			}
			if err := writeString(w, []byte(val), opts); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("rdb: EncodeValue: unknown kind %v", v.Kind)
	}
}

func writeLength(w io.Writer, n uint64) error {
	switch {
	case n < 1<<6:
		_, err := w.Write([]byte{len6Bit | byte(n)})
		return err
	case n < 1<<14:
		_, err := w.Write([]byte{len14Bit | byte(n>>8), byte(n)})
		return err
	case n <= math.MaxUint32:
		buf := make([]byte, 5)
		buf[0] = len32Bit
		binary.BigEndian.PutUint32(buf[1:], uint32(n))
		_, err := w.Write(buf)
		return err
	default:
		return fmt.Errorf("rdb: length %d exceeds 32-bit encoding", n)
	}
}

func readLength(r io.ByteScanner) (uint64, bool, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, false, err
	}
	switch first & 0xC0 {
	case len6Bit:
		return uint64(first & 0x3F), false, nil
	case len14Bit:
		second, err := readByte(r)
		if err != nil {
			return 0, false, err
		}
		return uint64(first&0x3F)<<8 | uint64(second), false, nil
	case len32Bit:
		var buf [4]byte
		for i := range buf {
			b, err := readByte(r)
			if err != nil {
				return 0, false, err
			}
			buf[i] = b
		}
		return uint64(binary.BigEndian.Uint32(buf[:])), false, nil
	default: // lenSpecial
		return uint64(first & 0x3F), true, nil
	}
}

func readByte(r io.ByteScanner) (byte, error) { return r.ReadByte() }

// writeString chooses integer, compressed, or raw encoding based on the
// payload's size thresholds, in that priority order.
func writeString(w io.Writer, b []byte, opts Options) error {
	if len(b) > 0 && len(b) <= maxIntEncodeLen {
		if n, ok := value.TryIntEncode(b); ok {
			return writeIntEncoded(w, n)
		}
	}
	if opts.Compress && len(b) > minCompressLen {
		if compressed, ok := tryCompress(b); ok {
			if err := writeOp(w, lenSpecial|encCompressed); err != nil {
				return err
			}
			if err := writeLength(w, uint64(len(compressed))); err != nil {
				return err
			}
			if err := writeLength(w, uint64(len(b))); err != nil {
				return err
			}
			_, err := w.Write(compressed)
			return err
		}
	}
	if err := writeLength(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func writeIntEncoded(w io.Writer, n int64) error {
	switch {
	case n >= math.MinInt8 && n <= math.MaxInt8:
		if err := writeOp(w, lenSpecial|encInt8); err != nil {
			return err
		}
		_, err := w.Write([]byte{byte(int8(n))})
		return err
	case n >= math.MinInt16 && n <= math.MaxInt16:
		if err := writeOp(w, lenSpecial|encInt16); err != nil {
			return err
		}
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(int16(n)))
		_, err := w.Write(buf)
		return err
	case n >= math.MinInt32 && n <= math.MaxInt32:
		if err := writeOp(w, lenSpecial|encInt32); err != nil {
			return err
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(int32(n)))
		_, err := w.Write(buf)
		return err
	default:
		// Doesn't fit any special integer width; fall back to raw digits.
		digits := []byte(fmt.Sprintf("%d", n))
		if err := writeLength(w, uint64(len(digits))); err != nil {
			return err
		}
		_, err := w.Write(digits)
		return err
	}
}

func tryCompress(b []byte) ([]byte, bool) {
	var buf bytes.Buffer
	zw, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, false
	}
	if _, err := zw.Write(b); err != nil {
		return nil, false
	}
	if err := zw.Close(); err != nil {
		return nil, false
	}
	if buf.Len() >= len(b) {
		return nil, false
	}
	return buf.Bytes(), true
}

// readString reads back whatever writeString produced.
func readString(r *bufio.Reader) ([]byte, error) {
	n, special, err := readLength(r)
	if err != nil {
		return nil, err
	}
	if !special {
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	switch byte(n) {
	case encInt8:
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		return []byte(fmt.Sprintf("%d", int8(b))), nil
	case encInt16:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		return []byte(fmt.Sprintf("%d", int16(binary.LittleEndian.Uint16(buf[:])))), nil
	case encInt32:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		return []byte(fmt.Sprintf("%d", int32(binary.LittleEndian.Uint32(buf[:])))), nil
	case encCompressed:
		compLen, _, err := readLength(r)
		if err != nil {
			return nil, err
		}
		origLen, _, err := readLength(r)
		if err != nil {
			return nil, err
		}
		compBuf := make([]byte, compLen)
		if _, err := io.ReadFull(r, compBuf); err != nil {
			return nil, err
		}
		zr := flate.NewReader(bytes.NewReader(compBuf))
		defer zr.Close()
		out := make([]byte, origLen)
		if _, err := io.ReadFull(zr, out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("rdb: unknown special string encoding tag %d", n)
	}
}

// Sentinel score length-bytes for ZSET entries.
const (
	scoreNaN  = 253
	scorePInf = 254
	scoreNInf = 255
)

func writeScore(w io.Writer, score float64) error {
	switch {
	case math.IsNaN(score):
		_, err := w.Write([]byte{scoreNaN})
		return err
	case math.IsInf(score, 1):
		_, err := w.Write([]byte{scorePInf})
		return err
	case math.IsInf(score, -1):
		_, err := w.Write([]byte{scoreNInf})
		return err
	}
	s := []byte(formatScore(score))
	if len(s) >= scoreNaN {
		return fmt.Errorf("rdb: formatted score too long")
	}
	if _, err := w.Write([]byte{byte(len(s))}); err != nil {
		return err
	}
	_, err := w.Write(s)
	return err
}

func formatScore(f float64) string {
	return resp.FormatFloat(f)
}

func readScore(r *bufio.Reader) (float64, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch first {
	case scoreNaN:
		return math.NaN(), nil
	case scorePInf:
		return math.Inf(1), nil
	case scoreNInf:
		return math.Inf(-1), nil
	}
	buf := make([]byte, first)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(string(buf), 64)
}
