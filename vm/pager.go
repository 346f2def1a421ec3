// Package vm implements the virtual-memory pager: a fixed-page swap
// file, a free-page bitmap, swap-out/swap-in of Values, and a worker
// pool for threaded-mode swap-out. Grounded on store/db.go's
// single-owner-thread discipline (only the engine goroutine ever touches
// a Value's payload or the keyspace) plus a small mutex-owned
// bitmap/seek-lock pair modeling Redis's vm freelist and swapfile
// mutexes.
package vm

import (
	"bufio"
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"sync"

	"github.com/mickamy/kvstore/rdb"
	"github.com/mickamy/kvstore/value"
)

// Pager owns one swap file divided into fixed-size pages.
type Pager struct {
	file     *os.File
	pageSize int64
	pages    int64

	bitmapMu sync.Mutex
	used     []bool
	cursor   int64

	seekMu sync.Mutex

	opts rdb.Options
}

// Open creates (or truncates) the swap file at path with pageCount pages
// of pageSize bytes each.
func Open(path string, pageSize, pageCount int64) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("vm: open swap file: %w", err)
	}
	if err := f.Truncate(pageSize * pageCount); err != nil {
		f.Close()
		return nil, fmt.Errorf("vm: truncate swap file: %w", err)
	}
	return &Pager{
		file:     f,
		pageSize: pageSize,
		pages:    pageCount,
		used:     make([]bool, pageCount),
		opts:     rdb.Options{Compress: false},
	}, nil
}

// Close releases the swap file.
func (p *Pager) Close() error { return p.file.Close() }

// FreePages reports how many pages are currently unused, for INFO.
func (p *Pager) FreePages() int64 {
	p.bitmapMu.Lock()
	defer p.bitmapMu.Unlock()
	var n int64
	for _, u := range p.used {
		if !u {
			n++
		}
	}
	return n
}

// allocate finds n contiguous free pages starting from a rotating
// cursor; if the local region is dense it jumps forward by a bounded
// random amount and retries, giving up after one full pass.
func (p *Pager) allocate(n int64) (int64, bool) {
	p.bitmapMu.Lock()
	defer p.bitmapMu.Unlock()

	if n > p.pages {
		return 0, false
	}

	start := p.cursor
	tries := int64(0)
	maxTries := p.pages + 1
	for tries < maxTries {
		pos := (start + tries) % p.pages
		if p.regionFreeLocked(pos, n) {
			p.markLocked(pos, n, true)
			p.cursor = (pos + n) % p.pages
			return pos, true
		}
		// Dense region: jump forward by a bounded random amount instead
		// of scanning one page at a time.
		jump := int64(1)
		if p.pages > 1 {
			jump = 1 + rand.Int63n(p.pages/4+1)
		}
		tries += jump
	}
	return 0, false
}

func (p *Pager) regionFreeLocked(start, n int64) bool {
	if start+n > p.pages {
		return false
	}
	for i := start; i < start+n; i++ {
		if p.used[i] {
			return false
		}
	}
	return true
}

func (p *Pager) markLocked(start, n int64, used bool) {
	for i := start; i < start+n; i++ {
		p.used[i] = used
	}
}

// free returns pages [start, start+n) to the pool.
func (p *Pager) free(start, n int64) {
	p.bitmapMu.Lock()
	defer p.bitmapMu.Unlock()
	p.markLocked(start, n, false)
}

// SwapOut serializes v to the swap file and returns the descriptor that
// replaces it in the keyspace. Called only from the engine goroutine
// (blocking mode) or from a worker's DO_SWAP job (threaded mode); either
// way the value itself is never touched concurrently.
func (p *Pager) SwapOut(v *value.Value, nowUnix int64) (*value.SwapDescriptor, error) {
	var buf countingBuffer
	if err := rdb.EncodeValue(&buf, v, p.opts); err != nil {
		return nil, fmt.Errorf("vm: serialize: %w", err)
	}
	pageCount := (int64(len(buf.b)) + p.pageSize - 1) / p.pageSize
	if pageCount == 0 {
		pageCount = 1
	}
	page, ok := p.allocate(pageCount)
	if !ok {
		return nil, fmt.Errorf("vm: swap file full")
	}

	p.seekMu.Lock()
	_, err := p.file.WriteAt(buf.b, page*p.pageSize)
	p.seekMu.Unlock()
	if err != nil {
		p.free(page, pageCount)
		return nil, fmt.Errorf("vm: write swap page: %w", err)
	}

	return &value.SwapDescriptor{
		Page:        page,
		PageCount:   pageCount,
		LastAccess:  nowUnix,
		SwappedKind: v.Kind,
		Storage:     value.Swapped,
	}, nil
}

// SwapIn reads back the bytes a prior SwapOut wrote and reconstructs the
// Value, freeing the pages it occupied. The caller is responsible for
// installing the result back into the keyspace and marking it
// value.Memory.
func (p *Pager) SwapIn(desc *value.SwapDescriptor) (*value.Value, error) {
	buf := make([]byte, desc.PageCount*p.pageSize)
	p.seekMu.Lock()
	_, err := p.file.ReadAt(buf, desc.Page*p.pageSize)
	p.seekMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("vm: read swap page: %w", err)
	}
	v, err := rdb.DecodeValue(bufio.NewReader(bytes.NewReader(buf)), desc.SwappedKind)
	if err != nil {
		return nil, fmt.Errorf("vm: deserialize: %w", err)
	}
	p.free(desc.Page, desc.PageCount)
	return v, nil
}

// countingBuffer is a minimal io.Writer sink that accumulates the
// serialized form before we know its size.
type countingBuffer struct{ b []byte }

func (c *countingBuffer) Write(p []byte) (int, error) {
	c.b = append(c.b, p...)
	return len(p), nil
}
