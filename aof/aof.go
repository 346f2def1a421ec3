// Package aof implements the append-only log: every mutating command is
// appended to a file as its canonical multi-bulk encoding, replayed
// through the normal dispatcher at startup. Grounded on the
// write-buffering idiom in server/client.go's writeLoop, adapted from a
// socket sink to a file sink with an fsync policy.
package aof

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mickamy/kvstore/resp"
)

// FSyncPolicy controls how often Write's bytes are forced to disk.
type FSyncPolicy int

const (
	FSyncNo FSyncPolicy = iota
	FSyncEverySec
	FSyncAlways
)

// ParseFSyncPolicy maps a config directive value to a FSyncPolicy.
func ParseFSyncPolicy(s string) (FSyncPolicy, error) {
	switch s {
	case "no":
		return FSyncNo, nil
	case "everysec":
		return FSyncEverySec, nil
	case "always":
		return FSyncAlways, nil
	default:
		return 0, fmt.Errorf("aof: unknown fsync policy %q", s)
	}
}

// Log appends commands to an open file descriptor and applies the
// configured fsync policy. Append runs on the engine goroutine while
// Tick runs from the daemon's own ticker goroutine, so every method
// takes mu.
type Log struct {
	mu       sync.Mutex
	file     *os.File
	w        *bufio.Writer
	policy   FSyncPolicy
	dirty    bool
	lastSync int64
}

// Open opens (creating if absent) path for appending.
func Open(path string, policy FSyncPolicy) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("aof: open: %w", err)
	}
	return &Log{file: f, w: bufio.NewWriter(f), policy: policy}, nil
}

// Append writes one command's canonical multi-bulk encoding. EXPIRE is
// the caller's responsibility to rewrite as EXPIREAT before calling this,
// so relative TTLs replay correctly regardless of when the replay runs.
func (l *Log) Append(args []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	buf := resp.AppendBulkStrings(nil, args)
	if _, err := l.w.Write(buf); err != nil {
		return fmt.Errorf("aof: write: %w", err)
	}
	l.dirty = true
	if l.policy == FSyncAlways {
		return l.syncLocked()
	}
	return nil
}

// Tick is called once per cron tick; under EVERYSEC it fsyncs at most
// once per call, fsyncing no more than once a second (cmd/kvstored
// calls this from its own one-second ticker; the engine's cron does not
// call it).
func (l *Log) Tick() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.policy != FSyncEverySec || !l.dirty {
		return nil
	}
	return l.syncLocked()
}

func (l *Log) syncLocked() error {
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("aof: flush: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("aof: fsync: %w", err)
	}
	l.dirty = false
	return nil
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.file.Close()
}

// ExpireAtRewrite returns args with EXPIRE's relative-seconds argument
// replaced by an absolute EXPIREAT timestamp, or args unchanged if name
// is not EXPIRE.
func ExpireAtRewrite(args []string, nowUnix int64) []string {
	if len(args) != 3 || !strings.EqualFold(args[0], "EXPIRE") {
		return args
	}
	var seconds int64
	if _, err := fmt.Sscanf(args[2], "%d", &seconds); err != nil {
		return args
	}
	out := make([]string, 3)
	copy(out, args)
	out[0] = "EXPIREAT"
	out[2] = fmt.Sprintf("%d", nowUnix+seconds)
	return out
}
