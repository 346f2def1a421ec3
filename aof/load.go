package aof

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/mickamy/kvstore/command"
	"github.com/mickamy/kvstore/resp"
)

// Load replays every command in the file at path through dispatch, as if
// a synthetic client were issuing them against the normal dispatcher. A
// missing file is not an error: a fresh server simply starts empty.
func Load(path string, ctx *command.Context) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("aof: load: open: %w", err)
	}
	defer f.Close()

	parser := resp.NewParser()
	r := bufio.NewReaderSize(f, 64*1024)
	buf := make([]byte, 64*1024)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			parser.Feed(buf[:n])
			for {
				args, ok, perr := parser.Next()
				if perr != nil {
					return fmt.Errorf("aof: load: %w", perr)
				}
				if !ok {
					break
				}
				if reply := command.Dispatch(ctx, args); reply.Kind == command.ErrKind {
					return fmt.Errorf("aof: load: replaying command failed: %s", reply.Str)
				}
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return fmt.Errorf("aof: load: read: %w", rerr)
		}
	}
}
