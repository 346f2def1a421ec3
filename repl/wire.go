package repl

import "github.com/mickamy/kvstore/resp"
import "net"

// writeCounter is an io.Writer that also remembers every byte it has
// been given, used to size the bulk-transfer "$<size>" header before the
// payload itself is written.
type writeCounter struct {
	bytes []byte
	n     int
}

func (w *writeCounter) Write(p []byte) (int, error) {
	w.bytes = append(w.bytes, p...)
	w.n += len(p)
	return len(p), nil
}

// writeCommand sends one command in canonical multi-bulk form. Errors are
// swallowed here; a replica whose socket has gone bad will surface that
// on its next read and get reaped by the caller that owns the
// connection, same as any other disconnected client.
func writeCommand(conn net.Conn, args []string) {
	_, _ = conn.Write(resp.AppendBulkStrings(nil, args))
}
