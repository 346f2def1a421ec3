package server_test

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/mickamy/kvstore/server"
)

func mustReadLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	return line
}

func TestSetGetRoundTrip(t *testing.T) {
	t.Parallel()

	engine := server.NewEngine(1, 0, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	clientSide, testSide := net.Pipe()
	defer testSide.Close()
	engine.Accept(clientSide, nil)

	r := bufio.NewReader(testSide)

	if _, err := testSide.Write([]byte("*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n")); err != nil {
		t.Fatalf("write SET: %v", err)
	}
	if got := mustReadLine(t, r); got != "+OK\r\n" {
		t.Fatalf("SET reply = %q", got)
	}

	if _, err := testSide.Write([]byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n")); err != nil {
		t.Fatalf("write GET: %v", err)
	}
	if got := mustReadLine(t, r); got != "$3\r\n" {
		t.Fatalf("GET header = %q", got)
	}
	if got := mustReadLine(t, r); got != "bar\r\n" {
		t.Fatalf("GET payload = %q", got)
	}
}

func TestBlockingPopWakesOnPush(t *testing.T) {
	t.Parallel()

	engine := server.NewEngine(1, 0, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	blockerClientSide, blockerTestSide := net.Pipe()
	defer blockerTestSide.Close()
	engine.Accept(blockerClientSide, nil)

	pusherClientSide, pusherTestSide := net.Pipe()
	defer pusherTestSide.Close()
	engine.Accept(pusherClientSide, nil)

	blockerR := bufio.NewReader(blockerTestSide)
	pusherR := bufio.NewReader(pusherTestSide)

	if _, err := blockerTestSide.Write([]byte("*3\r\n$5\r\nBLPOP\r\n$1\r\nq\r\n$1\r\n0\r\n")); err != nil {
		t.Fatalf("write BLPOP: %v", err)
	}

	// Give the engine a moment to register the block before the push
	// arrives, so this test actually exercises the wake path rather than
	// the immediate-data path already covered by command_test.go.
	time.Sleep(20 * time.Millisecond)

	if _, err := pusherTestSide.Write([]byte("*3\r\n$5\r\nRPUSH\r\n$1\r\nq\r\n$5\r\nhello\r\n")); err != nil {
		t.Fatalf("write RPUSH: %v", err)
	}
	if got := mustReadLine(t, pusherR); got != ":1\r\n" {
		t.Fatalf("RPUSH reply = %q", got)
	}

	if got := mustReadLine(t, blockerR); got != "*2\r\n" {
		t.Fatalf("BLPOP header = %q", got)
	}
	if got := mustReadLine(t, blockerR); got != "$1\r\n" {
		t.Fatalf("BLPOP key-len = %q", got)
	}
	if got := mustReadLine(t, blockerR); got != "q\r\n" {
		t.Fatalf("BLPOP key = %q", got)
	}
	if got := mustReadLine(t, blockerR); got != "$5\r\n" {
		t.Fatalf("BLPOP val-len = %q", got)
	}
	if got := mustReadLine(t, blockerR); got != "hello\r\n" {
		t.Fatalf("BLPOP val = %q", got)
	}
}
