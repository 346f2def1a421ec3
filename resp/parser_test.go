package resp_test

import (
	"testing"

	"github.com/mickamy/kvstore/resp"
)

func argsAsStrings(args [][]byte) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = string(a)
	}
	return out
}

func TestParseMultiBulkComplete(t *testing.T) {
	t.Parallel()

	p := resp.NewParser()
	p.Feed([]byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))

	args, ok, err := p.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a complete command")
	}
	want := []string{"GET", "foo"}
	got := argsAsStrings(args)
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
	if p.Buffered() != 0 {
		t.Fatalf("expected buffer fully consumed, %d bytes left", p.Buffered())
	}
}

func TestParseMultiBulkIncrementalFeed(t *testing.T) {
	t.Parallel()

	p := resp.NewParser()
	p.Feed([]byte("*2\r\n$3\r\nGET\r\n$3\r\nfo"))

	if _, ok, err := p.Next(); ok || err != nil {
		t.Fatalf("expected incomplete parse, got ok=%v err=%v", ok, err)
	}

	p.Feed([]byte("o\r\n"))
	args, ok, err := p.Next()
	if err != nil || !ok {
		t.Fatalf("expected complete parse after remaining bytes arrive, ok=%v err=%v", ok, err)
	}
	if string(args[1]) != "foo" {
		t.Fatalf("arg[1] = %q, want foo", args[1])
	}
}

func TestParseMultiBulkLeavesTrailingCommandBuffered(t *testing.T) {
	t.Parallel()

	p := resp.NewParser()
	p.Feed([]byte("*1\r\n$4\r\nPING\r\n*1\r\n$4\r\nPONG\r\n"))

	first, ok, err := p.Next()
	if err != nil || !ok || string(first[0]) != "PING" {
		t.Fatalf("first command mismatch: %v %v %v", first, ok, err)
	}
	if p.Buffered() == 0 {
		t.Fatalf("expected second command still buffered")
	}
	second, ok, err := p.Next()
	if err != nil || !ok || string(second[0]) != "PONG" {
		t.Fatalf("second command mismatch: %v %v %v", second, ok, err)
	}
}

func TestParseInlineSplitsOnSpaces(t *testing.T) {
	t.Parallel()

	p := resp.NewParser()
	p.Feed([]byte("SET foo bar\r\n"))

	args, ok, err := p.Next()
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	got := argsAsStrings(args)
	want := []string{"SET", "foo", "bar"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestParseInlineLFOnlyAllowed(t *testing.T) {
	t.Parallel()

	p := resp.NewParser()
	p.Feed([]byte("PING\n"))
	args, ok, err := p.Next()
	if err != nil || !ok || len(args) != 1 || string(args[0]) != "PING" {
		t.Fatalf("args=%v ok=%v err=%v", args, ok, err)
	}
}

func TestParseMultiBulkRejectsOversizedLength(t *testing.T) {
	t.Parallel()

	p := resp.NewParser()
	p.Feed([]byte("*1\r\n$999999999999\r\n"))
	_, ok, err := p.Next()
	if ok || err == nil {
		t.Fatalf("expected protocol error for oversized bulk length")
	}
	if _, isProto := err.(*resp.ProtocolError); !isProto {
		t.Fatalf("expected *resp.ProtocolError, got %T", err)
	}
}

func TestReadInlineBulkPayload(t *testing.T) {
	t.Parallel()

	p := resp.NewParser()
	p.Feed([]byte("hello\r\nworld"))

	payload, ok, err := p.ReadInlineBulkPayload(5)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if string(payload) != "hello" {
		t.Fatalf("payload = %q, want hello", payload)
	}
	if p.Buffered() != len("world") {
		t.Fatalf("expected remaining buffer to be 'world', got %d bytes", p.Buffered())
	}
}
