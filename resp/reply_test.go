package resp_test

import (
	"testing"

	"github.com/mickamy/kvstore/resp"
)

func TestAppendReplies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fn   func() []byte
		want string
	}{
		{"simple string", func() []byte { return resp.AppendSimpleString(nil, "OK") }, "+OK\r\n"},
		{"error", func() []byte { return resp.AppendError(nil, "ERR bad") }, "-ERR bad\r\n"},
		{"integer", func() []byte { return resp.AppendInteger(nil, 42) }, ":42\r\n"},
		{"bulk", func() []byte { return resp.AppendBulk(nil, []byte("bar")) }, "$3\r\nbar\r\n"},
		{"nil bulk", func() []byte { return resp.AppendNilBulk(nil) }, "$-1\r\n"},
		{"nil multibulk", func() []byte { return resp.AppendNilMultiBulk(nil) }, "*-1\r\n"},
		{
			"bulk strings",
			func() []byte { return resp.AppendBulkStrings(nil, []string{"a", "b"}) },
			"*2\r\n$1\r\na\r\n$1\r\nb\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := string(tt.fn()); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
