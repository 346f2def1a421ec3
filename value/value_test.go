package value_test

import (
	"testing"

	"github.com/mickamy/kvstore/value"
)

func TestTryIntEncode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    string
		want  int64
		wantOK bool
	}{
		{name: "simple positive", in: "123", want: 123, wantOK: true},
		{name: "simple negative", in: "-42", want: -42, wantOK: true},
		{name: "zero", in: "0", want: 0, wantOK: true},
		{name: "leading zero rejected", in: "007", wantOK: false},
		{name: "non numeric", in: "abc", wantOK: false},
		{name: "too long", in: "123456789012345678901", wantOK: false},
		{name: "empty", in: "", wantOK: false},
		{name: "plus sign rejected", in: "+5", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := value.TryIntEncode([]byte(tt.in))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Fatalf("got = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRefcount(t *testing.T) {
	t.Parallel()

	v := value.NewString([]byte("hello"))
	if v.Refcount() != 1 {
		t.Fatalf("initial refcount = %d, want 1", v.Refcount())
	}
	v.IncrRef()
	if v.Refcount() != 2 {
		t.Fatalf("refcount after IncrRef = %d, want 2", v.Refcount())
	}
	v.DecrRef()
	v.DecrRef()
	if v.Refcount() != 0 {
		t.Fatalf("refcount after two DecrRef = %d, want 0", v.Refcount())
	}
	v.DecrRef() // must not go negative
	if v.Refcount() != 0 {
		t.Fatalf("refcount underflowed to %d", v.Refcount())
	}
}

func TestMakeSharedNeverDecrementsToZero(t *testing.T) {
	t.Parallel()

	v := value.NewStringFromInt(42).MakeShared()
	if !v.IsShared() {
		t.Fatalf("expected shared singleton")
	}
	for range 1000 {
		v.DecrRef()
	}
	if !v.IsShared() {
		t.Fatalf("shared singleton lost its pin after decrements")
	}
}

func TestStringBytesIntEncoding(t *testing.T) {
	t.Parallel()

	v := value.NewStringFromInt(123)
	if got := string(v.StringBytes()); got != "123" {
		t.Fatalf("StringBytes() = %q, want %q", got, "123")
	}
}
