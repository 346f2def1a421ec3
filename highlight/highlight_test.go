package highlight_test

import (
	"strings"
	"testing"

	"github.com/mickamy/kvstore/highlight"
)

func TestJSONReturnsNonEmptyForValidInput(t *testing.T) {
	t.Parallel()
	got := highlight.JSON(`{"db":0,"command":["SET","a","b"]}`)
	if !strings.Contains(got, "SET") {
		t.Fatalf("JSON output lost content: %q", got)
	}
}

func TestJSONEmptyInput(t *testing.T) {
	t.Parallel()
	if got := highlight.JSON(""); got != "" {
		t.Fatalf("JSON(\"\") = %q, want empty", got)
	}
}
