package store

import "testing"

func TestGlobMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		input   string
		want    bool
	}{
		{"*", "anything", true},
		{"*", "", true},
		{"h?llo", "hello", true},
		{"h?llo", "hllo", false},
		{"h[ae]llo", "hello", true},
		{"h[ae]llo", "hillo", false},
		{"h[^e]llo", "hallo", true},
		{"h[^e]llo", "hello", false},
		{"h[a-c]llo", "hbllo", true},
		{"h[a-c]llo", "hzllo", false},
		{"user:*", "user:42", true},
		{"user:*", "other:42", false},
		{"literal", "literal", true},
		{"literal", "literals", false},
		{`a\*b`, "a*b", true},
		{`a\*b`, "axb", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.input, func(t *testing.T) {
			t.Parallel()
			if got := GlobMatch(tt.pattern, tt.input); got != tt.want {
				t.Fatalf("GlobMatch(%q, %q) = %v, want %v", tt.pattern, tt.input, got, tt.want)
			}
		})
	}
}
