// Package highlight applies ANSI terminal syntax coloring to text shown
// in cmd/kv-monitor. Retargeted from SQL/EXPLAIN plan highlighting
// (chroma's SQL lexer, a hand-rolled EXPLAIN node highlighter) to the
// JSON command-event payloads the admin SSE feed emits, since this
// system has no SQL text or query plan to color.
package highlight

import (
	"bytes"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

var (
	lexer     chroma.Lexer
	formatter chroma.Formatter
	style     *chroma.Style
)

func init() {
	lexer = lexers.Get("json")
	formatter = formatters.Get("terminal256")
	style = styles.Get("monokai")
}

// JSON returns s with ANSI terminal syntax highlighting applied, the
// same way the SQL highlighter colored captured query text. On error or
// empty input, the original string is returned unchanged.
func JSON(s string) string {
	if s == "" {
		return s
	}

	iterator, err := lexer.Tokenise(nil, s)
	if err != nil {
		return s
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return s
	}

	return strings.TrimRight(buf.String(), "\n")
}
