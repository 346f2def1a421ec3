// Package stats tracks per-command call counters and flags hot keys, for the INFO commandstats section and the admin event
// feed. Grounded on query/normalize.go's command-shape grouping (there
// for SQL literals, here for RESP argument vectors) and detect/detect.go's
// sliding-window N+1 detection (there for repeated SQL templates, here
// for repeated key access).
package stats

import (
	"strconv"
	"strings"
)

// Shape reduces a command invocation to its reusable form: the command
// name plus an argument count, so "SET a 1" and "SET b 2" group under
// one commandstats bucket instead of one per literal key. This plays the
// role query.Normalize plays for SQL text, adapted to RESP's already
// tokenized argument vectors — there is no literal-scanning to do, only
// the args-to-bucket-key reduction.
func Shape(args [][]byte) string {
	if len(args) == 0 {
		return ""
	}
	name := strings.ToUpper(string(args[0]))
	if len(args) == 1 {
		return name
	}
	return name + " " + strconv.Itoa(len(args)-1)
}
