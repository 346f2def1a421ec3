// Command kv-monitor is a terminal viewer for a running kvstored's
// command-event feed, a Bubble Tea TUI in the same vein as sql-tap's
// query viewer, watching RESP commands over the admin HTTP SSE endpoint
// instead of SQL queries over a gRPC stream.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

var version = "dev"

func main() {
	fs := flag.NewFlagSet("kv-monitor", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "kv-monitor — watch kvstored command traffic in real-time\n\nUsage:\n  kv-monitor [flags] <admin-addr>\n\nFlags:\n")
		fs.PrintDefaults()
	}
	showVersion := fs.Bool("version", false, "show version and exit")
	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("kv-monitor %s\n", version)
		return
	}

	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}

	p := tea.NewProgram(newModel(fs.Arg(0)), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "kv-monitor: %v\n", err)
		os.Exit(1)
	}
}
