package main

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// padRight and formatUnix are adapted from tui/format.go's
// padRight/padLeft and formatTime, kept because Bubble Tea's lipgloss
// width accounting still needs rune-width-aware padding for aligned
// columns.
func padRight(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

func formatUnix(unix int64) string {
	if unix == 0 {
		return "-"
	}
	return time.Unix(unix, 0).In(time.Local).Format("15:04:05")
}
