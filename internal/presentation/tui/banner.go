package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the chatflow banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text, color string
	}{
		{"   _____ _           _    __ _               ", "#38bdf8"},
		{"  / ____| |         | |  / _| |              ", "#22d3ee"},
		{" | |    | |__   __ _| |_| |_| | _____      __", "#2dd4bf"},
		{" | |    | '_ \\ / _` | __|  _| |/ _ \\ \\ /\\ / /", "#34d399"},
		{" | |____| | | | (_| | |_| | | | (_) \\ V  V / ", "#4ade80"},
		{"  \\_____|_| |_|\\__,_|\\__|_| |_|\\___/ \\_/\\_/  ", "#a3e635"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String(fmt.Sprintf("  v%s", version)).Faint())
	fmt.Fprintln(w)
}
