package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the chat banner with the version underneath.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	lines := []struct{ text, color string }{
		{`     _ _                 _       _     `, "#38bdf8"},
		{`  __| (_)___ _ __   __ _| |_ ___| |__  `, "#22d3ee"},
		{` / _' | / __| '_ \ / _' | __/ __| '_ \ `, "#2dd4bf"},
		{`| (_| | \__ \ |_) | (_| | || (__| | | |`, "#34d399"},
		{` \__,_|_|___/ .__/ \__,_|\__\___|_| |_|`, "#4ade80"},
		{`             |_|                       `, "#a3e635"},
	}
	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("  version "+version).Faint())
	fmt.Fprintln(w)
}
