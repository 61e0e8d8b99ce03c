package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the anima banner and the soul it is talking to.
func PrintBanner(w io.Writer, soul string) {
	p := termenv.ColorProfile()
	lines := []struct{ text, color string }{
		{"   __ _ _ __  (_)_ __ ___   __ _ ", "#818cf8"},
		{"  / _` | '_ \\ | | '_ ` _ \\ / _` |", "#a78bfa"},
		{" | (_| | | | || | | | | | | (_| |", "#e879f9"},
		{"  \\__,_|_| |_||_|_| |_| |_|\\__,_|", "#fb7185"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
	if soul != "" {
		fmt.Fprintln(w, termenv.String("  talking to "+soul+" · /reset /memory /exit").Faint())
		fmt.Fprintln(w)
	}
}

// SystemStyler dims system lines so they stand apart from the soul's replies.
func SystemStyler() func(string) string {
	p := termenv.ColorProfile()
	return func(s string) string {
		return termenv.String(s).Foreground(p.Color("#94a3b8")).Italic().String()
	}
}
