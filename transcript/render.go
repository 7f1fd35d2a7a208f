package transcript

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var titles = map[Kind]string{
	KindThought:      "💭 Thought",
	KindCode:         "🐍 Code",
	KindObservation:  "👁 Observation",
	KindExecutionLog: "⚙ Execution logs",
	KindFinalAnswer:  "✅ Final answer",
}

// Title is the display heading for a section kind.
func Title(k Kind) string {
	if t, ok := titles[k]; ok {
		return t
	}
	return string(k)
}

// Render prints sections for a terminal reader.
func Render(w io.Writer, sections []Section, color bool) {
	r := lipgloss.NewRenderer(w)
	if color {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	heading := r.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	codeBox := r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("241")).Padding(0, 1)
	body := r.NewStyle().PaddingLeft(2)

	for _, s := range sections {
		if len(s.Lines) == 0 {
			continue
		}
		fmt.Fprintln(w, heading.Render(Title(s.Kind)))
		switch s.Kind {
		case KindCode:
			fmt.Fprintln(w, codeBox.Render(s.Text()))
		default:
			fmt.Fprintln(w, body.Render(strings.Join(s.Lines, "\n")))
		}
	}
}
