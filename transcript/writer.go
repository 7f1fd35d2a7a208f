package transcript

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const ruleWidth = 60

// Writer prints an agent run in the verbose transcript vocabulary that
// Structure understands.
type Writer struct {
	w   io.Writer
	now func() time.Time

	banner  lipgloss.Style
	rule    lipgloss.Style
	label   lipgloss.Style
	code    lipgloss.Style
	final   lipgloss.Style
	warning lipgloss.Style
}

// NewWriter returns a Writer printing to w. With color set the labels carry
// ANSI colors regardless of whether w is a terminal.
func NewWriter(w io.Writer, color bool) *Writer {
	r := lipgloss.NewRenderer(w)
	if color {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}
	return &Writer{
		w:       w,
		now:     time.Now,
		banner:  r.NewStyle().Foreground(lipgloss.Color("220")).Bold(true),
		rule:    r.NewStyle().Foreground(lipgloss.Color("241")),
		label:   r.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		code:    r.NewStyle().Foreground(lipgloss.Color("114")),
		final:   r.NewStyle().Foreground(lipgloss.Color("220")).Bold(true),
		warning: r.NewStyle().Foreground(lipgloss.Color("208")),
	}
}

// RunStart prints the New run panel with the task and the model banner.
func (tw *Writer) RunStart(task, modelLabel string) {
	title := " New run "
	side := (ruleWidth - len(title)) / 2
	tw.println(tw.banner.Render("╭" + strings.Repeat("─", side) + title + strings.Repeat("─", side) + "╮"))
	for _, line := range strings.Split(task, "\n") {
		tw.println("│ " + line)
	}
	tw.println(tw.banner.Render("╰─ " + modelLabel + " " + strings.Repeat("─", 8) + "╯"))
}

// Step prints the banner that separates reasoning steps.
func (tw *Writer) Step(n int) {
	title := fmt.Sprintf(" Step %d ", n)
	side := strings.Repeat("━", (ruleWidth-len(title))/2)
	tw.println(tw.rule.Render(side + title + side))
}

func (tw *Writer) Thought(text string) {
	tw.labelled(tw.label, "Thought:", text)
}

// Code prints a fenced code block followed by the end sentinel.
func (tw *Writer) Code(code string) {
	tw.println(tw.label.Render("Code:"))
	tw.println("```py")
	for _, line := range strings.Split(strings.TrimRight(code, "\n"), "\n") {
		tw.println(tw.code.Render(line))
	}
	tw.println("```")
	tw.println("<end_code>")
}

func (tw *Writer) ExecutionLogs(lines []string) {
	tw.println(tw.label.Render("Execution logs:"))
	for _, line := range lines {
		tw.println(line)
	}
}

func (tw *Writer) Observation(text string) {
	tw.labelled(tw.label, "Observation:", text)
}

func (tw *Writer) FinalAnswer(text string) {
	tw.labelled(tw.final, "Out - Final answer:", text)
}

// Warning prints a timestamped line. Structure leaves timestamped lines out
// of the sections they fall into.
func (tw *Writer) Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	tw.println(tw.warning.Render(fmt.Sprintf("[%s] %s", tw.now().Format("15:04:05"), msg)))
}

func (tw *Writer) labelled(style lipgloss.Style, label, text string) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	tw.println(style.Render(label) + " " + lines[0])
	for _, line := range lines[1:] {
		tw.println(line)
	}
}

func (tw *Writer) println(s string) {
	fmt.Fprintln(tw.w, s)
}
