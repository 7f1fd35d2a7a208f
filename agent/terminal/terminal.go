package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/m4xw311/nima/agent"
	"github.com/m4xw311/nima/errors"
	"github.com/m4xw311/nima/transcript"
)

// Examples are printed by the help command.
var Examples = []string{
	"How are GPDs, QCFs and CFFs related to each other?",
	"Calculate the relativistic energy of an electron with momentum 100 MeV/c",
	"What is the Lorentz factor for a particle moving at 0.9c?",
	"Generate 10000 physics events and show me the statistics",
	"Visualize quark distributions",
	"What are the properties of a muon?",
}

var exitWords = map[string]bool{"exit": true, "quit": true, "q": true, "/quit": true, "/exit": true}

// Terminal handles the terminal/CLI interaction mode for the agent
type Terminal struct {
	agent *agent.Agent
	in    io.Reader
	out   io.Writer
	// Verbose renders the reasoning sections as they complete.
	Verbose bool
	Color   bool
}

// New creates a new Terminal reading from in and printing to out.
func New(a *agent.Agent, in io.Reader, out io.Writer, verbose bool) *Terminal {
	return &Terminal{agent: a, in: in, out: out, Verbose: verbose}
}

// Run starts the interactive session. It returns when the user exits or
// the input ends.
func (t *Terminal) Run(ctx context.Context) error {
	t.banner()

	scanner := bufio.NewScanner(t.in)
	for {
		fmt.Fprint(t.out, "\nYou: ")
		if !scanner.Scan() {
			fmt.Fprintln(t.out, "\nGoodbye!")
			break
		}

		userInput := strings.TrimSpace(scanner.Text())
		if userInput == "" {
			continue
		}
		switch lower := strings.ToLower(userInput); {
		case exitWords[lower]:
			fmt.Fprintln(t.out, "\nGoodbye!")
			return nil
		case lower == "help":
			t.help()
			continue
		case lower == "clear" || lower == "/clear":
			if t.agent.Session != nil {
				t.agent.Session.Reset()
			}
			fmt.Fprintln(t.out, "Conversation cleared.")
			continue
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		t.Ask(ctx, userInput)
	}

	return scanner.Err()
}

// Ask runs one question and prints the answer, or the error with a hint.
func (t *Terminal) Ask(ctx context.Context, question string) error {
	callbacks := agent.ProcessCallbacks{
		OnWarning: func(warning string) {
			fmt.Fprintf(t.out, "Warning: %s\n", warning)
		},
	}
	if t.Verbose {
		callbacks.OnSection = func(s transcript.Section) {
			transcript.Render(t.out, []transcript.Section{s}, t.Color)
		}
	}

	res, err := t.agent.Run(ctx, question, callbacks)
	if err != nil {
		fmt.Fprintf(t.out, "\nError: %v\n", errors.Plain(err))
		if hint := errors.UserHint(err); hint != "" {
			fmt.Fprintln(t.out, hint)
		}
		return err
	}
	fmt.Fprintf(t.out, "\nDr. NIMA: %s\n", res.Answer)
	return nil
}

func (t *Terminal) banner() {
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(t.out, rule)
	fmt.Fprintln(t.out, "Dr. NIMA - Nuclear Imaging with Multi-Agents")
	fmt.Fprintln(t.out, rule)
	fmt.Fprintln(t.out, "\nType 'exit' or 'quit' to end the session")
	fmt.Fprintln(t.out, "Type 'help' for example questions")
}

func (t *Terminal) help() {
	fmt.Fprintln(t.out, "\nExample questions:")
	for i, ex := range Examples {
		fmt.Fprintf(t.out, "  %d. %s\n", i+1, ex)
	}
}
