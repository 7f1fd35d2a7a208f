// Package transcript turns the verbose text an agent run prints into typed
// sections, and writes that text in the first place.
//
// The recognised vocabulary (Thought:, Code:, Observation:, Execution logs:,
// Final answer:, the New run and Step banners) is the contract between Writer
// and Structure. Changing one side without the other silently drops content.
package transcript

import (
	"regexp"
	"strings"
)

// Kind is the type of a transcript section.
type Kind string

const (
	KindThought      Kind = "thought"
	KindCode         Kind = "code"
	KindObservation  Kind = "observation"
	KindExecutionLog Kind = "execution"
	KindFinalAnswer  Kind = "final"
)

// Section is one typed block of a transcript, in textual order.
type Section struct {
	Kind  Kind     `json:"kind"`
	Lines []string `json:"lines"`
}

// Text joins the section lines with newlines.
func (s Section) Text() string {
	return strings.Join(s.Lines, "\n")
}

const boxChars = "─━│┃╭╮╯╰┌┐└┘├┤┬┴┼═║╔╗╚╝"

var (
	ansiEscape   = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
	stepBanner   = regexp.MustCompile(`^Step \d+$`)
	modelBanner  = regexp.MustCompile(`^\w*Model\s+-\s+\S+`)
	timestampPfx = regexp.MustCompile(`^\[\d{1,2}:\d{2}(:\d{2})?(\.\d+)?\]`)
)

// StripANSI removes color and cursor escape sequences. Removing one sequence
// can join its neighbours into a new one, so it repeats until nothing
// changes; StripANSI(StripANSI(s)) == StripANSI(s).
func StripANSI(s string) string {
	for {
		out := ansiEscape.ReplaceAllString(s, "")
		if out == s {
			return out
		}
		s = out
	}
}

// Structure strips escape codes from raw and splits it into sections. Lines
// seen before the first section header are dropped.
func Structure(raw string) []Section {
	var (
		sections []Section
		current  *Section
		inFence  bool
	)
	open := func(kind Kind, seed string) {
		if current != nil {
			sections = append(sections, *current)
		}
		current = &Section{Kind: kind, Lines: []string{}}
		if seed != "" {
			current.Lines = append(current.Lines, seed)
		}
		inFence = false
	}

	for _, line := range strings.Split(StripANSI(raw), "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		bare := strings.TrimSpace(strings.Trim(line, boxChars+" \t"))

		if trimmed != "" && bare == "" {
			continue
		}
		if strings.Contains(line, "New run") || strings.Contains(line, "GeminiModel") || modelBanner.MatchString(bare) {
			continue
		}
		if stepBanner.MatchString(bare) || strings.Contains(line, "Output message of the LLM:") {
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "Thought:"):
			open(KindThought, strings.TrimSpace(strings.TrimPrefix(trimmed, "Thought:")))
			continue
		case strings.HasPrefix(trimmed, "Code:"):
			open(KindCode, "")
			continue
		case strings.HasPrefix(trimmed, "Observation:"):
			open(KindObservation, strings.TrimSpace(strings.TrimPrefix(trimmed, "Observation:")))
			continue
		case strings.Contains(line, "Execution logs:"):
			open(KindExecutionLog, "")
			continue
		case strings.HasPrefix(trimmed, "Out -") || strings.HasPrefix(trimmed, "Final answer:"):
			open(KindFinalAnswer, finalAnswerText(trimmed))
			continue
		}

		if current == nil {
			continue
		}

		if current.Kind == KindCode {
			switch {
			case strings.HasPrefix(trimmed, "```"):
				inFence = !inFence
			case strings.Contains(line, "<end_code>"):
			case inFence || (trimmed != "" && !timestampPfx.MatchString(trimmed)):
				current.Lines = append(current.Lines, strings.TrimRight(line, " \t"))
			}
			continue
		}

		if trimmed == "" || timestampPfx.MatchString(trimmed) {
			continue
		}
		current.Lines = append(current.Lines, trimmed)
	}

	if current != nil {
		sections = append(sections, *current)
	}
	return sections
}

func finalAnswerText(line string) string {
	line = strings.TrimSpace(strings.TrimPrefix(line, "Out -"))
	line = strings.TrimSpace(strings.TrimPrefix(line, "Final answer:"))
	return line
}
