// Package terminal implements the interactive command-line mode of Dr. NIMA.
//
// The user types questions at a "You:" prompt and each answer is printed as
// "Dr. NIMA: <answer>". With Verbose set the thought, code, observation and
// final answer sections of the run are rendered as they complete.
//
// Commands:
//
//   - help: print example questions
//   - clear: forget the conversation so far
//   - exit, quit, q, /exit, /quit: leave
//
// Errors are printed with a hint when the failure kind has one, for example
// a rate limit asks the user to wait before retrying.
package terminal
