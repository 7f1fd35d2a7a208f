// Package agent drives the multi-step reasoning loop of Dr. NIMA.
//
// Each step sends the conversation to the model and expects a reply of the
// form
//
//	Thought: <reasoning>
//	Code:
//	```py
//	{"tool": "calculate_lorentz_factor", "args": {"velocity_fraction": 0.9}}
//	```<end_code>
//
// The code block holds one JSON tool call or an array of them. Tool outputs
// and errors go back to the model as the next Observation. The run ends when
// the model calls final_answer, or after MaxSteps steps with one last request
// for a plain answer.
//
// Every run is written to a verbose transcript with transcript.Writer. The
// Result carries that text, its structured sections and the step records, so
// front-ends choose how much of the reasoning to show.
//
// Subpackages:
//
//   - agent/terminal: interactive REPL
//   - agent/web: browser chat over a websocket
package agent
