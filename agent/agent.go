package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m4xw311/nima/config"
	"github.com/m4xw311/nima/errors"
	"github.com/m4xw311/nima/experiments"
	"github.com/m4xw311/nima/session"
	"github.com/m4xw311/nima/tools"
	"github.com/m4xw311/nima/transcript"
)

const (
	finalAnswerTool = "final_answer"
	endCode         = "<end_code>"
)

// StopSequences end a model turn before it invents its own observation.
var StopSequences = []string{endCode, "Observation:"}

// Generator produces the next assistant turn for a conversation.
type Generator interface {
	Generate(ctx context.Context, messages []session.Message, stop []string) (string, error)
}

// Step is the record of one reasoning step.
type Step struct {
	Number      int        `json:"number"`
	Thought     string     `json:"thought,omitempty"`
	Code        string     `json:"code,omitempty"`
	Calls       []ToolCall `json:"calls,omitempty"`
	Observation string     `json:"observation,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Result is everything a run produced. It is returned even when the run
// fails, holding whatever was produced up to that point.
type Result struct {
	Answer     string               `json:"answer"`
	Transcript string               `json:"-"`
	Sections   []transcript.Section `json:"sections"`
	Steps      []Step               `json:"steps"`
	CodeBlocks []string             `json:"code_blocks,omitempty"`
}

// ProcessCallbacks let a front-end follow a run while it happens.
type ProcessCallbacks struct {
	// OnSection receives each transcript section once it is complete.
	OnSection func(section transcript.Section)
	// OnWarning receives non-fatal problems such as a failed session save.
	OnWarning func(warning string)
}

type Agent struct {
	Session    *session.Session
	Model      Generator
	ModelLabel string
	Tools      []tools.Tool
	MaxSteps   int
	// Tracker, when set, records each run as an experiment.
	Tracker *experiments.Tracker
	// Color keeps ANSI colors in the transcript.
	Color bool

	mu  sync.Mutex
	now func() time.Time
}

// New creates an agent using the registry tools matching toolPatterns, or
// all of them when toolPatterns is empty.
func New(cfg *config.Config, sess *session.Session, model Generator, modelLabel string, registry *tools.ToolRegistry, toolPatterns []string) (*Agent, error) {
	active := registry.List()
	if len(toolPatterns) > 0 {
		var err error
		active, err = registry.GetActiveTools(toolPatterns)
		if err != nil {
			return nil, err
		}
	}
	for _, t := range active {
		if t.Name() == finalAnswerTool {
			return nil, errors.New("tool name '%s' is reserved", finalAnswerTool)
		}
	}
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = config.Default().MaxSteps
	}
	return &Agent{
		Session:    sess,
		Model:      model,
		ModelLabel: modelLabel,
		Tools:      active,
		MaxSteps:   maxSteps,
		now:        time.Now,
	}, nil
}

// run is the state of one call to Run.
type run struct {
	a      *Agent
	task   string
	cb     ProcessCallbacks
	buf    bytes.Buffer
	tw     *transcript.Writer
	result *Result
	sent   int
	tools  map[string]tools.Tool
}

// Run drives the model through up to MaxSteps steps for task. Runs on the
// same agent are serialized.
func (a *Agent) Run(ctx context.Context, task string, cb ProcessCallbacks) (*Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	started := a.now()
	r := &run{a: a, task: task, cb: cb, result: &Result{}, tools: map[string]tools.Tool{}}
	r.tw = transcript.NewWriter(&r.buf, a.Color)
	for _, t := range a.Tools {
		r.tools[t.Name()] = t
	}

	if a.Tracker != nil {
		if _, err := a.Tracker.Start(task); err != nil {
			r.warn(fmt.Sprintf("could not start experiment: %v", err))
		}
	}

	answer, err := r.loop(ctx)
	r.result.Answer = answer
	r.flush()
	r.result.Transcript = r.buf.String()
	r.result.Sections = transcript.Structure(r.result.Transcript)

	a.record(r, started, err)
	return r.result, err
}

func (r *run) loop(ctx context.Context) (string, error) {
	r.tw.RunStart(r.task, r.a.ModelLabel)

	messages := []session.Message{{Role: session.RoleSystem, Content: systemPrompt(r.a.Tools)}}
	if r.a.Session != nil {
		messages = append(messages, r.a.Session.Messages...)
	}
	messages = append(messages, session.Message{Role: session.RoleUser, Content: r.task})

	for n := 1; n <= r.a.MaxSteps; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		r.tw.Step(n)
		output, err := r.a.Model.Generate(ctx, messages, StopSequences)
		if err != nil {
			r.result.Steps = append(r.result.Steps, Step{Number: n, Error: err.Error()})
			return "", err
		}
		step, answer, done := r.step(ctx, n, output)
		r.result.Steps = append(r.result.Steps, step)
		r.flush()
		if done {
			return answer, nil
		}
		messages = append(messages,
			session.Message{Role: session.RoleAssistant, Content: strings.TrimSpace(output) + "\n" + endCode},
			session.Message{Role: session.RoleUser, Content: "Observation:\n" + step.Observation},
		)
	}

	r.tw.Warning("Reached max steps.")
	r.warn(fmt.Sprintf("reached the maximum of %d steps", r.a.MaxSteps))
	messages = append(messages, session.Message{Role: session.RoleUser, Content: maxStepsPrompt(r.task)})
	output, err := r.a.Model.Generate(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(output)
	if _, code, perr := parseStep(output); perr == nil {
		if calls, cerr := parseCalls(code); cerr == nil && calls[0].Tool == finalAnswerTool {
			answer = answerText(calls[0].Args)
		}
	}
	answer = strings.TrimSpace(strings.TrimPrefix(answer, "Final answer:"))
	r.tw.FinalAnswer(answer)
	return answer, nil
}

// step parses and executes one model turn. done is set when the turn
// called final_answer.
func (r *run) step(ctx context.Context, n int, output string) (step Step, answer string, done bool) {
	step.Number = n
	thought, code, err := parseStep(output)
	step.Thought = thought
	if thought != "" {
		r.tw.Thought(thought)
	}
	if err != nil {
		step.Error = err.Error()
		step.Observation = fmt.Sprintf("Error: %s. Answer with a Thought: line and a Code: block holding JSON tool calls, ending with %s.", errors.Plain(err), endCode)
		r.tw.Observation(step.Observation)
		return step, "", false
	}

	step.Code = code
	r.result.CodeBlocks = append(r.result.CodeBlocks, code)
	r.tw.Code(code)

	calls, err := parseCalls(code)
	if err != nil {
		step.Error = err.Error()
		step.Observation = fmt.Sprintf("Error: %s. Write the tool calls as {\"tool\": \"<name>\", \"args\": {...}}.", errors.Plain(err))
		r.tw.Observation(step.Observation)
		return step, "", false
	}
	step.Calls = calls

	var logs, observations []string
	for _, call := range calls {
		args, _ := json.Marshal(call.Args)
		logs = append(logs, fmt.Sprintf("Calling tool: '%s' with arguments: %s", call.Tool, args))

		if call.Tool == finalAnswerTool {
			r.tw.ExecutionLogs(logs)
			answer = answerText(call.Args)
			r.tw.FinalAnswer(answer)
			return step, answer, true
		}

		tool, ok := r.tools[call.Tool]
		if !ok {
			msg := fmt.Sprintf("Error: Unknown tool '%s'. Available tools: %s", call.Tool, strings.Join(r.toolNames(), ", "))
			step.Error = msg
			observations = append(observations, msg)
			continue
		}
		out, err := tool.Execute(ctx, call.Args)
		if err != nil {
			msg := fmt.Sprintf("Error executing tool '%s': %s", call.Tool, errors.Plain(err))
			step.Error = msg
			observations = append(observations, msg)
			continue
		}
		observations = append(observations, out)
	}
	r.tw.ExecutionLogs(logs)
	step.Observation = strings.Join(observations, "\n")
	r.tw.Observation(step.Observation)
	return step, "", false
}

func (r *run) toolNames() []string {
	names := make([]string, 0, len(r.tools)+1)
	for name := range r.tools {
		names = append(names, name)
	}
	names = append(names, finalAnswerTool)
	sort.Strings(names)
	return names
}

// flush hands the sections completed so far to OnSection. A step always
// ends with a complete section, so everything structured at that point is
// final.
func (r *run) flush() {
	if r.cb.OnSection == nil {
		return
	}
	sections := transcript.Structure(r.buf.String())
	for _, s := range sections[min(r.sent, len(sections)):] {
		r.cb.OnSection(s)
	}
	r.sent = max(r.sent, len(sections))
}

func (r *run) warn(msg string) {
	if r.cb.OnWarning != nil {
		r.cb.OnWarning(msg)
	}
}

// record stores the run in the session and the experiment.
func (a *Agent) record(r *run, started time.Time, runErr error) {
	res := r.result
	if a.Tracker != nil && a.Tracker.Path() != "" {
		if err := a.Tracker.SaveCodes(res.CodeBlocks); err != nil {
			r.warn(fmt.Sprintf("could not save code blocks: %v", err))
		}
		if err := a.Tracker.SaveOutput(res.Answer, ""); err != nil {
			r.warn(fmt.Sprintf("could not save output: %v", err))
		}
		meta := map[string]any{"model": a.ModelLabel, "steps": len(res.Steps)}
		if runErr != nil {
			meta["error"] = runErr.Error()
		}
		for _, key := range []string{"model", "steps", "error"} {
			v, ok := meta[key]
			if !ok {
				continue
			}
			if err := a.Tracker.SaveMetadata(key, v); err != nil {
				r.warn(fmt.Sprintf("could not save metadata %s: %v", key, err))
			}
		}
		if err := a.Tracker.Finish(); err != nil {
			r.warn(fmt.Sprintf("could not finish experiment: %v", err))
		}
	}

	if a.Session == nil {
		return
	}
	entry := session.Run{
		ID:         uuid.NewString(),
		Task:       r.task,
		Answer:     res.Answer,
		Sections:   res.Sections,
		StartedAt:  started,
		FinishedAt: a.now(),
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	} else {
		a.Session.AddMessage(session.Message{Role: session.RoleUser, Content: r.task})
		a.Session.AddMessage(session.Message{Role: session.RoleAssistant, Content: res.Answer})
	}
	a.Session.AddRun(entry)
	if err := a.Session.Save(); err != nil {
		r.warn(fmt.Sprintf("failed to save session: %v", err))
	}
}
