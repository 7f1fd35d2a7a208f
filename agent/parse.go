package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/m4xw311/nima/errors"
)

// ToolCall is one call the model asked for in a code block.
type ToolCall struct {
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args"`
}

var (
	codeFence = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\n(.*?)(?:\n[ \t]*```|$)")
	thoughtRe = regexp.MustCompile(`(?s)Thought:\s*(.*?)\s*(?:Code:|` + "```" + `|$)`)
)

// parseStep splits model output into its thought and the body of the first
// code block.
func parseStep(output string) (thought, code string, err error) {
	output = strings.TrimSpace(strings.ReplaceAll(output, endCode, ""))
	if m := thoughtRe.FindStringSubmatch(output); m != nil {
		thought = strings.TrimSpace(m[1])
	}
	m := codeFence.FindStringSubmatch(output)
	if m == nil {
		if thought == "" {
			thought = output
		}
		return thought, "", errors.New("no code block found in the model output")
	}
	return thought, strings.TrimSpace(m[1]), nil
}

// parseCalls decodes a code block holding one call object or an array of them.
func parseCalls(code string) ([]ToolCall, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("the code block is empty")
	}
	var calls []ToolCall
	if strings.HasPrefix(code, "[") {
		if err := json.Unmarshal([]byte(code), &calls); err != nil {
			return nil, errors.Wrapf(err, "the code block is not a JSON list of tool calls")
		}
	} else {
		var call ToolCall
		if err := json.Unmarshal([]byte(code), &call); err != nil {
			return nil, errors.Wrapf(err, "the code block is not a JSON tool call")
		}
		calls = []ToolCall{call}
	}
	if len(calls) == 0 {
		return nil, errors.New("the code block holds no tool calls")
	}
	for i, c := range calls {
		if c.Tool == "" {
			return nil, errors.New("tool call %d has no \"tool\" name", i+1)
		}
		if c.Args == nil {
			calls[i].Args = map[string]interface{}{}
		}
	}
	return calls, nil
}

// answerText renders the answer argument of a final_answer call.
func answerText(args map[string]interface{}) string {
	v, ok := args["answer"]
	if !ok {
		// Some models name the argument differently; take the only one.
		if len(args) != 1 {
			return ""
		}
		for _, only := range args {
			v = only
		}
	}
	switch a := v.(type) {
	case string:
		return a
	case nil:
		return ""
	default:
		out, err := json.Marshal(a)
		if err != nil {
			return fmt.Sprint(a)
		}
		return string(out)
	}
}
