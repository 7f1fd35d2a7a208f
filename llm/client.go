package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m4xw311/nima/errors"
)

// LLMClient is the interface for a single raw call to a Large Language Model.
// Implementations turn provider rate limit signals into errors.RateLimited
// and report refusals through Response.PromptFeedback rather than as errors.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, cfg GenerationConfig) (*Response, error)
}

// GenerationConfig holds the sampling parameters of one call.
type GenerationConfig struct {
	Temperature     float32
	TopP            float32
	TopK            int32
	MaxOutputTokens int32
	StopSequences   []string
	// SafetySettings maps a harm category to a block threshold. Only the
	// Gemini client understands them.
	SafetySettings map[string]string
}

// Candidate is one generated alternative.
type Candidate struct {
	Parts        []string
	FinishReason string
}

type PromptFeedback struct {
	BlockReason string
}

// Response is what a provider returned for one call.
type Response struct {
	// Text is the provider's own aggregate text of the first candidate, if it
	// could produce one.
	Text           string
	Candidates     []Candidate
	PromptFeedback *PromptFeedback
}

// NewClient builds the client named by provider.
func NewClient(ctx context.Context, provider, model, apiKey string) (LLMClient, error) {
	switch provider {
	case "", "gemini":
		return NewGeminiLLMClient(ctx, model, apiKey)
	case "openai":
		return NewOpenAILLMClient(ctx, model)
	case "anthropic":
		return NewAnthropicLLMClient(ctx, model)
	case "bedrock":
		return NewBedrockLLMClient(ctx, model)
	case "mock":
		return &MockLLMClient{}, nil
	}
	return nil, errors.New("unknown llm client %q", provider)
}

// Label is the model banner printed at the start of a run.
func Label(provider, model string) string {
	switch provider {
	case "", "gemini":
		return "GeminiModel - " + model
	case "openai":
		return "OpenAIModel - " + model
	case "anthropic":
		return "AnthropicModel - " + model
	case "bedrock":
		return "BedrockModel - " + model
	}
	return "MockModel - " + model
}

// MockLLMClient answers every prompt with a final answer echoing the last
// user turn. It needs no network access.
type MockLLMClient struct{}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (*Response, error) {
	task := prompt
	if i := strings.LastIndex(prompt, "User: "); i >= 0 {
		task = strings.TrimSpace(strings.SplitN(prompt[i+len("User: "):], "\n\n", 2)[0])
	}
	call, _ := json.Marshal(map[string]any{
		"tool": "final_answer",
		"args": map[string]any{"answer": "You said: " + task},
	})
	text := fmt.Sprintf("Thought: I am a mock model and cannot reason about this.\nCode:\n```py\n%s\n```", call)
	return &Response{
		Text:       text,
		Candidates: []Candidate{{Parts: []string{text}, FinishReason: "STOP"}},
	}, nil
}
