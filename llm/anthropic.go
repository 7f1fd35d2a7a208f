package llm

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m4xw311/nima/errors"
)

// AnthropicLLMClient is a client for the Anthropic API.
type AnthropicLLMClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicLLMClient creates a new AnthropicLLMClient.
// It requires the ANTHROPIC_API_KEY environment variable to be set.
func NewAnthropicLLMClient(ctx context.Context, modelName string) (*AnthropicLLMClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &AnthropicLLMClient{
		client: &client,
		model:  modelName,
	}, nil
}

// Generate sends the prompt as a single user turn to the Anthropic API.
func (a *AnthropicLLMClient) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (*Response, error) {
	maxTokens := int64(cfg.MaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   maxTokens,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
		Temperature: anthropic.Float(float64(cfg.Temperature)),
	}
	if cfg.TopK > 0 {
		params.TopK = anthropic.Int(int64(cfg.TopK))
	}
	if len(cfg.StopSequences) > 0 {
		params.StopSequences = cfg.StopSequences
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return nil, errors.RateLimited(err, 0)
		}
		return nil, errors.Wrapf(err, "failed to send message to Anthropic")
	}
	return anthropicResponse(resp), nil
}

// anthropicResponse converts an Anthropic message into our Response. A
// refusal is reported as a blocked prompt.
func anthropicResponse(resp *anthropic.Message) *Response {
	if string(resp.StopReason) == "refusal" {
		return &Response{PromptFeedback: &PromptFeedback{BlockReason: "refusal"}}
	}

	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	return &Response{
		Text:       strings.Join(parts, ""),
		Candidates: []Candidate{{Parts: parts, FinishReason: string(resp.StopReason)}},
	}
}
