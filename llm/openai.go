package llm

import (
	"context"
	"net/http"
	"os"

	"github.com/m4xw311/nima/errors"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAILLMClient is a client for the OpenAI Chat Completion API.
type OpenAILLMClient struct {
	client *openai.Client
	model  string
}

// NewOpenAILLMClient creates a new OpenAILLMClient. It requires the OPENAI_API_KEY environment variable to be set.
// It also supports OPENAI_BASE_URL for custom API endpoints.
func NewOpenAILLMClient(ctx context.Context, modelName string) (*OpenAILLMClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	c := openai.NewClient(options...)
	return &OpenAILLMClient{client: &c, model: modelName}, nil
}

// Generate sends the prompt as a single user message. Stop sequences are
// applied by Model after the fact.
func (o *OpenAILLMClient) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(float64(cfg.Temperature)),
	}
	if cfg.TopP > 0 {
		params.TopP = openai.Float(float64(cfg.TopP))
	}
	if cfg.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(cfg.MaxOutputTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return nil, errors.RateLimited(err, 0)
		}
		return nil, errors.Wrapf(err, "failed to send message to OpenAI")
	}
	return openaiResponse(resp), nil
}

// openaiResponse converts a chat completion into our Response. A first
// choice stopped by the content filter with nothing generated counts as a
// blocked prompt.
func openaiResponse(resp *openai.ChatCompletion) *Response {
	out := &Response{}
	if len(resp.Choices) == 0 {
		return out
	}
	first := resp.Choices[0]
	if first.FinishReason == "content_filter" && first.Message.Content == "" {
		out.PromptFeedback = &PromptFeedback{BlockReason: "content_filter"}
		return out
	}
	out.Text = first.Message.Content
	for _, choice := range resp.Choices {
		out.Candidates = append(out.Candidates, Candidate{
			Parts:        []string{choice.Message.Content},
			FinishReason: string(choice.FinishReason),
		})
	}
	return out
}
