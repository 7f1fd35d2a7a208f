package llm

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/m4xw311/nima/errors"
)

// BedrockLLMClient is a client for the Anthropic models on AWS Bedrock.
type BedrockLLMClient struct {
	client  *bedrockruntime.Client
	modelID string
	region  string
}

// NewBedrockLLMClient creates a new BedrockLLMClient.
// It requires AWS credentials to be configured in the environment.
func NewBedrockLLMClient(ctx context.Context, modelID string) (*BedrockLLMClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}

	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	cfg.Region = region

	var opts []func(*bedrockruntime.Options)
	// Custom endpoint, useful for testing.
	if endpoint := os.Getenv("BEDROCK_ENDPOINT_URL"); endpoint != "" {
		opts = append(opts, func(o *bedrockruntime.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	return &BedrockLLMClient{
		client:  bedrockruntime.NewFromConfig(cfg, opts...),
		modelID: modelID,
		region:  region,
	}, nil
}

// Generate invokes the model with an Anthropic messages request body.
func (b *BedrockLLMClient) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (*Response, error) {
	requestBody, err := createAnthropicRequest(prompt, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create Anthropic request")
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		var throttled *brtypes.ThrottlingException
		if errors.As(err, &throttled) {
			return nil, errors.RateLimited(err, 0)
		}
		var quota *brtypes.ServiceQuotaExceededException
		if errors.As(err, &quota) {
			return nil, errors.RateLimited(err, 0)
		}
		return nil, errors.Wrapf(err, "failed to invoke Bedrock model")
	}

	return processBedrockResponse(resp.Body)
}

// createAnthropicRequest creates the request body for Anthropic models on Bedrock.
func createAnthropicRequest(prompt string, cfg GenerationConfig) ([]byte, error) {
	maxTokens := cfg.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        maxTokens,
		"temperature":       cfg.Temperature,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": prompt},
				},
			},
		},
	}
	if cfg.TopK > 0 {
		request["top_k"] = cfg.TopK
	}
	if len(cfg.StopSequences) > 0 {
		request["stop_sequences"] = cfg.StopSequences
	}
	return json.Marshal(request)
}

type bedrockContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type bedrockMessage struct {
	Content    []bedrockContent `json:"content"`
	StopReason string           `json:"stop_reason"`
	Error      interface{}      `json:"error"`
}

// processBedrockResponse converts a Bedrock response body into our Response.
func processBedrockResponse(body []byte) (*Response, error) {
	var msg bedrockMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal Bedrock response")
	}
	if msg.Error != nil {
		return nil, errors.New("Bedrock API error: %v", msg.Error)
	}
	if msg.StopReason == "refusal" {
		return &Response{PromptFeedback: &PromptFeedback{BlockReason: "refusal"}}, nil
	}

	var parts []string
	for _, c := range msg.Content {
		if c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}
	return &Response{
		Text:       strings.Join(parts, ""),
		Candidates: []Candidate{{Parts: parts, FinishReason: msg.StopReason}},
	}, nil
}
