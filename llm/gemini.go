package llm

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/m4xw311/nima/errors"
	"google.golang.org/api/option"
)

// GeminiLLMClient is a client for the Google Gemini API.
type GeminiLLMClient struct {
	client    *genai.Client
	modelName string
}

// NewGeminiLLMClient creates a new GeminiLLMClient. With an empty apiKey it
// falls back to GOOGLE_API_KEY, then GEMINI_API_KEY.
func NewGeminiLLMClient(ctx context.Context, modelName, apiKey string) (*GeminiLLMClient, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("GOOGLE_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}

	return &GeminiLLMClient{
		client:    client,
		modelName: modelName,
	}, nil
}

// Generate sends one prompt to the Gemini API. Blocked prompts and blocked
// candidates come back as a response without candidates.
func (g *GeminiLLMClient) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (*Response, error) {
	// Settings live on the model handle, so each call gets its own.
	model := g.client.GenerativeModel(g.modelName)
	applyGeminiConfig(model, cfg)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return blockedResponse(blocked), nil
		}
		var coded interface{ HTTPCode() int }
		if errors.As(err, &coded) && coded.HTTPCode() == http.StatusTooManyRequests {
			return nil, errors.RateLimited(err, 0)
		}
		return nil, errors.Wrapf(err, "failed to send message to Gemini")
	}
	return geminiResponse(resp), nil
}

func (g *GeminiLLMClient) Close() error {
	return g.client.Close()
}

func applyGeminiConfig(model *genai.GenerativeModel, cfg GenerationConfig) {
	model.SetTemperature(cfg.Temperature)
	if cfg.TopP > 0 {
		model.SetTopP(cfg.TopP)
	}
	if cfg.TopK > 0 {
		model.SetTopK(cfg.TopK)
	}
	if cfg.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(cfg.MaxOutputTokens)
	}
	// The API accepts at most five stop sequences.
	stop := cfg.StopSequences
	if len(stop) > 5 {
		stop = stop[:5]
	}
	model.StopSequences = stop
	model.SafetySettings = geminiSafetySettings(cfg.SafetySettings)
}

var harmCategories = map[string]genai.HarmCategory{
	"harassment":        genai.HarmCategoryHarassment,
	"hate_speech":       genai.HarmCategoryHateSpeech,
	"sexually_explicit": genai.HarmCategorySexuallyExplicit,
	"dangerous_content": genai.HarmCategoryDangerousContent,
}

var harmThresholds = map[string]genai.HarmBlockThreshold{
	"block_none":             genai.HarmBlockNone,
	"block_only_high":        genai.HarmBlockOnlyHigh,
	"block_medium_and_above": genai.HarmBlockMediumAndAbove,
	"block_low_and_above":    genai.HarmBlockLowAndAbove,
}

// geminiSafetySettings converts the configured thresholds. Unknown
// categories or thresholds are skipped with a warning.
func geminiSafetySettings(settings map[string]string) []*genai.SafetySetting {
	var out []*genai.SafetySetting
	for name, level := range settings {
		category, ok := harmCategories[strings.ToLower(name)]
		if !ok {
			warnf("Warning: unknown safety category %q ignored\n", name)
			continue
		}
		threshold, ok := harmThresholds[strings.ToLower(level)]
		if !ok {
			warnf("Warning: unknown safety threshold %q for %s ignored\n", level, name)
			continue
		}
		out = append(out, &genai.SafetySetting{Category: category, Threshold: threshold})
	}
	return out
}

// geminiResponse converts a Gemini API response into our Response. Text is
// only filled when the first candidate consists of text parts alone.
func geminiResponse(resp *genai.GenerateContentResponse) *Response {
	out := &Response{}
	if resp == nil {
		return out
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		out.PromptFeedback = &PromptFeedback{BlockReason: resp.PromptFeedback.BlockReason.String()}
	}

	for i, c := range resp.Candidates {
		if c == nil {
			continue
		}
		cand := Candidate{FinishReason: c.FinishReason.String()}
		onlyText := true
		if c.Content != nil {
			for _, part := range c.Content.Parts {
				text, ok := part.(genai.Text)
				if !ok {
					onlyText = false
					continue
				}
				cand.Parts = append(cand.Parts, string(text))
			}
		}
		if i == 0 && onlyText {
			out.Text = strings.Join(cand.Parts, "")
		}
		out.Candidates = append(out.Candidates, cand)
	}
	return out
}

// blockedResponse turns a blocked prompt or candidate into a response with
// no candidates and the block reason as prompt feedback.
func blockedResponse(be *genai.BlockedError) *Response {
	reason := "unspecified"
	switch {
	case be.PromptFeedback != nil:
		reason = be.PromptFeedback.BlockReason.String()
	case be.Candidate != nil:
		reason = be.Candidate.FinishReason.String()
	}
	return &Response{PromptFeedback: &PromptFeedback{BlockReason: reason}}
}

func warnf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format, a...)
}
