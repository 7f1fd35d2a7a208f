package llm

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
)

func TestGeminiResponseText(t *testing.T) {
	resp := geminiResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []genai.Part{genai.Text("Thought: "), genai.Text("plan")}},
			FinishReason: genai.FinishReasonStop,
		}},
	})

	if resp.Text != "Thought: plan" {
		t.Fatalf("Expected joined text, got %q", resp.Text)
	}
	if len(resp.Candidates) != 1 || len(resp.Candidates[0].Parts) != 2 {
		t.Fatalf("unexpected candidates: %+v", resp.Candidates)
	}
	if resp.PromptFeedback != nil {
		t.Fatalf("unexpected prompt feedback: %+v", resp.PromptFeedback)
	}
}

func TestGeminiResponseMixedPartsLeaveTextEmpty(t *testing.T) {
	resp := geminiResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.FunctionCall{Name: "noop"},
				genai.Text("fallback text"),
			}},
		}},
	})

	if resp.Text != "" {
		t.Fatalf("Text should be empty for mixed parts, got %q", resp.Text)
	}
	if got := resp.Candidates[0].Parts; len(got) != 1 || got[0] != "fallback text" {
		t.Fatalf("text parts not kept: %v", got)
	}
}

func TestBlockedResponse(t *testing.T) {
	resp := blockedResponse(&genai.BlockedError{
		PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety},
	})
	if len(resp.Candidates) != 0 || resp.PromptFeedback == nil || resp.PromptFeedback.BlockReason == "" {
		t.Fatalf("blocked prompt should carry a reason and no candidates: %+v", resp)
	}

	resp = blockedResponse(&genai.BlockedError{})
	if resp.PromptFeedback.BlockReason != "unspecified" {
		t.Fatalf("Expected unspecified reason, got %q", resp.PromptFeedback.BlockReason)
	}
}

func TestGeminiSafetySettings(t *testing.T) {
	got := geminiSafetySettings(map[string]string{
		"harassment":        "block_none",
		"DANGEROUS_CONTENT": "block_only_high",
		"made_up":           "block_none",
		"hate_speech":       "sometimes",
	})

	if len(got) != 2 {
		t.Fatalf("Expected 2 settings, got %d", len(got))
	}
	for _, s := range got {
		switch s.Category {
		case genai.HarmCategoryHarassment:
			if s.Threshold != genai.HarmBlockNone {
				t.Errorf("harassment threshold = %v", s.Threshold)
			}
		case genai.HarmCategoryDangerousContent:
			if s.Threshold != genai.HarmBlockOnlyHigh {
				t.Errorf("dangerous content threshold = %v", s.Threshold)
			}
		default:
			t.Errorf("unexpected category %v", s.Category)
		}
	}
}
