package llm

import (
	"encoding/json"
	"testing"
)

func TestCreateAnthropicRequest(t *testing.T) {
	body, err := createAnthropicRequest("User: Hello!", GenerationConfig{
		Temperature:   0.3,
		TopK:          40,
		StopSequences: []string{"<end_code>"},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var req map[string]interface{}
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if req["anthropic_version"] != "bedrock-2023-05-31" {
		t.Errorf("Expected bedrock anthropic_version, got %v", req["anthropic_version"])
	}
	if req["max_tokens"] != float64(4096) {
		t.Errorf("Expected default max_tokens 4096, got %v", req["max_tokens"])
	}
	if req["top_k"] != float64(40) {
		t.Errorf("Expected top_k 40, got %v", req["top_k"])
	}

	messages, ok := req["messages"].([]interface{})
	if !ok || len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %v", req["messages"])
	}
	msg := messages[0].(map[string]interface{})
	if msg["role"] != "user" {
		t.Errorf("Expected role 'user', got '%v'", msg["role"])
	}
	content := msg["content"].([]interface{})[0].(map[string]interface{})
	if content["text"] != "User: Hello!" {
		t.Errorf("prompt not carried over: %v", content["text"])
	}

	stop, ok := req["stop_sequences"].([]interface{})
	if !ok || len(stop) != 1 || stop[0] != "<end_code>" {
		t.Errorf("stop sequences not carried over: %v", req["stop_sequences"])
	}
}

func TestCreateAnthropicRequestWithoutStop(t *testing.T) {
	body, err := createAnthropicRequest("User: hi", GenerationConfig{MaxOutputTokens: 1024})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var req map[string]interface{}
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if _, ok := req["stop_sequences"]; ok {
		t.Error("stop_sequences should be omitted when empty")
	}
	if req["max_tokens"] != float64(1024) {
		t.Errorf("Expected max_tokens 1024, got %v", req["max_tokens"])
	}
}

func TestProcessBedrockResponse(t *testing.T) {
	body := []byte(`{"content":[{"type":"text","text":"Thought: "},{"type":"text","text":"done"}],"stop_reason":"end_turn"}`)

	resp, err := processBedrockResponse(body)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.Text != "Thought: done" {
		t.Errorf("Expected joined text, got %q", resp.Text)
	}
	if len(resp.Candidates) != 1 || resp.Candidates[0].FinishReason != "end_turn" {
		t.Errorf("unexpected candidates: %+v", resp.Candidates)
	}
}

func TestProcessBedrockResponseRefusal(t *testing.T) {
	resp, err := processBedrockResponse([]byte(`{"content":[],"stop_reason":"refusal"}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(resp.Candidates) != 0 || resp.PromptFeedback == nil || resp.PromptFeedback.BlockReason != "refusal" {
		t.Errorf("refusal should read as a blocked prompt: %+v", resp)
	}
}

func TestProcessBedrockResponseErrors(t *testing.T) {
	if _, err := processBedrockResponse([]byte(`not json`)); err == nil {
		t.Error("Expected an error for a malformed body")
	}
	if _, err := processBedrockResponse([]byte(`{"error":"throttled"}`)); err == nil {
		t.Error("Expected an error for an error body")
	}
}
