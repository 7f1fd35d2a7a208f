package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/m4xw311/nima/errors"
	"github.com/m4xw311/nima/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient replays one outcome per call.
type scriptedClient struct {
	outcomes []outcome
	calls    int
	prompts  []string
	configs  []GenerationConfig
}

type outcome struct {
	resp *Response
	err  error
}

func (s *scriptedClient) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (*Response, error) {
	s.prompts = append(s.prompts, prompt)
	s.configs = append(s.configs, cfg)
	o := s.outcomes[s.calls]
	if s.calls < len(s.outcomes)-1 {
		s.calls++
	}
	return o.resp, o.err
}

func textResponse(text string) outcome {
	return outcome{resp: &Response{Text: text, Candidates: []Candidate{{Parts: []string{text}}}}}
}

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(d time.Duration) { r.delays = append(r.delays, d) }

func newTestModel(client LLMClient, maxRetries int, rec *sleepRecorder) *Model {
	return NewModel(client, GenerationConfig{Temperature: 0.3}, RetryPolicy{MaxRetries: maxRetries, BaseDelay: 2 * time.Second},
		WithSleep(rec.sleep),
		WithLogf(func(string, ...any) {}),
	)
}

func TestFlattenPrompt(t *testing.T) {
	msgs := []session.Message{
		{Role: session.RoleSystem, Content: "be precise"},
		{Role: session.RoleUser, Content: "mass of the muon?"},
		{Role: session.RoleAssistant, Content: "105.66 MeV"},
		{Role: session.RoleUser, Content: "and the tau?"},
	}

	got := FlattenPrompt(msgs)

	assert.Equal(t, "System: be precise\n\nUser: mass of the muon?\n\nAssistant: 105.66 MeV\n\nUser: and the tau?", got)
	segments := strings.Split(got, "\n\n")
	assert.Len(t, segments, len(msgs))
}

func TestFlattenPromptSkipsUnknownRoles(t *testing.T) {
	got := FlattenPrompt([]session.Message{
		{Role: session.RoleUser, Content: "a"},
		{Role: "tool", Content: "ignored"},
		{Role: session.RoleAssistant, Content: "b"},
	})
	assert.Equal(t, "User: a\n\nAssistant: b", got)
	assert.Equal(t, "", FlattenPrompt(nil))
}

func TestGenerateReturnsText(t *testing.T) {
	client := &scriptedClient{outcomes: []outcome{textResponse("Thought: done")}}
	rec := &sleepRecorder{}

	got, err := newTestModel(client, 3, rec).Generate(context.Background(), []session.Message{{Role: session.RoleUser, Content: "hi"}}, []string{"<end_code>"})

	require.NoError(t, err)
	assert.Equal(t, "Thought: done", got)
	assert.Equal(t, "User: hi", client.prompts[0])
	assert.Equal(t, []string{"<end_code>"}, client.configs[0].StopSequences)
	assert.Empty(t, rec.delays)
}

func TestGenerateTruncatesAtStopSequence(t *testing.T) {
	client := &scriptedClient{outcomes: []outcome{textResponse("Thought: x\nCode:\n```py\n{}\n```<end_code>\nObservation: made up")}}

	got, err := newTestModel(client, 3, &sleepRecorder{}).Generate(context.Background(), nil, []string{"Observation:", "<end_code>"})

	require.NoError(t, err)
	assert.Equal(t, "Thought: x\nCode:\n```py\n{}\n```", got)
}

func TestGenerateSafetyBlockIsNeverRetried(t *testing.T) {
	client := &scriptedClient{outcomes: []outcome{
		{resp: &Response{PromptFeedback: &PromptFeedback{BlockReason: "SAFETY"}}},
	}}
	rec := &sleepRecorder{}

	_, err := newTestModel(client, 5, rec).Generate(context.Background(), nil, nil)

	require.Error(t, err)
	assert.Equal(t, errors.KindSafetyBlocked, errors.KindOf(err))
	assert.Contains(t, err.Error(), "SAFETY")
	assert.Len(t, client.prompts, 1)
	assert.Empty(t, rec.delays)
}

func TestGenerateRetriesRateLimitUntilSuccess(t *testing.T) {
	for k := 1; k <= 3; k++ {
		t.Run(fmt.Sprintf("success on attempt %d", k), func(t *testing.T) {
			var outcomes []outcome
			for i := 1; i < k; i++ {
				outcomes = append(outcomes, outcome{err: fmt.Errorf("googleapi: Error 429: Resource has been exhausted")})
			}
			outcomes = append(outcomes, textResponse("ok"))
			client := &scriptedClient{outcomes: outcomes}
			rec := &sleepRecorder{}

			got, err := newTestModel(client, 3, rec).Generate(context.Background(), nil, nil)

			require.NoError(t, err)
			assert.Equal(t, "ok", got)
			assert.Len(t, client.prompts, k)
			require.Len(t, rec.delays, k-1)
			for i := 1; i < len(rec.delays); i++ {
				assert.GreaterOrEqual(t, rec.delays[i], rec.delays[i-1])
			}
		})
	}
}

func TestGenerateExponentialBackoff(t *testing.T) {
	rateLimited := outcome{err: fmt.Errorf("Quota exceeded for requests per minute")}
	client := &scriptedClient{outcomes: []outcome{rateLimited, rateLimited, rateLimited, textResponse("ok")}}
	rec := &sleepRecorder{}

	_, err := newTestModel(client, 4, rec).Generate(context.Background(), nil, nil)

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, rec.delays)
}

func TestGenerateHonoursRetryHint(t *testing.T) {
	client := &scriptedClient{outcomes: []outcome{
		{err: fmt.Errorf("429 You exceeded your current quota. Please retry in 5.5s.")},
		textResponse("ok"),
	}}
	rec := &sleepRecorder{}

	_, err := newTestModel(client, 3, rec).Generate(context.Background(), nil, nil)

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5500 * time.Millisecond}, rec.delays)
}

func TestGenerateHintOnTypedRateLimit(t *testing.T) {
	client := &scriptedClient{outcomes: []outcome{
		{err: errors.RateLimited(fmt.Errorf("too many requests, retry in 7"), 0)},
		textResponse("ok"),
	}}
	rec := &sleepRecorder{}

	_, err := newTestModel(client, 3, rec).Generate(context.Background(), nil, nil)

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{7 * time.Second}, rec.delays)
}

func TestGenerateHintAppliesToOneAttempt(t *testing.T) {
	client := &scriptedClient{outcomes: []outcome{
		{err: fmt.Errorf("429, retry in 30")},
		{err: fmt.Errorf("429")},
		{err: fmt.Errorf("429")},
		textResponse("ok"),
	}}
	rec := &sleepRecorder{}

	_, err := newTestModel(client, 4, rec).Generate(context.Background(), nil, nil)

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{30 * time.Second, 4 * time.Second, 8 * time.Second}, rec.delays)
}

func TestGenerateShortHintWins(t *testing.T) {
	client := &scriptedClient{outcomes: []outcome{
		{err: fmt.Errorf("429")},
		{err: fmt.Errorf("429 please retry in 1.5s")},
		textResponse("ok"),
	}}
	rec := &sleepRecorder{}

	_, err := newTestModel(client, 3, rec).Generate(context.Background(), nil, nil)

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second, 1500 * time.Millisecond}, rec.delays)
}

func TestGenerateRateLimitExhausted(t *testing.T) {
	client := &scriptedClient{outcomes: []outcome{{err: fmt.Errorf("429 Too Many Requests")}}}
	rec := &sleepRecorder{}

	_, err := newTestModel(client, 3, rec).Generate(context.Background(), nil, nil)

	require.Error(t, err)
	assert.Len(t, client.prompts, 3)
	assert.Len(t, rec.delays, 2)
	assert.Equal(t, errors.KindRateLimitExhausted, errors.KindOf(err))
	assert.Contains(t, err.Error(), "Rate limit exceeded after 3 attempts")
	assert.Contains(t, errors.UserHint(err), "Wait a minute")

	var pe *errors.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 3, pe.Attempts)
}

func TestGenerateOtherErrorsAreImmediate(t *testing.T) {
	cause := stderrors.New("invalid argument: model not found")
	client := &scriptedClient{outcomes: []outcome{{err: cause}}}
	rec := &sleepRecorder{}

	_, err := newTestModel(client, 3, rec).Generate(context.Background(), nil, nil)

	require.Error(t, err)
	assert.Equal(t, errors.KindOther, errors.KindOf(err))
	assert.Equal(t, cause.Error(), err.Error())
	assert.True(t, errors.Is(err, cause))
	assert.Len(t, client.prompts, 1)
	assert.Empty(t, rec.delays)
}

func TestGenerateExtractionFallback(t *testing.T) {
	client := &scriptedClient{outcomes: []outcome{
		{resp: &Response{Candidates: []Candidate{{Parts: []string{"", "from parts"}}}}},
	}}

	got, err := newTestModel(client, 3, &sleepRecorder{}).Generate(context.Background(), nil, nil)

	require.NoError(t, err)
	assert.Equal(t, "from parts", got)
}

func TestGenerateNoValidResponse(t *testing.T) {
	for name, resp := range map[string]*Response{
		"nil":             nil,
		"empty":           {},
		"empty candidate": {Candidates: []Candidate{{FinishReason: "MAX_TOKENS"}}},
	} {
		t.Run(name, func(t *testing.T) {
			client := &scriptedClient{outcomes: []outcome{{resp: resp}}}

			_, err := newTestModel(client, 3, &sleepRecorder{}).Generate(context.Background(), nil, nil)

			require.Error(t, err)
			assert.Equal(t, errors.KindExtraction, errors.KindOf(err))
			assert.Contains(t, err.Error(), "no valid response")
		})
	}
}

func TestGenerateWithoutAttempts(t *testing.T) {
	client := &scriptedClient{outcomes: []outcome{textResponse("never")}}

	_, err := newTestModel(client, 0, &sleepRecorder{}).Generate(context.Background(), nil, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed after 0 attempts")
	assert.Empty(t, client.prompts)
}

func TestMockLLMClientEchoesTask(t *testing.T) {
	m := NewModel(&MockLLMClient{}, GenerationConfig{}, RetryPolicy{MaxRetries: 1})

	got, err := m.Generate(context.Background(), []session.Message{
		{Role: session.RoleSystem, Content: "rules"},
		{Role: session.RoleUser, Content: "what is a muon?"},
	}, nil)

	require.NoError(t, err)
	assert.Contains(t, got, `"final_answer"`)
	assert.Contains(t, got, "You said: what is a muon?")
}
