package llm

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/m4xw311/nima/errors"
	"github.com/m4xw311/nima/session"
)

// RetryPolicy bounds how often a rate limited call is retried.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Model wraps an LLMClient with prompt flattening, outcome classification
// and rate limit backoff.
type Model struct {
	client LLMClient
	config GenerationConfig
	retry  RetryPolicy

	sleep func(time.Duration)
	logf  func(format string, a ...any)
}

type Option func(*Model)

// WithSleep replaces time.Sleep for the backoff wait.
func WithSleep(sleep func(time.Duration)) Option {
	return func(m *Model) { m.sleep = sleep }
}

// WithLogf replaces the logger used for backoff warnings.
func WithLogf(logf func(format string, a ...any)) Option {
	return func(m *Model) { m.logf = logf }
}

func NewModel(client LLMClient, cfg GenerationConfig, retry RetryPolicy, opts ...Option) *Model {
	m := &Model{
		client: client,
		config: cfg,
		retry:  retry,
		sleep:  time.Sleep,
		logf: func(format string, a ...any) {
			fmt.Fprintf(os.Stderr, format, a...)
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Generate sends the conversation as one flattened prompt and returns the
// generated text, cut at the first stop sequence.
//
// Only rate limited calls are retried, waiting baseDelay * 2^attempt or, for
// that attempt only, the delay the provider asked for. Once the retries are
// spent the error is a KindRateLimitExhausted failure. The backoff wait is not
// interrupted by ctx; ctx only bounds the calls themselves.
func (m *Model) Generate(ctx context.Context, messages []session.Message, stop []string) (string, error) {
	prompt := FlattenPrompt(messages)
	cfg := m.config
	cfg.StopSequences = stop

	for attempt := 0; attempt < m.retry.MaxRetries; attempt++ {
		resp, err := m.client.Generate(ctx, prompt, cfg)
		if err == nil {
			text, err := extractText(resp)
			if err != nil {
				return "", err
			}
			return truncateAtStop(text, stop), nil
		}

		perr := classify(err)
		if perr.Kind != errors.KindRateLimited {
			return "", perr
		}
		if attempt >= m.retry.MaxRetries-1 {
			return "", &errors.ProviderError{
				Kind:     errors.KindRateLimitExhausted,
				Reason:   fmt.Sprintf("Rate limit exceeded after %d attempts. Please wait before retrying.", m.retry.MaxRetries),
				Attempts: m.retry.MaxRetries,
				Err:      err,
			}
		}

		delay := m.retry.BaseDelay * time.Duration(1<<attempt)
		if perr.RetryAfter > 0 {
			delay = perr.RetryAfter
		}

		m.logf("Warning: rate limit hit, retrying in %.1fs (attempt %d/%d)\n", delay.Seconds(), attempt+1, m.retry.MaxRetries)
		m.sleep(delay)
	}

	return "", &errors.ProviderError{
		Kind:     errors.KindOther,
		Reason:   fmt.Sprintf("Failed after %d attempts", m.retry.MaxRetries),
		Attempts: m.retry.MaxRetries,
	}
}

// FlattenPrompt renders each message as "<Role>: <content>" and joins them
// with a blank line. Messages with an unknown role are left out.
func FlattenPrompt(messages []session.Message) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		label, ok := msg.Role.Label()
		if !ok {
			continue
		}
		parts = append(parts, label+": "+msg.Content)
	}
	return strings.Join(parts, "\n\n")
}

var retryInPattern = regexp.MustCompile(`retry in (\d+(?:\.\d+)?)`)

// classify tags err. Clients tag the rate limits they recognise themselves;
// anything else is checked for the usual rate limit wording before being
// passed through unchanged.
func classify(err error) *errors.ProviderError {
	var perr *errors.ProviderError
	if errors.As(err, &perr) && perr.Kind != errors.KindOther {
		if perr.Kind == errors.KindRateLimited && perr.RetryAfter == 0 {
			return errors.RateLimited(err, retryHint(err.Error()))
		}
		return perr
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "quota") || strings.Contains(msg, "rate") {
		return errors.RateLimited(err, retryHint(msg))
	}
	return errors.Other(err)
}

// retryHint parses a "retry in <seconds>" suggestion, zero if absent.
func retryHint(msg string) time.Duration {
	m := retryInPattern.FindStringSubmatch(strings.ToLower(msg))
	if m == nil {
		return 0
	}
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func extractText(resp *Response) (string, error) {
	if resp == nil {
		return "", errors.Extraction("no valid response")
	}
	if len(resp.Candidates) == 0 && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", errors.SafetyBlocked(resp.PromptFeedback.BlockReason)
	}
	if resp.Text != "" {
		return resp.Text, nil
	}
	if len(resp.Candidates) > 0 {
		for _, part := range resp.Candidates[0].Parts {
			if part != "" {
				return part, nil
			}
		}
	}
	return "", errors.Extraction("no valid response")
}

func truncateAtStop(text string, stop []string) string {
	cut := len(text)
	for _, s := range stop {
		if s == "" {
			continue
		}
		if i := strings.Index(text, s); i >= 0 && i < cut {
			cut = i
		}
	}
	return text[:cut]
}
