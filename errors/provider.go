package errors

import (
	"fmt"
	"time"
)

// Kind classifies a failed model call. It is decided once, where the provider
// error is first seen, and everything downstream branches on it.
type Kind int

const (
	KindOther Kind = iota
	KindRateLimited
	KindSafetyBlocked
	KindExtraction
	// KindRateLimitExhausted is the terminal failure after every retry of a
	// rate limited call was spent.
	KindRateLimitExhausted
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindSafetyBlocked:
		return "safety_blocked"
	case KindExtraction:
		return "extraction_failure"
	case KindRateLimitExhausted:
		return "rate_limit_exhausted"
	default:
		return "other_failure"
	}
}

// ProviderError is the tagged error produced by the model adapter.
type ProviderError struct {
	Kind Kind
	// Reason is the human readable cause. For safety blocks it is the block
	// reason reported by the provider, verbatim.
	Reason string
	// RetryAfter is the delay suggested by the provider, zero if none.
	RetryAfter time.Duration
	// Attempts is set on terminal failures raised by the retry loop.
	Attempts int
	Err      error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Kind == KindOther && e.Err != nil && e.Reason == "":
		return e.Err.Error()
	case e.Attempts > 0 && e.Reason != "":
		return e.Reason
	case e.Kind == KindSafetyBlocked:
		return fmt.Sprintf("response blocked by safety filters: %s", e.Reason)
	case e.Err != nil && e.Reason != "":
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	case e.Reason != "":
		return e.Reason
	case e.Err != nil:
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// RateLimited tags err as a retryable rate limit signal.
func RateLimited(err error, retryAfter time.Duration) *ProviderError {
	return &ProviderError{Kind: KindRateLimited, RetryAfter: retryAfter, Err: err}
}

// SafetyBlocked reports a provider refusal. It is terminal.
func SafetyBlocked(reason string) *ProviderError {
	if reason == "" {
		reason = "unspecified"
	}
	return &ProviderError{Kind: KindSafetyBlocked, Reason: reason}
}

// Extraction reports a successful call that carried no usable text.
func Extraction(reason string) *ProviderError {
	return &ProviderError{Kind: KindExtraction, Reason: reason}
}

// Other tags an unclassified failure. The message of err is kept unchanged.
func Other(err error) *ProviderError {
	return &ProviderError{Kind: KindOther, Err: err}
}

// KindOf returns the kind of the first ProviderError in err's chain, or
// KindOther for any other non-nil error.
func KindOf(err error) Kind {
	var pe *ProviderError
	if As(err, &pe) {
		return pe.Kind
	}
	return KindOther
}

// UserHint returns an extra line to show next to an error message, or "".
func UserHint(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindRateLimited, KindRateLimitExhausted:
		return "The model API is rate limiting requests. Wait a minute before retrying."
	case KindSafetyBlocked:
		return "The provider refused to answer this request. Try rephrasing the question."
	case KindExtraction:
		return "The model returned an empty response. Retrying usually helps."
	}
	return ""
}
