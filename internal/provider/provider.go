// Package provider implements text-completion clients for the
// troubleshooting engine.
//
// The engine treats the provider as an opaque, unreliable capability: every
// call carries a timeout, transient failures are retried with backoff, and
// responses are returned as raw text with basic telemetry. Parsing and
// validation of the content is the caller's job.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/diagnosd/internal/config"
)

// Response is the result of a completion call.
type Response struct {
	// Content is the raw text returned by the model.
	Content string

	// Model is the model that produced the response.
	Model string

	// Latency is the wall-clock duration of the call, retries included.
	Latency time.Duration

	// OutputTokens is the provider-reported completion token count,
	// zero when the provider does not report usage.
	OutputTokens int
}

// Completer generates text completions.
type Completer interface {
	Generate(ctx context.Context, prompt string) (*Response, error)
}

// New builds a completion client from configuration.
func New(cfg config.ProviderConfig) (Completer, error) {
	switch cfg.Kind {
	case "anthropic":
		return NewAnthropic(cfg)
	case "openai":
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown provider kind: %q", cfg.Kind)
	}
}

// retryableError marks errors worth retrying (rate limits, 5xx, transport).
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryableError checks if an error should be retried.
func isRetryableError(err error) bool {
	for e := err; e != nil; {
		if _, ok := e.(*retryableError); ok {
			return true
		}
		unwrapper, ok := e.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		e = unwrapper.Unwrap()
	}
	return false
}
