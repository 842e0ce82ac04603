package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/diagnosd/internal/config"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI is a Completer backed by an OpenAI-compatible API via langchaingo.
// BaseURL may point at any compatible endpoint (Azure, local gateways).
type OpenAI struct {
	llm         llms.Model
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	limiter     *rate.Limiter
}

// NewOpenAI creates an OpenAI-backed completion client.
func NewOpenAI(cfg config.ProviderConfig) (*OpenAI, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("openai API key required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey.Value()),
		openai.WithModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}

	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = defaultRateLimit
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	return &OpenAI{
		llm:         llm,
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
		limiter:     rate.NewLimiter(rate.Limit(rateLimit), burst),
	}, nil
}

// Generate sends the prompt through langchaingo and returns the raw text.
func (o *OpenAI) Generate(ctx context.Context, prompt string) (*Response, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()

	resp, err := o.llm.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(schema.ChatMessageTypeHuman, prompt),
		},
		llms.WithMaxTokens(o.maxTokens),
		llms.WithTemperature(o.temperature),
	)
	if err != nil {
		return nil, fmt.Errorf("openai generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from API")
	}

	choice := resp.Choices[0]

	outputTokens := 0
	if choice.GenerationInfo != nil {
		// langchaingo v0.1.5 decodes chat usage counts as float64.
		switch n := choice.GenerationInfo["CompletionTokens"].(type) {
		case int:
			outputTokens = n
		case float64:
			outputTokens = int(n)
		}
	}

	return &Response{
		Content:      choice.Content,
		Model:        o.model,
		Latency:      time.Since(start),
		OutputTokens: outputTokens,
	}, nil
}
