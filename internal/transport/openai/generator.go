package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/contramate/internal/domain"
	"github.com/kailas-cloud/contramate/internal/domain/answer"
	"github.com/kailas-cloud/contramate/internal/domain/chat"
	"github.com/kailas-cloud/contramate/internal/metrics"
)

// Transient retry defaults.
const (
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 500 * time.Millisecond
	DefaultRetryMaxDelay = 5 * time.Second
)

// GeneratorConfig holds the chat completion settings.
type GeneratorConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration

	// Transient failure retries (429, 5xx, network). Independent of citation retries.
	RetryAttempts uint
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration

	Logger *zap.Logger
}

// Generator produces answers through chat completions in JSON object mode.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	retryOpts   []retry.Option
	logger      *zap.Logger
}

var _ answer.Generator = (*Generator)(nil)

// NewGenerator creates an OpenAI-compatible chat generator.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = DefaultRetryAttempts
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	maxDelay := cfg.RetryMaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultRetryMaxDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Generator{
		client:      newClient(cfg.APIKey, cfg.BaseURL),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		logger:      logger,
	}
	g.retryOpts = []retry.Option{
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.MaxDelay(maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
		retry.OnRetry(func(n uint, err error) {
			g.logger.Warn("Transient generation failure, retrying",
				zap.String("model", g.model), zap.Uint("retry", n+1), zap.Error(err))
		}),
	}
	return g
}

// Generate implements answer.Generator. Transient failures are retried with exponential
// backoff; everything else is returned as domain.GenerationError.
func (g *Generator) Generate(ctx context.Context, req answer.GenerationRequest) (answer.GenerationOutput, error) {
	if len(req.Messages) == 0 {
		return answer.GenerationOutput{}, domain.NewGenerationError(g.model, errors.New("no messages"))
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: g.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	if g.maxTokens > 0 {
		chatReq.MaxTokens = g.maxTokens
	}

	start := time.Now()
	opts := append([]retry.Option{retry.Context(ctx)}, g.retryOpts...)
	resp, err := retry.DoWithData(func() (openai.ChatCompletionResponse, error) {
		return g.client.CreateChatCompletion(ctx, chatReq)
	}, opts...)
	metrics.GenerationRequestDuration.WithLabelValues(g.model).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, "error").Inc()
		return answer.GenerationOutput{}, domain.NewGenerationError(g.model, wrapAPIError("chat completion", err))
	}
	if len(resp.Choices) == 0 {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, "error").Inc()
		return answer.GenerationOutput{}, domain.NewGenerationError(g.model, errors.New("empty completion response"))
	}

	metrics.GenerationRequestsTotal.WithLabelValues(g.model, "success").Inc()
	metrics.GenerationTokensTotal.WithLabelValues(g.model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.GenerationTokensTotal.WithLabelValues(g.model, "completion").Add(float64(resp.Usage.CompletionTokens))

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		g.logger.Warn("Completion truncated by max tokens", zap.String("model", g.model), zap.Int("max_tokens", g.maxTokens))
	}

	return answer.GenerationOutput{
		Raw:              choice.Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels.
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func toOpenAIMessages(msgs []chat.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}
