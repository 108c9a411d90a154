package grader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig defines configuration options for the OpenAI-backed provider.
// Credentials come from configuration, never from package state.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *slog.Logger
}

// OpenAIProvider grades subjective answers using OpenAI chat completions in
// JSON mode. One batched request per grading run keeps latency and cost
// bounded.
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewOpenAIProvider builds a provider from the given configuration.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  cfg.Logger.With("component", "openai_provider"),
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return "openai/" + p.model
}

// GradeBatch sends one chat completion request for the whole batch and
// decodes the response. The call is bounded by the configured request
// timeout, independent of any retry policy applied by the caller.
func (p *OpenAIProvider) GradeBatch(ctx context.Context, items []BatchItem) (*BatchResult, error) {
	payload, err := EncodeBatch(items)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: buildGradingPrompt(payload)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		p.logger.Error("Chat completion failed",
			"model", p.model,
			"items", len(items),
			"duration", time.Since(start).String(),
			"error", err)
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrResponseInvalid)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	result, err := DecodeBatch(content, items)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Batch graded",
		"model", p.model,
		"items", len(items),
		"duration", time.Since(start).String(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return result, nil
}

// classifyOpenAIError maps transport-level failures onto the provider error
// taxonomy so the orchestrator can decide what is retryable.
func classifyOpenAIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500:
			return fmt.Errorf("%w: openai status %d: %v", ErrUnavailable, apiErr.HTTPStatusCode, err)
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return fmt.Errorf("%w: openai auth failure: %v", ErrUnavailable, err)
		default:
			return fmt.Errorf("%w: openai status %d: %v", ErrResponseInvalid, apiErr.HTTPStatusCode, err)
		}
	}

	// Anything else is a transport problem (DNS, connection reset, ...).
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
