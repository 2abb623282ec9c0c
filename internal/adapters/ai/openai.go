package ai

import (
	"context"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"tripconcierge/internal/domain/reply"
	"tripconcierge/pkg/errors"
)

// OpenAIBackend uses the official OpenAI SDK (chat completions)
type OpenAIBackend struct {
	client openai.Client // NewClient returns Client (not *Client)
	model  string
}

// NewOpenAIBackend creates an OpenAI backend; an empty baseURL uses the public API.
// SDK retries are disabled: the router owns fallback.
func NewOpenAIBackend(apiKey, model, baseURL string, timeout time.Duration) *OpenAIBackend {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIBackend{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (b *OpenAIBackend) Name() string { return BackendOpenAI }

func (b *OpenAIBackend) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if sys := req.SystemPrompt(); sys != "" {
		messages = append(messages, openai.SystemMessage(sys))
	}
	messages = append(messages, openai.UserMessage(req.Message))

	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(b.model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(req.maxTokens())),
	})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrExternal, "openai chat completion: %v", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Wrap(errors.ErrMalformedResponse, "openai returned no choices")
	}

	return &SendResult{
		OK:    true,
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: &reply.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Ping retrieves the configured model
func (b *OpenAIBackend) Ping(ctx context.Context) (*PingResult, error) {
	start := time.Now()
	model, err := b.client.Models.Get(ctx, b.model)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return &PingResult{OK: false, Model: b.model, LatencyMs: latency},
			errors.Wrapf(errors.ErrExternal, "openai health check: %v", err)
	}
	return &PingResult{OK: true, Model: model.ID, LatencyMs: latency}, nil
}
