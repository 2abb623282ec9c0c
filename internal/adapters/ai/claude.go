package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"tripconcierge/internal/domain/reply"
	"tripconcierge/pkg/errors"
)

const (
	claudeBaseURL    = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// ClaudeBackend talks to the Anthropic Messages API
type ClaudeBackend struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewClaudeBackend creates a Claude backend; an empty baseURL uses the public API
func NewClaudeBackend(apiKey, model, baseURL string, timeout time.Duration) *ClaudeBackend {
	if baseURL == "" {
		baseURL = claudeBaseURL
	}
	return &ClaudeBackend{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (b *ClaudeBackend) Name() string { return BackendClaude }

// Send posts one message with the trip context as system prompt
func (b *ClaudeBackend) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if b.apiKey == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "claude API key not configured")
	}

	body, err := json.Marshal(claudeRequest{
		Model:     b.model,
		System:    req.SystemPrompt(),
		MaxTokens: req.maxTokens(),
		Messages:  []claudeMessage{{Role: "user", Content: req.Message}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal claude request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create HTTP request")
	}
	b.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "send claude request")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read claude response")
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Type != "" {
			return nil, errors.Wrapf(errors.ErrExternal, "claude API error (%d): %s - %s",
				resp.StatusCode, errResp.Error.Type, errResp.Error.Message)
		}
		return nil, errors.Wrapf(errors.ErrExternal, "claude API error (%d): %s",
			resp.StatusCode, string(respBody))
	}

	var claudeResp claudeResponse
	if err := json.Unmarshal(respBody, &claudeResp); err != nil {
		return nil, errors.Wrapf(errors.ErrMalformedResponse, "unmarshal claude response: %v", err)
	}

	var parts []string
	for _, c := range claudeResp.Content {
		if c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}

	return &SendResult{
		OK:    true,
		Text:  strings.Join(parts, "\n"),
		Model: claudeResp.Model,
		Usage: &reply.TokenUsage{
			PromptTokens:     claudeResp.Usage.InputTokens,
			CompletionTokens: claudeResp.Usage.OutputTokens,
			TotalTokens:      claudeResp.Usage.InputTokens + claudeResp.Usage.OutputTokens,
		},
	}, nil
}

// Ping fetches the configured model's metadata
func (b *ClaudeBackend) Ping(ctx context.Context) (*PingResult, error) {
	if b.apiKey == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "claude API key not configured")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/v1/models/"+b.model, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create HTTP request")
	}
	b.setHeaders(httpReq)

	start := time.Now()
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "ping claude")
	}
	defer func() { _ = resp.Body.Close() }()
	latency := time.Since(start).Milliseconds()

	if resp.StatusCode != http.StatusOK {
		return &PingResult{OK: false, Model: b.model, LatencyMs: latency},
			errors.Wrapf(errors.ErrExternal, "claude health check returned %d", resp.StatusCode)
	}
	return &PingResult{OK: true, Model: b.model, LatencyMs: latency}, nil
}

func (b *ClaudeBackend) setHeaders(r *http.Request) {
	r.Header.Set("x-api-key", b.apiKey)
	r.Header.Set("anthropic-version", anthropicVersion)
}

// Claude API types
type claudeRequest struct {
	Model     string          `json:"model"`
	Messages  []claudeMessage `json:"messages"`
	System    string          `json:"system,omitempty"`
	MaxTokens int             `json:"max_tokens"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type claudeResponse struct {
	ID         string          `json:"id"`
	Content    []claudeContent `json:"content"`
	Model      string          `json:"model"`
	StopReason string          `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
