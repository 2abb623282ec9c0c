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
	"tripconcierge/internal/domain/trip"
	"tripconcierge/pkg/errors"
)

// EdgeBackend calls a JSON-over-HTTP concierge function:
//
//	POST {base}/send   -> {ok, text, usage, sources, error, model}
//	GET  {base}/health -> {ok, model}
type EdgeBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewEdgeBackend(baseURL, apiKey string, timeout time.Duration) *EdgeBackend {
	return &EdgeBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (b *EdgeBackend) Name() string { return BackendEdge }

func (b *EdgeBackend) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	payload := edgeSendRequest{
		Message:   req.Message,
		Context:   req.Context,
		System:    req.System,
		MaxTokens: req.maxTokens(),
	}
	for _, t := range req.History {
		payload.History = append(payload.History, edgeTurn{Role: t.Role, Content: t.Content, Timestamp: t.Timestamp})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal edge request")
	}

	var out edgeSendResponse
	if err := b.do(ctx, http.MethodPost, "/send", body, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, errors.Wrapf(errors.ErrExternal, "edge backend error: %s", out.Error)
	}

	return &SendResult{
		OK:      true,
		Text:    out.Text,
		Usage:   out.Usage,
		Sources: out.Sources,
		Model:   out.Model,
	}, nil
}

func (b *EdgeBackend) Ping(ctx context.Context) (*PingResult, error) {
	start := time.Now()
	var out edgeHealthResponse
	err := b.do(ctx, http.MethodGet, "/health", nil, &out)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return &PingResult{OK: false, LatencyMs: latency}, err
	}
	if !out.OK {
		return &PingResult{OK: false, Model: out.Model, LatencyMs: latency},
			errors.Wrap(errors.ErrUnavailable, "edge backend reports unhealthy")
	}
	return &PingResult{OK: true, Model: out.Model, LatencyMs: latency}, nil
}

func (b *EdgeBackend) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "create HTTP request")
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "edge %s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read edge response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Wrapf(errors.ErrExternal, "edge %s returned %d: %s", path, resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.Wrapf(errors.ErrMalformedResponse, "decode edge %s response: %v", path, err)
	}
	return nil
}

type edgeTurn struct {
	Role      trip.Role `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type edgeSendRequest struct {
	Message   string     `json:"message"`
	Context   string     `json:"context"`
	System    string     `json:"system,omitempty"`
	History   []edgeTurn `json:"history"`
	MaxTokens int        `json:"max_tokens"`
}

type edgeSendResponse struct {
	OK      bool              `json:"ok"`
	Text    string            `json:"text"`
	Usage   *reply.TokenUsage `json:"usage,omitempty"`
	Sources []reply.Source    `json:"sources,omitempty"`
	Error   string            `json:"error,omitempty"`
	Model   string            `json:"model,omitempty"`
}

type edgeHealthResponse struct {
	OK    bool   `json:"ok"`
	Model string `json:"model,omitempty"`
}
