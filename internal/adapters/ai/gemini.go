package ai

import (
	"context"
	"net/http"
	"time"

	"google.golang.org/genai"

	"tripconcierge/internal/domain/reply"
	"tripconcierge/pkg/errors"
)

// GeminiBackend uses the Google GenAI SDK against the Gemini API
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend creates a Gemini backend; an empty baseURL uses the public API
func NewGeminiBackend(ctx context.Context, apiKey, model, baseURL string, timeout time.Duration) (*GeminiBackend, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create genai client")
	}
	return &GeminiBackend{client: client, model: model}, nil
}

func (b *GeminiBackend) Name() string { return BackendGemini }

func (b *GeminiBackend) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.maxTokens()),
	}
	if sys := req.SystemPrompt(); sys != "" {
		cfg.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model,
		[]*genai.Content{genai.NewContentFromText(req.Message, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrExternal, "gemini generate content: %v", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, errors.Wrap(errors.ErrMalformedResponse, "gemini returned no candidates")
	}

	result := &SendResult{
		OK:      true,
		Text:    resp.Text(),
		Model:   b.model,
		Sources: groundingSources(resp.Candidates[0]),
	}
	if resp.ModelVersion != "" {
		result.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		result.Usage = &reply.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return result, nil
}

// Ping retrieves the configured model
func (b *GeminiBackend) Ping(ctx context.Context) (*PingResult, error) {
	start := time.Now()
	_, err := b.client.Models.Get(ctx, b.model, nil)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return &PingResult{OK: false, Model: b.model, LatencyMs: latency},
			errors.Wrapf(errors.ErrExternal, "gemini health check: %v", err)
	}
	return &PingResult{OK: true, Model: b.model, LatencyMs: latency}, nil
}

// groundingSources extracts web citations when search grounding was used
func groundingSources(c *genai.Candidate) []reply.Source {
	if c == nil || c.GroundingMetadata == nil {
		return nil
	}
	var out []reply.Source
	for _, chunk := range c.GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		out = append(out, reply.Source{Title: chunk.Web.Title, URL: chunk.Web.URI})
	}
	return out
}
