package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripconcierge/internal/domain/trip"
	"tripconcierge/pkg/errors"
)

func sampleRequest() SendRequest {
	return SendRequest{
		System:  "You are the trip concierge.",
		Context: "## Trip\nLocation: Lisbon",
		Message: "Where should we eat tonight?",
		History: []trip.ChatTurn{trip.NewTurn(trip.RoleUser, "hi", time.Now())},
	}
}

func TestSendRequest_SystemPrompt(t *testing.T) {
	req := sampleRequest()
	assert.Equal(t, "You are the trip concierge.\n\n## Trip\nLocation: Lisbon", req.SystemPrompt())

	req.Context = ""
	assert.Equal(t, "You are the trip concierge.", req.SystemPrompt())

	req = SendRequest{Context: "ctx"}
	assert.Equal(t, "ctx", req.SystemPrompt())
}

func TestClaudeBackend_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req claudeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claude-test", req.Model)
		assert.Contains(t, req.System, "Location: Lisbon")
		assert.Equal(t, defaultMaxTokens, req.MaxTokens)
		assert.Len(t, req.Messages, 1)
		assert.Equal(t, "Where should we eat tonight?", req.Messages[0].Content)

		_, _ = w.Write([]byte(`{"id":"msg_1","model":"claude-test","content":[{"type":"text","text":"Try Tasca do Chico."}],"usage":{"input_tokens":120,"output_tokens":8}}`))
	}))
	defer srv.Close()

	b := NewClaudeBackend("test-key", "claude-test", srv.URL, time.Second)
	res, err := b.Send(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.True(t, res.OK)
	assert.Equal(t, "Try Tasca do Chico.", res.Text)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 128, res.Usage.TotalTokens)
}

func TestClaudeBackend_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer srv.Close()

	b := NewClaudeBackend("test-key", "claude-test", srv.URL, time.Second)
	_, err := b.Send(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExternal))
	assert.Contains(t, err.Error(), "overloaded_error")
}

func TestClaudeBackend_MissingKey(t *testing.T) {
	b := NewClaudeBackend("", "claude-test", "http://127.0.0.1:1", time.Second)
	_, err := b.Send(context.Background(), sampleRequest())
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestClaudeBackend_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/models/claude-test" {
			_, _ = w.Write([]byte(`{"id":"claude-test","type":"model"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	res, err := NewClaudeBackend("test-key", "claude-test", srv.URL, time.Second).Ping(context.Background())
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "claude-test", res.Model)

	res, err = NewClaudeBackend("test-key", "missing", srv.URL, time.Second).Ping(context.Background())
	require.Error(t, err)
	assert.False(t, res.OK)
}

func TestOpenAIBackend_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-test", body.Model)
		assert.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, "user", body.Messages[1].Role)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","created":1700000000,"model":"gpt-test",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Go to Time Out Market."}}],
			"usage":{"prompt_tokens":90,"completion_tokens":6,"total_tokens":96}}`))
	}))
	defer srv.Close()

	b := NewOpenAIBackend("test-key", "gpt-test", srv.URL, time.Second)
	res, err := b.Send(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, "Go to Time Out Market.", res.Text)
	assert.Equal(t, 96, res.Usage.TotalTokens)
	assert.Equal(t, "gpt-test", res.Model)
}

func TestOpenAIBackend_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIBackend("test-key", "gpt-test", srv.URL, time.Second).Send(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExternal))
}

func TestGeminiBackend_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-test:generateContent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Visit LX Factory."}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":40,"candidatesTokenCount":4,"totalTokenCount":44}}`))
	}))
	defer srv.Close()

	b, err := NewGeminiBackend(context.Background(), "test-key", "gemini-test", srv.URL, time.Second)
	require.NoError(t, err)

	res, err := b.Send(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Visit LX Factory.", res.Text)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 44, res.Usage.TotalTokens)
}

func TestEdgeBackend_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send", r.URL.Path)
		assert.Equal(t, "Bearer edge-key", r.Header.Get("Authorization"))

		var req edgeSendRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Where should we eat tonight?", req.Message)
		assert.Equal(t, "## Trip\nLocation: Lisbon", req.Context)
		assert.Len(t, req.History, 1)
		assert.Equal(t, trip.RoleUser, req.History[0].Role)

		_, _ = w.Write([]byte(`{"ok":true,"text":"Try Cervejaria Ramiro [1].","sources":[{"title":"Ramiro","url":"https://ramiro.pt"}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`))
	}))
	defer srv.Close()

	res, err := NewEdgeBackend(srv.URL, "edge-key", time.Second).Send(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.True(t, res.OK)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "https://ramiro.pt", res.Sources[0].URL)
	assert.Equal(t, 3, res.Usage.TotalTokens)
}

func TestEdgeBackend_ReportedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"model overloaded"}`))
	}))
	defer srv.Close()

	_, err := NewEdgeBackend(srv.URL, "", time.Second).Send(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExternal))
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestEdgeBackend_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	_, err := NewEdgeBackend(srv.URL, "", time.Second).Send(context.Background(), sampleRequest())
	assert.True(t, errors.Is(err, errors.ErrMalformedResponse))
}

func TestEdgeBackend_Ping(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_ = json.NewEncoder(w).Encode(edgeHealthResponse{OK: healthy.Load(), Model: "edge-1"})
	}))
	defer srv.Close()

	b := NewEdgeBackend(srv.URL, "", time.Second)
	res, err := b.Ping(context.Background())
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "edge-1", res.Model)

	healthy.Store(false)
	res, err = b.Ping(context.Background())
	require.Error(t, err)
	assert.False(t, res.OK)
}

func TestEdgeBackend_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewEdgeBackend(srv.URL, "", time.Second).Send(ctx, sampleRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
