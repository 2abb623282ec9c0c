package ai

import (
	"context"
	"strings"

	"tripconcierge/internal/domain/reply"
	"tripconcierge/internal/domain/trip"
)

// Backend is one interchangeable AI provider
type Backend interface {
	Name() string

	// Send asks the backend to answer one user message. Transport failures,
	// non-2xx statuses and backend-reported failures all return an error.
	Send(ctx context.Context, req SendRequest) (*SendResult, error)

	// Ping checks liveness without generating an answer
	Ping(ctx context.Context) (*PingResult, error)
}

// SendRequest is the payload of one provider call
type SendRequest struct {
	System    string // concierge preamble
	Context   string // budgeted trip context, already bounded
	Message   string
	History   []trip.ChatTurn
	MaxTokens int
}

// SystemPrompt joins the preamble and the context payload
func (r SendRequest) SystemPrompt() string {
	switch {
	case r.Context == "":
		return r.System
	case r.System == "":
		return r.Context
	default:
		return strings.TrimRight(r.System, "\n") + "\n\n" + r.Context
	}
}

func (r SendRequest) maxTokens() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return defaultMaxTokens
}

// SendResult is a backend's raw answer
type SendResult struct {
	OK      bool
	Text    string
	Usage   *reply.TokenUsage
	Sources []reply.Source
	Error   string
	Model   string
}

// PingResult is the outcome of a liveness check
type PingResult struct {
	OK        bool
	Model     string
	LatencyMs int64
}
