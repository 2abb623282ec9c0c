package turnlog

import (
	"context"
	"time"
)

// Turn outcomes
const (
	OutcomeAnswered = "answered"
	OutcomeDegraded = "degraded"
	OutcomeBlocked  = "blocked"
)

// TurnLog is the analytics event emitted once per finished turn
type TurnLog struct {
	EventID          string    `json:"event_id" ch:"event_id"`
	Timestamp        time.Time `json:"timestamp" ch:"timestamp"`
	UserID           string    `json:"user_id" ch:"user_id"`
	ScopeID          string    `json:"scope_id" ch:"scope_id"`
	TripID           string    `json:"trip_id" ch:"trip_id"`
	SessionID        string    `json:"session_id" ch:"session_id"`
	Outcome          string    `json:"outcome" ch:"outcome"`
	Provider         string    `json:"provider" ch:"provider"`
	ContextTier      string    `json:"context_tier" ch:"context_tier"`
	PromptChars      uint32    `json:"prompt_chars" ch:"prompt_chars"`
	PromptTruncated  bool      `json:"prompt_truncated" ch:"prompt_truncated"`
	PromptTokens     uint32    `json:"prompt_tokens" ch:"prompt_tokens"`
	CompletionTokens uint32    `json:"completion_tokens" ch:"completion_tokens"`
	SourcesCount     uint16    `json:"sources_count" ch:"sources_count"`
	QueriesUsed      int32     `json:"queries_used" ch:"queries_used"`
	LatencyMs        uint32    `json:"latency_ms" ch:"latency_ms"`
}

// Sink receives turn logs; implementations may buffer
type Sink interface {
	Record(ctx context.Context, log TurnLog) error
}
