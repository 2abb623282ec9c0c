package trip

import (
	"time"

	"github.com/google/uuid"
)

// Role of a chat turn author
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is one message of a concierge conversation
type ChatTurn struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTurn creates a turn with a fresh ID
func NewTurn(role Role, content string, at time.Time) ChatTurn {
	return ChatTurn{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		Timestamp: at,
	}
}

// LastTurns returns at most n most recent turns, oldest first
func LastTurns(history []ChatTurn, n int) []ChatTurn {
	if n <= 0 {
		return nil
	}
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
