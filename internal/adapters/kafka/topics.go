package kafka

// Topic definitions for Kafka event streaming
const (
	// TopicConciergeTurns carries one TurnLog event per completed concierge turn
	TopicConciergeTurns = "concierge.turns"
)
