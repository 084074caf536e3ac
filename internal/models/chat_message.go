package models

import "time"

// Sender values stored on chat messages.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// ChatMessage is one turn of stored history. AgentID holds the agent *name*,
// a denormalized join key kept for compatibility with existing rows and the
// most-used-agent report.
type ChatMessage struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	AgentID   string    `json:"agent_id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
