package types

import "time"

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message belongs to exactly one session and is purged with it.
// ParentID links an assistant message back to the user message that
// triggered it.
type Message struct {
	ID           string      `json:"id"`
	SessionKey   string      `json:"session_key"`
	Role         MessageRole `json:"role"`
	ParentID     string      `json:"parent_id,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	ProviderID   string      `json:"provider_id,omitempty"`
	ModelID      string      `json:"model_id,omitempty"`
	Tokens       TokenUsage  `json:"tokens"`
	Cost         float64     `json:"cost,omitempty"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Error        string      `json:"error,omitempty"`
}

type TokenUsage struct {
	Input      int64 `json:"input,omitempty"`
	Output     int64 `json:"output,omitempty"`
	Reasoning  int64 `json:"reasoning,omitempty"`
	CacheRead  int64 `json:"cache_read,omitempty"`
	CacheWrite int64 `json:"cache_write,omitempty"`
}

// MessageWithParts is the hydration envelope: one message plus its parts
// in part order, as returned by the runtime's message listing.
type MessageWithParts struct {
	Message *Message `json:"message"`
	Parts   []*Part  `json:"parts,omitempty"`
}
