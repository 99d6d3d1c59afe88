package models

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status records the outcome of the operation that produced a message.
// A failed generation is tagged here instead of being encoded in Content,
// so callers can distinguish error reporting from conversation content.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

type Message struct {
	ID           string `json:"id"`
	Conversation string `json:"conversation,omitempty"`
	// ParentID references another message in the same conversation; empty
	// for top-level messages.
	ParentID string `json:"parent_id,omitempty"`
	Role     Role   `json:"role"`
	Content  string `json:"content"`
	// TS is the creation timestamp (ns)
	TS int64 `json:"ts"`
	// Streaming marks a message whose content is still being accumulated.
	Streaming bool   `json:"streaming,omitempty"`
	Status    Status `json:"status,omitempty"`
	// FailReason carries the provider error for failed generations.
	FailReason string `json:"fail_reason,omitempty"`
	// Artifacts are derived from Content; recomputed wholesale on finalize.
	Artifacts []Artifact `json:"artifacts,omitempty"`
	// Replies holds child messages in arrival order. Every reply's ParentID
	// equals this message's ID.
	Replies []*Message `json:"replies,omitempty"`
}
