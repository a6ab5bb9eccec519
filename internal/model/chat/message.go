package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/curiolabs/curio/internal/model/artifact"
)

// Role identifies which side of a turn a message belongs to.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolCallStatus tracks the lifecycle of one tool invocation.
type ToolCallStatus string

const (
	ToolCallPending ToolCallStatus = "pending"
	ToolCallSuccess ToolCallStatus = "success"
	ToolCallError   ToolCallStatus = "error"
)

// ToolCall records a tool invocation surfaced by the assistant. Status moves
// pending→success or pending→error, never back.
type ToolCall struct {
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName"`
	Status     ToolCallStatus `json:"status"`
}

// Message is one turn-side entry in a conversation. ID starts as a
// client-generated provisional id and is replaced by the server id when the
// turn completes; until then it must not be treated as durable.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId,omitempty"`
	Role           Role          `json:"role"`
	Content        string        `json:"content"`
	Artifacts      *artifact.Set `json:"artifacts,omitempty"`
	ToolCalls      []ToolCall    `json:"toolCalls,omitempty"`
	IsStreaming    bool          `json:"isStreaming"`

	AgentUsed       string    `json:"agentUsed,omitempty"`
	ModelUsed       string    `json:"modelUsed,omitempty"`
	TokensInput     int       `json:"tokensInput,omitempty"`
	TokensOutput    int       `json:"tokensOutput,omitempty"`
	ExecutionTimeMs int64     `json:"executionTimeMs,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// NewProvisional builds a message with a client-local provisional id.
func NewProvisional(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// Clone returns a copy sharing no mutable state with the receiver, so a
// snapshot published to observers cannot be changed by later folds.
func (m Message) Clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	if m.Artifacts != nil {
		set := m.Artifacts.Clone()
		out.Artifacts = &set
	}
	return out
}
