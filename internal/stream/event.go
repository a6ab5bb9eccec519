package stream

import "encoding/json"

// Event types emitted by the recommendation API chat stream. Unlisted types
// may appear as the protocol evolves; consumers ignore what they don't know.
const (
	TypeTextDelta  = "text-delta"
	TypeToolCall   = "tool-call"
	TypeToolResult = "tool-result"
	TypeArtifacts  = "artifacts"
	TypeDone       = "done"
	TypeError      = "error"
)

// Event is the decoded wire envelope of one SSE line: `data: {type, data}`.
// Data stays raw until the consumer picks the payload type.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TextDelta is the payload of a text-delta event.
type TextDelta struct {
	Delta string `json:"delta"`
}

// ToolCallStart is the payload of a tool-call event.
type ToolCallStart struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
}

// ToolResult is the payload of a tool-result event.
type ToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Success    bool   `json:"success"`
}

// Done is the payload of the terminal done event. It carries the durable
// server-side ids and the completion metadata for the turn.
type Done struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	TotalTokens    struct {
		Input  int `json:"input"`
		Output int `json:"output"`
	} `json:"totalTokens"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
	AgentUsed       string `json:"agentUsed"`
	ModelUsed       string `json:"modelUsed"`
}

// ErrorPayload is the payload of an error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServerError is the recoverable failure raised when the stream delivers an
// explicit error event.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}
