package turn

import (
	"encoding/json"

	"github.com/curiolabs/curio/internal/model/artifact"
	"github.com/curiolabs/curio/internal/model/chat"
	"github.com/curiolabs/curio/internal/stream"
)

type assemblerState int

const (
	stateAccumulating assemblerState = iota
	stateFinalized
	stateAborted
)

// Assembler folds decoded stream events into a single evolving assistant
// message. It starts accumulating and reaches exactly one terminal state:
// finalized (done, error, or stream end) or aborted (user cancellation).
// Events arriving after a terminal state are ignored.
type Assembler struct {
	msg       *chat.Message
	state     assemblerState
	completed bool
}

// NewAssembler binds an assembler to the placeholder message it mutates.
func NewAssembler(msg *chat.Message) *Assembler {
	return &Assembler{msg: msg}
}

// Fold applies one event in arrival order. A recognized event with a
// malformed payload is dropped, matching the decoder's tolerance for
// malformed lines. The returned error is non-nil only for an explicit
// protocol error event, as a *stream.ServerError.
func (a *Assembler) Fold(ev stream.Event) error {
	if a.state != stateAccumulating {
		return nil
	}

	switch ev.Type {
	case stream.TypeTextDelta:
		var delta stream.TextDelta
		if err := json.Unmarshal(ev.Data, &delta); err != nil {
			return nil
		}
		a.msg.Content += delta.Delta

	case stream.TypeToolCall:
		var call stream.ToolCallStart
		if err := json.Unmarshal(ev.Data, &call); err != nil {
			return nil
		}
		a.upsertToolCall(call)

	case stream.TypeToolResult:
		var result stream.ToolResult
		if err := json.Unmarshal(ev.Data, &result); err != nil {
			return nil
		}
		a.resolveToolCall(result)

	case stream.TypeArtifacts:
		var set artifact.Set
		if err := json.Unmarshal(ev.Data, &set); err != nil {
			return nil
		}
		// Wholesale replacement, never a field-by-field merge.
		a.msg.Artifacts = &set

	case stream.TypeDone:
		var done stream.Done
		if err := json.Unmarshal(ev.Data, &done); err != nil {
			return nil
		}
		a.finalize(done)

	case stream.TypeError:
		var payload stream.ErrorPayload
		if err := json.Unmarshal(ev.Data, &payload); err != nil {
			return nil
		}
		a.msg.IsStreaming = false
		a.state = stateFinalized
		return &stream.ServerError{Code: payload.Code, Message: payload.Message}

	default:
		// Unknown event types are skipped for forward compatibility.
	}
	return nil
}

// upsertToolCall appends a pending tool call, or overwrites in place when a
// retried event reuses an id. The list never shrinks and never holds
// duplicate ids.
func (a *Assembler) upsertToolCall(call stream.ToolCallStart) {
	for i := range a.msg.ToolCalls {
		if a.msg.ToolCalls[i].ToolCallID == call.ToolCallID {
			a.msg.ToolCalls[i] = chat.ToolCall{
				ToolCallID: call.ToolCallID,
				ToolName:   call.ToolName,
				Status:     chat.ToolCallPending,
			}
			return
		}
	}
	a.msg.ToolCalls = append(a.msg.ToolCalls, chat.ToolCall{
		ToolCallID: call.ToolCallID,
		ToolName:   call.ToolName,
		Status:     chat.ToolCallPending,
	})
}

// resolveToolCall flips a matching call out of pending. A result for an
// unknown id is a deliberate no-op.
func (a *Assembler) resolveToolCall(result stream.ToolResult) {
	for i := range a.msg.ToolCalls {
		if a.msg.ToolCalls[i].ToolCallID != result.ToolCallID {
			continue
		}
		if result.Success {
			a.msg.ToolCalls[i].Status = chat.ToolCallSuccess
		} else {
			a.msg.ToolCalls[i].Status = chat.ToolCallError
		}
		return
	}
}

// finalize captures completion metadata from the done event. This is the
// only path that assigns the durable server-side ids.
func (a *Assembler) finalize(done stream.Done) {
	if done.ConversationID != "" {
		a.msg.ConversationID = done.ConversationID
	}
	if done.MessageID != "" {
		a.msg.ID = done.MessageID
	}
	a.msg.TokensInput = done.TotalTokens.Input
	a.msg.TokensOutput = done.TotalTokens.Output
	a.msg.ExecutionTimeMs = done.ExecutionTimeMs
	a.msg.AgentUsed = done.AgentUsed
	a.msg.ModelUsed = done.ModelUsed
	a.msg.IsStreaming = false
	a.state = stateFinalized
	a.completed = true
}

// Finish handles a stream that ended without a terminal event: accumulated
// content and artifacts are kept, and the message must not stay streaming.
func (a *Assembler) Finish() {
	if a.state != stateAccumulating {
		return
	}
	a.msg.IsStreaming = false
	a.state = stateFinalized
}

// Abort marks the turn as user-cancelled, preserving accumulated content
// with a trailing stop marker.
func (a *Assembler) Abort() {
	if a.state != stateAccumulating {
		return
	}
	a.msg.Content += " [stopped]"
	a.msg.IsStreaming = false
	a.state = stateAborted
}

// Terminal reports whether the assembler reached a terminal state.
func (a *Assembler) Terminal() bool {
	return a.state != stateAccumulating
}

// Completed reports whether termination came from a done event, i.e. the
// server committed the turn and supplied durable ids.
func (a *Assembler) Completed() bool {
	return a.completed
}
