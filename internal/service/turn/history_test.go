package turn

import (
	"testing"

	"github.com/curiolabs/curio/internal/model/chat"
)

func TestHistoryUpdateSupersedesProvisionalID(t *testing.T) {
	h := NewHistory()
	msg := chat.NewProvisional(chat.RoleAssistant, "draft")
	provisional := msg.ID
	h.Append(msg)

	msg.ID = "m-server"
	msg.Content = "final"
	h.Update(provisional, msg)

	got := h.Messages()
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	if got[0].ID != "m-server" || got[0].Content != "final" {
		t.Fatalf("entry not replaced: %+v", got[0])
	}

	// Updating an unknown id changes nothing.
	h.Update("missing", chat.NewProvisional(chat.RoleUser, "x"))
	if h.Len() != 1 {
		t.Fatalf("unexpected length: %d", h.Len())
	}
}

func TestHistoryMessagesReturnsCopies(t *testing.T) {
	h := NewHistory()
	msg := chat.NewProvisional(chat.RoleAssistant, "hi")
	msg.ToolCalls = []chat.ToolCall{{ToolCallID: "t1", ToolName: "search", Status: chat.ToolCallPending}}
	h.Append(msg)

	snap := h.Messages()
	snap[0].ToolCalls[0].Status = chat.ToolCallError
	snap[0].Content = "mutated"

	fresh := h.Messages()
	if fresh[0].Content != "hi" || fresh[0].ToolCalls[0].Status != chat.ToolCallPending {
		t.Fatal("snapshot mutation leaked into store")
	}
}

func TestHistoryReplaceAllAndReset(t *testing.T) {
	h := NewHistory()
	h.Append(chat.NewProvisional(chat.RoleUser, "old"))

	h.ReplaceAll([]chat.Message{
		{ID: "m1", Role: chat.RoleUser, Content: "a"},
		{ID: "m2", Role: chat.RoleAssistant, Content: "b"},
	})
	if h.Len() != 2 {
		t.Fatalf("expected 2 after replace, got %d", h.Len())
	}

	h.Reset()
	if h.Len() != 0 {
		t.Fatalf("expected empty after reset, got %d", h.Len())
	}
}
