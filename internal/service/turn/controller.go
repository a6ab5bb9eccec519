package turn

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/curiolabs/curio/internal/model/chat"
	"github.com/curiolabs/curio/internal/service/recs"
	"github.com/curiolabs/curio/internal/stream"
)

// ErrTurnInFlight is returned by operations that would mutate history while
// a stream is active.
var ErrTurnInFlight = errors.New("turn: a turn is already in flight")

// API is the slice of the recommendation client the controller needs.
type API interface {
	StreamChat(ctx context.Context, req recs.ChatRequest) (*recs.ChatStream, error)
	GetConversation(ctx context.Context, id string) (*recs.ConversationDetail, error)
}

// Snapshot is the read surface published to the presentation layer.
type Snapshot struct {
	Messages       []chat.Message
	IsStreaming    bool
	ConversationID string
	Err            string
}

// Controller orchestrates one user-message round trip at a time: optimistic
// placeholders, the decode→fold loop, cancellation, and terminal
// bookkeeping. At most one stream is active per controller; the re-entrancy
// guard in SendMessage is the sole concurrency control over the placeholder
// message.
type Controller struct {
	api            API
	externalUserID string
	history        *History

	mu             sync.Mutex
	streaming      bool
	cancel         context.CancelFunc
	conversationID string
	lastErr        string
	onUpdate       func(Snapshot)
}

// NewController builds a controller around an explicitly constructed client.
func NewController(api API, externalUserID string) *Controller {
	return &Controller{
		api:            api,
		externalUserID: externalUserID,
		history:        NewHistory(),
	}
}

// SetOnUpdate registers the observer notified synchronously after every
// fold and on every terminal transition. Set it before the first send.
func (c *Controller) SetOnUpdate(fn func(Snapshot)) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// Snapshot returns the current published state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Messages:       c.history.Messages(),
		IsStreaming:    c.streaming,
		ConversationID: c.conversationID,
		Err:            c.lastErr,
	}
}

// publish pushes the current state to the observer, synchronously with the
// fold that produced it.
func (c *Controller) publish() {
	c.mu.Lock()
	fn := c.onUpdate
	snap := c.snapshotLocked()
	c.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// SendMessage runs one full turn. Empty-after-trim queries and calls made
// while a turn is streaming are silent no-ops. The returned error mirrors
// what the snapshot's Err field reports; user cancellation is not an error.
func (c *Controller) SendMessage(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	// Re-entrancy guard: claim the in-flight slot before any suspension
	// point so two sends can never interleave folds.
	c.mu.Lock()
	if c.streaming {
		c.mu.Unlock()
		return nil
	}
	turnCtx, cancel := context.WithCancel(ctx)
	c.streaming = true
	c.cancel = cancel
	c.lastErr = ""
	convID := c.conversationID
	c.mu.Unlock()

	// Optimistic entries land before any network activity.
	userMsg := chat.NewProvisional(chat.RoleUser, query)
	userMsg.ConversationID = convID
	placeholder := chat.NewProvisional(chat.RoleAssistant, "")
	placeholder.ConversationID = convID
	placeholder.IsStreaming = true
	c.history.Append(userMsg, placeholder)
	c.publish()

	err := c.runTurn(turnCtx, query, convID, placeholder)

	// Exactly one terminal cleanup on every path, so the next send can
	// proceed.
	c.mu.Lock()
	c.streaming = false
	c.cancel = nil
	cancel()
	c.mu.Unlock()
	c.publish()
	return err
}

// runTurn drives the decoder→assembler pipeline for one placeholder
// message. All failures are folded into message content and the error flag;
// nothing escapes as a panic or unhandled propagation.
func (c *Controller) runTurn(ctx context.Context, query, convID string, msg chat.Message) error {
	req := recs.ChatRequest{
		Query:          query,
		ConversationID: convID,
		ExternalUserID: c.externalUserID,
	}

	cs, err := c.api.StreamChat(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			c.abortMessage(&msg)
			return nil
		}
		c.failMessage(&msg, err.Error())
		return err
	}

	dec := stream.NewDecoder(cs.Body)
	defer dec.Close()

	asm := NewAssembler(&msg)
	provisionalID := msg.ID
	currentID := msg.ID

	for {
		ev, err := dec.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Connection closed without a terminal event: keep
				// what accumulated, never hang in streaming state.
				asm.Finish()
				c.history.Update(currentID, msg.Clone())
				break
			}
			if errors.Is(err, context.Canceled) {
				asm.Abort()
				c.history.Update(currentID, msg.Clone())
				c.publish()
				return nil
			}
			c.failMessage(&msg, err.Error())
			return err
		}

		foldErr := asm.Fold(ev)
		if foldErr != nil {
			var serverErr *stream.ServerError
			if errors.As(foldErr, &serverErr) {
				log.Printf("[turn] server error event: code=%s %s", serverErr.Code, serverErr.Message)
			}
			c.failMessage(&msg, foldErr.Error())
			return foldErr
		}

		c.history.Update(currentID, msg.Clone())
		currentID = msg.ID
		c.publish()

		if asm.Terminal() {
			break
		}
	}

	if asm.Completed() {
		// Header ids fill any gap the done event left.
		if msg.ConversationID == "" && cs.ConversationID != "" {
			msg.ConversationID = cs.ConversationID
		}
		if msg.ID == provisionalID && cs.MessageID != "" {
			msg.ID = cs.MessageID
		}
		c.history.Update(currentID, msg.Clone())

		c.mu.Lock()
		if c.conversationID == "" && msg.ConversationID != "" {
			c.conversationID = msg.ConversationID
		}
		c.mu.Unlock()
	}
	return nil
}

// failMessage converts any terminal failure into the inline display form
// plus the banner flag. Failures always fire before a done event, so the
// message still carries its provisional id.
func (c *Controller) failMessage(msg *chat.Message, errMsg string) {
	msg.Content = "Error: " + errMsg
	msg.IsStreaming = false
	c.history.Update(msg.ID, msg.Clone())
	c.mu.Lock()
	c.lastErr = errMsg
	c.mu.Unlock()
}

// abortMessage applies the cosmetic stop marker for a user cancellation
// that fired before or between reads.
func (c *Controller) abortMessage(msg *chat.Message) {
	msg.Content += " [stopped]"
	msg.IsStreaming = false
	c.history.Update(msg.ID, msg.Clone())
}

// StopStreaming cancels the in-flight turn, if any. Idempotent; never an
// error from the caller's point of view.
func (c *Controller) StopStreaming() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// LoadConversation replaces the in-memory history with the server's record
// of the conversation. Loaded history is never in progress, so every
// message arrives with streaming forced off. On failure the existing
// history is left untouched.
func (c *Controller) LoadConversation(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.streaming {
		c.mu.Unlock()
		return ErrTurnInFlight
	}
	c.mu.Unlock()

	detail, err := c.api.GetConversation(ctx, id)
	if err != nil {
		c.mu.Lock()
		c.lastErr = err.Error()
		c.mu.Unlock()
		c.publish()
		return err
	}

	msgs := make([]chat.Message, len(detail.Messages))
	for i, m := range detail.Messages {
		m.IsStreaming = false
		if m.ConversationID == "" {
			m.ConversationID = detail.Conversation.ID
		}
		msgs[i] = m
	}
	c.history.ReplaceAll(msgs)

	c.mu.Lock()
	c.conversationID = detail.Conversation.ID
	c.lastErr = ""
	c.mu.Unlock()
	c.publish()
	return nil
}

// ClearChat resets history and error state. It does not cancel an in-flight
// stream; callers that want that call StopStreaming first.
func (c *Controller) ClearChat() {
	c.history.Reset()
	c.mu.Lock()
	c.conversationID = ""
	c.lastErr = ""
	c.mu.Unlock()
	c.publish()
}
