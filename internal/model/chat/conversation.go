package chat

import "time"

// Conversation is a read-only cached copy of server-side conversation
// metadata; the recommendation API owns and mutates the canonical record.
type Conversation struct {
	ID             string    `json:"id"`
	ExternalUserID string    `json:"externalUserId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	MessageCount   int       `json:"messageCount"`
}
