package chatmodel

import (
	"time"

	"github.com/effective-security/x/values"
	"github.com/google/uuid"
)

// Conversation binds a transcript to its metadata. ProviderID names the
// tool provider whose catalog is offered to the model for this
// conversation; empty means no tools are attached.
type Conversation struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	ProviderID string      `json:"provider_id,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Transcript *Transcript `json:"-"`
}

// NewConversation creates a conversation with an empty transcript.
func NewConversation(title string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:         NewConversationID(),
		Title:      values.StringsCoalesce(title, "New Chat"),
		CreatedAt:  now,
		UpdatedAt:  now,
		Transcript: NewTranscript(),
	}
}

// WithProvider attaches a tool provider to the conversation.
func (c *Conversation) WithProvider(providerID string) *Conversation {
	c.ProviderID = providerID
	return c
}

// NewConversationID generates a new conversation ID.
func NewConversationID() string {
	return uuid.NewString()
}
