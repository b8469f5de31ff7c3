package domain

import (
	"encoding/json"
	"time"
)

// Conversation is the aggregate root: metadata plus the full ordered message log.
type Conversation struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

// LastMessage returns the most recent message, if any.
func (c *Conversation) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// MarshalJSON always renders messages as an array.
func (c Conversation) MarshalJSON() ([]byte, error) {
	type alias Conversation
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	return json.Marshal(alias(c))
}
