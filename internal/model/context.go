package model

import "time"

// ConversationContext is the per-message input bundle. It is built fresh for
// every inbound message and never persisted as a whole.
type ConversationContext struct {
	Timestamp    time.Time
	UserID       string
	Conversation string // originating channel identity, e.g. a phone number
	Message      string
	Channel      Channel
	Timezone     string // IANA zone name, e.g. "America/Sao_Paulo"
	Intent       Intent
}

// Location resolves the context timezone, falling back to UTC.
func (c *ConversationContext) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Now returns the current time in the conversation's timezone.
func (c *ConversationContext) Now() time.Time {
	if !c.Timestamp.IsZero() {
		return c.Timestamp.In(c.Location())
	}
	return time.Now().In(c.Location())
}
