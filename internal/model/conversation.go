package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultConversationTitle = "New Chat"
	titleMaxLen              = 30
)

type Conversation struct {
	ID        uuid.UUID
	Title     string
	Messages  []Message
	CreatedAt time.Time
}

// DeriveTitle builds a conversation title from the first user message:
// the first 30 characters, with an ellipsis marker when truncated.
func DeriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= titleMaxLen {
		return content
	}
	return string(runes[:titleMaxLen]) + "..."
}
