package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type MessageRole string

const (
	MessageRoleUser      = MessageRole("user")
	MessageRoleAssistant = MessageRole("assistant")
	MessageRoleSystem    = MessageRole("system")
)

const errorPrefix = "Error: "

// Message is a single entry of a conversation. Assistant messages are
// mutated in place while a completion is streaming.
type Message struct {
	ID           uuid.UUID
	Role         MessageRole
	Content      string
	Timestamp    time.Time
	IsError      bool
	Image        *ImageRef
	SearchImages []string
}

// ImageRef points at a user-attached image that was run through OCR.
type ImageRef struct {
	Preview string
	Name    string
}

func NewUserMessage(content string) Message {
	return Message{
		ID:        uuid.New(),
		Role:      MessageRoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantPlaceholder returns an empty assistant message that streamed
// content is appended to.
func NewAssistantPlaceholder() Message {
	return Message{
		ID:        uuid.New(),
		Role:      MessageRoleAssistant,
		Content:   "",
		Timestamp: time.Now(),
	}
}

// MarkError replaces the message content with an error-prefixed text and
// flags the message so it is excluded from future completion requests.
func (m *Message) MarkError(err error) {
	m.Content = errorPrefix + err.Error()
	m.IsError = true
}

// UsableForCompletion reports whether the message is valid conversation
// history for a completion request.
func (m Message) UsableForCompletion() bool {
	return m.Content != "" && !m.IsError && !strings.HasPrefix(m.Content, errorPrefix)
}

// ChatMessage is the role+content pair sent over the wire. Client-only
// metadata (ids, timestamps, image refs) never leaves the process.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
