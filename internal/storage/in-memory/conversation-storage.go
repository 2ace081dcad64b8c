package in_memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/onellm/onechat/internal/model"
)

var ErrConversationDoesNotExist = errors.New("conversation does not exist")

// ConversationStorage keeps conversations in process memory. Used for
// key-less runs and as the test double for the durable stores.
type ConversationStorage struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*model.Conversation
}

func NewConversationStorage() *ConversationStorage {
	return &ConversationStorage{
		conversations: make(map[uuid.UUID]*model.Conversation),
	}
}

func (s *ConversationStorage) CreateConversation(_ context.Context, title string) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	convo := model.Conversation{
		ID:        uuid.New(),
		Title:     title,
		Messages:  make([]model.Message, 0),
		CreatedAt: time.Now(),
	}
	s.conversations[convo.ID] = &convo
	return convo, nil
}

func (s *ConversationStorage) ListConversations(_ context.Context) ([]model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversations := make([]model.Conversation, 0, len(s.conversations))
	for _, convo := range s.conversations {
		conversations = append(conversations, *convo)
	}
	// Newest first, the order the conversation list is shown in.
	sort.Slice(
		conversations, func(i, j int) bool {
			return conversations[i].CreatedAt.After(conversations[j].CreatedAt)
		},
	)
	return conversations, nil
}

func (s *ConversationStorage) DeleteConversation(_ context.Context, conversationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return ErrConversationDoesNotExist
	}
	delete(s.conversations, conversationID)
	return nil
}

func (s *ConversationStorage) SyncConversation(
	_ context.Context, conversationID uuid.UUID, title string, messages []model.Message,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	convo, ok := s.conversations[conversationID]
	if !ok {
		return ErrConversationDoesNotExist
	}
	if title != "" {
		convo.Title = title
	}
	convo.Messages = make([]model.Message, len(messages))
	copy(convo.Messages, messages)
	return nil
}

// Synced returns the stored copy of a conversation, for inspection in tests.
func (s *ConversationStorage) Synced(conversationID uuid.UUID) (model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	convo, ok := s.conversations[conversationID]
	if !ok {
		return model.Conversation{}, false
	}
	return *convo, true
}
