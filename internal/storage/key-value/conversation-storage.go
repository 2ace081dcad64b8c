package key_value

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/onellm/onechat/internal/model"
	"github.com/redis/go-redis/v9"
)

var (
	ErrConversationDoesNotExist  = errors.New("conversation does not exist")
	ErrConversationIDsDoNotExist = errors.New("conversation ids do not exist")
)

type messageInternal struct {
	ID           string   `json:"id"`
	Role         string   `json:"role"`
	Content      string   `json:"content"`
	Timestamp    int64    `json:"timestamp"`
	IsError      bool     `json:"is_error,omitempty"`
	SearchImages []string `json:"search_images,omitempty"`
}

type conversationInternal struct {
	ConversationID string            `json:"conversation_id"`
	Title          string            `json:"title"`
	Messages       []messageInternal `json:"messages"`
	CreatedAt      int64             `json:"created_at"`
}

type conversationIDs struct {
	Conversations []string `json:"conversations"`
}

// ConversationStorage keeps conversations as JSON records in redis: one
// record per conversation plus an id-list record preserving creation order
// (newest first).
type ConversationStorage struct {
	rdb *redis.Client
}

func NewConversationStorage(rdb *redis.Client) *ConversationStorage {
	return &ConversationStorage{
		rdb: rdb,
	}
}

func (s *ConversationStorage) CreateConversation(ctx context.Context, title string) (model.Conversation, error) {
	conversationID := uuid.New()
	now := time.Now()
	convoInt := conversationInternal{
		ConversationID: conversationID.String(),
		Title:          title,
		Messages:       make([]messageInternal, 0),
		CreatedAt:      now.UnixMilli(),
	}
	if err := s.setConversationInt(ctx, conversationID, convoInt); err != nil {
		return model.Conversation{}, fmt.Errorf("failed to set conversation %s: %w", conversationID, err)
	}

	ids, err := s.getConversationIDs(ctx)
	if err != nil {
		if !errors.Is(err, ErrConversationIDsDoNotExist) {
			return model.Conversation{}, fmt.Errorf("failed to get conversation ids: %w", err)
		}
		ids = conversationIDs{Conversations: make([]string, 0)}
	}
	ids.Conversations = append([]string{conversationID.String()}, ids.Conversations...)
	if err = s.setConversationIDs(ctx, ids); err != nil {
		return model.Conversation{}, fmt.Errorf("failed to set conversation ids: %w", err)
	}

	return model.Conversation{
		ID:        conversationID,
		Title:     title,
		Messages:  make([]model.Message, 0),
		CreatedAt: now,
	}, nil
}

func (s *ConversationStorage) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	ids, err := s.getConversationIDs(ctx)
	if err != nil {
		if errors.Is(err, ErrConversationIDsDoNotExist) {
			return make([]model.Conversation, 0), nil
		}
		return nil, fmt.Errorf("failed to get conversation ids: %w", err)
	}
	conversations := make([]model.Conversation, 0, len(ids.Conversations))
	for _, idStr := range ids.Conversations {
		conversationID, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse conversation id %s: %w", idStr, err)
		}
		convo, err := s.GetConversation(ctx, conversationID)
		if err != nil {
			return nil, fmt.Errorf("failed to get conversation %s: %w", conversationID, err)
		}
		conversations = append(conversations, convo)
	}
	return conversations, nil
}

func (s *ConversationStorage) GetConversation(ctx context.Context, conversationID uuid.UUID) (model.Conversation, error) {
	convoInt, err := s.getConversationInt(ctx, conversationID)
	if err != nil {
		return model.Conversation{}, err
	}

	messages := make([]model.Message, 0, len(convoInt.Messages))
	for _, msg := range convoInt.Messages {
		messageID, err := uuid.Parse(msg.ID)
		if err != nil {
			messageID = uuid.New()
		}
		messages = append(
			messages, model.Message{
				ID:           messageID,
				Role:         model.MessageRole(msg.Role),
				Content:      msg.Content,
				Timestamp:    time.UnixMilli(msg.Timestamp),
				IsError:      msg.IsError,
				SearchImages: msg.SearchImages,
			},
		)
	}

	return model.Conversation{
		ID:        conversationID,
		Title:     convoInt.Title,
		Messages:  messages,
		CreatedAt: time.UnixMilli(convoInt.CreatedAt),
	}, nil
}

func (s *ConversationStorage) DeleteConversation(ctx context.Context, conversationID uuid.UUID) error {
	if err := s.rdb.Del(ctx, getConversationKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", conversationID, err)
	}
	ids, err := s.getConversationIDs(ctx)
	if err != nil {
		if errors.Is(err, ErrConversationIDsDoNotExist) {
			return nil
		}
		return fmt.Errorf("failed to get conversation ids: %w", err)
	}
	remaining := make([]string, 0, len(ids.Conversations))
	for _, idStr := range ids.Conversations {
		if idStr != conversationID.String() {
			remaining = append(remaining, idStr)
		}
	}
	ids.Conversations = remaining
	if err = s.setConversationIDs(ctx, ids); err != nil {
		return fmt.Errorf("failed to set conversation ids: %w", err)
	}
	return nil
}

func (s *ConversationStorage) SyncConversation(
	ctx context.Context, conversationID uuid.UUID, title string, messages []model.Message,
) error {
	convoInt, err := s.getConversationInt(ctx, conversationID)
	if err != nil {
		return err
	}
	if title != "" {
		convoInt.Title = title
	}
	convoInt.Messages = make([]messageInternal, 0, len(messages))
	for _, msg := range messages {
		convoInt.Messages = append(
			convoInt.Messages, messageInternal{
				ID:           msg.ID.String(),
				Role:         string(msg.Role),
				Content:      msg.Content,
				Timestamp:    msg.Timestamp.UnixMilli(),
				IsError:      msg.IsError,
				SearchImages: msg.SearchImages,
			},
		)
	}
	if err = s.setConversationInt(ctx, conversationID, convoInt); err != nil {
		return fmt.Errorf("failed to set conversation %s: %w", conversationID, err)
	}
	return nil
}

func (s *ConversationStorage) getConversationInt(
	ctx context.Context, conversationID uuid.UUID,
) (conversationInternal, error) {
	raw, err := s.rdb.Get(ctx, getConversationKey(conversationID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return conversationInternal{}, ErrConversationDoesNotExist
		}
		return conversationInternal{}, fmt.Errorf("failed to get conversation %s: %w", conversationID, err)
	}
	var convoInt conversationInternal
	if err = json.Unmarshal([]byte(raw), &convoInt); err != nil {
		return conversationInternal{}, fmt.Errorf("failed to unmarshal conversation %s: %w", conversationID, err)
	}
	return convoInt, nil
}

func (s *ConversationStorage) setConversationInt(
	ctx context.Context, conversationID uuid.UUID, convoInt conversationInternal,
) error {
	raw, err := json.Marshal(convoInt)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if err = s.rdb.Set(ctx, getConversationKey(conversationID), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", conversationID, err)
	}
	return nil
}

func (s *ConversationStorage) getConversationIDs(ctx context.Context) (conversationIDs, error) {
	raw, err := s.rdb.Get(ctx, conversationIDsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return conversationIDs{}, ErrConversationIDsDoNotExist
		}
		return conversationIDs{}, fmt.Errorf("failed to get conversation ids: %w", err)
	}
	var ids conversationIDs
	if err = json.Unmarshal([]byte(raw), &ids); err != nil {
		return conversationIDs{}, fmt.Errorf("failed to unmarshal conversation ids: %w", err)
	}
	return ids, nil
}

func (s *ConversationStorage) setConversationIDs(ctx context.Context, ids conversationIDs) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation ids: %w", err)
	}
	if err = s.rdb.Set(ctx, conversationIDsKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save conversation ids: %w", err)
	}
	return nil
}

const conversationIDsKey = "conversation_ids"

func getConversationKey(conversationID uuid.UUID) string {
	return fmt.Sprintf("conversation_%v", conversationID.String())
}
