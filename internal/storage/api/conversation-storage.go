// Package api talks to the remote persistence service: conversation CRUD,
// per-conversation bulk sync, and user settings, all JSON over bearer-token
// auth. The service owns the schema; this package only consumes the
// contract.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/onellm/onechat/config"
	"github.com/onellm/onechat/internal/model"
)

type Client struct {
	cfg    config.API
	client *http.Client
}

func NewClient(cfg config.API) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type messageJSON struct {
	ID           string   `json:"id"`
	Role         string   `json:"role"`
	Content      string   `json:"content"`
	Timestamp    int64    `json:"timestamp"`
	IsError      bool     `json:"isError,omitempty"`
	SearchImages []string `json:"searchImages,omitempty"`
}

type conversationJSON struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Messages  []messageJSON `json:"messages"`
	CreatedAt int64         `json:"createdAt"`
}

func (c *Client) CreateConversation(ctx context.Context, title string) (model.Conversation, error) {
	var body struct {
		Conversation conversationJSON `json:"conversation"`
	}
	err := c.do(ctx, http.MethodPost, "/api/conversations", map[string]string{"title": title}, &body)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return toConversation(body.Conversation)
}

func (c *Client) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	var body struct {
		Conversations []conversationJSON `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/conversations", nil, &body); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	conversations := make([]model.Conversation, 0, len(body.Conversations))
	for _, convo := range body.Conversations {
		out, err := toConversation(convo)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, out)
	}
	return conversations, nil
}

func (c *Client) DeleteConversation(ctx context.Context, conversationID uuid.UUID) error {
	err := c.do(ctx, http.MethodDelete, "/api/conversations/"+conversationID.String(), nil, nil)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

func (c *Client) SyncConversation(
	ctx context.Context, conversationID uuid.UUID, title string, messages []model.Message,
) error {
	payload := struct {
		Title    string        `json:"title,omitempty"`
		Messages []messageJSON `json:"messages"`
	}{
		Title:    title,
		Messages: make([]messageJSON, 0, len(messages)),
	}
	for _, msg := range messages {
		payload.Messages = append(
			payload.Messages, messageJSON{
				ID:           msg.ID.String(),
				Role:         string(msg.Role),
				Content:      msg.Content,
				Timestamp:    msg.Timestamp.UnixMilli(),
				IsError:      msg.IsError,
				SearchImages: msg.SearchImages,
			},
		)
	}
	err := c.do(ctx, http.MethodPost, "/api/conversations/"+conversationID.String()+"/sync", payload, nil)
	if err != nil {
		return fmt.Errorf("failed to sync conversation: %w", err)
	}
	return nil
}

func (c *Client) GetSettings(ctx context.Context) (model.Settings, error) {
	var body struct {
		Settings *model.Settings `json:"settings"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/user/settings", nil, &body); err != nil {
		return model.Settings{}, fmt.Errorf("failed to get settings: %w", err)
	}
	if body.Settings == nil {
		return model.DefaultSettings(""), nil
	}
	return *body.Settings, nil
}

func (c *Client) UpdateSettings(ctx context.Context, settings model.Settings) error {
	if err := c.do(ctx, http.MethodPut, "/api/user/settings", settings, nil); err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var remote struct {
			Error string `json:"error"`
		}
		if err = json.NewDecoder(resp.Body).Decode(&remote); err == nil && remote.Error != "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, remote.Error)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func toConversation(convo conversationJSON) (model.Conversation, error) {
	conversationID, err := uuid.Parse(convo.ID)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("failed to parse conversation id %s: %w", convo.ID, err)
	}
	messages := make([]model.Message, 0, len(convo.Messages))
	for _, msg := range convo.Messages {
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
		Title:     convo.Title,
		Messages:  messages,
		CreatedAt: time.UnixMilli(convo.CreatedAt),
	}, nil
}
