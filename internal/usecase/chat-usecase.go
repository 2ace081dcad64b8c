package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/onellm/onechat/config"
	"github.com/onellm/onechat/internal/model"
	"github.com/sourcegraph/conc"
)

type ConversationStorage interface {
	CreateConversation(ctx context.Context, title string) (model.Conversation, error)
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID uuid.UUID) error
	SyncConversation(ctx context.Context, conversationID uuid.UUID, title string, messages []model.Message) error
}

type SettingsStorage interface {
	GetSettings(ctx context.Context) (model.Settings, error)
	UpdateSettings(ctx context.Context, settings model.Settings) error
}

type CompletionSender interface {
	Send(
		ctx context.Context, messages []model.ChatMessage, modelID string,
		creds Credentials, opts SendOptions,
	) (Result, error)
}

type Searcher interface {
	Search(ctx context.Context, query string) (SearchResult, error)
}

type ChatUsecaseDeps struct {
	Conversations ConversationStorage
	Settings      SettingsStorage
	Completion    CompletionSender
	Search        Searcher
}

// ChatUsecase is the per-session conversation state machine. Local state is
// the source of truth: every mutation is applied optimistically and pushed
// to durable storage by a background sync that is never awaited.
type ChatUsecase struct {
	ChatUsecaseDeps
	cfg config.Chat

	mu            sync.Mutex
	conversations []model.Conversation
	activeID      uuid.UUID
	generating    bool
	lastErr       error
	settings      model.Settings
	// versions advances on every mutation of a conversation, so a sync
	// scheduled before a delete (or superseded by a newer turn) is dropped
	// instead of resurrecting stale state.
	versions map[uuid.UUID]uint64

	syncs *conc.WaitGroup
}

func NewChatUsecase(deps ChatUsecaseDeps, cfg config.Chat) *ChatUsecase {
	return &ChatUsecase{
		ChatUsecaseDeps: deps,
		cfg:             cfg,
		settings:        model.DefaultSettings(cfg.DefaultModel),
		versions:        make(map[uuid.UUID]uint64),
		syncs:           conc.NewWaitGroup(),
	}
}

// Load pulls conversations and settings from storage. Storage being empty or
// unreachable degrades to a fresh local session.
func (c *ChatUsecase) Load(ctx context.Context) error {
	conversations, err := c.Conversations.ListConversations(ctx)
	if err != nil {
		log.Printf("failed to list conversations, starting fresh: %v", err)
		conversations = nil
	}
	settings, err := c.Settings.GetSettings(ctx)
	if err != nil {
		log.Printf("failed to load settings, using defaults: %v", err)
		settings = model.DefaultSettings(c.cfg.DefaultModel)
	}
	if settings.SelectedModel == "" {
		settings.SelectedModel = c.cfg.DefaultModel
	}
	if settings.APIKeys == nil {
		settings.APIKeys = make(map[string]string)
	}
	if settings.BaseURLs == nil {
		settings.BaseURLs = make(map[string]string)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversations = conversations
	c.settings = settings
	for _, convo := range conversations {
		c.versions[convo.ID] = 0
	}
	if len(conversations) > 0 {
		c.activeID = conversations[0].ID
	}
	return nil
}

// Send runs one conversation turn: append the user message and an empty
// assistant placeholder, optionally gather search context, request the
// completion, and settle. While streaming, the cumulative assistant content
// is pushed to answerChan after each delta; the channel is closed when the
// turn settles. A Send while another is generating is a no-op, as is an
// empty trimmed content.
func (c *ChatUsecase) Send(ctx context.Context, content string, answerChan chan<- string) error {
	if answerChan != nil {
		defer close(answerChan)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	c.mu.Lock()
	if c.generating {
		c.mu.Unlock()
		return nil
	}
	c.generating = true
	c.lastErr = nil
	convoID := c.activeID
	settings := c.settings.Clone()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.generating = false
		c.mu.Unlock()
	}()

	// The generating flag is claimed, so only this turn can create the
	// conversation; the storage call runs unlocked.
	if convoID == uuid.Nil {
		convo, err := c.NewChat(ctx)
		if err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}
		convoID = convo.ID
	}

	userMessage := model.NewUserMessage(content)
	var history []model.Message
	c.mutateConversation(
		convoID, func(convo *model.Conversation) {
			if len(convo.Messages) == 0 {
				convo.Title = model.DeriveTitle(content)
			}
			convo.Messages = append(convo.Messages, userMessage)
			history = append(history, convo.Messages...)
			convo.Messages = append(convo.Messages, model.NewAssistantPlaceholder())
		},
	)

	searchContext := ""
	if settings.SearchEnabled && c.Search != nil {
		result, err := c.Search.Search(ctx, content)
		if err != nil {
			log.Printf("search failed: %v", err)
		} else {
			searchContext = result.Content
			if len(result.Images) > 0 {
				c.mutateLastAssistant(
					convoID, func(msg *model.Message) {
						msg.SearchImages = result.Images
					},
				)
			}
		}
	}

	apiMessages := make([]model.ChatMessage, 0, len(history))
	for _, msg := range history {
		if !msg.UsableForCompletion() {
			continue
		}
		apiMessages = append(
			apiMessages, model.ChatMessage{
				Role:    string(msg.Role),
				Content: msg.Content,
			},
		)
	}
	apiMessages = AugmentMessages(apiMessages, searchContext)

	fullContent := strings.Builder{}
	onChunk := func(delta string) {
		fullContent.WriteString(delta)
		cumulative := fullContent.String()
		c.mutateLastAssistant(
			convoID, func(msg *model.Message) {
				msg.Content = cumulative
			},
		)
		if answerChan != nil {
			answerChan <- cumulative
		}
	}

	result, err := c.Completion.Send(
		ctx, apiMessages, settings.SelectedModel,
		Credentials{APIKeys: settings.APIKeys, BaseURLs: settings.BaseURLs},
		SendOptions{
			Temperature: c.cfg.ModelTemperature,
			Stream:      settings.StreamOutput,
			OnChunk:     onChunk,
		},
	)
	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.mutateLastAssistant(
			convoID, func(msg *model.Message) {
				msg.MarkError(err)
			},
		)
	} else if !settings.StreamOutput {
		c.mutateLastAssistant(
			convoID, func(msg *model.Message) {
				msg.Content = result.Content
			},
		)
		if answerChan != nil {
			answerChan <- result.Content
		}
	}

	c.scheduleSync(convoID)
	return err
}

// NewChat creates a conversation and makes it active. The storage call runs
// outside the session lock so readers are not stalled by a slow backend.
func (c *ChatUsecase) NewChat(ctx context.Context) (model.Conversation, error) {
	convo, err := c.Conversations.CreateConversation(ctx, model.DefaultConversationTitle)
	if err != nil {
		return model.Conversation{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversations = append([]model.Conversation{convo}, c.conversations...)
	c.versions[convo.ID] = 0
	c.activeID = convo.ID
	c.lastErr = nil
	return convo, nil
}

func (c *ChatUsecase) DeleteConversation(ctx context.Context, conversationID uuid.UUID) error {
	if err := c.Conversations.DeleteConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining := make([]model.Conversation, 0, len(c.conversations))
	for _, convo := range c.conversations {
		if convo.ID != conversationID {
			remaining = append(remaining, convo)
		}
	}
	c.conversations = remaining
	delete(c.versions, conversationID)
	if c.activeID == conversationID {
		c.activeID = uuid.Nil
		if len(remaining) > 0 {
			c.activeID = remaining[0].ID
		}
	}
	return nil
}

// ConversationList returns a snapshot of the conversation list.
func (c *ChatUsecase) ConversationList() []model.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Conversation, len(c.conversations))
	copy(out, c.conversations)
	return out
}

func (c *ChatUsecase) ActiveConversation() (model.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, convo := range c.conversations {
		if convo.ID == c.activeID {
			return convo, true
		}
	}
	return model.Conversation{}, false
}

func (c *ChatUsecase) SetActiveConversation(conversationID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, convo := range c.conversations {
		if convo.ID == conversationID {
			c.activeID = conversationID
			return
		}
	}
}

func (c *ChatUsecase) Generating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generating
}

// Err returns the transient error banner state.
func (c *ChatUsecase) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *ChatUsecase) ClearErr() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil
}

func (c *ChatUsecase) SettingsSnapshot() model.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.Clone()
}

func (c *ChatUsecase) UpdateAPIKey(ctx context.Context, keyName, key string) error {
	return c.updateSettings(
		ctx, func(s *model.Settings) {
			s.APIKeys[keyName] = key
		},
	)
}

func (c *ChatUsecase) UpdateBaseURL(ctx context.Context, keyName, baseURL string) error {
	return c.updateSettings(
		ctx, func(s *model.Settings) {
			s.BaseURLs[keyName] = baseURL
		},
	)
}

func (c *ChatUsecase) SetSelectedModel(ctx context.Context, modelID string) error {
	return c.updateSettings(
		ctx, func(s *model.Settings) {
			s.SelectedModel = modelID
		},
	)
}

func (c *ChatUsecase) SetStreamOutput(ctx context.Context, enabled bool) error {
	return c.updateSettings(
		ctx, func(s *model.Settings) {
			s.StreamOutput = enabled
		},
	)
}

func (c *ChatUsecase) SetSearchEnabled(ctx context.Context, enabled bool) error {
	return c.updateSettings(
		ctx, func(s *model.Settings) {
			s.SearchEnabled = enabled
		},
	)
}

func (c *ChatUsecase) updateSettings(ctx context.Context, mutate func(*model.Settings)) error {
	c.mu.Lock()
	settings := c.settings.Clone()
	mutate(&settings)
	c.settings = settings
	c.mu.Unlock()
	if err := c.Settings.UpdateSettings(ctx, settings.Clone()); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// mutateConversation applies mutate to a fresh copy of the conversation's
// message list and swaps it in, so readers holding an earlier snapshot keep
// a consistent view.
func (c *ChatUsecase) mutateConversation(conversationID uuid.UUID, mutate func(*model.Conversation)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, convo := range c.conversations {
		if convo.ID != conversationID {
			continue
		}
		messages := make([]model.Message, len(convo.Messages))
		copy(messages, convo.Messages)
		convo.Messages = messages
		mutate(&convo)
		c.conversations[i] = convo
		c.versions[conversationID]++
		return
	}
}

func (c *ChatUsecase) mutateLastAssistant(conversationID uuid.UUID, mutate func(*model.Message)) {
	c.mutateConversation(
		conversationID, func(convo *model.Conversation) {
			last := len(convo.Messages) - 1
			if last >= 0 && convo.Messages[last].Role == model.MessageRoleAssistant {
				mutate(&convo.Messages[last])
			}
		},
	)
}

// scheduleSync pushes the conversation's title and messages to storage after
// a short delay, without blocking the caller. The sync is skipped when the
// conversation was deleted or mutated again in the meantime.
func (c *ChatUsecase) scheduleSync(conversationID uuid.UUID) {
	c.mu.Lock()
	version, exists := c.versions[conversationID]
	c.mu.Unlock()
	if !exists {
		return
	}

	c.syncs.Go(
		func() {
			time.Sleep(c.cfg.SyncDelay)

			c.mu.Lock()
			current, exists := c.versions[conversationID]
			var snapshot model.Conversation
			found := false
			for _, convo := range c.conversations {
				if convo.ID == conversationID {
					snapshot = convo
					found = true
					break
				}
			}
			c.mu.Unlock()

			if !exists || !found || current != version {
				return
			}
			err := c.Conversations.SyncConversation(
				context.Background(), conversationID, snapshot.Title, snapshot.Messages,
			)
			if err != nil {
				log.Printf("failed to sync conversation %s: %v", conversationID, err)
			}
		},
	)
}

// WaitSyncs blocks until every scheduled background sync has finished.
func (c *ChatUsecase) WaitSyncs() {
	c.syncs.Wait()
}
