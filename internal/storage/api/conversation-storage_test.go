package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/onellm/onechat/config"
	"github.com/onellm/onechat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.API{BaseURL: baseURL, Token: "test-token"})
}

func TestCreateConversation(t *testing.T) {
	conversationID := uuid.New()
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, http.MethodPost, r.Method)
				require.Equal(t, "/api/conversations", r.URL.Path)
				require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

				var body map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				require.Equal(t, "New Chat", body["title"])

				_ = json.NewEncoder(w).Encode(
					map[string]any{
						"conversation": map[string]any{
							"id":        conversationID.String(),
							"title":     "New Chat",
							"messages":  []any{},
							"createdAt": time.Now().UnixMilli(),
						},
					},
				)
			},
		),
	)
	defer server.Close()

	convo, err := newTestClient(server.URL).CreateConversation(context.Background(), "New Chat")

	require.NoError(t, err)
	assert.Equal(t, conversationID, convo.ID)
	assert.Equal(t, "New Chat", convo.Title)
	assert.Empty(t, convo.Messages)
}

func TestListConversations(t *testing.T) {
	conversationID := uuid.New()
	messageID := uuid.New()
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, http.MethodGet, r.Method)
				_ = json.NewEncoder(w).Encode(
					map[string]any{
						"conversations": []any{
							map[string]any{
								"id":    conversationID.String(),
								"title": "Weather",
								"messages": []any{
									map[string]any{
										"id":        messageID.String(),
										"role":      "user",
										"content":   "Is it raining?",
										"timestamp": int64(1756300000000),
									},
									map[string]any{
										"id":        "not-a-uuid",
										"role":      "assistant",
										"content":   "No.",
										"timestamp": int64(1756300001000),
									},
								},
								"createdAt": int64(1756299999000),
							},
						},
					},
				)
			},
		),
	)
	defer server.Close()

	conversations, err := newTestClient(server.URL).ListConversations(context.Background())

	require.NoError(t, err)
	require.Len(t, conversations, 1)
	convo := conversations[0]
	assert.Equal(t, conversationID, convo.ID)
	require.Len(t, convo.Messages, 2)
	assert.Equal(t, messageID, convo.Messages[0].ID)
	assert.Equal(t, model.MessageRoleUser, convo.Messages[0].Role)
	// Unparseable message ids are replaced, not fatal.
	assert.NotEqual(t, uuid.Nil, convo.Messages[1].ID)
	assert.Equal(t, time.UnixMilli(1756299999000), convo.CreatedAt)
}

func TestSyncConversation(t *testing.T) {
	conversationID := uuid.New()
	var gotPath string
	var gotBody struct {
		Title    string        `json:"title"`
		Messages []messageJSON `json:"messages"`
	}
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			},
		),
	)
	defer server.Close()

	message := model.NewUserMessage("hello")
	err := newTestClient(server.URL).SyncConversation(
		context.Background(), conversationID, "Greetings", []model.Message{message},
	)

	require.NoError(t, err)
	assert.Equal(t, "/api/conversations/"+conversationID.String()+"/sync", gotPath)
	assert.Equal(t, "Greetings", gotBody.Title)
	require.Len(t, gotBody.Messages, 1)
	assert.Equal(t, message.ID.String(), gotBody.Messages[0].ID)
	assert.Equal(t, "user", gotBody.Messages[0].Role)
	assert.Equal(t, "hello", gotBody.Messages[0].Content)
}

func TestDeleteConversationRemoteError(t *testing.T) {
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":"conversation not found"}`))
			},
		),
	)
	defer server.Close()

	err := newTestClient(server.URL).DeleteConversation(context.Background(), uuid.New())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404: conversation not found")
}

func TestSettingsRoundTrip(t *testing.T) {
	var stored *model.Settings
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/api/user/settings", r.URL.Path)
				switch r.Method {
				case http.MethodPut:
					var settings model.Settings
					require.NoError(t, json.NewDecoder(r.Body).Decode(&settings))
					stored = &settings
					w.WriteHeader(http.StatusNoContent)
				case http.MethodGet:
					_ = json.NewEncoder(w).Encode(map[string]any{"settings": stored})
				}
			},
		),
	)
	defer server.Close()

	client := newTestClient(server.URL)
	ctx := context.Background()

	// Nothing stored yet: defaults come back.
	settings, err := client.GetSettings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.StreamOutput)

	want := model.DefaultSettings("openai/gpt-4o")
	want.APIKeys["openai"] = "sk-user"
	require.NoError(t, client.UpdateSettings(ctx, want))

	settings, err = client.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, settings)
}
