package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onellm/onechat/config"
	"github.com/onellm/onechat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchFormatsResults(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
				_, _ = w.Write(
					[]byte(`{
						"results": [
							{"title": "Go", "url": "https://go.dev", "snippet": "The Go programming language"},
							{"title": "Go spec", "url": "https://go.dev/ref/spec", "snippet": "Language reference"}
						],
						"images": ["https://example.com/gopher.png"]
					}`),
				)
			},
		),
	)
	defer server.Close()

	search := NewSearchUsecase(config.Search{URL: server.URL, MaxResults: 5})
	result, err := search.Search(context.Background(), "what is go")

	require.NoError(t, err)
	assert.Equal(t, "what is go", gotBody["query"])
	assert.Equal(t, float64(5), gotBody["max_results"])
	assert.Equal(
		t,
		"1. Go\nhttps://go.dev\nThe Go programming language\n\n"+
			"2. Go spec\nhttps://go.dev/ref/spec\nLanguage reference",
		result.Content,
	)
	assert.Equal(t, []string{"https://example.com/gopher.png"}, result.Images)
}

func TestSearchNotConfigured(t *testing.T) {
	search := NewSearchUsecase(config.Search{})

	_, err := search.Search(context.Background(), "anything")

	assert.ErrorIs(t, err, ErrSearchNotConfigured)
}

func TestSearchNonOKStatus(t *testing.T) {
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		),
	)
	defer server.Close()

	search := NewSearchUsecase(config.Search{URL: server.URL, MaxResults: 5})

	_, err := search.Search(context.Background(), "anything")

	assert.ErrorContains(t, err, "HTTP 500")
}

func TestAugmentMessages(t *testing.T) {
	messages := []model.ChatMessage{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "first answer"},
		{Role: "user", Content: "second question"},
	}

	augmented := AugmentMessages(messages, "1. Result\nhttps://example.com\nSnippet")

	// Only the final user message is rewritten; the input is untouched.
	assert.Equal(t, "second question", messages[3].Content)
	assert.Equal(t, "be terse", augmented[0].Content)
	assert.Equal(t, "first question", augmented[1].Content)
	assert.Equal(t, "first answer", augmented[2].Content)
	assert.Equal(
		t,
		"second question\n\n---\nSearch Results:\n1. Result\nhttps://example.com\nSnippet\n---\n\n"+
			"Based on the search results above, please answer my question.",
		augmented[3].Content,
	)
}

func TestAugmentMessagesEmptyContext(t *testing.T) {
	messages := []model.ChatMessage{{Role: "user", Content: "hello"}}

	assert.Equal(t, messages, AugmentMessages(messages, ""))
}
