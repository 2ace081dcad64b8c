package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/onellm/onechat/config"
	"github.com/onellm/onechat/internal/model"
)

var ErrSearchNotConfigured = errors.New("search url is not configured")

// SearchResult is the context a web search contributes to a send: formatted
// text for the prompt plus any result images for the UI.
type SearchResult struct {
	Content string
	Images  []string
}

// SearchUsecase calls the web-search proxy. It is an optional enhancement:
// callers treat every failure as "no context available".
type SearchUsecase struct {
	cfg    config.Search
	client *http.Client
}

func NewSearchUsecase(cfg config.Search) *SearchUsecase {
	return &SearchUsecase{
		cfg:    cfg,
		client: &http.Client{},
	}
}

func (s *SearchUsecase) Search(ctx context.Context, query string) (SearchResult, error) {
	if s.cfg.URL == "" {
		return SearchResult{}, ErrSearchNotConfigured
	}

	body, err := json.Marshal(
		map[string]any{
			"query":       query,
			"max_results": s.cfg.MaxResults,
		},
	)
	if err != nil {
		return SearchResult{}, fmt.Errorf("failed to marshal search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return SearchResult{}, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return SearchResult{}, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return SearchResult{}, fmt.Errorf("search request failed: HTTP %d", resp.StatusCode)
	}

	var payload struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
		} `json:"results"`
		Images []string `json:"images"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return SearchResult{}, fmt.Errorf("failed to decode search response: %w", err)
	}

	formatted := strings.Builder{}
	for i, result := range payload.Results {
		if i > 0 {
			formatted.WriteString("\n\n")
		}
		formatted.WriteString(fmt.Sprintf("%d. %s\n%s\n%s", i+1, result.Title, result.URL, result.Snippet))
	}
	return SearchResult{Content: formatted.String(), Images: payload.Images}, nil
}

// AugmentMessages appends search context to the final user message, with a
// delimiter and an instruction telling the model to use the results. The
// shaping is part of the contract: it is exactly what the model sees. The
// input slice is not modified.
func AugmentMessages(messages []model.ChatMessage, searchContext string) []model.ChatMessage {
	if searchContext == "" {
		return messages
	}
	out := make([]model.ChatMessage, len(messages))
	copy(out, messages)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role != string(model.MessageRoleUser) {
			continue
		}
		out[i].Content = fmt.Sprintf(
			"%s\n\n---\nSearch Results:\n%s\n---\n\nBased on the search results above, please answer my question.",
			out[i].Content, searchContext,
		)
		break
	}
	return out
}
