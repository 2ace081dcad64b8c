package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/onellm/onechat/config"
	"github.com/onellm/onechat/internal/model"
	"github.com/sourcegraph/conc/pool"
)

const fallbackMaxOutputTokens = 4096

// providerMatcher tries to map a model id onto a provider id. Matchers run
// in priority order so the resolution chain stays auditable.
type providerMatcher func(modelID string) (providerID string, ok bool)

// RegistryUsecase owns the provider catalog and the merged model list.
type RegistryUsecase struct {
	cfg      config.Gateway
	client   *http.Client
	matchers []providerMatcher
}

func NewRegistryUsecase(cfg config.Gateway) *RegistryUsecase {
	return &RegistryUsecase{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		matchers: []providerMatcher{
			matchProviderPrefix,
			matchProviderSubstring,
			matchFallbackModel,
		},
	}
}

// matchProviderPrefix matches an explicit "provider/" id prefix against the
// known provider set.
func matchProviderPrefix(modelID string) (string, bool) {
	for id := range model.Providers {
		if strings.HasPrefix(modelID, id+"/") {
			return id, true
		}
	}
	return "", false
}

// matchProviderSubstring covers providers without a reliable prefix
// convention. RWKV models are served under an "hf/" prefix.
func matchProviderSubstring(modelID string) (string, bool) {
	if strings.Contains(modelID, "rwkv") {
		return "rwkv", true
	}
	return "", false
}

func matchFallbackModel(modelID string) (string, bool) {
	for _, m := range model.FallbackModels {
		if m.ID == modelID {
			return m.Provider, true
		}
	}
	return "", false
}

// ResolveProvider runs the matcher chain. ok is false for unknown ids.
func (r *RegistryUsecase) ResolveProvider(modelID string) (model.Provider, bool) {
	if modelID == "" {
		return model.Provider{}, false
	}
	for _, match := range r.matchers {
		if providerID, ok := match(modelID); ok {
			provider, known := model.Providers[providerID]
			return provider, known
		}
	}
	return model.Provider{}, false
}

// RequiresKey reports whether sending to modelID needs an API key. Unknown
// providers require a key: never send without one to an endpoint we cannot
// classify.
func (r *RegistryUsecase) RequiresKey(modelID string) bool {
	provider, ok := r.ResolveProvider(modelID)
	if !ok {
		return true
	}
	return provider.RequiresKey
}

func (r *RegistryUsecase) KeyName(modelID string) string {
	provider, ok := r.ResolveProvider(modelID)
	if !ok {
		return ""
	}
	return provider.KeyName
}

func (r *RegistryUsecase) DefaultAPIKey(modelID string) string {
	provider, ok := r.ResolveProvider(modelID)
	if !ok {
		return ""
	}
	return provider.DefaultAPIKey
}

func (r *RegistryUsecase) DefaultBaseURL(modelID string) string {
	provider, ok := r.ResolveProvider(modelID)
	if !ok {
		return ""
	}
	return provider.DefaultBaseURL
}

func (r *RegistryUsecase) MaxOutputTokens(modelID string) int {
	provider, ok := r.ResolveProvider(modelID)
	if !ok {
		return fallbackMaxOutputTokens
	}
	if limit, ok := model.MaxOutputTokens[provider.ID]; ok {
		return limit
	}
	return fallbackMaxOutputTokens
}

func (r *RegistryUsecase) ContextWindow(modelID string) int {
	provider, ok := r.ResolveProvider(modelID)
	if !ok {
		return fallbackMaxOutputTokens
	}
	if window, ok := model.ContextWindows[provider.ID]; ok {
		return window
	}
	return fallbackMaxOutputTokens
}

// ListProviders fetches the gateway's provider list, falling back to the
// static catalog when the gateway is unreachable or not configured.
func (r *RegistryUsecase) ListProviders(ctx context.Context) []string {
	providers := r.fetchProviders(ctx)
	if len(providers) == 0 {
		providers = make([]string, 0, len(model.Providers))
		for id := range model.Providers {
			providers = append(providers, id)
		}
		sort.Strings(providers)
	}
	return providers
}

func (r *RegistryUsecase) fetchProviders(ctx context.Context) []string {
	if r.cfg.BaseURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.BaseURL+"/providers", nil)
	if err != nil {
		log.Printf("failed to build providers request: %v", err)
		return nil
	}
	resp, err := r.client.Do(req)
	if err != nil {
		log.Printf("failed to fetch providers: %v", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("failed to fetch providers: HTTP %d", resp.StatusCode)
		return nil
	}
	var body struct {
		Providers []string `json:"providers"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Printf("failed to decode providers: %v", err)
		return nil
	}
	return body.Providers
}

// FetchAllModels merges the static fallback list with per-provider dynamic
// listings. Each eligible provider (key-free, or with a user or default key)
// is fetched independently; one provider failing degrades to its fallback
// entries and never blocks the others. A fetched model with the same id as
// a fallback entry overrides it.
func (r *RegistryUsecase) FetchAllModels(ctx context.Context, apiKeys map[string]string) []model.AIModel {
	providers := r.ListProviders(ctx)

	p := pool.NewWithResults[[]model.AIModel]().WithContext(ctx)
	for _, providerID := range providers {
		p.Go(
			func(ctx context.Context) ([]model.AIModel, error) {
				provider, ok := model.Providers[providerID]
				if !ok {
					return nil, nil
				}
				apiKey := ""
				if provider.KeyName != "" {
					apiKey = apiKeys[provider.KeyName]
				}
				if apiKey == "" {
					apiKey = provider.DefaultAPIKey
				}
				if provider.RequiresKey && apiKey == "" {
					return nil, nil
				}
				return r.fetchModelsForProvider(ctx, provider, apiKey), nil
			},
		)
	}
	results, err := p.Wait()
	if err != nil {
		// Per-provider failures are absorbed inside the tasks; only a
		// cancelled context lands here.
		log.Printf("model fetch interrupted: %v", err)
	}

	merged := make([]model.AIModel, 0, len(model.FallbackModels))
	index := make(map[string]int)
	for _, m := range model.FallbackModels {
		index[m.ID] = len(merged)
		merged = append(merged, m)
	}
	for _, fetched := range results {
		for _, m := range fetched {
			if at, ok := index[m.ID]; ok {
				merged[at] = m
				continue
			}
			index[m.ID] = len(merged)
			merged = append(merged, m)
		}
	}
	return merged
}

// fetchModelsForProvider lists one provider's models through the gateway.
// Failures degrade to "no dynamic models for this provider".
func (r *RegistryUsecase) fetchModelsForProvider(
	ctx context.Context, provider model.Provider, apiKey string,
) []model.AIModel {
	if r.cfg.BaseURL == "" {
		return nil
	}
	endpoint := r.cfg.BaseURL + "/models/" + provider.ID
	if apiKey != "" {
		endpoint += "?apiKey=" + url.QueryEscape(apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		log.Printf("failed to build models request for %s: %v", provider.ID, err)
		return nil
	}
	resp, err := r.client.Do(req)
	if err != nil {
		log.Printf("failed to fetch models for %s: %v", provider.ID, err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("failed to fetch models for %s: HTTP %d", provider.ID, resp.StatusCode)
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("failed to read models for %s: %v", provider.ID, err)
		return nil
	}
	entries, err := decodeModelList(raw)
	if err != nil {
		log.Printf("failed to decode models for %s: %v", provider.ID, err)
		return nil
	}

	models := make([]model.AIModel, 0, len(entries))
	for _, entry := range entries {
		m, ok := entry.toModel(provider)
		if ok {
			models = append(models, m)
		}
	}
	return models
}

// modelEntry is one element of a model listing: either a bare name string or
// an object carrying id/name plus an optional description.
type modelEntry struct {
	name        string
	id          string
	description string
}

func (e modelEntry) toModel(provider model.Provider) (model.AIModel, bool) {
	id := e.id
	name := e.name
	if name == "" {
		name = e.id
	}
	if id == "" {
		if e.name == "" {
			return model.AIModel{}, false
		}
		id = provider.ID + "/" + e.name
	}
	return model.AIModel{
		ID:          id,
		Name:        name,
		Provider:    provider.ID,
		Free:        !provider.RequiresKey,
		Description: e.description,
	}, true
}

// decodeModelList accepts both listing shapes: {"models": [...]} and a bare
// array.
func decodeModelList(raw []byte) ([]modelEntry, error) {
	var wrapped struct {
		Models []json.RawMessage `json:"models"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Models != nil {
		return decodeModelEntries(wrapped.Models)
	}
	var bare []json.RawMessage
	if err := json.Unmarshal(raw, &bare); err != nil {
		return nil, fmt.Errorf("unrecognized model listing: %w", err)
	}
	return decodeModelEntries(bare)
}

func decodeModelEntries(raws []json.RawMessage) ([]modelEntry, error) {
	entries := make([]modelEntry, 0, len(raws))
	for _, raw := range raws {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil {
			entries = append(entries, modelEntry{name: name})
			continue
		}
		var obj struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("unrecognized model entry: %w", err)
		}
		entries = append(entries, modelEntry{name: obj.Name, id: obj.ID, description: obj.Description})
	}
	return entries, nil
}
