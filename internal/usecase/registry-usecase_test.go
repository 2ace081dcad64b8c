package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onellm/onechat/config"
	"github.com/onellm/onechat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(baseURL string) *RegistryUsecase {
	return NewRegistryUsecase(
		config.Gateway{
			BaseURL:        baseURL,
			RequestTimeout: 5 * time.Second,
		},
	)
}

func TestResolveProvider(t *testing.T) {
	registry := newTestRegistry("")

	tests := []struct {
		name      string
		modelID   string
		wantID    string
		wantKnown bool
	}{
		{name: "explicit prefix", modelID: "openai/gpt-4o", wantID: "openai", wantKnown: true},
		{name: "nested prefix", modelID: "freellm/TinyLlama/TinyLlama-1.1B-Chat-v1.0", wantID: "freellm", wantKnown: true},
		{name: "substring heuristic", modelID: "hf/rwkv7-g1a4-2.9b-20251118-ctx8192", wantID: "rwkv", wantKnown: true},
		{name: "fallback catalog", modelID: "ollama/gemma3:270m", wantID: "ollama", wantKnown: true},
		{name: "unknown", modelID: "mystery-model", wantKnown: false},
		{name: "empty", modelID: "", wantKnown: false},
	}
	for _, tc := range tests {
		t.Run(
			tc.name, func(t *testing.T) {
				provider, ok := registry.ResolveProvider(tc.modelID)
				require.Equal(t, tc.wantKnown, ok)
				if tc.wantKnown {
					assert.Equal(t, tc.wantID, provider.ID)
				}
			},
		)
	}
}

func TestRequiresKey_FailsClosedForUnknown(t *testing.T) {
	registry := newTestRegistry("")

	assert.True(t, registry.RequiresKey("mystery-model"))
	assert.True(t, registry.RequiresKey("openai/gpt-4o"))
	assert.False(t, registry.RequiresKey("freellm/Qwen/Qwen2.5-0.5B-Instruct"))
	assert.False(t, registry.RequiresKey("hf/rwkv7-g1a4-2.9b-20251118-ctx8192"))
}

func TestRegistryDefaults(t *testing.T) {
	registry := newTestRegistry("")

	assert.Equal(t, "sk-test", registry.DefaultAPIKey("hf/rwkv7-g1a4-2.9b-20251118-ctx8192"))
	assert.Equal(
		t, "https://rwkv-red-team-rwkv-latestspace.hf.space/api/v1",
		registry.DefaultBaseURL("hf/rwkv7-g1a4-2.9b-20251118-ctx8192"),
	)
	assert.Equal(t, "", registry.DefaultAPIKey("openai/gpt-4o"))

	assert.Equal(t, 16384, registry.MaxOutputTokens("openai/gpt-4o"))
	assert.Equal(t, fallbackMaxOutputTokens, registry.MaxOutputTokens("mystery-model"))
	assert.Equal(t, 128000, registry.ContextWindow("openai/gpt-4o"))
	assert.Equal(t, fallbackMaxOutputTokens, registry.ContextWindow("mystery-model"))
}

func TestFetchAllModels_MergesAndOverrides(t *testing.T) {
	var openaiCalls atomic.Int32
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/providers":
					_ = json.NewEncoder(w).Encode(
						map[string][]string{"providers": {"freellm", "openai", "ollama"}},
					)
				case "/models/freellm":
					// One override of a fallback id, one new entry, mixed
					// entry shapes.
					_, _ = w.Write(
						[]byte(`{"models":["Qwen/Qwen2.5-0.5B-Instruct",{"id":"freellm/brand-new","name":"Brand New","description":"fresh"}]}`),
					)
				case "/models/openai":
					openaiCalls.Add(1)
					_, _ = w.Write([]byte(`{"models":["gpt-4o"]}`))
				case "/models/ollama":
					// One provider failing must not block the others.
					http.Error(w, "unreachable", http.StatusBadGateway)
				default:
					http.NotFound(w, r)
				}
			},
		),
	)
	defer server.Close()

	registry := newTestRegistry(server.URL)
	models := registry.FetchAllModels(context.Background(), nil)

	byID := make(map[string]model.AIModel)
	for _, m := range models {
		byID[m.ID] = m
	}

	// openai requires a key and none was given: no fetch attempted.
	assert.Equal(t, int32(0), openaiCalls.Load())

	// Fallback entries survive, including those of the failed provider.
	assert.Contains(t, byID, "ollama/gemma3:270m")
	assert.Contains(t, byID, "hf/rwkv7-g1a4-2.9b-20251118-ctx8192")

	// The fetched entry overrode the fallback entry with the same id.
	overridden := byID["freellm/Qwen/Qwen2.5-0.5B-Instruct"]
	assert.Equal(t, "Qwen/Qwen2.5-0.5B-Instruct", overridden.Name)

	// The new entry was appended.
	fresh := byID["freellm/brand-new"]
	assert.Equal(t, "Brand New", fresh.Name)
	assert.Equal(t, "fresh", fresh.Description)
	assert.True(t, fresh.Free)
}

func TestFetchAllModels_NoGatewayUsesFallback(t *testing.T) {
	registry := newTestRegistry("")

	models := registry.FetchAllModels(context.Background(), nil)

	assert.Equal(t, model.FallbackModels, models)
}

func TestDecodeModelList_BareArray(t *testing.T) {
	entries, err := decodeModelList([]byte(`["a","b"]`))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].name)
}

func TestFetchModelsForProvider_SendsAPIKey(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				gotKey = r.URL.Query().Get("apiKey")
				_, _ = w.Write([]byte(`{"models":[]}`))
			},
		),
	)
	defer server.Close()

	registry := newTestRegistry(server.URL)
	registry.fetchModelsForProvider(context.Background(), model.Providers["openai"], "sk-secret")

	assert.Equal(t, "sk-secret", gotKey)
}
