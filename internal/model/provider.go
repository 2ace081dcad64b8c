package model

// Provider is an immutable catalog entry describing an upstream LLM vendor.
type Provider struct {
	ID             string
	Name           string
	RequiresKey    bool
	KeyName        string
	KeyPlaceholder string
	DefaultAPIKey  string
	DefaultBaseURL string
}

// AIModel is a queryable model, addressed by a provider-prefixed id.
type AIModel struct {
	ID          string
	Name        string
	Provider    string
	Free        bool
	Description string
}

// Providers is the static provider catalog.
var Providers = map[string]Provider{
	"openai": {
		ID: "openai", Name: "OpenAI",
		RequiresKey: true, KeyName: "openai", KeyPlaceholder: "sk-...",
	},
	"anthropic": {
		ID: "anthropic", Name: "Anthropic",
		RequiresKey: true, KeyName: "anthropic", KeyPlaceholder: "sk-ant-...",
	},
	"google": {
		ID: "google", Name: "Google Gemini",
		RequiresKey: true, KeyName: "google", KeyPlaceholder: "AIza...",
	},
	"groq": {
		ID: "groq", Name: "Groq",
		RequiresKey: true, KeyName: "groq", KeyPlaceholder: "gsk_...",
	},
	"xai": {
		ID: "xai", Name: "xAI (Grok)",
		RequiresKey: true, KeyName: "xai", KeyPlaceholder: "xai-...",
	},
	"openrouter": {
		ID: "openrouter", Name: "OpenRouter",
		RequiresKey: true, KeyName: "openrouter", KeyPlaceholder: "sk-or-...",
	},
	"azure": {
		ID: "azure", Name: "Azure OpenAI",
		RequiresKey: true, KeyName: "azure", KeyPlaceholder: "api-key",
	},
	"cerebras": {
		ID: "cerebras", Name: "Cerebras",
		RequiresKey: true, KeyName: "cerebras", KeyPlaceholder: "cbs-...",
	},
	"copilot": {
		ID: "copilot", Name: "GitHub Copilot",
		RequiresKey: true, KeyName: "copilot", KeyPlaceholder: "token",
	},
	"huggingface": {
		ID: "huggingface", Name: "Hugging Face",
		RequiresKey: true, KeyName: "huggingface", KeyPlaceholder: "hf_...",
	},
	"ollama": {
		ID: "ollama", Name: "Ollama",
	},
	"freellm": {
		ID: "freellm", Name: "FreeLLM",
	},
	"rwkv": {
		ID: "rwkv", Name: "RWKV7",
		KeyName: "rwkv", KeyPlaceholder: "sk-test",
		DefaultAPIKey:  "sk-test",
		DefaultBaseURL: "https://rwkv-red-team-rwkv-latestspace.hf.space/api/v1",
	},
}

// MaxOutputTokens holds conservative per-provider output limits that work
// for every model a provider hosts.
var MaxOutputTokens = map[string]int{
	"openai":      16384,
	"anthropic":   8192,
	"google":      8192,
	"groq":        8192,
	"xai":         4096,
	"openrouter":  16384,
	"azure":       16384,
	"cerebras":    8192,
	"copilot":     4096,
	"huggingface": 8192,
	"ollama":      4096,
	"freellm":     2048,
	"rwkv":        4096,
}

// ContextWindows holds per-provider prompt+response token ceilings,
// conservative enough for the smallest model of each provider.
var ContextWindows = map[string]int{
	"openai":      128000,
	"anthropic":   200000,
	"google":      1000000,
	"groq":        32768,
	"xai":         131072,
	"openrouter":  32768,
	"azure":       128000,
	"cerebras":    32768,
	"copilot":     16384,
	"huggingface": 32768,
	"ollama":      8192,
	"freellm":     4096,
	"rwkv":        8192,
}

// FallbackModels is the static model list used until (or instead of) a
// dynamic per-provider fetch.
var FallbackModels = []AIModel{
	{ID: "freellm/TinyLlama/TinyLlama-1.1B-Chat-v1.0", Name: "TinyLlama 1.1B", Provider: "freellm", Free: true, Description: "Fast, lightweight"},
	{ID: "freellm/Qwen/Qwen2.5-0.5B-Instruct", Name: "Qwen 0.5B", Provider: "freellm", Free: true, Description: "Ultra-fast"},
	{ID: "freellm/Qwen/Qwen2.5-1.5B-Instruct", Name: "Qwen 1.5B", Provider: "freellm", Free: true, Description: "Balanced"},

	{ID: "hf/rwkv7-g1a4-2.9b-20251118-ctx8192", Name: "RWKV7 2.9B", Provider: "rwkv", Free: true, Description: "Standard chat"},
	{ID: "hf/rwkv7-g1a4-2.9b-20251118-ctx8192:thinking", Name: "RWKV7 2.9B Thinking", Provider: "rwkv", Free: true, Description: "Chain-of-thought reasoning"},

	{ID: "ollama/gemma3:270m", Name: "Gemma3 270M", Provider: "ollama", Free: true, Description: "Google lightweight"},
	{ID: "ollama/gemma3:4b", Name: "Gemma3 4B", Provider: "ollama", Free: true, Description: "Google balanced"},
	{ID: "ollama/mistral:7b", Name: "Mistral 7B", Provider: "ollama", Free: true, Description: "Powerful open model"},
}
