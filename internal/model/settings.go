package model

// Settings is the per-user client configuration. API keys and base URLs are
// keyed by provider key-name. Keys stay on this side of the trust boundary:
// they are attached to outbound provider requests only and never written
// into the shared conversation store.
type Settings struct {
	APIKeys       map[string]string `json:"apiKeys"`
	BaseURLs      map[string]string `json:"baseUrls"`
	SelectedModel string            `json:"selectedModel"`
	StreamOutput  bool              `json:"streamOutput"`
	SearchEnabled bool              `json:"searchEnabled"`
}

func DefaultSettings(selectedModel string) Settings {
	return Settings{
		APIKeys:       make(map[string]string),
		BaseURLs:      make(map[string]string),
		SelectedModel: selectedModel,
		StreamOutput:  true,
		SearchEnabled: false,
	}
}

func (s Settings) Clone() Settings {
	out := s
	out.APIKeys = make(map[string]string, len(s.APIKeys))
	for k, v := range s.APIKeys {
		out.APIKeys[k] = v
	}
	out.BaseURLs = make(map[string]string, len(s.BaseURLs))
	for k, v := range s.BaseURLs {
		out.BaseURLs[k] = v
	}
	return out
}
