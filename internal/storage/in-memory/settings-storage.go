package in_memory

import (
	"context"
	"sync"

	"github.com/onellm/onechat/internal/model"
)

type SettingsStorage struct {
	mu       sync.Mutex
	settings *model.Settings
}

func NewSettingsStorage() *SettingsStorage {
	return &SettingsStorage{}
}

func (s *SettingsStorage) GetSettings(_ context.Context) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return model.DefaultSettings(""), nil
	}
	return s.settings.Clone(), nil
}

func (s *SettingsStorage) UpdateSettings(_ context.Context, settings model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := settings.Clone()
	s.settings = &stored
	return nil
}
