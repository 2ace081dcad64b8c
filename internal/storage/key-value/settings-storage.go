package key_value

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/onellm/onechat/internal/model"
	"github.com/redis/go-redis/v9"
)

const settingsKey = "user_settings"

// SettingsStorage keeps the user settings as one JSON record. The record
// lives in the user's own store, not in the shared conversation records, so
// API keys never cross that boundary.
type SettingsStorage struct {
	rdb *redis.Client
}

func NewSettingsStorage(rdb *redis.Client) *SettingsStorage {
	return &SettingsStorage{
		rdb: rdb,
	}
}

func (s *SettingsStorage) GetSettings(ctx context.Context) (model.Settings, error) {
	raw, err := s.rdb.Get(ctx, settingsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.DefaultSettings(""), nil
		}
		return model.Settings{}, fmt.Errorf("failed to get settings: %w", err)
	}
	var settings model.Settings
	if err = json.Unmarshal([]byte(raw), &settings); err != nil {
		return model.Settings{}, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return settings, nil
}

func (s *SettingsStorage) UpdateSettings(ctx context.Context, settings model.Settings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err = s.rdb.Set(ctx, settingsKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
