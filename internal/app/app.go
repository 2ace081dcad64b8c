package app

import (
	"context"

	"github.com/onellm/onechat/config"
	"github.com/onellm/onechat/internal/storage/api"
	in_memory "github.com/onellm/onechat/internal/storage/in-memory"
	key_value "github.com/onellm/onechat/internal/storage/key-value"
	"github.com/onellm/onechat/internal/usecase"
	"github.com/redis/go-redis/v9"
)

func Run(ctx context.Context, cfg *config.Config) error {
	registryUsecase := usecase.NewRegistryUsecase(cfg.Gateway)
	completionUsecase := usecase.NewCompletionUsecase(cfg.Gateway, registryUsecase)

	var search usecase.Searcher
	if cfg.Search.URL != "" {
		search = usecase.NewSearchUsecase(cfg.Search)
	}

	conversations, settings := buildStorage(cfg)

	chatUsecase := usecase.NewChatUsecase(
		usecase.ChatUsecaseDeps{
			Conversations: conversations,
			Settings:      settings,
			Completion:    completionUsecase,
			Search:        search,
		}, cfg.Chat,
	)
	if err := chatUsecase.Load(ctx); err != nil {
		return err
	}

	consoleUsecase := usecase.NewConsoleUsecase(
		usecase.ConsoleUsecaseDeps{
			Chat:     chatUsecase,
			Registry: registryUsecase,
			OCR:      usecase.NewOCRUsecase(cfg.OCR),
		},
	)
	return consoleUsecase.Run(ctx)
}

// buildStorage picks the persistence backend: the remote API when
// configured, redis when an endpoint is set, in-process memory otherwise.
func buildStorage(cfg *config.Config) (usecase.ConversationStorage, usecase.SettingsStorage) {
	if cfg.API.BaseURL != "" {
		client := api.NewClient(cfg.API)
		return client, client
	}
	if cfg.Redis.Endpoint != "" {
		rdb := redis.NewClient(
			&redis.Options{
				Addr: cfg.Redis.Endpoint,
			},
		)
		return key_value.NewConversationStorage(rdb), key_value.NewSettingsStorage(rdb)
	}
	return in_memory.NewConversationStorage(), in_memory.NewSettingsStorage()
}
