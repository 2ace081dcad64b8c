package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Gateway struct {
	// BaseURL points at the completion gateway. When empty, requests go
	// straight to the provider's OpenAI-compatible endpoint.
	BaseURL        string        `yaml:"base_url" env:"GATEWAY_BASE_URL"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"GATEWAY_REQUEST_TIMEOUT" env-default:"120s"`
}

type Chat struct {
	DefaultModel     string        `yaml:"default_model" env:"CHAT_DEFAULT_MODEL" env-default:"hf/rwkv7-g1a4-2.9b-20251118-ctx8192"`
	ModelTemperature float32       `yaml:"model_temperature" env:"MODEL_TEMPERATURE" env-default:"0.7"`
	SyncDelay        time.Duration `yaml:"sync_delay" env:"CHAT_SYNC_DELAY" env-default:"500ms"`
}

type Search struct {
	URL        string `yaml:"url" env:"SEARCH_URL"`
	MaxResults int    `yaml:"max_results" env:"SEARCH_MAX_RESULTS" env-default:"5"`
}

type OCR struct {
	URL      string `yaml:"url" env:"OCR_URL" env-default:"https://api.ocr.space/parse/image"`
	APIKey   string `yaml:"api_key" env:"OCR_API_KEY"`
	Language string `yaml:"language" env:"OCR_LANGUAGE" env-default:"eng"`
}

type Redis struct {
	Endpoint string `yaml:"endpoint" env:"REDIS_ENDPOINT"`
}

// API configures the remote persistence collaborator.
type API struct {
	BaseURL string `yaml:"base_url" env:"API_BASE_URL"`
	Token   string `env:"API_TOKEN"`
}

type Config struct {
	Gateway Gateway `yaml:"gateway"`
	Chat    Chat    `yaml:"chat"`
	Search  Search  `yaml:"search"`
	OCR     OCR     `yaml:"ocr"`
	Redis   Redis   `yaml:"redis"`
	API     API     `yaml:"api"`
}

func LoadConfig(cfgPath string) (*Config, error) {
	var cfg Config
	if cfgPath != "" {
		if err := cleanenv.ReadConfig(cfgPath, &cfg); err != nil {
			return nil, err
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
