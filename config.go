package pigeon

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the process configuration. Missing required settings are a
// fatal startup error; nothing else initializes without them.
type Config struct {
	// TelegramToken is the bot token. Required.
	TelegramToken string `mapstructure:"telegram_token"`
	// AuthorizedUser is the only Telegram user id served. Required.
	AuthorizedUser int64 `mapstructure:"authorized_user"`

	// DataDir roots the task file, memory directory and run-state record.
	DataDir string `mapstructure:"data_dir"`

	// APIBase is the OpenAI-compatible endpoint root.
	APIBase string `mapstructure:"api_base"`
	// APIKey authenticates against APIBase. May be empty for local
	// endpoints.
	APIKey string `mapstructure:"api_key"`
	// Model serves the interactive conversation.
	Model string `mapstructure:"model"`
	// BackgroundModel serves queued tasks. Falls back to Model.
	BackgroundModel string `mapstructure:"background_model"`

	// IdleInterval and DrainInterval tune the worker's polling.
	IdleInterval  time.Duration `mapstructure:"idle_interval"`
	DrainInterval time.Duration `mapstructure:"drain_interval"`
}

// LoadConfig reads pigeon.yaml from path (when non-empty), the working
// directory or $HOME, with PIGEON_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("pigeon")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	v.SetEnvPrefix("pigeon")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keys without defaults need an explicit bind for env-only setups.
	for _, key := range []string{"telegram_token", "authorized_user", "api_key", "background_model"} {
		_ = v.BindEnv(key)
	}

	v.SetDefault("data_dir", "data")
	v.SetDefault("api_base", "https://api.openai.com/v1")
	v.SetDefault("model", "gpt-4o")
	v.SetDefault("idle_interval", "5s")
	v.SetDefault("drain_interval", "500ms")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing config file is fine when the environment carries the
		// required settings; a broken file is not.
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("pigeon: read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("pigeon: parse config: %w", err)
	}

	if cfg.TelegramToken == "" {
		return nil, errors.New("pigeon: telegram_token is required")
	}
	if cfg.AuthorizedUser == 0 {
		return nil, errors.New("pigeon: authorized_user is required")
	}
	if cfg.BackgroundModel == "" {
		cfg.BackgroundModel = cfg.Model
	}
	return &cfg, nil
}
