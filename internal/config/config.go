package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Directus  DirectusConfig  `yaml:"directus" mapstructure:"directus"`
	Sync      SyncConfig      `yaml:"sync" mapstructure:"sync"`
	Entsoe    EntsoeConfig    `yaml:"entsoe" mapstructure:"entsoe"`
	Campai    CampaiConfig    `yaml:"campai" mapstructure:"campai"`
	Slack     SlackConfig     `yaml:"slack" mapstructure:"slack"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// DirectusConfig holds the Directus API endpoint and access token.
type DirectusConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Token   string `yaml:"token" mapstructure:"token"`
	// WriteRate limits create/update calls per second against the Items API.
	WriteRate float64 `yaml:"write_rate" mapstructure:"write_rate"`
}

// SyncConfig configures the dataset sync engine.
type SyncConfig struct {
	// DatabaseURL points at the same Postgres that backs Directus; the
	// sync.sync_log audit table lives there.
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	// DWDBaseURL allows pointing the DWD adapter at the CDC FTP mirror
	// (ftp://opendata.dwd.de/...) instead of HTTPS.
	DWDBaseURL string `yaml:"dwd_base_url" mapstructure:"dwd_base_url"`
}

// EntsoeConfig holds the ENTSO-E transparency platform token.
type EntsoeConfig struct {
	Token   string `yaml:"token" mapstructure:"token"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// CampaiConfig holds Campai accounting API credentials.
type CampaiConfig struct {
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	OrgID     string `yaml:"org_id" mapstructure:"org_id"`
	MandateID string `yaml:"mandate_id" mapstructure:"mandate_id"`
	Year      int    `yaml:"year" mapstructure:"year"`
}

// SlackConfig holds the webhook used for run notifications and the bot
// token + channel used by the news importer.
type SlackConfig struct {
	WebhookURL    string `yaml:"webhook_url" mapstructure:"webhook_url"`
	BotToken      string `yaml:"bot_token" mapstructure:"bot_token"`
	NewsChannelID string `yaml:"news_channel_id" mapstructure:"news_channel_id"`
}

// AnthropicConfig holds Claude API settings for translation filling.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("KLIMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("directus.write_rate", 20.0)
	v.SetDefault("sync.temp_dir", "/tmp/klimasync")
	v.SetDefault("sync.user_agent", "klimasync/1.0 (klimadashboard.org)")
	v.SetDefault("sync.dwd_base_url", "https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/daily/kl/recent")
	v.SetDefault("entsoe.base_url", "https://web-api.tp.entsoe.eu/api")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1500)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
