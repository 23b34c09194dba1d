package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/elonfeng/ledgerfeed/pkg/feed"
	"github.com/elonfeng/ledgerfeed/pkg/rank"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Reputation ReputationConfig `yaml:"reputation"`
	Ranking    RankingConfig    `yaml:"ranking"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// DatabaseConfig configures the SQLite post index.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig points at the node and the two contracts.
type LedgerConfig struct {
	RPCURL             string `yaml:"rpc_url"`
	SocialContract     string `yaml:"social_contract"`
	ReputationContract string `yaml:"reputation_contract"`
	Concurrency        int    `yaml:"concurrency"`
	MaxRetries         int    `yaml:"max_retries"`
	Timeout            string `yaml:"timeout"`
}

// ParseTimeout returns the per-request timeout.
func (l LedgerConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(l.Timeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// ReputationConfig configures reputation lookups and their cache.
type ReputationConfig struct {
	Cache         string `yaml:"cache"` // "memory", "redis" or "none"
	CacheTTL      string `yaml:"cache_ttl"`
	CacheCapacity int    `yaml:"cache_capacity"`
	RedisURL      string `yaml:"redis_url"`
	Concurrency   int    `yaml:"concurrency"`
}

// ParseCacheTTL returns how long a reputation score may be served from cache.
func (r ReputationConfig) ParseCacheTTL() time.Duration {
	d, err := time.ParseDuration(r.CacheTTL)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// RankingConfig configures the feed engine.
type RankingConfig struct {
	Weights        rank.Weights `yaml:"weights"`
	TrendingWindow string       `yaml:"trending_window"`
	TrendingLimit  int          `yaml:"trending_limit"`
}

// ParseTrendingWindow returns the trending window as time.Duration.
func (r RankingConfig) ParseTrendingWindow() time.Duration {
	d, err := time.ParseDuration(r.TrendingWindow)
	if err != nil || d <= 0 {
		return rank.DefaultTrendingWindow
	}
	return d
}

// ScheduleConfig holds cron specs for background jobs.
type ScheduleConfig struct {
	Sync     string `yaml:"sync"`
	Trending string `yaml:"trending"`

	// RefreshRecent is how many of the newest indexed posts each sync
	// re-reads to pick up new likes and replies.
	RefreshRecent uint64 `yaml:"refresh_recent"`
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	Slack    SlackConfig    `yaml:"slack"`
	Discord  DiscordConfig  `yaml:"discord"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Telegram TelegramConfig `yaml:"telegram"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// TelegramConfig for Telegram bot alerts.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// KafkaConfig publishes trending events to a topic.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	PublicURL string `yaml:"public_url"` // linked from alerts
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./ledgerfeed.db"},
		Ledger: LedgerConfig{
			RPCURL:      "http://127.0.0.1:8545",
			Concurrency: 8,
			MaxRetries:  3,
			Timeout:     "15s",
		},
		Reputation: ReputationConfig{
			Cache:         "memory",
			CacheTTL:      "60s",
			CacheCapacity: 4096,
			Concurrency:   16,
		},
		Ranking: RankingConfig{
			Weights:        rank.DefaultWeights(),
			TrendingWindow: "24h",
			TrendingLimit:  rank.DefaultTrendingLimit,
		},
		Schedule: ScheduleConfig{
			Sync:          "@every 5m",
			Trending:      "@every 15m",
			RefreshRecent: 50,
		},
		Alerts: AlertsConfig{
			Kafka: KafkaConfig{Topic: "ledgerfeed.trending"},
		},
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// LoadDotEnv loads environment variables from path if the file exists.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LEDGERFEED_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("LEDGERFEED_RPC_URL"); v != "" {
		cfg.Ledger.RPCURL = v
	}
	if v := os.Getenv("SOCIAL_CONTRACT"); v != "" {
		cfg.Ledger.SocialContract = v
	}
	if v := os.Getenv("REPUTATION_CONTRACT"); v != "" {
		cfg.Ledger.ReputationContract = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Reputation.RedisURL = v
		cfg.Reputation.Cache = "redis"
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Alerts.Telegram.BotToken = v
		cfg.Alerts.Telegram.Enabled = true
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Alerts.Telegram.ChatID = id
	}
	if v := os.Getenv("LEDGERFEED_PUBLIC_URL"); v != "" {
		cfg.Server.PublicURL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Alerts.Kafka.Brokers = strings.Split(v, ",")
		cfg.Alerts.Kafka.Enabled = true
	}
	return nil
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Ranking.Weights.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ranking.weights: %w", err))
	}
	if _, err := feed.ParseAddress(c.Ledger.SocialContract); err != nil {
		errs = append(errs, fmt.Errorf("ledger.social_contract: %w", err))
	}
	if _, err := feed.ParseAddress(c.Ledger.ReputationContract); err != nil {
		errs = append(errs, fmt.Errorf("ledger.reputation_contract: %w", err))
	}
	if c.Ledger.RPCURL == "" {
		errs = append(errs, errors.New("ledger.rpc_url is required"))
	}
	switch c.Reputation.Cache {
	case "memory", "none", "":
	case "redis":
		if c.Reputation.RedisURL == "" {
			errs = append(errs, errors.New("reputation.redis_url is required for the redis cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("reputation.cache: unknown backend %q", c.Reputation.Cache))
	}
	if c.Alerts.Telegram.Enabled && c.Alerts.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("alerts.telegram.chat_id is required"))
	}
	if c.Alerts.Kafka.Enabled && (len(c.Alerts.Kafka.Brokers) == 0 || c.Alerts.Kafka.Topic == "") {
		errs = append(errs, errors.New("alerts.kafka needs brokers and a topic"))
	}
	return errors.Join(errs...)
}
