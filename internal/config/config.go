package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	Spot      VenueConfig     `yaml:"spot"`
	Futures   VenueConfig     `yaml:"futures"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	State     StateConfig     `yaml:"state"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// VenueConfig describes one market: REST and websocket endpoints plus the
// traded symbol. Credentials come from the environment only.
type VenueConfig struct {
	RESTURL        string        `yaml:"rest_url"`
	WSURL          string        `yaml:"ws_url"`
	Symbol         string        `yaml:"symbol"`
	Timeout        time.Duration `yaml:"timeout"`
	RecvWindow     time.Duration `yaml:"recv_window"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`

	APIKey    string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

func (v VenueConfig) HasCredentials() bool {
	return v.APIKey != "" && v.SecretKey != ""
}

type StrategyConfig struct {
	MinQuoteSize        decimal.Decimal `yaml:"min_quote_size"`
	MaxQuoteSize        decimal.Decimal `yaml:"max_quote_size"`
	SpotRetryDelay      time.Duration   `yaml:"spot_retry_delay"`
	QuoteSampleInterval time.Duration   `yaml:"quote_sample_interval"`
}

type StateConfig struct {
	SQLitePath       string        `yaml:"sqlite_path"`
	JournalRetention time.Duration `yaml:"journal_retention"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueueSize       int           `yaml:"queue_size"`
}

type TelegramConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Token    string        `yaml:"token"`
	ChatID   string        `yaml:"chat_id"`
	Cooldown time.Duration `yaml:"cooldown"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := applyEnv(&cfg, env.ToMap(os.Environ())); err != nil {
		return nil, err
	}
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 14
	}
	venueDefaults(&cfg.Spot, "https://testnet.binance.vision", "wss://testnet.binance.vision/ws")
	venueDefaults(&cfg.Futures, "https://testnet.binancefuture.com", "wss://stream.binancefuture.com/ws")
	if cfg.Futures.Symbol == "" {
		cfg.Futures.Symbol = cfg.Spot.Symbol
	}
	if cfg.Strategy.SpotRetryDelay == 0 {
		cfg.Strategy.SpotRetryDelay = 250 * time.Millisecond
	}
	if cfg.Strategy.QuoteSampleInterval == 0 {
		cfg.Strategy.QuoteSampleInterval = 10 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/spot-hedge-bot.db"
	}
	if cfg.State.JournalRetention == 0 {
		cfg.State.JournalRetention = 7 * 24 * time.Hour
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Telegram.Cooldown == 0 {
		cfg.Telegram.Cooldown = time.Minute
	}
}

func venueDefaults(v *VenueConfig, restURL, wsURL string) {
	v.Symbol = strings.ToUpper(strings.TrimSpace(v.Symbol))
	if v.RESTURL == "" {
		v.RESTURL = restURL
	}
	if v.WSURL == "" {
		v.WSURL = wsURL
	}
	if v.Timeout == 0 {
		v.Timeout = 10 * time.Second
	}
	if v.RecvWindow == 0 {
		v.RecvWindow = 5 * time.Second
	}
	if v.ReconnectDelay == 0 {
		v.ReconnectDelay = 3 * time.Second
	}
	if v.PingInterval == 0 {
		v.PingInterval = 30 * time.Second
	}
}

type credentials struct {
	SpotAPIKey       string `env:"SPOT_API_KEY"`
	SpotSecretKey    string `env:"SPOT_SECRET_KEY"`
	FuturesAPIKey    string `env:"FUTURES_API_KEY"`
	FuturesSecretKey string `env:"FUTURES_SECRET_KEY"`
	TelegramToken    string `env:"TELEGRAM_TOKEN"`
}

func applyEnv(cfg *Config, environ map[string]string) error {
	var creds credentials
	if err := env.ParseWithOptions(&creds, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("parse credentials: %w", err)
	}
	set := func(dst *string, val string) {
		if val = strings.TrimSpace(val); val != "" {
			*dst = val
		}
	}
	set(&cfg.Spot.APIKey, creds.SpotAPIKey)
	set(&cfg.Spot.SecretKey, creds.SpotSecretKey)
	set(&cfg.Futures.APIKey, creds.FuturesAPIKey)
	set(&cfg.Futures.SecretKey, creds.FuturesSecretKey)
	set(&cfg.Telegram.Token, creds.TelegramToken)
	return nil
}

func validate(cfg *Config) error {
	if cfg.Spot.Symbol == "" {
		return errors.New("spot.symbol is required")
	}
	for name, v := range map[string]VenueConfig{"spot": cfg.Spot, "futures": cfg.Futures} {
		if v.Timeout < 0 || v.RecvWindow < 0 || v.ReconnectDelay < 0 || v.PingInterval < 0 {
			return fmt.Errorf("%s durations must be >= 0", name)
		}
	}
	if !cfg.Strategy.MinQuoteSize.IsPositive() {
		return errors.New("strategy.min_quote_size must be > 0")
	}
	if !cfg.Strategy.MaxQuoteSize.GreaterThan(cfg.Strategy.MinQuoteSize) {
		return errors.New("strategy.max_quote_size must be > strategy.min_quote_size")
	}
	if cfg.Strategy.SpotRetryDelay < 0 {
		return errors.New("strategy.spot_retry_delay must be >= 0")
	}
	if cfg.Strategy.QuoteSampleInterval < 0 {
		return errors.New("strategy.quote_sample_interval must be >= 0")
	}
	if cfg.State.JournalRetention < 0 {
		return errors.New("state.journal_retention must be >= 0")
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}
