package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validConfig() *Config {
	return &Config{
		Spot: VenueConfig{Symbol: "btcusdt"},
		Strategy: StrategyConfig{
			MinQuoteSize: decimal.RequireFromString("10"),
			MaxQuoteSize: decimal.RequireFromString("100"),
		},
	}
}

func TestVenueDefaults(t *testing.T) {
	cfg := validConfig()
	applyDefaults(cfg)
	if cfg.Spot.Symbol != "BTCUSDT" {
		t.Fatalf("expected upper-cased spot symbol, got %q", cfg.Spot.Symbol)
	}
	if cfg.Futures.Symbol != "BTCUSDT" {
		t.Fatalf("expected futures symbol to follow spot, got %q", cfg.Futures.Symbol)
	}
	if cfg.Spot.RESTURL != "https://testnet.binance.vision" {
		t.Fatalf("unexpected spot rest url %q", cfg.Spot.RESTURL)
	}
	if cfg.Futures.WSURL != "wss://stream.binancefuture.com/ws" {
		t.Fatalf("unexpected futures ws url %q", cfg.Futures.WSURL)
	}
	if cfg.Spot.Timeout <= 0 || cfg.Futures.ReconnectDelay <= 0 || cfg.Futures.RecvWindow <= 0 {
		t.Fatalf("expected venue duration defaults, got %+v", cfg.Futures)
	}
}

func TestStrategyDefaults(t *testing.T) {
	cfg := validConfig()
	applyDefaults(cfg)
	if cfg.Strategy.SpotRetryDelay != 250*time.Millisecond {
		t.Fatalf("expected spot retry delay default, got %v", cfg.Strategy.SpotRetryDelay)
	}
	if cfg.Strategy.QuoteSampleInterval <= 0 {
		t.Fatalf("expected quote sample interval default, got %v", cfg.Strategy.QuoteSampleInterval)
	}
}

func TestMetricsDefaults(t *testing.T) {
	cfg := validConfig()
	applyDefaults(cfg)
	if cfg.Metrics.Enabled == nil || !cfg.Metrics.EnabledValue() {
		t.Fatalf("expected metrics enabled default")
	}
	if cfg.Metrics.Address != "127.0.0.1:9001" {
		t.Fatalf("expected metrics address default, got %q", cfg.Metrics.Address)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Fatalf("expected metrics path default, got %q", cfg.Metrics.Path)
	}
}

func TestMetricsExplicitDisable(t *testing.T) {
	disabled := false
	cfg := validConfig()
	cfg.Metrics.Enabled = &disabled
	applyDefaults(cfg)
	if cfg.Metrics.EnabledValue() {
		t.Fatalf("expected explicit disable to be kept")
	}
}

func TestApplyEnvCredentials(t *testing.T) {
	env := map[string]string{
		"SPOT_API_KEY":       "sk",
		"SPOT_SECRET_KEY":    "ss",
		"FUTURES_API_KEY":    "fk",
		"FUTURES_SECRET_KEY": " fs ",
		"TELEGRAM_TOKEN":     "tg",
	}
	cfg := validConfig()
	if err := applyEnv(cfg, env); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if !cfg.Spot.HasCredentials() || !cfg.Futures.HasCredentials() {
		t.Fatalf("expected credentials to be set")
	}
	if cfg.Futures.SecretKey != "fs" {
		t.Fatalf("expected trimmed secret, got %q", cfg.Futures.SecretKey)
	}
	if cfg.Telegram.Token != "tg" {
		t.Fatalf("expected telegram token from env, got %q", cfg.Telegram.Token)
	}
}

func TestValidateRequiresSymbol(t *testing.T) {
	cfg := validConfig()
	cfg.Spot.Symbol = ""
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing symbol")
	}
}

func TestValidateRejectsMaxNotAboveMin(t *testing.T) {
	cfg := validConfig()
	cfg.Strategy.MaxQuoteSize = decimal.RequireFromString("10")
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for max_quote_size <= min_quote_size")
	}
}

func TestValidateRejectsNonPositiveMin(t *testing.T) {
	cfg := validConfig()
	cfg.Strategy.MinQuoteSize = decimal.Zero
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for zero min_quote_size")
	}
}

func TestValidateRejectsNegativeRetryDelay(t *testing.T) {
	cfg := validConfig()
	cfg.Strategy.SpotRetryDelay = -1 * time.Second
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for negative spot retry delay")
	}
}

func TestValidateRejectsMetricsPathWithoutSlash(t *testing.T) {
	cfg := validConfig()
	cfg.Metrics.Path = "metrics"
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for metrics path without leading slash")
	}
}

func TestValidateRequiresTimescaleDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Timescale.Enabled = true
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing timescale dsn")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "" +
		"spot:\n" +
		"  symbol: ethusdt\n" +
		"futures:\n" +
		"  rest_url: https://fapi.example\n" +
		"strategy:\n" +
		"  min_quote_size: 10.5\n" +
		"  max_quote_size: \"250\"\n" +
		"  spot_retry_delay: 1s\n" +
		"telegram:\n" +
		"  chat_id: \"42\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Spot.Symbol != "ETHUSDT" || cfg.Futures.Symbol != "ETHUSDT" {
		t.Fatalf("unexpected symbols %q %q", cfg.Spot.Symbol, cfg.Futures.Symbol)
	}
	if cfg.Futures.RESTURL != "https://fapi.example" {
		t.Fatalf("unexpected futures rest url %q", cfg.Futures.RESTURL)
	}
	if cfg.Strategy.MinQuoteSize.String() != "10.5" || cfg.Strategy.MaxQuoteSize.String() != "250" {
		t.Fatalf("unexpected quote bounds %s %s", cfg.Strategy.MinQuoteSize, cfg.Strategy.MaxQuoteSize)
	}
	if cfg.Strategy.SpotRetryDelay != time.Second {
		t.Fatalf("unexpected retry delay %v", cfg.Strategy.SpotRetryDelay)
	}
	if cfg.Telegram.ChatID != "42" {
		t.Fatalf("unexpected chat id %q", cfg.Telegram.ChatID)
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
