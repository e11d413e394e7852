package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
scanner:
  scan_interval: 45s
  distance_pct: 2.5
  global_ticker_overrides:
    BTC: 40000000

antispam:
  cooldown: 10m

exchanges:
  bingx:
    min_lifetime: 30
    blacklist: [DOGE]
  kucoin_spot:
    enabled: false

telegram:
  bot_token: "test_token"
  chat_id: "-100123"
  enabled: true

logging:
  level: "debug"
  format: "text"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Scanner.ScanInterval != 45*time.Second {
		t.Errorf("Unexpected scan interval: %v", cfg.Scanner.ScanInterval)
	}
	if cfg.Scanner.DistancePct != 2.5 {
		t.Errorf("Unexpected distance: %v", cfg.Scanner.DistancePct)
	}
	if cfg.Scanner.OrderBookDepth != 50 {
		t.Errorf("Default depth not applied: %d", cfg.Scanner.OrderBookDepth)
	}
	// viper lowercases map keys
	if cfg.Scanner.GlobalTickerOverrides["btc"] != 40_000_000 {
		t.Errorf("Unexpected overrides: %v", cfg.Scanner.GlobalTickerOverrides)
	}
	if cfg.AntiSpam.Cooldown != 10*time.Minute {
		t.Errorf("Unexpected cooldown: %v", cfg.AntiSpam.Cooldown)
	}
	if cfg.AntiSpam.SizeSurge != 0.5 {
		t.Errorf("Default size surge not applied: %v", cfg.AntiSpam.SizeSurge)
	}

	bingx := cfg.Exchanges["bingx"]
	if !bingx.Enabled || bingx.MinSize != 500_000 || bingx.MinLifetime != 30 || bingx.Concurrency != 20 {
		t.Errorf("bingx not merged with defaults: %+v", bingx)
	}
	if len(bingx.Blacklist) != 1 || bingx.Blacklist[0] != "DOGE" {
		t.Errorf("bingx blacklist = %v", bingx.Blacklist)
	}
	if bingx.Timeout != 30*time.Second {
		t.Errorf("bingx timeout = %v", bingx.Timeout)
	}
	if cfg.Exchanges["kucoin_spot"].Enabled {
		t.Error("kucoin_spot should be disabled")
	}

	got := strings.Join(cfg.EnabledExchanges(), ",")
	if got != "bingx,hyperliquid,kucoin_futures" {
		t.Errorf("EnabledExchanges() = %s", got)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.Stream.MaxSymbolsPerExchange != 30 || !cfg.Stream.Enabled {
		t.Errorf("stream defaults = %+v", cfg.Stream)
	}
	if cfg.Exchanges["kucoin_futures"].DepthLimit != 20 || cfg.Exchanges["bingx"].DepthLimit != 0 {
		t.Errorf("depth limits = %d/%d", cfg.Exchanges["kucoin_futures"].DepthLimit, cfg.Exchanges["bingx"].DepthLimit)
	}
	if cfg.Scanner.AlertsEnabled {
		t.Error("alerts should be disabled by default")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DENSITY_SCANNER_SCANNER_ORDERBOOK_DEPTH", "100")
	t.Setenv("DENSITY_SCANNER_TELEGRAM_BOT_TOKEN", "from-env")
	t.Setenv("DENSITY_SCANNER_EXCHANGES_HYPERLIQUID_ENABLED", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Scanner.OrderBookDepth != 100 {
		t.Errorf("depth = %d, want 100 from env", cfg.Scanner.OrderBookDepth)
	}
	if cfg.Telegram.BotToken != "from-env" {
		t.Errorf("bot token = %q", cfg.Telegram.BotToken)
	}
	if cfg.Exchanges["hyperliquid"].Enabled {
		t.Error("hyperliquid should be disabled from env")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero scan interval", func(c *Config) { c.Scanner.ScanInterval = 0 }},
		{"zero depth", func(c *Config) { c.Scanner.OrderBookDepth = 0 }},
		{"distance above 100", func(c *Config) { c.Scanner.DistancePct = 150 }},
		{"zero distance", func(c *Config) { c.Scanner.DistancePct = 0 }},
		{"no quotes", func(c *Config) { c.Scanner.QuoteCurrencies = nil }},
		{"zero miss limit", func(c *Config) { c.Scanner.MissLimit = 0 }},
		{"zero size surge", func(c *Config) { c.AntiSpam.SizeSurge = 0 }},
		{"zero reconnects", func(c *Config) { c.Stream.MaxReconnects = 0 }},
		{"zero reconnect delay", func(c *Config) { c.Stream.ReconnectDelay = 0 }},
		{"negative concurrency", func(c *Config) {
			ex := c.Exchanges["bingx"]
			ex.Concurrency = -1
			c.Exchanges["bingx"] = ex
		}},
		{"no enabled exchange", func(c *Config) {
			for name, ex := range c.Exchanges {
				ex.Enabled = false
				c.Exchanges[name] = ex
			}
		}},
		{"missing telegram token when enabled", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.ChatID = "1"
		}},
		{"missing telegram chat when enabled", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.BotToken = "t"
		}},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
