// Package config loads the scanner's static configuration from a YAML file
// and DENSITY_SCANNER_* environment variables.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Scanner   ScannerConfig             `mapstructure:"scanner"`
	AntiSpam  AntiSpamConfig            `mapstructure:"antispam"`
	Stream    StreamConfig              `mapstructure:"stream"`
	Exchanges map[string]ExchangeConfig `mapstructure:"exchanges"`
	Telegram  TelegramConfig            `mapstructure:"telegram"`
	Storage   StorageConfig             `mapstructure:"storage"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
	Logging   LoggingConfig             `mapstructure:"logging"`
}

// ScannerConfig holds the scan loop and detection defaults. The values
// that can be changed at runtime seed the settings store.
type ScannerConfig struct {
	ScanInterval          time.Duration      `mapstructure:"scan_interval"`
	OrderBookDepth        int                `mapstructure:"orderbook_depth"`
	DistancePct           float64            `mapstructure:"distance_pct"`
	AlertsEnabled         bool               `mapstructure:"alerts_enabled"`
	QuoteCurrencies       []string           `mapstructure:"quote_currencies"`
	PriorityTickers       []string           `mapstructure:"priority_tickers"`
	GlobalBlacklist       []string           `mapstructure:"global_blacklist"`
	GlobalTickerOverrides map[string]float64 `mapstructure:"global_ticker_overrides"`
	SkipPrefixes          []string           `mapstructure:"skip_prefixes"`
	SkipPatterns          []string           `mapstructure:"skip_patterns"`
	MaxRetries            int                `mapstructure:"max_retries"`
	RetryDelay            time.Duration      `mapstructure:"retry_delay"`
	RateLimitPause        time.Duration      `mapstructure:"rate_limit_pause"`
	ErrorResetThreshold   int                `mapstructure:"error_reset_threshold"`
	MissLimit             int                `mapstructure:"miss_limit"`
}

// AntiSpamConfig holds the alert deduplication thresholds
type AntiSpamConfig struct {
	Cooldown       time.Duration `mapstructure:"cooldown"`
	SizeSurge      float64       `mapstructure:"size_surge"`
	PriceChange    float64       `mapstructure:"price_change"`
	PriceTolerance float64       `mapstructure:"price_tolerance"`
}

// StreamConfig holds push-stream configuration
type StreamConfig struct {
	Enabled               bool          `mapstructure:"enabled"`
	ReconnectDelay        time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnects         int           `mapstructure:"max_reconnects"`
	MaxSymbolsPerExchange int           `mapstructure:"max_symbols_per_exchange"`
	RateLimitPause        time.Duration `mapstructure:"rate_limit_pause"`
	RateLimitJitter       time.Duration `mapstructure:"rate_limit_jitter"`
}

// ExchangeConfig holds one venue's configuration
type ExchangeConfig struct {
	Enabled         bool               `mapstructure:"enabled"`
	MinSize         float64            `mapstructure:"min_size"`
	MinLifetime     int                `mapstructure:"min_lifetime"`
	Concurrency     int                `mapstructure:"concurrency"`
	DepthLimit      int                `mapstructure:"depth_limit"`
	TickerOverrides map[string]float64 `mapstructure:"ticker_overrides"`
	Blacklist       []string           `mapstructure:"blacklist"`
	BaseURL         string             `mapstructure:"base_url"`
	WSURL           string             `mapstructure:"ws_url"`
	Timeout         time.Duration      `mapstructure:"timeout"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	OwnerUserID    int64         `mapstructure:"owner_user_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	QueueSize      int           `mapstructure:"queue_size"`
}

// StorageConfig holds settings persistence configuration
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// MetricsConfig holds the ops HTTP server configuration
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. An empty
// path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("DENSITY_SCANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

type exchangeDefaults struct {
	minSize     float64
	concurrency int
	depthLimit  int
}

var defaultExchanges = map[string]exchangeDefaults{
	"kucoin_spot":    {minSize: 500_000, concurrency: 8, depthLimit: 20},
	"kucoin_futures": {minSize: 300_000, concurrency: 8, depthLimit: 20},
	"hyperliquid":    {minSize: 1_000_000, concurrency: 20, depthLimit: 20},
	"bingx":          {minSize: 500_000, concurrency: 20},
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Scanner defaults
	v.SetDefault("scanner.scan_interval", "30s")
	v.SetDefault("scanner.orderbook_depth", 50)
	v.SetDefault("scanner.distance_pct", 3.0)
	v.SetDefault("scanner.alerts_enabled", false)
	v.SetDefault("scanner.quote_currencies", []string{"USDT", "USD", "USDC", "BUSD"})
	v.SetDefault("scanner.priority_tickers", []string{
		"BTC", "ETH", "SOL", "XRP", "DOGE", "PEPE", "WIF",
		"HYPE", "SUI", "AAVE", "BNB", "LINK", "SEI", "PUMP",
	})
	v.SetDefault("scanner.global_blacklist", []string{"BCH", "QQQ", "TSLA", "XAU", "HAG", "PAXG", "XAG", "USDC"})
	v.SetDefault("scanner.global_ticker_overrides", map[string]float64{
		"BTC": 30_000_000, "ETH": 20_000_000, "SOL": 10_000_000, "XRP": 10_000_000,
		"BNB": 10_000_000, "SUI": 10_000_000, "HYPE": 5_000_000, "LTC": 2_000_000,
	})
	v.SetDefault("scanner.skip_prefixes", []string{"TEST", "XYZ"})
	v.SetDefault("scanner.skip_patterns", []string{"DEMO", "SANDBOX", "MOCK"})
	v.SetDefault("scanner.max_retries", 3)
	v.SetDefault("scanner.retry_delay", "5s")
	v.SetDefault("scanner.rate_limit_pause", "5s")
	v.SetDefault("scanner.error_reset_threshold", 10)
	v.SetDefault("scanner.miss_limit", 3)

	// Anti-spam defaults
	v.SetDefault("antispam.cooldown", "300s")
	v.SetDefault("antispam.size_surge", 0.50)
	v.SetDefault("antispam.price_change", 0.005)
	v.SetDefault("antispam.price_tolerance", 0.001)

	// Stream defaults
	v.SetDefault("stream.enabled", true)
	v.SetDefault("stream.reconnect_delay", "5s")
	v.SetDefault("stream.max_reconnects", 10)
	v.SetDefault("stream.max_symbols_per_exchange", 30)
	v.SetDefault("stream.rate_limit_pause", "2s")
	v.SetDefault("stream.rate_limit_jitter", "1s")

	// Exchange defaults
	for name, d := range defaultExchanges {
		prefix := "exchanges." + name + "."
		v.SetDefault(prefix+"enabled", true)
		v.SetDefault(prefix+"min_size", d.minSize)
		v.SetDefault(prefix+"min_lifetime", 0)
		v.SetDefault(prefix+"concurrency", d.concurrency)
		v.SetDefault(prefix+"depth_limit", d.depthLimit)
		v.SetDefault(prefix+"timeout", "30s")
	}

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.owner_user_id", 0)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.queue_size", 1000)

	// Storage defaults
	v.SetDefault("storage.db_path", "")

	// Metrics defaults
	v.SetDefault("metrics.listen_addr", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Scanner config
	if c.Scanner.ScanInterval <= 0 {
		return fmt.Errorf("scanner.scan_interval must be positive")
	}
	if c.Scanner.OrderBookDepth < 1 {
		return fmt.Errorf("scanner.orderbook_depth must be at least 1")
	}
	if c.Scanner.DistancePct <= 0 || c.Scanner.DistancePct > 100 {
		return fmt.Errorf("scanner.distance_pct must be in (0, 100]")
	}
	if len(c.Scanner.QuoteCurrencies) == 0 {
		return fmt.Errorf("scanner.quote_currencies must contain at least one currency")
	}
	if c.Scanner.MaxRetries < 1 {
		return fmt.Errorf("scanner.max_retries must be at least 1")
	}
	if c.Scanner.RetryDelay < 0 || c.Scanner.RateLimitPause < 0 {
		return fmt.Errorf("scanner delays must not be negative")
	}
	if c.Scanner.MissLimit < 1 {
		return fmt.Errorf("scanner.miss_limit must be at least 1")
	}

	// Validate AntiSpam config
	if c.AntiSpam.Cooldown < 0 {
		return fmt.Errorf("antispam.cooldown must not be negative")
	}
	if c.AntiSpam.SizeSurge <= 0 || c.AntiSpam.PriceChange <= 0 || c.AntiSpam.PriceTolerance <= 0 {
		return fmt.Errorf("antispam thresholds must be positive")
	}

	// Validate Stream config
	if c.Stream.Enabled {
		if c.Stream.MaxReconnects < 1 {
			return fmt.Errorf("stream.max_reconnects must be at least 1")
		}
		if c.Stream.ReconnectDelay <= 0 {
			return fmt.Errorf("stream.reconnect_delay must be positive")
		}
		if c.Stream.MaxSymbolsPerExchange < 0 {
			return fmt.Errorf("stream.max_symbols_per_exchange must not be negative")
		}
	}

	// Validate Exchanges config
	enabled := 0
	for name, ex := range c.Exchanges {
		if !ex.Enabled {
			continue
		}
		enabled++
		if ex.Concurrency < 0 {
			return fmt.Errorf("exchanges.%s.concurrency must not be negative", name)
		}
		if ex.MinSize < 0 {
			return fmt.Errorf("exchanges.%s.min_size must not be negative", name)
		}
		if ex.MinLifetime < 0 {
			return fmt.Errorf("exchanges.%s.min_lifetime must not be negative", name)
		}
		if ex.DepthLimit < 0 {
			return fmt.Errorf("exchanges.%s.depth_limit must not be negative", name)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one exchange must be enabled")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Telegram.QueueSize < 0 {
		return fmt.Errorf("telegram.queue_size must not be negative")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// EnabledExchanges returns the names of enabled exchanges in sorted order.
func (c *Config) EnabledExchanges() []string {
	var names []string
	for name, ex := range c.Exchanges {
		if ex.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
