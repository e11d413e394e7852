package main

import (
	"github.com/rewired-gh/densityscanner/internal/config"
	"github.com/rewired-gh/densityscanner/internal/exchange"
	"github.com/rewired-gh/densityscanner/internal/logger"
	"github.com/rewired-gh/densityscanner/internal/monitor"
	"github.com/rewired-gh/densityscanner/internal/scanner"
	"github.com/rewired-gh/densityscanner/internal/settings"
)

func settingsDefaults(cfg *config.Config) settings.Defaults {
	d := settings.Defaults{
		DistancePct:           cfg.Scanner.DistancePct,
		ScanInterval:          cfg.Scanner.ScanInterval,
		OrderBookDepth:        cfg.Scanner.OrderBookDepth,
		AlertsEnabled:         cfg.Scanner.AlertsEnabled,
		QuoteCurrencies:       cfg.Scanner.QuoteCurrencies,
		GlobalBlacklist:       cfg.Scanner.GlobalBlacklist,
		GlobalTickerOverrides: cfg.Scanner.GlobalTickerOverrides,
		Exchanges:             make(map[string]settings.Exchange, len(cfg.Exchanges)),
	}
	for name, ex := range cfg.Exchanges {
		d.Exchanges[name] = settings.Exchange{
			MinSize:         ex.MinSize,
			MinLifetime:     ex.MinLifetime,
			TickerOverrides: ex.TickerOverrides,
			Blacklist:       ex.Blacklist,
		}
	}
	return d
}

func monitorConfig(cfg *config.Config) monitor.Config {
	return monitor.Config{
		Cooldown:       cfg.AntiSpam.Cooldown,
		SizeSurge:      cfg.AntiSpam.SizeSurge,
		PriceChange:    cfg.AntiSpam.PriceChange,
		PriceTolerance: cfg.AntiSpam.PriceTolerance,
		MissLimit:      cfg.Scanner.MissLimit,
	}
}

func engineConfig(cfg *config.Config) scanner.Config {
	c := scanner.DefaultConfig()
	c.PriorityTickers = cfg.Scanner.PriorityTickers
	c.SkipPrefixes = cfg.Scanner.SkipPrefixes
	c.SkipPatterns = cfg.Scanner.SkipPatterns
	c.MaxRetries = cfg.Scanner.MaxRetries
	c.RetryDelay = cfg.Scanner.RetryDelay
	c.RateLimitPause = cfg.Scanner.RateLimitPause
	c.ErrorResetThreshold = cfg.Scanner.ErrorResetThreshold
	c.Stream = scanner.StreamConfig{
		Enabled:         cfg.Stream.Enabled,
		ReconnectDelay:  cfg.Stream.ReconnectDelay,
		MaxReconnects:   cfg.Stream.MaxReconnects,
		MaxSymbols:      cfg.Stream.MaxSymbolsPerExchange,
		RateLimitPause:  cfg.Stream.RateLimitPause,
		RateLimitJitter: cfg.Stream.RateLimitJitter,
	}
	return c
}

// buildExchanges creates a client for every enabled exchange. Unknown
// names are logged and skipped.
func buildExchanges(cfg *config.Config) []scanner.ExchangeSpec {
	var specs []scanner.ExchangeSpec
	for _, name := range cfg.EnabledExchanges() {
		ex := cfg.Exchanges[name]
		client, err := exchange.New(name, exchange.Config{
			BaseURL: ex.BaseURL,
			WSURL:   ex.WSURL,
			Timeout: ex.Timeout,
		})
		if err != nil {
			logger.Error("Failed to initialize %s: %v", name, err)
			continue
		}
		_, streams := client.(exchange.Streamer)
		logger.Info("Initialized %s (concurrency: %d, streaming: %v)",
			exchange.VenueInfo(name).Label, ex.Concurrency, streams && cfg.Stream.Enabled)
		specs = append(specs, scanner.ExchangeSpec{
			Name:        name,
			Client:      client,
			Concurrency: ex.Concurrency,
			DepthLimit:  ex.DepthLimit,
		})
	}
	return specs
}
