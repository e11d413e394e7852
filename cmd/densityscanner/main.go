package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rewired-gh/densityscanner/internal/alerts"
	"github.com/rewired-gh/densityscanner/internal/config"
	"github.com/rewired-gh/densityscanner/internal/logger"
	"github.com/rewired-gh/densityscanner/internal/metrics"
	"github.com/rewired-gh/densityscanner/internal/monitor"
	"github.com/rewired-gh/densityscanner/internal/scanner"
	"github.com/rewired-gh/densityscanner/internal/settings"
	"github.com/rewired-gh/densityscanner/internal/storage"
	"github.com/rewired-gh/densityscanner/internal/telegram"
)

var configPath = flag.String("config", "", "Path to configuration file (defaults and environment only when empty)")

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if *configPath != "" {
		logger.Info("Configuration loaded from %s", *configPath)
	}

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	runtimeSettings := settings.New(settingsDefaults(cfg), store)
	if err := runtimeSettings.Restore(); err != nil {
		logger.Error("Failed to restore saved settings, using configured defaults: %v", err)
	}

	specs := buildExchanges(cfg)
	if len(specs) == 0 {
		logger.Fatal("No exchanges could be initialized")
	}

	queue := alerts.NewQueue(cfg.Telegram.QueueSize)
	mon := monitor.New(monitorConfig(cfg))
	engine := scanner.New(engineConfig(cfg), runtimeSettings, mon, queue, specs...)

	var deliverer alerts.Deliverer = alerts.LogDeliverer{}
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			cfg.Telegram.OwnerUserID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		deliverer = telegramClient
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Info("Telegram notifications disabled, alerts go to the log")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		engine.Stop()
		cancel()
	}()

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, &botController{Store: runtimeSettings, engine: engine})
	}

	deliveryDone := make(chan struct{})
	go func() {
		defer close(deliveryDone)
		queue.Run(ctx, deliverer)
	}()

	var opsServer *metrics.Server
	if cfg.Metrics.ListenAddr != "" {
		opsServer, err = metrics.Listen(cfg.Metrics.ListenAddr, func() error {
			if !engine.Running() {
				return errors.New("scanner not running")
			}
			return nil
		})
		if err != nil {
			logger.Fatal("Failed to start metrics server: %v", err)
		}
		go opsServer.Serve()
	}

	logger.Info("Starting density scanner (interval: %v, distance: %.2f%%, alerts enabled: %v)",
		runtimeSettings.ScanInterval(), runtimeSettings.DistancePct(), runtimeSettings.AlertsEnabled())

	if err := engine.Start(ctx); err != nil {
		logger.Fatal("Scanner failed to start: %v", err)
	}

	cancel()
	<-deliveryDone

	if opsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown: %v", err)
		}
		shutdownCancel()
	}
	logger.Info("Service stopped")
}

// botController exposes the engine and settings to Telegram commands.
// Settings writes go straight to the store.
type botController struct {
	*settings.Store
	engine *scanner.Engine
}

var _ telegram.Controller = (*botController)(nil)

func (c *botController) Status() []scanner.ExchangeStatus { return c.engine.Status() }
func (c *botController) Settings() settings.Snapshot      { return c.Snapshot() }
