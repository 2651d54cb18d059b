package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"optionwatch/internal/config"
	"optionwatch/internal/dispatch"
	"optionwatch/internal/logger"
	"optionwatch/internal/marketdata"
	"optionwatch/internal/notify"
	"optionwatch/internal/scheduler"
	"optionwatch/internal/storage"
	"optionwatch/internal/tracker"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	if recent, err := store.RecentTrades(5); err != nil {
		logger.Warn("Failed to load recent trades: %v", err)
	} else {
		for _, t := range recent {
			logger.Info("Previously recorded: %s vol +%d turnover %s score %d",
				t.Snapshot.ContractCode, t.VolumeDiff,
				t.Snapshot.Turnover.StringFixed(0), t.ImportanceScore)
		}
	}

	sinks, telegramSink := buildSinks(cfg)
	if len(sinks) == 0 {
		logger.Fatal("No notification sinks enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping tracks...")
		cancel()
	}()

	if telegramSink != nil {
		telegramSink.ListenForCommands(ctx)
	}

	source := marketdata.NewGatedSource(marketdata.NewClient(cfg.Source), cfg.Source.MinRequestInterval)
	engine := dispatch.New(store, sinks, &cfg.Filters, cfg.Dispatch)
	pipeline := scheduler.NewPipeline(
		source,
		tracker.New(store, cfg.Dispatch.VolumeStateTTL),
		&cfg.Filters,
		engine,
		store,
		cfg.Source.PriceBandPct,
	)

	logger.Info("Starting option watch (%d markets, %d sinks, min request interval %v)",
		len(cfg.Markets), len(sinks), cfg.Source.MinRequestInterval)

	var status notify.StatusReporter
	if telegramSink != nil {
		status = telegramSink
	}
	sched := scheduler.New(cfg.Markets, pipeline, engine, status)
	if err := sched.Run(ctx); err != nil {
		logger.Fatal("Scheduler failed: %v", err)
	}
	logger.Info("Service stopped")
}

func buildSinks(cfg *config.Config) ([]notify.Sink, *notify.TelegramSink) {
	var sinks []notify.Sink
	var telegramSink *notify.TelegramSink

	if cfg.Sinks.Telegram.Enabled {
		ts, err := notify.NewTelegramSink(cfg.Sinks.Telegram.BotToken, cfg.Sinks.Telegram.ChatID, 0, 0)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram sink: %v", err)
		}
		sinks = append(sinks, ts)
		telegramSink = ts
		logger.Info("Telegram sink initialized")
	}
	if cfg.Sinks.Webhook.Enabled {
		sinks = append(sinks, notify.NewWebhookSink(cfg.Sinks.Webhook.URL, cfg.Sinks.Webhook.Timeout))
		logger.Info("Webhook sink initialized")
	}
	if cfg.Sinks.Console.Enabled {
		sinks = append(sinks, notify.NewConsoleSink())
	}
	return sinks, telegramSink
}
