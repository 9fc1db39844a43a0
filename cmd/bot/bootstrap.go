package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/lacymorrow/trade/internal/bot"
	"github.com/lacymorrow/trade/internal/broker/alpaca"
	"github.com/lacymorrow/trade/internal/broker/brokerobs"
	"github.com/lacymorrow/trade/internal/data"
	"github.com/lacymorrow/trade/internal/interfaces"
	"github.com/lacymorrow/trade/internal/logger"
	"github.com/lacymorrow/trade/internal/sentiment"
	"github.com/lacymorrow/trade/internal/signal"
	"github.com/lacymorrow/trade/internal/store"
	"github.com/lacymorrow/trade/internal/trace"
	"github.com/lacymorrow/trade/internal/trade"
	"github.com/lacymorrow/trade/internal/tradelog"
)

// initializeSystem loads the environment and initializes logger and tracer.
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	// Initialize logger
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize tracer
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	return nil
}

// system is the wired object graph behind both commands.
type system struct {
	cfg        *store.Config
	data       interfaces.DataEngine
	controller interfaces.Controller
}

// buildSystem loads config and wires the broker, engines, and controller.
func buildSystem(ctx context.Context, configPath string) (*system, error) {
	cfg, err := store.LoadConfig(configPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}

	journal := tradelog.New(os.Getenv("TRADER_LOG_DIR"))
	compressOldLogs(ctx, journal)

	brk, err := initializeBroker(ctx, cfg)
	if err != nil {
		return nil, err
	}

	dataEngine := data.NewEngine(brk, cfg)
	signalEngine := signal.NewEngine(cfg)
	tradeEngine := trade.NewEngine(brk, cfg, journal)

	var sentimentProvider interfaces.SentimentProvider
	if cfg.Sentiment.Enabled {
		sentimentProvider = sentiment.NewProvider(time.Duration(cfg.Sentiment.CacheTTLSeconds) * time.Second)
		logger.Info(ctx, "Sentiment blending enabled", "weight", cfg.Sentiment.Weight)
	}

	controller := bot.New(cfg, brk, dataEngine, signalEngine, tradeEngine, sentimentProvider, journal)

	return &system{
		cfg:        cfg,
		data:       dataEngine,
		controller: controller,
	}, nil
}

// compressOldLogs compresses old journal files if retention is configured
func compressOldLogs(ctx context.Context, journal *tradelog.Logger) {
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := journal.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}

// initializeBroker creates the Alpaca broker wrapped with observability.
func initializeBroker(ctx context.Context, cfg *store.Config) (interfaces.Broker, error) {
	brk, err := alpaca.NewClient(alpaca.Params{
		Mode:      cfg.Mode,
		APIKey:    os.Getenv("ALPACA_API_KEY"),
		APISecret: os.Getenv("ALPACA_API_SECRET"),
		BaseURL:   os.Getenv("ALPACA_BASE_URL"),
		DataURL:   os.Getenv("ALPACA_DATA_URL"),
		Timeout:   time.Duration(cfg.Data.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to initialize broker", err)
		return nil, err
	}

	if cfg.TestMode() {
		logger.Warn(ctx, "Running in TEST mode - orders will be simulated")
	}

	// Wrap with observability middleware
	return brokerobs.Wrap(brk), nil
}
