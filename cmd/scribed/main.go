package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/api"
	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/correlate"
	"github.com/MikeSquared-Agency/scribe/internal/ingester"
	"github.com/MikeSquared-Agency/scribe/internal/provider"
	"github.com/MikeSquared-Agency/scribe/internal/retry"
	slackalert "github.com/MikeSquared-Agency/scribe/internal/slack"
	"github.com/MikeSquared-Agency/scribe/internal/store"
	"github.com/MikeSquared-Agency/scribe/internal/summary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)

	slog.Info("scribe starting",
		"port", cfg.Port,
		"nats_url", cfg.NatsURL,
		"provider", cfg.Provider,
		"chunk_size", cfg.ChunkSizeLines,
		"max_retries", cfg.MaxRetryAttempts,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Step 1: Connect to database.
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected")

	// Step 2: Build the summarization provider.
	prov, err := provider.New(ctx, provider.Options{
		Kind:         cfg.Provider,
		Model:        cfg.Model,
		GeminiAPIKey: cfg.GeminiAPIKey,
		OllamaHost:   cfg.OllamaHost,
	})
	if err != nil {
		slog.Error("failed to build provider", "error", err)
		os.Exit(1)
	}
	slog.Info("provider ready", "provider", prov.Name())

	// Step 3: Assemble the pipeline.
	retrier := retry.New(cfg.MaxRetryAttempts)
	orch := summary.New(db, prov, retrier, cfg.ChunkSizeLines)
	correlator := correlate.New(db, cfg.CorrelationWindow())

	// Conditionally post halted-pipeline alerts to Slack.
	if cfg.SlackBotToken != "" && cfg.SlackAlertChannel != "" {
		alerter := slackalert.NewAlerter(cfg.SlackBotToken, cfg.SlackAlertChannel)
		orch.SetFailureAlert(func(ctx context.Context, sessionID string, done, total int, cause error) {
			if err := alerter.PostPipelineAlert(ctx, sessionID, done, total, cause); err != nil {
				slog.Warn("failed to post pipeline alert to Slack", "error", err)
			}
		})
		slog.Info("Slack alerter enabled", "channel", cfg.SlackAlertChannel)
	}

	// Step 4: Connect to NATS and start ingesting.
	ing, err := ingester.New(cfg.NatsURL, db, orch, correlator)
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer ing.Close()

	if err := ing.Start(); err != nil {
		slog.Error("failed to start ingester", "error", err)
		os.Exit(1)
	}
	slog.Info("NATS ingester started")

	// Step 5: Announce availability.
	announcement, _ := json.Marshal(map[string]any{
		"service":   "scribe",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      cfg.Port,
	})
	if err := ing.Publish("scribe.lifecycle.started", announcement); err != nil {
		slog.Warn("failed to publish startup event", "error", err)
	}

	// Step 6: Start HTTP API.
	srv := api.NewServer(db, orch, correlator, cfg.Port)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("scribe ready", "port", cfg.Port)

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	slog.Info("shutting down", "signal", sig)
	cancel()
	slog.Info("scribe stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
