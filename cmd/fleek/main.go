package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/fleek/internal/anthropic"
	"github.com/MikeSquared-Agency/fleek/internal/api"
	"github.com/MikeSquared-Agency/fleek/internal/config"
	"github.com/MikeSquared-Agency/fleek/internal/hermes"
	"github.com/MikeSquared-Agency/fleek/internal/metrics"
	"github.com/MikeSquared-Agency/fleek/internal/processor"
	"github.com/MikeSquared-Agency/fleek/internal/session"
	"github.com/MikeSquared-Agency/fleek/internal/slack"
	"github.com/MikeSquared-Agency/fleek/internal/store"
	"github.com/MikeSquared-Agency/fleek/internal/textstream"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("fleek starting", "port", cfg.Port, "backend", cfg.Backend)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Backend
	var llm processor.Generator
	switch cfg.Backend {
	case config.BackendText:
		llm = processor.TextStream(textstream.NewClient(cfg.BackendURL))
		slog.Info("text backend ready", "url", cfg.BackendURL)
	default:
		llm = processor.Anthropic(anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.MaxTokens))
		slog.Info("anthropic client ready", "model", cfg.AnthropicModel)
	}

	// Sessions
	sessions, err := session.NewRegistry(cfg.MaxSessions, slog.Default())
	if err != nil {
		slog.Error("failed to create session registry", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector("fleek")
	collector.TrackSessions("fleek", sessions.Len)

	opts := []processor.Option{processor.WithMetrics(collector)}

	// Database (optional: without it characters cannot be saved)
	var characters api.CharacterReader
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare database schema", "error", err)
			os.Exit(1)
		}
		characters = db
		opts = append(opts, processor.WithStore(db))
		slog.Info("database connected")
	} else {
		slog.Warn("DATABASE_URL not set, saving characters is disabled")
	}

	// NATS/Hermes (optional)
	var hermesClient *hermes.Client
	if cfg.NatsURL != "" {
		hermesClient, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer hermesClient.Close()
		opts = append(opts, processor.WithPublisher(hermesClient))
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS_URL not set, events are not published")
	}

	// Slack poster (optional)
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		opts = append(opts, processor.WithNotifier(slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())))
		slog.Info("slack poster ready", "channel", cfg.SlackChannel)
	}

	proc := processor.New(sessions, llm, slog.Default(), opts...)

	// HTTP API
	srv := api.NewServer(api.Config{
		Port:           cfg.Port,
		Backend:        cfg.Backend,
		APIToken:       cfg.APIToken,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimitRPM:   cfg.RateLimitRPM,
		RateLimitBurst: cfg.RateLimitBurst,
	}, sessions, proc, characters, collector, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	// Announce registration
	if hermesClient != nil {
		if err := hermesClient.Publish(hermes.SubjectRegistered, map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
			"backend":   cfg.Backend,
		}); err != nil {
			slog.Warn("failed to publish registration", "error", err)
		}
	}

	slog.Info("fleek ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	cancel()
	slog.Info("fleek stopped")
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
