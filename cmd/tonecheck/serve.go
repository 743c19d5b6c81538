package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/tonecheck/internal/analysis"
	"github.com/MikeSquared-Agency/tonecheck/internal/api"
	"github.com/MikeSquared-Agency/tonecheck/internal/config"
	"github.com/MikeSquared-Agency/tonecheck/internal/hermes"
	"github.com/MikeSquared-Agency/tonecheck/internal/processor"
	"github.com/MikeSquared-Agency/tonecheck/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the NATS analysis worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(config.Load())
		},
	}
}

func runServe(cfg config.Config) error {
	setupLogging(cfg.LogLevel, os.Stdout)

	slog.Info("tonecheck starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Model provider
	llm := newLLM(cfg)
	if llm == nil {
		slog.Error(errNoAPIKey.Error(), "provider", cfg.Provider)
		os.Exit(1)
	}
	slog.Info("model client ready", "provider", cfg.Provider, "model", modelName(cfg))

	var opts []analysis.Option

	// Database (optional, run history only)
	var runs api.RunLister
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL, slog.Default())
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare schema", "error", err)
			os.Exit(1)
		}
		runs = db
		opts = append(opts, analysis.WithObserver(db))
		slog.Info("database connected")
	} else {
		slog.Warn("DATABASE_URL not set, running without run history")
	}

	// NATS/Hermes (optional, async requests and run events)
	var hermesClient *hermes.Client
	if cfg.NatsURL != "" {
		var err error
		hermesClient, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer hermesClient.Close()
		opts = append(opts, analysis.WithObserver(processor.NewRunPublisher(hermesClient, slog.Default())))
		slog.Info("NATS connected", "url", cfg.NatsURL)
	}

	analyzer := newAnalyzer(cfg, llm, opts...)

	if hermesClient != nil {
		proc := processor.New(analyzer, hermesClient, slog.Default())
		if err := hermesClient.QueueSubscribe(hermes.SubjectAnalysisRequested, hermes.QueueAnalyzers, proc.HandleAnalysisRequested); err != nil {
			slog.Error("failed to subscribe to analysis requests", "error", err)
			os.Exit(1)
		}
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, analyzer, runs, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	if hermesClient != nil {
		if err := hermesClient.Publish(hermes.SubjectServiceReady, map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
			"provider":  cfg.Provider,
			"model":     modelName(cfg),
		}); err != nil {
			slog.Warn("failed to publish ready event", "error", err)
		}
	}

	slog.Info("tonecheck ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	if hermesClient != nil {
		if err := hermesClient.Drain(); err != nil {
			slog.Warn("nats drain failed", "error", err)
		}
	}
	cancel()
	slog.Info("tonecheck stopped")
	return nil
}
