package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	slackchannel "github.com/haasonsaas/gifsmith/internal/channels/slack"
	"github.com/haasonsaas/gifsmith/internal/config"
	"github.com/haasonsaas/gifsmith/internal/media"
	"github.com/haasonsaas/gifsmith/internal/observability"
	"github.com/haasonsaas/gifsmith/internal/orchestrator"
	"github.com/haasonsaas/gifsmith/internal/sandbox"
	"github.com/haasonsaas/gifsmith/internal/turn"
)

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gifsmith gateway",
		Long: `Start the gateway: connect to Slack over Socket Mode, consume mentions
and thread replies, and run each turn in the conversation's sandbox.

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with credentials from the environment
  gifsmith serve

  # Start with a config file
  gifsmith serve --config /etc/gifsmith/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("GIFSMITH_CONFIG"),
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()

	manager, err := sandbox.NewManager(sandbox.Config{
		APIKey:       cfg.Sandbox.APIKey,
		APIURL:       cfg.Sandbox.APIURL,
		Target:       cfg.Sandbox.Target,
		Snapshot:     cfg.Sandbox.Snapshot,
		Image:        cfg.Sandbox.Image,
		SandboxClass: cfg.Sandbox.Class,
		VolumeID:     cfg.Sandbox.VolumeID,
		WorkDir:      cfg.Sandbox.WorkDir,
		Env: map[string]string{
			"ANTHROPIC_API_KEY": cfg.Anthropic.APIKey,
			"SLACK_BOT_TOKEN":   cfg.Slack.BotToken,
		},
		IdleTimeout:     cfg.Sandbox.IdleTimeout,
		AbsoluteTimeout: cfg.Sandbox.AbsoluteTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing sandbox manager: %w", err)
	}

	adapter := slackchannel.NewAdapter(slackchannel.Config{
		BotToken: cfg.Slack.BotToken,
		AppToken: cfg.Slack.AppToken,
	}, logger)
	sender := slackchannel.NewSender(adapter.Client())
	ingestor := media.NewIngestor(cfg.Slack.BotToken, nil, logger)
	pipeline := turn.NewPipeline(logger)

	orch := orchestrator.New(
		orchestrator.Config{
			Workers:    cfg.Orchestrator.Workers,
			Entrypoint: cfg.Orchestrator.Entrypoint,
		},
		orchestrator.ManagerProvider{Manager: manager},
		ingestor,
		pipeline,
		sender,
		metrics,
		logger,
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Addr, logger)
	}

	if err := adapter.Start(ctx); err != nil {
		return fmt.Errorf("starting slack adapter: %w", err)
	}
	orch.Start(ctx, adapter.Requests())
	logger.Info("gifsmith gateway started", "workers", cfg.Orchestrator.Workers)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := adapter.Stop(shutdownCtx); err != nil {
		logger.Warn("slack adapter shutdown", "error", err)
	}
	orch.Wait()
	logger.Info("shutdown complete")
	return nil
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener stopped", "error", err)
	}
}
