// Package main is the per-turn agent entrypoint that runs inside a
// conversation's sandbox.
//
// The gateway invokes it once per turn:
//
//	gifsmith-agent --message "make a dancing cat gif" \
//	    --sandbox-name gif-T123-1700000000-000100 \
//	    --channel C42 --thread-ts 1700000000.000100
//
// It resumes the conversation's session from /data, runs the tool-use loop
// against the Anthropic API, mirrors tool activity into the Slack thread
// when a channel descriptor is given, and prints assistant text to stdout
// for the gateway to relay. Tool telemetry goes to Slack directly; stdout
// is reserved for the turn's text stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/gifsmith/internal/agent"
	slackchannel "github.com/haasonsaas/gifsmith/internal/channels/slack"
	"github.com/haasonsaas/gifsmith/internal/observability"
	"github.com/haasonsaas/gifsmith/internal/sessions"
	"github.com/haasonsaas/gifsmith/internal/telemetry"
)

// workDir is where skills live in the sandbox image; Bash runs from here.
const workDir = "/app"

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var (
		message     string
		sandboxName string
		channel     string
		threadTS    string
	)

	cmd := &cobra.Command{
		Use:          "gifsmith-agent",
		Short:        "Run one agent turn inside the sandbox",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), message, sandboxName, channel, threadTS)
		},
	}

	cmd.Flags().StringVar(&message, "message", "", "User message for this turn")
	cmd.Flags().StringVar(&sandboxName, "sandbox-name", "", "Deterministic sandbox name, keys the session registry")
	cmd.Flags().StringVar(&channel, "channel", "", "Slack channel for tool telemetry (optional)")
	cmd.Flags().StringVar(&threadTS, "thread-ts", "", "Slack thread timestamp for tool telemetry (optional)")
	_ = cmd.MarkFlagRequired("message")
	_ = cmd.MarkFlagRequired("sandbox-name")

	return cmd
}

func run(ctx context.Context, message, sandboxName, channel, threadTS string) error {
	// Stdout carries the turn's text stream; everything else goes to stderr.
	logger := observability.NewLogger(observability.LogConfig{
		Level:  os.Getenv("GIFSMITH_LOG_LEVEL"),
		Format: "text",
		Output: os.Stderr,
	})
	slog.SetDefault(logger)

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return errors.New("ANTHROPIC_API_KEY is not set")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := agent.NewStore(sessions.NewRegistry(sessions.DefaultPath), agent.DefaultTranscriptDir)
	token, transcript, resumed := store.Resume(sandboxName)

	var relay *telemetry.Relay
	if channel != "" && threadTS != "" {
		if botToken := os.Getenv("SLACK_BOT_TOKEN"); botToken != "" {
			poster := slackchannel.NewThreadPoster(slackapi.New(botToken), channel, threadTS)
			relay = telemetry.NewRelay(poster, logger)
			relay.Start(ctx)
			defer relay.Close()
		} else {
			logger.Warn("SLACK_BOT_TOKEN not set, tool telemetry disabled")
		}
	}

	var preHook, postHook agent.Hook
	if relay != nil {
		preHook = relay.Publish
		postHook = relay.Publish
	}

	runner, err := agent.NewRunner(agent.Options{
		APIKey:       apiKey,
		BaseURL:      os.Getenv("ANTHROPIC_BASE_URL"),
		Model:        os.Getenv("GIFSMITH_MODEL"),
		SystemPrompt: agent.SystemPrompt,
		Tools: []agent.Tool{
			agent.NewBashTool(workDir, 5*time.Minute),
			&agent.WriteTool{},
			&agent.ReadTool{},
		},
		Output:      os.Stdout,
		Logger:      logger,
		PreToolUse:  preHook,
		PostToolUse: postHook,
	})
	if err != nil {
		return err
	}

	runErr := runner.Run(ctx, transcript, message)

	// Resumed sessions persist even after a failed turn so completed tool
	// results carry into the next one. A failed first turn leaves no
	// session record; the next message starts fresh.
	if runErr == nil || resumed {
		if err := store.Persist(sandboxName, token, transcript); err != nil {
			logger.Error("persisting session", "error", err)
			if runErr == nil {
				runErr = err
			}
		}
	}

	if runErr != nil {
		return runErr
	}

	fmt.Println("Exiting...")
	return nil
}
