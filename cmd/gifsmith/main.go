// Package main provides the CLI entry point for the gifsmith gateway.
//
// Gifsmith relays Slack conversations into per-thread sandboxes where an
// agent produces emoji-optimized GIFs, streaming its progress and tool
// activity back into the thread.
//
// # Basic Usage
//
// Start the gateway:
//
//	gifsmith serve --config gifsmith.yaml
//
// # Environment Variables
//
//   - SLACK_BOT_TOKEN: Slack bot OAuth token (xoxb-)
//   - SLACK_APP_TOKEN: Slack app-level token for Socket Mode (xapp-)
//   - ANTHROPIC_API_KEY: Anthropic API key, injected into sandboxes
//   - DAYTONA_API_KEY: Sandbox platform API key
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "gifsmith",
		Short:        "Gifsmith - Slack emoji GIF agent gateway",
		Long:         `Gifsmith turns Slack threads into sandboxed GIF-making agent sessions.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(buildServeCmd())

	return rootCmd
}
