// Package config loads the service configuration from YAML with
// environment variable expansion and env fallbacks for credentials.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for the service.
type Config struct {
	Slack        SlackConfig        `yaml:"slack"`
	Anthropic    AnthropicConfig    `yaml:"anthropic"`
	Sandbox      SandboxConfig      `yaml:"sandbox"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	AppToken string `yaml:"app_token"`
}

type AnthropicConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type SandboxConfig struct {
	APIKey   string `yaml:"api_key"`
	APIURL   string `yaml:"api_url"`
	Target   string `yaml:"target"`
	Snapshot string `yaml:"snapshot"`
	Image    string `yaml:"image"`
	Class    string `yaml:"class"`

	// VolumeID is the persistent volume shared by all conversations.
	VolumeID string `yaml:"volume_id"`

	// WorkDir is the in-sandbox working directory; skills are discovered
	// relative to it.
	WorkDir string `yaml:"work_dir"`

	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	AbsoluteTimeout time.Duration `yaml:"absolute_timeout"`
}

type OrchestratorConfig struct {
	// Workers bounds concurrent turns across conversations.
	Workers int `yaml:"workers"`

	// Entrypoint overrides the agent binary path inside sandboxes.
	Entrypoint string `yaml:"entrypoint"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads and parses the configuration file. An empty path yields a
// config built from defaults and environment variables alone.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	return &cfg, nil
}

// applyEnv fills empty credential fields from the environment, so a bare
// deployment needs no config file at all.
func applyEnv(cfg *Config) {
	fill := func(target *string, key string) {
		if *target == "" {
			*target = os.Getenv(key)
		}
	}
	fill(&cfg.Slack.BotToken, "SLACK_BOT_TOKEN")
	fill(&cfg.Slack.AppToken, "SLACK_APP_TOKEN")
	fill(&cfg.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	fill(&cfg.Sandbox.APIKey, "DAYTONA_API_KEY")
	fill(&cfg.Sandbox.APIURL, "DAYTONA_API_URL")
	fill(&cfg.Sandbox.Target, "DAYTONA_TARGET")
	fill(&cfg.Sandbox.VolumeID, "GIFSMITH_VOLUME_ID")
	fill(&cfg.Sandbox.Snapshot, "GIFSMITH_SNAPSHOT")
}

func applyDefaults(cfg *Config) {
	if cfg.Sandbox.WorkDir == "" {
		cfg.Sandbox.WorkDir = "/app"
	}
	if cfg.Sandbox.IdleTimeout == 0 {
		cfg.Sandbox.IdleTimeout = 15 * time.Minute
	}
	if cfg.Sandbox.AbsoluteTimeout == 0 {
		cfg.Sandbox.AbsoluteTimeout = 24 * time.Hour
	}
	if cfg.Orchestrator.Workers == 0 {
		cfg.Orchestrator.Workers = 5
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
}

// Validate reports the first missing required field.
func (c *Config) Validate() error {
	switch {
	case c.Slack.BotToken == "":
		return fmt.Errorf("config: slack.bot_token is required (or SLACK_BOT_TOKEN)")
	case !strings.HasPrefix(c.Slack.BotToken, "xoxb-"):
		return fmt.Errorf("config: slack.bot_token must be a bot token (xoxb-)")
	case c.Slack.AppToken == "":
		return fmt.Errorf("config: slack.app_token is required (or SLACK_APP_TOKEN)")
	case !strings.HasPrefix(c.Slack.AppToken, "xapp-"):
		return fmt.Errorf("config: slack.app_token must be an app-level token (xapp-)")
	case c.Anthropic.APIKey == "":
		return fmt.Errorf("config: anthropic.api_key is required (or ANTHROPIC_API_KEY)")
	case c.Sandbox.APIKey == "":
		return fmt.Errorf("config: sandbox.api_key is required (or DAYTONA_API_KEY)")
	case c.Sandbox.Snapshot == "" && c.Sandbox.Image == "":
		return fmt.Errorf("config: sandbox.snapshot or sandbox.image is required")
	case c.Sandbox.VolumeID == "":
		return fmt.Errorf("config: sandbox.volume_id is required")
	}
	return nil
}
