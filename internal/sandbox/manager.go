package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apiclient "github.com/daytonaio/daytona/libs/api-client-go"

	"github.com/haasonsaas/gifsmith/internal/conversation"
)

// volumeMountPath is where the shared persistent volume is mounted inside
// every sandbox.
const volumeMountPath = "/workspace"

// dataLinkPath is the fixed well-known path the agent works under. It is a
// symlink into this conversation's private directory on the volume, so the
// agent's instructions can reference stable paths across sandbox restarts.
const dataLinkPath = "/data"

// Config configures the sandbox backend.
type Config struct {
	APIKey       string
	APIURL       string
	Target       string
	Snapshot     string
	Image        string
	SandboxClass string

	// VolumeID is the persistent volume shared by all conversations.
	VolumeID string

	// WorkDir is the working directory for commands; skills are discovered
	// relative to it.
	WorkDir string

	// Env holds credentials injected into the sandbox as environment
	// secrets (Anthropic and Slack tokens).
	Env map[string]string

	// IdleTimeout stops a sandbox with no activity; AbsoluteTimeout deletes
	// it regardless. Both enforced by the platform, not by this service.
	IdleTimeout     time.Duration
	AbsoluteTimeout time.Duration
}

// Manager finds or creates sandboxes by deterministic name.
type Manager struct {
	cfg    Config
	client *client
	logger *slog.Logger
}

// NewManager validates the config and builds a manager.
func NewManager(cfg Config, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.Snapshot) == "" && strings.TrimSpace(cfg.Image) == "" {
		return nil, fmt.Errorf("sandbox: snapshot or image is required")
	}
	c, err := newClient(cfg.APIKey, cfg.APIURL, cfg.Target)
	if err != nil {
		return nil, err
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "/app"
	}
	return &Manager{cfg: cfg, client: c, logger: logger.With("component", "sandbox")}, nil
}

// Ensure returns the sandbox bound to the conversation, creating it when
// absent and restarting it when stopped. Calling Ensure twice for the same
// key yields the same underlying environment, and the per-thread data
// directory setup is skipped when already present.
func (m *Manager) Ensure(ctx context.Context, key conversation.Key) (*Sandbox, error) {
	name := key.SandboxName()

	sb, err := m.findByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if sb == nil {
		sb, err = m.create(ctx, name)
		if err != nil {
			return nil, err
		}
		m.logger.Info("created sandbox", "name", name, "id", sb.GetId())
		if sb.GetState() != apiclient.SANDBOXSTATE_STARTED {
			if err := m.waitForStarted(ctx, sb.GetId()); err != nil {
				return nil, err
			}
		}
	} else if sb.GetState() != apiclient.SANDBOXSTATE_STARTED {
		if err := m.ensureRunning(ctx, sb.GetId()); err != nil {
			return nil, err
		}
	}

	tb, err := m.client.toolboxClient(ctx, sb.GetId(), sb.GetTarget())
	if err != nil {
		return nil, err
	}

	handle := &Sandbox{
		id:      sb.GetId(),
		name:    name,
		workDir: m.cfg.WorkDir,
		toolbox: tb,
	}

	if err := m.ensureDataDir(ctx, handle, key); err != nil {
		return nil, err
	}
	return handle, nil
}

// ensureDataDir guarantees the private per-thread directory exists on the
// volume and is reachable at the fixed /data path. Idempotent: the probe
// short-circuits when a previous Ensure already ran the setup.
func (m *Manager) ensureDataDir(ctx context.Context, env Environment, key conversation.Key) error {
	dataDir := key.DataDir(volumeMountPath)

	probe := fmt.Sprintf("test -d %s && test -L %s", ShellQuote(dataDir), ShellQuote(dataLinkPath))
	code, err := env.Exec(ctx, probe, nil)
	if err != nil {
		return err
	}
	if code == 0 {
		return nil
	}

	setup := fmt.Sprintf("mkdir -p %s && ln -sfn %s %s",
		ShellQuote(dataDir), ShellQuote(dataDir), ShellQuote(dataLinkPath))
	code, err = env.Exec(ctx, setup, nil)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("sandbox: data dir setup exited with %d", code)
	}
	return nil
}

func (m *Manager) findByName(ctx context.Context, name string) (*apiclient.Sandbox, error) {
	sandboxes, httpResp, err := m.client.apiClient.SandboxAPI.ListSandboxes(m.client.authContext(ctx)).Execute()
	if err != nil {
		return nil, fmt.Errorf("sandbox list: %w", formatAPIError(err, httpResp))
	}
	for i := range sandboxes {
		sb := &sandboxes[i]
		if sb.GetName() != name {
			continue
		}
		if !usableState(sb.GetState()) {
			continue
		}
		return sb, nil
	}
	return nil, nil
}

// usableState reports whether a listed sandbox can still serve its
// conversation. Terminal and failed sandboxes are passed over so a fresh one
// is created under the same name.
func usableState(state apiclient.SandboxState) bool {
	switch state {
	case apiclient.SANDBOXSTATE_DESTROYED, apiclient.SANDBOXSTATE_ERROR, apiclient.SANDBOXSTATE_BUILD_FAILED:
		return false
	}
	return true
}

func (m *Manager) create(ctx context.Context, name string) (*apiclient.Sandbox, error) {
	createReq := apiclient.NewCreateSandbox()
	createReq.SetName(name)

	if m.client.target != "" {
		createReq.SetTarget(m.client.target)
	}
	if m.cfg.Snapshot != "" {
		createReq.SetSnapshot(m.cfg.Snapshot)
	} else if m.cfg.Image != "" {
		createReq.SetBuildInfo(apiclient.CreateBuildInfo{
			DockerfileContent: fmt.Sprintf("FROM %s", m.cfg.Image),
		})
	}
	if m.cfg.SandboxClass != "" {
		createReq.SetClass(m.cfg.SandboxClass)
	}
	if len(m.cfg.Env) > 0 {
		createReq.SetEnv(m.cfg.Env)
	}
	if m.cfg.VolumeID != "" {
		createReq.SetVolumes([]apiclient.SandboxVolume{
			{VolumeId: m.cfg.VolumeID, MountPath: volumeMountPath},
		})
	}
	if minutes := durationToMinutes(m.cfg.IdleTimeout); minutes > 0 {
		createReq.SetAutoStopInterval(minutes)
	}
	if minutes := durationToMinutes(m.cfg.AbsoluteTimeout); minutes > 0 {
		createReq.SetAutoDeleteInterval(minutes)
	}

	sb, httpResp, err := m.client.apiClient.SandboxAPI.CreateSandbox(m.client.authContext(ctx)).CreateSandbox(*createReq).Execute()
	if err != nil {
		return nil, fmt.Errorf("sandbox create: %w", formatAPIError(err, httpResp))
	}

	state := sb.GetState()
	if state == apiclient.SANDBOXSTATE_ERROR || state == apiclient.SANDBOXSTATE_BUILD_FAILED {
		return nil, fmt.Errorf("sandbox failed to start: %s", state)
	}
	return sb, nil
}

func (m *Manager) ensureRunning(ctx context.Context, sandboxID string) error {
	sb, httpResp, err := m.client.apiClient.SandboxAPI.GetSandbox(m.client.authContext(ctx), sandboxID).Execute()
	if err != nil {
		return fmt.Errorf("sandbox status: %w", formatAPIError(err, httpResp))
	}

	switch sb.GetState() {
	case apiclient.SANDBOXSTATE_STARTED:
		return nil
	case apiclient.SANDBOXSTATE_STOPPED:
		_, httpResp, err := m.client.apiClient.SandboxAPI.StartSandbox(m.client.authContext(ctx), sandboxID).Execute()
		if err != nil {
			return fmt.Errorf("sandbox start: %w", formatAPIError(err, httpResp))
		}
		return m.waitForStarted(ctx, sandboxID)
	default:
		return fmt.Errorf("sandbox unavailable: %s", sb.GetState())
	}
}

func (m *Manager) waitForStarted(ctx context.Context, sandboxID string) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		sb, httpResp, err := m.client.apiClient.SandboxAPI.GetSandbox(m.client.authContext(ctx), sandboxID).Execute()
		if err != nil {
			return fmt.Errorf("sandbox status: %w", formatAPIError(err, httpResp))
		}

		switch sb.GetState() {
		case apiclient.SANDBOXSTATE_STARTED:
			return nil
		case apiclient.SANDBOXSTATE_ERROR, apiclient.SANDBOXSTATE_BUILD_FAILED, apiclient.SANDBOXSTATE_DESTROYED:
			return fmt.Errorf("sandbox failed: %s", sb.GetState())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func durationToMinutes(d time.Duration) int32 {
	if d <= 0 {
		return 0
	}
	return int32(d / time.Minute)
}

// ShellQuote single-quotes a string for safe interpolation into a shell
// command line.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
