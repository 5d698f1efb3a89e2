// Package turn drives one request/response turn of the agent inside a
// sandbox: launch the entrypoint, stream its stdout line by line, surface
// stderr, and extract the produced artifact if any.
package turn

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/gifsmith/internal/conversation"
	"github.com/haasonsaas/gifsmith/internal/sandbox"
)

// ArtifactPath is the single well-known output path. Its presence after the
// agent exits is the sole signal that the turn produced a GIF.
const ArtifactPath = "/data/output.gif"

// defaultEntrypoint is where the agent binary lives in the sandbox image.
const defaultEntrypoint = "/agent/gifsmith-agent"

// noArtifactText is emitted when the turn finished without writing the
// artifact. Expected on conversational turns, not an error.
const noArtifactText = "No GIF generated"

// errorPrefix labels the single event carrying the process's stderr.
const errorPrefix = "*** ERROR ***"

// EventKind discriminates pipeline events.
type EventKind string

const (
	// EventText is one line of agent output (or a diagnostic).
	EventText EventKind = "text"
	// EventArtifact carries the produced GIF bytes, copied out of the
	// sandbox. At most one per run.
	EventArtifact EventKind = "artifact"
)

// Event is one element of the turn's output sequence.
type Event struct {
	Kind     EventKind
	Text     string
	Artifact []byte
}

// Options tunes a single run.
type Options struct {
	// Channel and ThreadTS describe the telemetry observer thread. When
	// either is empty the entrypoint runs without tool hooks.
	Channel  string
	ThreadTS string

	// Entrypoint overrides the agent binary path inside the sandbox.
	Entrypoint string
}

// Pipeline runs turns. Stateless; safe for concurrent use across sandboxes.
type Pipeline struct {
	logger *slog.Logger
}

// NewPipeline builds a pipeline.
func NewPipeline(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{logger: logger.With("component", "turn")}
}

// Run executes one turn and returns its event sequence. Lines appear on the
// channel in stdout order as they arrive; blank lines are dropped rather
// than posted as empty thread messages. After process exit and the artifact
// probe the channel is closed. The sequence contains at most one artifact
// event and is not restartable.
func (p *Pipeline) Run(ctx context.Context, env sandbox.Environment, key conversation.Key, text string, opts Options) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		p.run(ctx, env, key, text, opts, events)
	}()
	return events
}

func (p *Pipeline) run(ctx context.Context, env sandbox.Environment, key conversation.Key, text string, opts Options, events chan<- Event) {
	stderrPath := fmt.Sprintf("/tmp/gifsmith-stderr-%s.log", uuid.NewString())
	command := buildCommand(key, text, opts, stderrPath)

	pr, pw := io.Pipe()
	defer pr.Close()
	type execResult struct {
		exitCode int
		err      error
	}
	resultCh := make(chan execResult, 1)

	go func() {
		code, err := env.Exec(ctx, command, pw)
		pw.CloseWithError(err)
		resultCh <- execResult{exitCode: code, err: err}
	}()

	// Surface stdout line by line as it arrives; ordering is preserved.
	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		select {
		case events <- Event{Kind: EventText, Text: line}:
		case <-ctx.Done():
			return
		}
	}

	result := <-resultCh
	if result.err != nil {
		p.logger.Error("agent exec failed", "sandbox", env.Name(), "error", result.err)
		events <- Event{Kind: EventText, Text: fmt.Sprintf("%s\n%v", errorPrefix, result.err)}
	} else {
		// Diagnostics only; a nonzero exit does not skip the artifact probe.
		p.logger.Info("agent process exited", "sandbox", env.Name(), "exit_code", result.exitCode)
	}

	if stderr, err := env.ReadFile(ctx, stderrPath); err == nil {
		if content := strings.TrimSpace(string(stderr)); content != "" {
			events <- Event{Kind: EventText, Text: fmt.Sprintf("%s\n%s", errorPrefix, content)}
		}
	}

	exists, err := env.FileExists(ctx, ArtifactPath)
	if err != nil {
		p.logger.Error("artifact probe failed", "sandbox", env.Name(), "error", err)
		events <- Event{Kind: EventText, Text: noArtifactText}
		return
	}
	if !exists {
		events <- Event{Kind: EventText, Text: noArtifactText}
		return
	}

	data, err := env.ReadFile(ctx, ArtifactPath)
	if err != nil {
		p.logger.Error("artifact copy failed", "sandbox", env.Name(), "error", err)
		events <- Event{Kind: EventText, Text: noArtifactText}
		return
	}
	events <- Event{Kind: EventArtifact, Artifact: data}
}

// buildCommand assembles the entrypoint invocation. Stderr goes to a
// per-run scratch file so it can be surfaced separately from the streamed
// stdout, which the toolbox exec API delivers combined.
func buildCommand(key conversation.Key, text string, opts Options, stderrPath string) string {
	entrypoint := opts.Entrypoint
	if entrypoint == "" {
		entrypoint = defaultEntrypoint
	}

	parts := []string{
		entrypoint,
		"--message", sandbox.ShellQuote(text),
		"--sandbox-name", sandbox.ShellQuote(key.SandboxName()),
	}
	if opts.Channel != "" && opts.ThreadTS != "" {
		parts = append(parts,
			"--channel", sandbox.ShellQuote(opts.Channel),
			"--thread-ts", sandbox.ShellQuote(opts.ThreadTS),
		)
	}
	parts = append(parts, "2>"+sandbox.ShellQuote(stderrPath))
	return strings.Join(parts, " ")
}
