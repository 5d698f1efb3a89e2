// Package orchestrator consumes inbound turn requests, binds each one to
// its conversation sandbox, runs the agent turn, and posts the results back
// into the Slack thread.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/gifsmith/internal/conversation"
	"github.com/haasonsaas/gifsmith/internal/observability"
	"github.com/haasonsaas/gifsmith/internal/sandbox"
	"github.com/haasonsaas/gifsmith/internal/turn"
	"github.com/haasonsaas/gifsmith/pkg/models"
)

// artifactFilename is the name the generated GIF is uploaded under.
const artifactFilename = "output.gif"

// artifactTitle labels the uploaded GIF in Slack.
const artifactTitle = "Generated Emoji GIF"

// errorReplyText is posted when a turn cannot start at all.
const errorReplyText = "*** ERROR ***\nSomething went wrong preparing your request. Please try again."

// SandboxProvider resolves a conversation to a running environment.
type SandboxProvider interface {
	Ensure(ctx context.Context, key conversation.Key) (sandbox.Environment, error)
}

// Ingestor stages message attachments into the environment.
type Ingestor interface {
	Ingest(ctx context.Context, env sandbox.Environment, attachments []models.Attachment) ([]string, error)
}

// Runner executes one agent turn and streams its events.
type Runner interface {
	Run(ctx context.Context, env sandbox.Environment, key conversation.Key, text string, opts turn.Options) <-chan turn.Event
}

// Sender posts turn output back into the originating thread.
type Sender interface {
	PostText(ctx context.Context, channelID, threadTS, text string) error
	UploadFile(ctx context.Context, channelID, threadTS, filename, title, comment string, data []byte) error
}

// Config tunes the orchestrator.
type Config struct {
	// Workers bounds concurrent turns across conversations. Turns within
	// one conversation are always serial regardless.
	Workers int

	// Entrypoint overrides the agent binary path inside sandboxes.
	Entrypoint string
}

// Orchestrator is the request loop between the Slack adapter and the
// sandbox backend.
type Orchestrator struct {
	cfg       Config
	sandboxes SandboxProvider
	ingestor  Ingestor
	runner    Runner
	sender    Sender
	metrics   *observability.Metrics
	logger    *slog.Logger

	locks *conversationLocks
	wg    sync.WaitGroup
}

// New builds an orchestrator. Metrics may be nil.
func New(cfg Config, sandboxes SandboxProvider, ingestor Ingestor, runner Runner, sender Sender, metrics *observability.Metrics, logger *slog.Logger) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:       cfg,
		sandboxes: sandboxes,
		ingestor:  ingestor,
		runner:    runner,
		sender:    sender,
		metrics:   metrics,
		locks:     newConversationLocks(),
		logger:    logger.With("component", "orchestrator"),
	}
}

// Start launches the worker pool over the request stream. Workers exit when
// the stream closes or ctx is canceled; Wait blocks until then.
func (o *Orchestrator) Start(ctx context.Context, requests <-chan *models.TurnRequest) {
	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case req, ok := <-requests:
					if !ok {
						return
					}
					o.handle(ctx, req)
				}
			}
		}()
	}
}

// Wait blocks until all workers have exited.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) handle(ctx context.Context, req *models.TurnRequest) {
	key, err := conversation.NewKey(req.TeamID, req.ThreadTS)
	if err != nil {
		o.logger.Warn("dropping request with incomplete identity", "team_id", req.TeamID, "thread_ts", req.ThreadTS)
		o.metrics.RecordError("slack", "incomplete_identity")
		return
	}

	o.metrics.RecordRequest(req.Source)

	release := o.locks.Acquire(key.String())
	defer release()

	o.metrics.TurnStarted()
	defer o.metrics.TurnEnded()
	start := time.Now()

	outcome := o.runTurn(ctx, key, req)
	o.metrics.RecordTurn(outcome, time.Since(start).Seconds())
	o.logger.Info("turn finished",
		"conversation", key.String(),
		"outcome", outcome,
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)
}

func (o *Orchestrator) runTurn(ctx context.Context, key conversation.Key, req *models.TurnRequest) string {
	env, err := o.sandboxes.Ensure(ctx, key)
	if err != nil {
		o.logger.Error("sandbox provisioning failed", "conversation", key.String(), "error", err)
		o.metrics.RecordError("sandbox", "ensure")
		o.replyError(ctx, req)
		return "error"
	}

	uploaded, err := o.ingestor.Ingest(ctx, env, req.Attachments)
	if err != nil {
		o.logger.Error("attachment ingestion failed", "conversation", key.String(), "error", err)
		o.metrics.RecordError("media", "ingest")
		o.metrics.RecordAttachments("failed", len(req.Attachments))
		o.replyError(ctx, req)
		return "error"
	}
	o.metrics.RecordAttachments("ingested", len(uploaded))
	o.metrics.RecordAttachments("skipped", len(req.Attachments)-len(uploaded))

	text := req.Text
	if len(uploaded) > 0 {
		text = fmt.Sprintf("%s\n\nUploaded images: %s", text, strings.Join(uploaded, ", "))
	}

	events := o.runner.Run(ctx, env, key, text, turn.Options{
		Channel:    req.ChannelID,
		ThreadTS:   req.ThreadTS,
		Entrypoint: o.cfg.Entrypoint,
	})

	outcome := "no_artifact"
	for ev := range events {
		switch ev.Kind {
		case turn.EventText:
			if err := o.sender.PostText(ctx, req.ChannelID, req.ThreadTS, ev.Text); err != nil {
				o.logger.Warn("posting turn output failed", "conversation", key.String(), "error", err)
				o.metrics.RecordError("slack", "post")
			}
		case turn.EventArtifact:
			outcome = "artifact"
			if err := o.sender.UploadFile(ctx, req.ChannelID, req.ThreadTS, artifactFilename, artifactTitle, "", ev.Artifact); err != nil {
				o.logger.Error("artifact upload failed", "conversation", key.String(), "error", err)
				o.metrics.RecordError("slack", "upload")
			}
		}
	}
	return outcome
}

// replyError posts the generic failure message. Best effort; the thread may
// be the thing that is broken.
func (o *Orchestrator) replyError(ctx context.Context, req *models.TurnRequest) {
	if err := o.sender.PostText(ctx, req.ChannelID, req.ThreadTS, errorReplyText); err != nil {
		o.logger.Warn("error reply failed", "channel", req.ChannelID, "error", err)
	}
}

// ManagerProvider adapts the concrete sandbox manager to SandboxProvider.
type ManagerProvider struct {
	Manager *sandbox.Manager
}

func (p ManagerProvider) Ensure(ctx context.Context, key conversation.Key) (sandbox.Environment, error) {
	return p.Manager.Ensure(ctx, key)
}
