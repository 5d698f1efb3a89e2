package telemetry

import (
	"context"
	"log/slog"
	"sync"
)

// Poster delivers formatted telemetry to the observer thread. Implemented by
// the Slack channel; mocked in tests.
type Poster interface {
	PostText(ctx context.Context, text string) error
	UploadFile(ctx context.Context, upload FileUpload) error
}

// Relay consumes tool events off a buffered channel and delivers them to the
// observer thread. Delivery is best-effort: failures are logged and never
// propagate to the turn that produced the event. Events are delivered in the
// order they were published; this stream carries no ordering guarantee
// relative to the turn's stdout stream.
type Relay struct {
	poster Poster
	logger *slog.Logger
	events chan Event

	startOnce sync.Once
	done      chan struct{}
}

// NewRelay creates a relay over the given poster. A nil logger falls back to
// slog.Default.
func NewRelay(poster Poster, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		poster: poster,
		logger: logger.With("component", "telemetry"),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
}

// Start launches the consumer goroutine. It returns immediately; the
// consumer drains remaining events after ctx is canceled and then exits.
func (r *Relay) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		go r.consume(ctx)
	})
}

// Publish enqueues an event without blocking the caller. Events are dropped
// with a log line when the buffer is full; telemetry loss is preferable to
// stalling the turn.
func (r *Relay) Publish(ev Event) {
	select {
	case r.events <- ev:
	default:
		r.logger.Warn("telemetry buffer full, dropping event", "tool", ev.ToolName)
	}
}

// Close stops accepting events and waits for queued events to be delivered.
func (r *Relay) Close() {
	close(r.events)
	<-r.done
}

func (r *Relay) consume(ctx context.Context) {
	defer close(r.done)
	for ev := range r.events {
		r.deliver(ctx, ev)
	}
}

// deliver formats and posts a single event inside its own error boundary.
// A failed file upload falls through to nothing; it must not retry as text.
func (r *Relay) deliver(ctx context.Context, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("telemetry delivery panicked", "panic", rec)
		}
	}()

	out := Format(ev)
	switch {
	case out.Upload != nil:
		if err := r.poster.UploadFile(ctx, *out.Upload); err != nil {
			r.logger.Warn("telemetry upload failed", "error", err, "filename", out.Upload.Filename)
		}
	case out.Message != nil:
		if err := r.poster.PostText(ctx, out.Message.Text); err != nil {
			r.logger.Warn("telemetry post failed", "error", err)
		}
	}
}
