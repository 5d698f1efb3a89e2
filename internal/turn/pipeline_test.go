package turn

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/haasonsaas/gifsmith/internal/conversation"
	"github.com/haasonsaas/gifsmith/internal/sandbox/sandboxtest"
)

func collect(t *testing.T, events <-chan Event) (texts []string, artifacts [][]byte) {
	t.Helper()
	for ev := range events {
		switch ev.Kind {
		case EventText:
			texts = append(texts, ev.Text)
		case EventArtifact:
			artifacts = append(artifacts, ev.Artifact)
		}
	}
	return texts, artifacts
}

func testKey(t *testing.T) conversation.Key {
	t.Helper()
	key, err := conversation.NewKey("T123", "1700000000.000100")
	if err != nil {
		t.Fatalf("NewKey() error = %v", err)
	}
	return key
}

func TestRunStreamsStdoutInOrder(t *testing.T) {
	env := sandboxtest.New("gif-T123-1700000000-000100")
	env.ExecFunc = func(ctx context.Context, command string, stdout io.Writer) (int, error) {
		if stdout != nil {
			io.WriteString(stdout, "first\nsecond\nthird\n")
		}
		return 0, nil
	}

	pipe := NewPipeline(nil)
	texts, artifacts := collect(t, pipe.Run(context.Background(), env, testKey(t), "make a gif", Options{}))

	if len(artifacts) != 0 {
		t.Fatalf("expected no artifact, got %d", len(artifacts))
	}
	want := []string{"first", "second", "third", noArtifactText}
	if len(texts) != len(want) {
		t.Fatalf("texts = %v, want %v", texts, want)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Fatalf("texts[%d] = %q, want %q", i, texts[i], want[i])
		}
	}
}

func TestRunDropsBlankStdoutLines(t *testing.T) {
	env := sandboxtest.New("gif-T123-1700000000-000100")
	env.ExecFunc = func(ctx context.Context, command string, stdout io.Writer) (int, error) {
		if stdout != nil {
			io.WriteString(stdout, "one\n\n\ntwo\n")
		}
		return 0, nil
	}

	pipe := NewPipeline(nil)
	texts, _ := collect(t, pipe.Run(context.Background(), env, testKey(t), "make a gif", Options{}))

	want := []string{"one", "two", noArtifactText}
	if len(texts) != len(want) {
		t.Fatalf("texts = %v, want %v", texts, want)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Fatalf("texts[%d] = %q, want %q", i, texts[i], want[i])
		}
	}
}

func TestRunEmitsExactlyOneArtifactWhenPresent(t *testing.T) {
	env := sandboxtest.New("gif-T123-1700000000-000100")
	env.ExecFunc = func(ctx context.Context, command string, stdout io.Writer) (int, error) {
		// The agent writes the artifact during the turn.
		env.WriteFile(ctx, ArtifactPath, []byte("GIF89a..."))
		return 0, nil
	}

	pipe := NewPipeline(nil)
	texts, artifacts := collect(t, pipe.Run(context.Background(), env, testKey(t), "make a gif", Options{}))

	if len(artifacts) != 1 {
		t.Fatalf("expected exactly one artifact event, got %d", len(artifacts))
	}
	if string(artifacts[0]) != "GIF89a..." {
		t.Fatalf("artifact bytes = %q", artifacts[0])
	}
	for _, text := range texts {
		if text == noArtifactText {
			t.Fatalf("artifact run must not emit %q", noArtifactText)
		}
	}
}

func TestRunSurfacesStderrAsSingleErrorEvent(t *testing.T) {
	env := sandboxtest.New("gif-T123-1700000000-000100")
	env.ExecFunc = func(ctx context.Context, command string, stdout io.Writer) (int, error) {
		// Simulate the shell redirect landing stderr in the scratch file.
		stderrPath := stderrPathFromCommand(command)
		env.WriteFile(ctx, stderrPath, []byte("Traceback: boom\n"))
		return 1, nil
	}

	pipe := NewPipeline(nil)
	texts, _ := collect(t, pipe.Run(context.Background(), env, testKey(t), "make a gif", Options{}))

	var errorEvents int
	for _, text := range texts {
		if strings.HasPrefix(text, errorPrefix) {
			errorEvents++
			if !strings.Contains(text, "Traceback: boom") {
				t.Fatalf("error event missing stderr content: %q", text)
			}
		}
	}
	if errorEvents != 1 {
		t.Fatalf("expected one error event, got %d", errorEvents)
	}

	// Nonzero exit must not skip the artifact probe.
	if texts[len(texts)-1] != noArtifactText {
		t.Fatalf("expected trailing %q event, got %v", noArtifactText, texts)
	}
}

func TestBuildCommandQuotingAndTelemetryFlags(t *testing.T) {
	key := testKey(t)

	cmd := buildCommand(key, "it's a cat; rm -rf /", Options{Channel: "C42", ThreadTS: "1.2"}, "/tmp/err.log")
	if !strings.Contains(cmd, `--message 'it'\''s a cat; rm -rf /'`) {
		t.Fatalf("message not quoted: %s", cmd)
	}
	if !strings.Contains(cmd, "--sandbox-name 'gif-T123-1700000000-000100'") {
		t.Fatalf("sandbox name missing: %s", cmd)
	}
	if !strings.Contains(cmd, "--channel 'C42'") || !strings.Contains(cmd, "--thread-ts '1.2'") {
		t.Fatalf("telemetry descriptor missing: %s", cmd)
	}
	if !strings.Contains(cmd, "2>'/tmp/err.log'") {
		t.Fatalf("stderr redirect missing: %s", cmd)
	}

	noTelemetry := buildCommand(key, "hi", Options{}, "/tmp/err.log")
	if strings.Contains(noTelemetry, "--channel") {
		t.Fatalf("telemetry flags must be omitted without a descriptor: %s", noTelemetry)
	}
}

// stderrPathFromCommand extracts the 2> redirect target from a built command.
func stderrPathFromCommand(command string) string {
	idx := strings.LastIndex(command, "2>'")
	if idx == -1 {
		return ""
	}
	rest := command[idx+3:]
	end := strings.Index(rest, "'")
	if end == -1 {
		return rest
	}
	return rest[:end]
}
