package telemetry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type mockPoster struct {
	mu      sync.Mutex
	texts   []string
	uploads []FileUpload

	failPosts int
	uploadErr error
}

func (m *mockPoster) PostText(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPosts > 0 {
		m.failPosts--
		return errors.New("rate limited")
	}
	m.texts = append(m.texts, text)
	return nil
}

func (m *mockPoster) UploadFile(ctx context.Context, upload FileUpload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return m.uploadErr
	}
	m.uploads = append(m.uploads, upload)
	return nil
}

func (m *mockPoster) snapshot() ([]string, []FileUpload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...), append([]FileUpload(nil), m.uploads...)
}

func TestRelayDeliversInOrder(t *testing.T) {
	poster := &mockPoster{}
	relay := NewRelay(poster, nil)
	relay.Start(context.Background())

	relay.Publish(Event{ToolName: "Bash", ToolInput: map[string]any{"command": "ls"}})
	relay.Publish(Event{ToolResponse: map[string]any{"status": "ok"}})
	relay.Close()

	texts, uploads := poster.snapshot()
	if len(uploads) != 0 {
		t.Fatalf("unexpected uploads: %v", uploads)
	}
	if len(texts) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(texts))
	}
	if !strings.Contains(texts[0], "Using Tool") || !strings.Contains(texts[1], "Tool Response") {
		t.Fatalf("messages out of order: %v", texts)
	}
}

func TestRelayFailedUploadDoesNotRetryAsText(t *testing.T) {
	poster := &mockPoster{uploadErr: errors.New("slack unavailable")}
	relay := NewRelay(poster, nil)
	relay.Start(context.Background())

	relay.Publish(Event{ToolName: "Bash", ToolInput: map[string]any{
		"command": "cat <<EOF > a.py\nx\nEOF",
	}})
	relay.Close()

	texts, uploads := poster.snapshot()
	if len(texts) != 0 || len(uploads) != 0 {
		t.Fatalf("failed upload must fall through to nothing, got texts=%v uploads=%v", texts, uploads)
	}
}

func TestRelayDeliveryErrorDoesNotStopConsumer(t *testing.T) {
	poster := &mockPoster{failPosts: 1}
	relay := NewRelay(poster, nil)
	relay.Start(context.Background())

	relay.Publish(Event{ToolResponse: map[string]any{"status": "one"}})
	relay.Publish(Event{ToolResponse: map[string]any{"status": "two"}})
	relay.Close()

	texts, _ := poster.snapshot()
	if len(texts) != 1 {
		t.Fatalf("expected the second delivery to survive the first failure, got %v", texts)
	}
}

func TestRelayPublishNeverBlocks(t *testing.T) {
	// Consumer never started: the buffer fills and further publishes drop.
	relay := NewRelay(&mockPoster{}, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			relay.Publish(Event{ToolResponse: map[string]any{"i": i}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full buffer")
	}
}
