package slack

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/haasonsaas/gifsmith/internal/telemetry"
	"github.com/haasonsaas/gifsmith/pkg/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAdapter() *Adapter {
	return &Adapter{
		requests: make(chan *models.TurnRequest, 10),
		logger:   discardLogger(),
	}
}

func TestStripMentions(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"<@U123ABC> make a dancing cat gif", "make a dancing cat gif"},
		{"make it <@U123ABC> faster", "make it  faster"},
		{"no mention here", "no mention here"},
	}
	for _, tc := range cases {
		if got := stripMentions(tc.in); got != tc.want {
			t.Errorf("stripMentions(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHandleAppMentionProducesRequest(t *testing.T) {
	a := newTestAdapter()
	a.ctx, a.cancel = context.WithCancel(context.Background())
	defer a.cancel()
	a.logger = discardLogger()

	a.handleAppMention("T123", &slackevents.AppMentionEvent{
		User:      "U777",
		Text:      "<@U12345> dancing cat",
		Channel:   "C42",
		TimeStamp: "1700000000.000100",
	})

	req := <-a.requests
	if req.TeamID != "T123" || req.ChannelID != "C42" {
		t.Fatalf("unexpected request identity: %+v", req)
	}
	if req.ThreadTS != "1700000000.000100" {
		t.Fatalf("message ts must seed the thread ts, got %q", req.ThreadTS)
	}
	if req.Text != "dancing cat" {
		t.Fatalf("mention not stripped: %q", req.Text)
	}
	if req.Source != models.SourceMention {
		t.Fatalf("source = %q", req.Source)
	}
}

func TestHandleAppMentionIgnoresBots(t *testing.T) {
	a := newTestAdapter()
	a.ctx, a.cancel = context.WithCancel(context.Background())
	defer a.cancel()
	a.logger = discardLogger()

	a.handleAppMention("T123", &slackevents.AppMentionEvent{
		BotID:     "B999",
		Text:      "<@U12345> loop",
		Channel:   "C42",
		TimeStamp: "1.2",
	})

	select {
	case req := <-a.requests:
		t.Fatalf("bot mention must be ignored, got %+v", req)
	default:
	}
}

func TestHandleMessageRequiresThread(t *testing.T) {
	a := newTestAdapter()
	a.ctx, a.cancel = context.WithCancel(context.Background())
	defer a.cancel()
	a.logger = discardLogger()

	a.handleMessage("T123", &slackevents.MessageEvent{
		User:      "U777",
		Text:      "hello channel",
		Channel:   "C42",
		TimeStamp: "1.2",
	})

	select {
	case req := <-a.requests:
		t.Fatalf("non-thread message must be ignored, got %+v", req)
	default:
	}
}

func TestHandleMessageThreadReplyWithFiles(t *testing.T) {
	a := newTestAdapter()
	a.ctx, a.cancel = context.WithCancel(context.Background())
	defer a.cancel()
	a.logger = discardLogger()

	a.handleMessage("T123", &slackevents.MessageEvent{
		User:            "U777",
		Text:            "use this one",
		Channel:         "C42",
		TimeStamp:       "2.3",
		ThreadTimeStamp: "1.2",
		SubType:         "file_share",
		Files: []slackevents.File{
			{Name: "cat.png", Filetype: "PNG", URLPrivateDownload: "https://files.slack.com/cat.png", Size: 9},
		},
	})

	req := <-a.requests
	if req.ThreadTS != "1.2" {
		t.Fatalf("thread ts = %q, want parent thread", req.ThreadTS)
	}
	if len(req.Attachments) != 1 {
		t.Fatalf("attachments = %+v", req.Attachments)
	}
	att := req.Attachments[0]
	if att.Filetype != "png" {
		t.Fatalf("filetype must be lowercased, got %q", att.Filetype)
	}
	if att.URL != "https://files.slack.com/cat.png" {
		t.Fatalf("attachment url = %q", att.URL)
	}
}

func TestHandleMessageSkipsMentionsAndBots(t *testing.T) {
	a := newTestAdapter()
	a.ctx, a.cancel = context.WithCancel(context.Background())
	defer a.cancel()
	a.logger = discardLogger()
	a.botUserID = "U12345"

	// The mention handler owns messages that mention the bot.
	a.handleMessage("T123", &slackevents.MessageEvent{
		User:            "U777",
		Text:            "<@U12345> again please",
		Channel:         "C42",
		ThreadTimeStamp: "1.2",
		TimeStamp:       "2.3",
	})
	// Bot echoes must never trigger turns.
	a.handleMessage("T123", &slackevents.MessageEvent{
		BotID:           "B999",
		Text:            "No GIF generated",
		Channel:         "C42",
		ThreadTimeStamp: "1.2",
		TimeStamp:       "2.4",
	})

	select {
	case req := <-a.requests:
		t.Fatalf("expected no requests, got %+v", req)
	default:
	}
}

func TestSenderPostTextThreadsReply(t *testing.T) {
	var gotChannel string
	var gotOptions int
	mock := &MockAPIClient{
		PostMessageContextFunc: func(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
			gotChannel = channelID
			gotOptions = len(options)
			return channelID, "1.2", nil
		},
	}

	sender := NewSender(mock)
	if err := sender.PostText(context.Background(), "C42", "1.2", "hello"); err != nil {
		t.Fatalf("PostText() error = %v", err)
	}
	if gotChannel != "C42" {
		t.Fatalf("channel = %q", gotChannel)
	}
	if gotOptions != 2 {
		t.Fatalf("expected text + thread options, got %d", gotOptions)
	}
}

func TestThreadPosterUploadsTelemetryFile(t *testing.T) {
	var got slack.UploadFileV2Parameters
	mock := &MockAPIClient{
		UploadFileV2ContextFunc: func(ctx context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error) {
			got = params
			return &slack.FileSummary{ID: "F1"}, nil
		},
	}

	poster := NewThreadPoster(mock, "C42", "1.2")
	err := poster.UploadFile(context.Background(), telemetry.FileUpload{
		Filename: "script.py",
		Title:    "Generated script.py",
		Comment:  "⚙️ *Using Tool:* file write",
		Content:  []byte("print('hi')"),
	})
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if got.Channel != "C42" || got.ThreadTimestamp != "1.2" {
		t.Fatalf("upload not pinned to thread: %+v", got)
	}
	if got.Filename != "script.py" || got.FileSize != len("print('hi')") {
		t.Fatalf("upload parameters wrong: %+v", got)
	}
}

func TestStopClosesRequestsAndToleratesLateEvents(t *testing.T) {
	a := newTestAdapter()
	a.ctx, a.cancel = context.WithCancel(context.Background())

	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	// A Socket Mode event still in flight during shutdown must not panic
	// on the closed channel.
	a.handleAppMention("T123", &slackevents.AppMentionEvent{
		User:      "U777",
		Text:      "late",
		Channel:   "C42",
		TimeStamp: "1700000000.000100",
	})

	if _, ok := <-a.Requests(); ok {
		t.Fatal("requests channel must be closed after Stop")
	}

	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}
