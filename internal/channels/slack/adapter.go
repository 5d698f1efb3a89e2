// Package slack connects the service to Slack: Socket Mode for inbound
// mentions and thread replies, the Web API for posting text and uploading
// the generated GIFs.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/haasonsaas/gifsmith/pkg/models"
)

// Config holds the Slack credentials.
type Config struct {
	BotToken string // xoxb- token for API calls
	AppToken string // xapp- token for Socket Mode
}

// mentionPattern matches <@USERID> tokens so they can be stripped from the
// prompt text.
var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+>`)

// Adapter listens on Socket Mode and converts mention and thread-reply
// events into TurnRequests.
type Adapter struct {
	cfg          Config
	client       APIClient
	socketClient *socketmode.Client
	requests     chan *models.TurnRequest
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	botUserIDMu sync.RWMutex
	botUserID   string

	// closeMu orders enqueue sends before the channel close in Stop.
	closeMu sync.RWMutex
	closed  bool
}

// NewAdapter creates a Slack adapter from credentials.
func NewAdapter(cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	client := slack.New(
		cfg.BotToken,
		slack.OptionAppLevelToken(cfg.AppToken),
	)
	socketClient := socketmode.New(
		client,
		socketmode.OptionDebug(false),
	)
	return &Adapter{
		cfg:          cfg,
		client:       client,
		socketClient: socketClient,
		requests:     make(chan *models.TurnRequest, 100),
		logger:       logger.With("component", "slack"),
	}
}

// Client returns the underlying API client, shared with the sender side.
func (a *Adapter) Client() APIClient {
	return a.client
}

// Start authenticates, then begins consuming Socket Mode events.
func (a *Adapter) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	authResp, err := a.client.AuthTest()
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	a.botUserIDMu.Lock()
	a.botUserID = authResp.UserID
	a.botUserIDMu.Unlock()

	a.logger.Info("slack adapter started", "bot_user_id", authResp.UserID)

	a.wg.Add(1)
	go a.handleEvents()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.socketClient.Run(); err != nil {
			a.logger.Error("socket mode stopped", "error", err)
		}
	}()

	return nil
}

// Stop shuts down the event loop, honoring ctx as a deadline.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	a.closeMu.Lock()
	if !a.closed {
		a.closed = true
		close(a.requests)
	}
	a.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Requests returns the stream of inbound turn requests.
func (a *Adapter) Requests() <-chan *models.TurnRequest {
	return a.requests
}

func (a *Adapter) handleEvents() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case event, ok := <-a.socketClient.Events:
			if !ok {
				return
			}

			switch event.Type {
			case socketmode.EventTypeConnecting:
				a.logger.Debug("connecting to socket mode")
			case socketmode.EventTypeConnectionError:
				a.logger.Warn("socket mode connection error", "data", event.Data)
			case socketmode.EventTypeConnected:
				a.logger.Info("connected to socket mode")
			case socketmode.EventTypeEventsAPI:
				a.handleEventsAPI(event)
			case socketmode.EventTypeSlashCommand, socketmode.EventTypeInteractive:
				a.socketClient.Ack(*event.Request)
			}
		}
	}
}

func (a *Adapter) handleEventsAPI(event socketmode.Event) {
	eventsAPIEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		a.logger.Warn("unexpected events api payload", "data", event.Data)
		a.socketClient.Ack(*event.Request)
		return
	}
	a.socketClient.Ack(*event.Request)

	if eventsAPIEvent.Type != slackevents.CallbackEvent {
		return
	}

	teamID := eventsAPIEvent.TeamID
	switch ev := eventsAPIEvent.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		a.handleAppMention(teamID, ev)
	case *slackevents.MessageEvent:
		a.handleMessage(teamID, ev)
	}
}

// handleAppMention starts (or continues) a conversation when the bot is
// mentioned.
func (a *Adapter) handleAppMention(teamID string, event *slackevents.AppMentionEvent) {
	if event.BotID != "" {
		return
	}

	threadTS := event.ThreadTimeStamp
	if threadTS == "" {
		threadTS = event.TimeStamp
	}

	a.enqueue(&models.TurnRequest{
		TeamID:    teamID,
		ChannelID: event.Channel,
		ThreadTS:  threadTS,
		Text:      stripMentions(event.Text),
		Source:    models.SourceMention,
	})
}

// handleMessage continues a conversation on plain thread replies. Messages
// that mention the bot are ignored here; the mention handler owns those.
func (a *Adapter) handleMessage(teamID string, event *slackevents.MessageEvent) {
	if event.BotID != "" || event.SubType == "bot_message" {
		return
	}
	if event.SubType != "" && event.SubType != "file_share" {
		return
	}
	if event.ThreadTimeStamp == "" {
		return
	}

	a.botUserIDMu.RLock()
	botUserID := a.botUserID
	a.botUserIDMu.RUnlock()
	if botUserID != "" && strings.Contains(event.Text, fmt.Sprintf("<@%s>", botUserID)) {
		return
	}

	a.enqueue(&models.TurnRequest{
		TeamID:      teamID,
		ChannelID:   event.Channel,
		ThreadTS:    event.ThreadTimeStamp,
		Text:        event.Text,
		Source:      models.SourceThreadReply,
		Attachments: convertFiles(event.Files),
	})
}

func (a *Adapter) enqueue(req *models.TurnRequest) {
	a.closeMu.RLock()
	defer a.closeMu.RUnlock()
	if a.closed {
		return
	}

	select {
	case a.requests <- req:
	case <-a.ctx.Done():
	default:
		a.logger.Warn("request buffer full, dropping message", "channel", req.ChannelID, "thread_ts", req.ThreadTS)
	}
}

func stripMentions(text string) string {
	return strings.TrimSpace(mentionPattern.ReplaceAllString(text, ""))
}

func convertFiles(files []slackevents.File) []models.Attachment {
	if len(files) == 0 {
		return nil
	}
	attachments := make([]models.Attachment, 0, len(files))
	for _, file := range files {
		url := file.URLPrivateDownload
		if url == "" {
			url = file.URLPrivate
		}
		attachments = append(attachments, models.Attachment{
			URL:      url,
			Name:     file.Name,
			Filetype: strings.ToLower(file.Filetype),
			Size:     int64(file.Size),
		})
	}
	return attachments
}
