package slack

import (
	"bytes"
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/haasonsaas/gifsmith/internal/telemetry"
)

// Sender posts text and uploads files into conversation threads.
type Sender struct {
	client APIClient
}

// NewSender wraps an API client for outbound delivery.
func NewSender(client APIClient) *Sender {
	return &Sender{client: client}
}

// PostText posts a markdown message into a thread.
func (s *Sender) PostText(ctx context.Context, channelID, threadTS, text string) error {
	options := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		options = append(options, slack.MsgOptionTS(threadTS))
	}
	if _, _, err := s.client.PostMessageContext(ctx, channelID, options...); err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// UploadFile uploads bytes into a thread with a title and optional comment.
func (s *Sender) UploadFile(ctx context.Context, channelID, threadTS, filename, title, comment string, data []byte) error {
	params := slack.UploadFileV2Parameters{
		Reader:          bytes.NewReader(data),
		FileSize:        len(data),
		Filename:        filename,
		Title:           title,
		Channel:         channelID,
		ThreadTimestamp: threadTS,
		InitialComment:  comment,
	}
	if _, err := s.client.UploadFileV2Context(ctx, params); err != nil {
		return fmt.Errorf("slack: upload file: %w", err)
	}
	return nil
}

// ThreadPoster binds a sender to one conversation thread, satisfying the
// telemetry relay's delivery contract.
type ThreadPoster struct {
	sender    *Sender
	channelID string
	threadTS  string
}

var _ telemetry.Poster = (*ThreadPoster)(nil)

// NewThreadPoster creates a poster pinned to a channel and thread.
func NewThreadPoster(client APIClient, channelID, threadTS string) *ThreadPoster {
	return &ThreadPoster{sender: NewSender(client), channelID: channelID, threadTS: threadTS}
}

func (p *ThreadPoster) PostText(ctx context.Context, text string) error {
	return p.sender.PostText(ctx, p.channelID, p.threadTS, text)
}

func (p *ThreadPoster) UploadFile(ctx context.Context, upload telemetry.FileUpload) error {
	return p.sender.UploadFile(ctx, p.channelID, p.threadTS, upload.Filename, upload.Title, upload.Comment, upload.Content)
}
