package slack

import (
	"context"

	"github.com/slack-go/slack"
)

// APIClient is the slice of the Slack Web API the service uses. The
// interface exists so tests can inject a mock.
type APIClient interface {
	AuthTest() (*slack.AuthTestResponse, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UploadFileV2Context(ctx context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error)
}

// Ensure slack.Client implements APIClient.
var _ APIClient = (*slack.Client)(nil)

// MockAPIClient is a test double for APIClient.
type MockAPIClient struct {
	AuthTestFunc            func() (*slack.AuthTestResponse, error)
	PostMessageContextFunc  func(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UploadFileV2ContextFunc func(ctx context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error)
}

func (m *MockAPIClient) AuthTest() (*slack.AuthTestResponse, error) {
	if m.AuthTestFunc != nil {
		return m.AuthTestFunc()
	}
	return &slack.AuthTestResponse{UserID: "U12345", Team: "TestTeam"}, nil
}

func (m *MockAPIClient) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	if m.PostMessageContextFunc != nil {
		return m.PostMessageContextFunc(ctx, channelID, options...)
	}
	return channelID, "1234567890.123456", nil
}

func (m *MockAPIClient) UploadFileV2Context(ctx context.Context, params slack.UploadFileV2Parameters) (*slack.FileSummary, error) {
	if m.UploadFileV2ContextFunc != nil {
		return m.UploadFileV2ContextFunc(ctx, params)
	}
	return &slack.FileSummary{ID: "F123", Title: params.Title}, nil
}
