// Package models holds the wire-level types shared between the Slack
// channel and the turn orchestrator.
package models

// Attachment describes a file attached to an inbound Slack message.
type Attachment struct {
	// URL is the private download URL; fetching it requires the bot token.
	URL string

	// Name is the filename as declared by Slack.
	Name string

	// Filetype is Slack's lowercase type tag ("png", "jpg", ...).
	Filetype string

	// Size in bytes as reported by Slack, zero when unknown.
	Size int64
}

// Request sources.
const (
	SourceMention     = "mention"
	SourceThreadReply = "thread_reply"
)

// TurnRequest is one inbound message to process: the conversation identity,
// the user's text, and any attachments. Constructed per message, never
// persisted.
type TurnRequest struct {
	TeamID    string
	ChannelID string
	ThreadTS  string
	Text      string

	// Source records how the message arrived: a bot mention or a plain
	// thread reply.
	Source string

	Attachments []Attachment
}
