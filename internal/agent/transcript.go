// Package agent is the in-sandbox turn runtime: a bounded tool-use loop
// over the Anthropic Messages API with local Bash, Write and Read tools,
// session transcripts persisted on the conversation volume, and tool hooks
// feeding the telemetry relay.
package agent

import "encoding/json"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of executing a tool call.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Message is one transcript entry. Assistant messages may carry tool calls;
// the user message that follows them carries the matching results.
type Message struct {
	Role        string       `json:"role"`
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// Transcript is the full conversation history for one session token. It is
// what makes thread replies resume with context after the sandbox restarts.
type Transcript struct {
	Messages []Message `json:"messages"`
}

// AddUser appends a user text message.
func (t *Transcript) AddUser(text string) {
	t.Messages = append(t.Messages, Message{Role: RoleUser, Content: text})
}
