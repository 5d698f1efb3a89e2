// Package telemetry transforms raw tool-hook payloads into bounded,
// human-readable Slack messages and file uploads and relays them to the
// conversation thread as a best-effort side channel.
package telemetry

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
)

// maxPayloadRunes bounds every rendered telemetry payload. Anything longer
// is cut and suffixed with an ellipsis marker; a deliberate lossy policy
// that keeps large file bodies out of chat messages.
const maxPayloadRunes = 500

const ellipsisMarker = "..."

// heredocSuffix is appended to synthesized filenames when a heredoc has no
// output redirection to infer a name from.
const heredocSuffix = "_heredoc.txt"

// Event is a tool hook payload observed before or after a tool invocation.
// Exactly one of ToolInput (pre-use) or ToolResponse (post-use) is set;
// any other shape formats to nothing.
type Event struct {
	ToolName     string         `json:"tool_name,omitempty"`
	ToolInput    map[string]any `json:"tool_input,omitempty"`
	ToolResponse map[string]any `json:"tool_response,omitempty"`
}

// Message is a rendered text payload for the observer thread.
type Message struct {
	Text string
}

// FileUpload carries reconstructed file-write content to be uploaded instead
// of rendered as text.
type FileUpload struct {
	Filename string
	Title    string
	Comment  string
	Content  []byte
}

// Output is the result of formatting one event. At most one field is set;
// both nil means the event produced nothing.
type Output struct {
	Message *Message
	Upload  *FileUpload
}

var heredocOpener = regexp.MustCompile(`<<-?\s*(?:'([\w-]+)'|"([\w-]+)"|\\?([\w-]+))`)

var redirectTarget = regexp.MustCompile(`>\s*([^\s]+)`)

// Format renders a tool event. Post-use events become a response-labeled
// message with noisy fields stripped. Pre-use events whose input embeds file
// content (a shell heredoc, or an explicit content/file_path pair) become a
// FileUpload; otherwise the whole input is rendered as an input-labeled
// message. Both text forms are truncated to the payload cap.
func Format(ev Event) Output {
	switch {
	case ev.ToolResponse != nil:
		return formatResponse(ev.ToolResponse)
	case ev.ToolInput != nil:
		return formatInput(ev.ToolName, ev.ToolInput)
	default:
		return Output{}
	}
}

func formatResponse(response map[string]any) Output {
	// Strip fields that duplicate data already visible elsewhere in the
	// thread; raw command text and file bodies can be arbitrarily large.
	stripped := make(map[string]any, len(response))
	for k, v := range response {
		switch k {
		case "command", "content", "file_path":
		default:
			stripped[k] = v
		}
	}

	text := truncate(stringify(stripped))
	return Output{Message: &Message{
		Text: fmt.Sprintf("🔧 *Tool Response:*\n```\n%s\n```", text),
	}}
}

func formatInput(toolName string, input map[string]any) Output {
	if toolName == "" {
		toolName = "Unknown Tool"
	}

	var content, filename string
	if command, ok := input["command"].(string); ok {
		content, filename = ExtractFileWrite(command)
	} else if body, ok := input["content"].(string); ok {
		if filePath, ok := input["file_path"].(string); ok {
			content = body
			filename = path.Base(filePath)
		}
	}

	if content != "" {
		return Output{Upload: &FileUpload{
			Filename: filename,
			Title:    fmt.Sprintf("Generated %s", filename),
			Comment:  "⚙️ *Using Tool:* file write",
			Content:  []byte(content),
		}}
	}

	text := truncate(stringify(input))
	return Output{Message: &Message{
		Text: fmt.Sprintf("⚙️ *Using Tool:* `%s`\n```\n%s\n```", toolName, text),
	}}
}

// ExtractFileWrite reconstructs the file content embedded in a shell heredoc.
// Only the first heredoc opener in the command is considered. The closing
// delimiter must occupy an entire line (surrounding whitespace ignored); the
// label appearing mid-line inside the body does not terminate the content.
// Returns empty strings when the command holds no complete heredoc.
func ExtractFileWrite(command string) (content, filename string) {
	loc := heredocOpener.FindStringSubmatchIndex(command)
	if loc == nil {
		return "", ""
	}

	label := ""
	for _, group := range []int{1, 2, 3} {
		if start := loc[2*group]; start >= 0 {
			label = command[start:loc[2*group+1]]
			break
		}
	}
	if label == "" {
		return "", ""
	}

	newline := strings.Index(command[loc[1]:], "\n")
	if newline == -1 {
		return "", ""
	}
	contentStart := loc[1] + newline + 1

	closing := regexp.MustCompile(`(?m)^[ \t]*` + regexp.QuoteMeta(label) + `[ \t\r]*$`)
	closeLoc := closing.FindStringIndex(command[contentStart:])
	if closeLoc == nil {
		return "", ""
	}

	content = command[contentStart : contentStart+closeLoc[0]]
	return content, inferFilename(command, label)
}

// inferFilename takes the base name of the first output redirection target,
// falling back to a name synthesized from the heredoc label.
func inferFilename(command, label string) string {
	if m := redirectTarget.FindStringSubmatch(command); m != nil {
		candidate := strings.Trim(m[1], `'"`)
		if candidate != "" {
			return path.Base(candidate)
		}
	}
	return strings.ToLower(label) + heredocSuffix
}

// stringify renders an arbitrary payload map as compact JSON. Marshal
// failures degrade to fmt's map rendering rather than dropping the event.
func stringify(payload map[string]any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(data)
}

// truncate enforces the payload cap, counting runes so multi-byte text is
// not cut mid-character.
func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxPayloadRunes {
		return s
	}
	return string(runes[:maxPayloadRunes]) + ellipsisMarker
}
