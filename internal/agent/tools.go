package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// maxToolOutputBytes caps what a single tool execution feeds back into the
// model context.
const maxToolOutputBytes = 30000

// Tool is one locally executed capability exposed to the model.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// BashTool runs shell commands inside the sandbox.
type BashTool struct {
	WorkDir string
	Timeout time.Duration
}

// NewBashTool builds a bash tool rooted at workDir.
func NewBashTool(workDir string, timeout time.Duration) *BashTool {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &BashTool{WorkDir: workDir, Timeout: timeout}
}

func (t *BashTool) Name() string { return "Bash" }

func (t *BashTool) Description() string {
	return "Run a bash command in the sandbox and return its combined output."
}

func (t *BashTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "The shell command to run"}
		},
		"required": ["command"]
	}`)
}

func (t *BashTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("invalid Bash input: %w", err)
	}
	if args.Command == "" {
		return "", fmt.Errorf("Bash requires a command")
	}

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", args.Command)
	cmd.Dir = t.WorkDir
	out, err := cmd.CombinedOutput()
	output := truncateBytes(out)
	if err != nil {
		return output, fmt.Errorf("command failed: %w", err)
	}
	return output, nil
}

// WriteTool writes a file inside the sandbox, creating parent directories.
type WriteTool struct{}

func (t *WriteTool) Name() string { return "Write" }

func (t *WriteTool) Description() string {
	return "Write content to a file, creating parent directories as needed."
}

func (t *WriteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string", "description": "Absolute path of the file to write"},
			"content": {"type": "string", "description": "The full file content"}
		},
		"required": ["file_path", "content"]
	}`)
}

func (t *WriteTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("invalid Write input: %w", err)
	}
	if args.FilePath == "" {
		return "", fmt.Errorf("Write requires a file_path")
	}
	if err := os.MkdirAll(filepath.Dir(args.FilePath), 0o755); err != nil {
		return "", fmt.Errorf("create parent dir: %w", err)
	}
	if err := os.WriteFile(args.FilePath, []byte(args.Content), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(args.Content), args.FilePath), nil
}

// ReadTool reads a file inside the sandbox.
type ReadTool struct{}

func (t *ReadTool) Name() string { return "Read" }

func (t *ReadTool) Description() string {
	return "Read a file and return its content."
}

func (t *ReadTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string", "description": "Absolute path of the file to read"}
		},
		"required": ["file_path"]
	}`)
}

func (t *ReadTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("invalid Read input: %w", err)
	}
	if args.FilePath == "" {
		return "", fmt.Errorf("Read requires a file_path")
	}
	data, err := os.ReadFile(args.FilePath)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return truncateBytes(data), nil
}

func truncateBytes(b []byte) string {
	if len(b) <= maxToolOutputBytes {
		return string(b)
	}
	return string(b[:maxToolOutputBytes]) + "\n... (output truncated)"
}
