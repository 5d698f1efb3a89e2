package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/gifsmith/internal/telemetry"
)

// maxIterations bounds the tool-use loop per turn.
const maxIterations = 10

// defaultModel is used when no model is configured.
const defaultModel = "claude-sonnet-4-5"

// defaultMaxTokens bounds a single model response.
const defaultMaxTokens = 8192

// Hook observes a tool invocation. Fired synchronously before and after
// each tool execution; implementations must not block for long.
type Hook func(ev telemetry.Event)

// Options configures a runner.
type Options struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Tools        []Tool

	// Output receives the assistant's text blocks, one per line. Defaults
	// to os.Stdout; the gateway consumes this stream.
	Output io.Writer

	Logger *slog.Logger

	// PreToolUse and PostToolUse feed the telemetry relay. Either may be
	// nil.
	PreToolUse  Hook
	PostToolUse Hook
}

// Runner drives the tool-use loop for one turn.
type Runner struct {
	client anthropic.Client
	opts   Options
	tools  map[string]Tool
	logger *slog.Logger
}

// NewRunner validates options and builds a runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.APIKey == "" {
		return nil, errors.New("agent: API key is required")
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	tools := make(map[string]Tool, len(opts.Tools))
	for _, tool := range opts.Tools {
		tools[tool.Name()] = tool
	}

	return &Runner{
		client: anthropic.NewClient(clientOpts...),
		opts:   opts,
		tools:  tools,
		logger: logger.With("component", "agent"),
	}, nil
}

// Run appends the user message to the transcript and loops until the model
// answers without requesting tools, or the iteration bound is hit. The
// transcript is mutated in place so the caller can persist it afterwards,
// including after an error.
func (r *Runner) Run(ctx context.Context, transcript *Transcript, userMsg string) error {
	transcript.AddUser(userMsg)

	for iteration := 0; iteration < maxIterations; iteration++ {
		assistant, err := r.step(ctx, transcript)
		if err != nil {
			return err
		}
		transcript.Messages = append(transcript.Messages, assistant)

		if len(assistant.ToolCalls) == 0 {
			return nil
		}

		results := r.executeTools(ctx, assistant.ToolCalls)
		transcript.Messages = append(transcript.Messages, Message{
			Role:        RoleUser,
			ToolResults: results,
		})
	}

	return fmt.Errorf("agent: turn exceeded %d tool iterations", maxIterations)
}

// step performs one streaming model request. Text blocks are echoed to the
// output as they complete; tool calls are accumulated across their input
// deltas and returned on the assistant message.
func (r *Runner) step(ctx context.Context, transcript *Transcript) (Message, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(r.opts.Model),
		Messages:  convertMessages(transcript.Messages),
		MaxTokens: int64(defaultMaxTokens),
	}
	if r.opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: r.opts.SystemPrompt,
			},
		}
	}
	if len(r.tools) > 0 {
		tools, err := convertTools(r.opts.Tools)
		if err != nil {
			return Message{}, err
		}
		params.Tools = tools
	}

	stream := r.client.Messages.NewStreaming(ctx, params)

	var content strings.Builder
	var blockText strings.Builder
	var toolCalls []ToolCall
	var currentTool *ToolCall
	var currentInput strings.Builder

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "content_block_start":
			contentBlock := event.AsContentBlockStart().ContentBlock
			if contentBlock.Type == "tool_use" {
				toolUse := contentBlock.AsToolUse()
				currentTool = &ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				blockText.WriteString(delta.Text)
			case "input_json_delta":
				currentInput.WriteString(delta.PartialJSON)
			}

		case "content_block_stop":
			if currentTool != nil {
				input := currentInput.String()
				if input == "" {
					input = "{}"
				}
				currentTool.Input = json.RawMessage(input)
				toolCalls = append(toolCalls, *currentTool)
				currentTool = nil
			} else if blockText.Len() > 0 {
				fmt.Fprintln(r.opts.Output, blockText.String())
				if content.Len() > 0 {
					content.WriteString("\n")
				}
				content.WriteString(blockText.String())
				blockText.Reset()
			}

		case "message_stop":
			// Stream complete.
		}
	}
	if err := stream.Err(); err != nil {
		return Message{}, fmt.Errorf("agent: stream: %w", err)
	}

	return Message{
		Role:      RoleAssistant,
		Content:   content.String(),
		ToolCalls: toolCalls,
	}, nil
}

// executeTools runs the requested tools in order, firing the pre and post
// hooks around each one. Tool failures become error results for the model,
// never loop failures.
func (r *Runner) executeTools(ctx context.Context, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		r.fire(r.opts.PreToolUse, telemetry.Event{
			ToolName:  call.Name,
			ToolInput: rawToMap(call.Input),
		})

		output, err := r.executeOne(ctx, call)

		response := map[string]any{"output": output}
		result := ToolResult{ToolCallID: call.ID, Content: output}
		if err != nil {
			r.logger.Warn("tool execution failed", "tool", call.Name, "error", err)
			response = map[string]any{"error": err.Error(), "output": output}
			result.Content = fmt.Sprintf("%v\n%s", err, output)
			result.IsError = true
		}

		r.fire(r.opts.PostToolUse, telemetry.Event{
			ToolName:     call.Name,
			ToolResponse: response,
		})

		results = append(results, result)
	}
	return results
}

func (r *Runner) executeOne(ctx context.Context, call ToolCall) (string, error) {
	tool, ok := r.tools[call.Name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
	return tool.Execute(ctx, call.Input)
}

func (r *Runner) fire(hook Hook, ev telemetry.Event) {
	if hook == nil {
		return
	}
	hook(ev)
}

func convertMessages(messages []Message) []anthropic.MessageParam {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion

		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, toolResult := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(
				toolResult.ToolCallID,
				toolResult.Content,
				toolResult.IsError,
			))
		}
		for _, toolCall := range msg.ToolCalls {
			var input map[string]interface{}
			if err := json.Unmarshal(toolCall.Input, &input); err != nil {
				input = map[string]interface{}{}
			}
			content = append(content, anthropic.NewToolUseBlock(
				toolCall.ID,
				input,
				toolCall.Name,
			))
		}
		if len(content) == 0 {
			continue
		}

		if msg.Role == RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result
}

func convertTools(tools []Tool) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
			return nil, fmt.Errorf("agent: invalid tool schema for %s: %w", tool.Name(), err)
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name())
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("agent: invalid tool schema for %s: missing tool definition", tool.Name())
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description())

		result = append(result, toolParam)
	}
	return result, nil
}

func rawToMap(raw json.RawMessage) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{"raw": string(raw)}
	}
	return m
}
