package telemetry

import (
	"strings"
	"testing"
)

func TestExtractFileWriteBasicHeredoc(t *testing.T) {
	content, filename := ExtractFileWrite("cat <<EOF > out.txt\nhello\nEOF")
	if content != "hello\n" {
		t.Fatalf("content = %q, want %q", content, "hello\n")
	}
	if filename != "out.txt" {
		t.Fatalf("filename = %q, want out.txt", filename)
	}
}

func TestExtractFileWriteQuotedLabelSynthesizesFilename(t *testing.T) {
	content, filename := ExtractFileWrite("cat <<'DONE'\nline one\nline two\nDONE")
	if content != "line one\nline two\n" {
		t.Fatalf("content = %q", content)
	}
	if filename != "done_heredoc.txt" {
		t.Fatalf("filename = %q, want done_heredoc.txt", filename)
	}
}

func TestExtractFileWriteLabelMidLineIsNotCloser(t *testing.T) {
	cmd := "cat <<EOF > script.py\nprint('EOF is not the end')\nEOF\n"
	content, _ := ExtractFileWrite(cmd)
	if content != "print('EOF is not the end')\n" {
		t.Fatalf("label inside body terminated extraction early: %q", content)
	}
}

func TestExtractFileWriteCloserIgnoresSurroundingWhitespace(t *testing.T) {
	content, _ := ExtractFileWrite("cat <<EOF > f\nbody\n  EOF  ")
	if content != "body\n" {
		t.Fatalf("content = %q, want %q", content, "body\n")
	}
}

func TestExtractFileWriteOnlyFirstOpenerIsMatched(t *testing.T) {
	cmd := "cat <<ONE > a.txt\nfirst\nONE\ncat <<TWO > b.txt\nsecond\nTWO"
	content, filename := ExtractFileWrite(cmd)
	if content != "first\n" {
		t.Fatalf("content = %q, want first heredoc only", content)
	}
	if filename != "a.txt" {
		t.Fatalf("filename = %q, want a.txt", filename)
	}
}

func TestExtractFileWriteIncomplete(t *testing.T) {
	cases := []struct {
		name string
		cmd  string
	}{
		{"no opener", "echo hello > out.txt"},
		{"no newline after opener", "cat <<EOF"},
		{"no closing delimiter", "cat <<EOF > out.txt\nbody without end"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			content, filename := ExtractFileWrite(tc.cmd)
			if content != "" || filename != "" {
				t.Fatalf("expected absent result, got %q, %q", content, filename)
			}
		})
	}
}

func TestExtractFileWriteQuotedRedirectTarget(t *testing.T) {
	_, filename := ExtractFileWrite("cat <<EOF > '/data/out.txt'\nx\nEOF")
	if filename != "out.txt" {
		t.Fatalf("filename = %q, want quoted path base name", filename)
	}
}

func TestFormatResponseStripsNoisyFieldsAndTruncates(t *testing.T) {
	out := Format(Event{ToolResponse: map[string]any{
		"command":   "cat something huge",
		"content":   strings.Repeat("x", 10_000),
		"file_path": "/data/output.gif",
		"status":    "ok",
	}})
	if out.Upload != nil || out.Message == nil {
		t.Fatalf("expected message output, got %+v", out)
	}
	if !strings.Contains(out.Message.Text, "Tool Response") {
		t.Fatalf("missing response label: %q", out.Message.Text)
	}
	if !strings.Contains(out.Message.Text, "status") {
		t.Fatalf("expected surviving field in %q", out.Message.Text)
	}
	for _, stripped := range []string{"cat something huge", "xxxxx", "/data/output.gif"} {
		if strings.Contains(out.Message.Text, stripped) {
			t.Fatalf("noisy field leaked into %q", out.Message.Text)
		}
	}
}

func TestTruncateBoundary(t *testing.T) {
	exact := strings.Repeat("a", 500)
	if got := truncate(exact); got != exact {
		t.Fatalf("500 runes must be untouched, got %d runes", len([]rune(got)))
	}
	over := strings.Repeat("a", 501)
	got := truncate(over)
	if got != strings.Repeat("a", 500)+"..." {
		t.Fatalf("501 runes must cut to 500 plus marker, got %d runes", len([]rune(got)))
	}
}

func TestFormatInputHeredocTakesPriorityOverText(t *testing.T) {
	out := Format(Event{
		ToolName: "Bash",
		ToolInput: map[string]any{
			"command": "cat <<EOF > gif_builder.py\nimport imageio\nEOF",
		},
	})
	if out.Message != nil {
		t.Fatal("heredoc input must not also render the generic text message")
	}
	if out.Upload == nil {
		t.Fatal("expected a file upload")
	}
	if out.Upload.Filename != "gif_builder.py" {
		t.Fatalf("filename = %q", out.Upload.Filename)
	}
	if string(out.Upload.Content) != "import imageio\n" {
		t.Fatalf("content = %q", out.Upload.Content)
	}
	if out.Upload.Title != "Generated gif_builder.py" {
		t.Fatalf("title = %q", out.Upload.Title)
	}
}

func TestFormatInputContentFilePathPair(t *testing.T) {
	out := Format(Event{
		ToolName: "Write",
		ToolInput: map[string]any{
			"file_path": "/data/frames/render.py",
			"content":   "print('hi')",
		},
	})
	if out.Upload == nil {
		t.Fatal("expected a file upload")
	}
	if out.Upload.Filename != "render.py" {
		t.Fatalf("filename = %q, want base name of file_path", out.Upload.Filename)
	}
}

func TestFormatInputFallsBackToTaggedText(t *testing.T) {
	out := Format(Event{
		ToolName:  "Read",
		ToolInput: map[string]any{"file_path": "/data/cat.png"},
	})
	if out.Upload != nil || out.Message == nil {
		t.Fatalf("expected text output, got %+v", out)
	}
	if !strings.Contains(out.Message.Text, "`Read`") {
		t.Fatalf("message must carry the tool name: %q", out.Message.Text)
	}
}

func TestFormatUnknownShapeEmitsNothing(t *testing.T) {
	out := Format(Event{ToolName: "Bash"})
	if out.Message != nil || out.Upload != nil {
		t.Fatalf("expected empty output, got %+v", out)
	}
}
