// Package sandbox manages the isolated execution environments that turns run
// in. Each conversation thread owns one named Daytona sandbox, created
// lazily and reused across turns; teardown is delegated to the platform's
// auto-stop and auto-delete intervals configured at creation.
package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"

	toolbox "github.com/daytonaio/daytona/libs/toolbox-api-client-go"
)

// Environment is the surface the rest of the service uses to talk to a
// sandbox: run a command, move bytes in and out, probe for a file.
type Environment interface {
	// Name returns the deterministic sandbox name.
	Name() string

	// Exec runs a shell command inside the sandbox, writes its combined
	// output to stdout, and returns the exit code. A nonzero exit code is
	// not an error; err reports transport failures only. Implementations
	// may deliver the output only after the process exits rather than
	// streaming it live.
	Exec(ctx context.Context, command string, stdout io.Writer) (int, error)

	// WriteFile places data at path inside the sandbox.
	WriteFile(ctx context.Context, path string, data []byte) error

	// ReadFile reads the file at path inside the sandbox.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// FileExists probes for a regular file at path.
	FileExists(ctx context.Context, path string) (bool, error)
}

// Sandbox is a handle to one Daytona sandbox.
type Sandbox struct {
	id      string
	name    string
	workDir string
	toolbox *toolbox.APIClient
}

var _ Environment = (*Sandbox)(nil)

// Name returns the sandbox name derived from the conversation key.
func (s *Sandbox) Name() string { return s.name }

// ID returns the platform identifier of the underlying environment.
func (s *Sandbox) ID() string { return s.id }

// Exec runs the command through the toolbox process API. The API returns
// the combined output only once the process has exited, so stdout receives
// everything in a single write rather than a live stream.
func (s *Sandbox) Exec(ctx context.Context, command string, stdout io.Writer) (int, error) {
	execReq := toolbox.NewExecuteRequest(command)
	if s.workDir != "" {
		execReq.SetCwd(s.workDir)
	}

	resp, httpResp, err := s.toolbox.ProcessAPI.ExecuteCommand(ctx).Request(*execReq).Execute()
	if err != nil {
		return 0, fmt.Errorf("sandbox exec: %w", formatToolboxError(err, httpResp))
	}

	if stdout != nil && resp.Result != "" {
		if _, err := io.WriteString(stdout, resp.Result); err != nil {
			return 0, fmt.Errorf("sandbox exec output: %w", err)
		}
	}

	exitCode := 0
	if resp.ExitCode != nil {
		exitCode = int(*resp.ExitCode)
	}
	return exitCode, nil
}

func (s *Sandbox) WriteFile(ctx context.Context, path string, data []byte) error {
	// The toolbox upload API takes a file handle, so stage the bytes in a
	// temp file first.
	tmp, err := os.CreateTemp("", "gifsmith-upload-*")
	if err != nil {
		return fmt.Errorf("sandbox write file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("sandbox write file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("sandbox write file: %w", err)
	}

	_, httpResp, err := s.toolbox.FileSystemAPI.UploadFile(ctx).Path(path).File(tmp).Execute()
	if err != nil {
		return fmt.Errorf("sandbox upload %s: %w", path, formatToolboxError(err, httpResp))
	}
	return nil
}

func (s *Sandbox) ReadFile(ctx context.Context, path string) ([]byte, error) {
	file, httpResp, err := s.toolbox.FileSystemAPI.DownloadFile(ctx).Path(path).Execute()
	if err != nil {
		return nil, fmt.Errorf("sandbox download %s: %w", path, formatToolboxError(err, httpResp))
	}
	defer os.Remove(file.Name())
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("sandbox read %s: %w", path, err)
	}
	return data, nil
}

func (s *Sandbox) FileExists(ctx context.Context, path string) (bool, error) {
	code, err := s.Exec(ctx, fmt.Sprintf("test -f %s", ShellQuote(path)), nil)
	if err != nil {
		return false, err
	}
	return code == 0, nil
}
