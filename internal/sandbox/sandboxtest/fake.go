// Package sandboxtest provides an in-memory sandbox.Environment for tests.
package sandboxtest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/haasonsaas/gifsmith/internal/sandbox"
)

// FakeEnvironment is a scriptable, in-memory stand-in for a Daytona sandbox.
// Files written to it are visible to FileExists and ReadFile, and every
// executed command is recorded.
type FakeEnvironment struct {
	SandboxName string

	// ExecFunc overrides command execution. When nil, commands succeed with
	// exit code 0 and `test -f <path>` probes are answered from Files.
	ExecFunc func(ctx context.Context, command string, stdout io.Writer) (int, error)

	// WriteErr, when set, is returned by WriteFile.
	WriteErr error

	mu    sync.Mutex
	files map[string][]byte
	execs []string
}

var _ sandbox.Environment = (*FakeEnvironment)(nil)

func New(name string) *FakeEnvironment {
	return &FakeEnvironment{SandboxName: name, files: map[string][]byte{}}
}

func (f *FakeEnvironment) Name() string { return f.SandboxName }

func (f *FakeEnvironment) Exec(ctx context.Context, command string, stdout io.Writer) (int, error) {
	f.mu.Lock()
	f.execs = append(f.execs, command)
	f.mu.Unlock()

	if f.ExecFunc != nil {
		return f.ExecFunc(ctx, command, stdout)
	}

	if strings.HasPrefix(command, "test -f ") {
		path := strings.Trim(strings.TrimPrefix(command, "test -f "), "'")
		if _, ok := f.Read(path); ok {
			return 0, nil
		}
		return 1, nil
	}
	return 0, nil
}

func (f *FakeEnvironment) WriteFile(ctx context.Context, path string, data []byte) error {
	if f.WriteErr != nil {
		return f.WriteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = append([]byte(nil), data...)
	return nil
}

func (f *FakeEnvironment) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if data, ok := f.Read(path); ok {
		return data, nil
	}
	return nil, fmt.Errorf("sandboxtest: no such file %s", path)
}

func (f *FakeEnvironment) FileExists(ctx context.Context, path string) (bool, error) {
	_, ok := f.Read(path)
	return ok, nil
}

// Read returns a stored file without the error wrapping of ReadFile.
func (f *FakeEnvironment) Read(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	return data, ok
}

// Execs returns the commands executed so far.
func (f *FakeEnvironment) Execs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.execs...)
}
