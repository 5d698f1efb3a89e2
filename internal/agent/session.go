package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/haasonsaas/gifsmith/internal/sessions"
)

// DefaultTranscriptDir is where session transcripts live on the
// conversation volume, next to the registry.
const DefaultTranscriptDir = "/data/claude-config"

// Store chains turns together: the registry maps the sandbox name to a
// session token, and the token names the transcript file.
type Store struct {
	registry *sessions.Registry
	dir      string
}

// NewStore builds a store over the given registry and transcript directory.
func NewStore(registry *sessions.Registry, dir string) *Store {
	if dir == "" {
		dir = DefaultTranscriptDir
	}
	return &Store{registry: registry, dir: dir}
}

// Resume returns the session token and transcript for the sandbox, and
// whether a registry entry already existed. A missing entry mints a fresh
// token with an empty transcript; a registered token whose transcript is
// missing or unreadable keeps the token but starts the history over.
func (s *Store) Resume(sandboxName string) (string, *Transcript, bool) {
	token, ok := s.registry.Load(sandboxName)
	if !ok {
		return uuid.NewString(), &Transcript{}, false
	}

	data, err := os.ReadFile(s.transcriptPath(token))
	if err != nil {
		return token, &Transcript{}, true
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return token, &Transcript{}, true
	}
	return token, &t, true
}

// Persist writes the transcript under the token and registers the token for
// the sandbox. Last write wins on the registry side.
func (s *Store) Persist(sandboxName, token string, t *Transcript) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("agent: create transcript dir: %w", err)
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("agent: encode transcript: %w", err)
	}
	if err := os.WriteFile(s.transcriptPath(token), data, 0o644); err != nil {
		return fmt.Errorf("agent: write transcript: %w", err)
	}
	return s.registry.Save(sandboxName, token)
}

func (s *Store) transcriptPath(token string) string {
	return filepath.Join(s.dir, token+".json")
}
