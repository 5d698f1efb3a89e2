// Package sessions persists the mapping from a conversation key to the
// opaque agent session token that resumes it.
package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Registry is a file-backed session store. The whole store is one JSON
// document: a flat map from conversation key to session token. Every Save
// reads the document, merges the entry, and rewrites the document. Concurrent
// saves from separate processes are last-writer-wins across the whole store;
// a racing update for a different key can be dropped. See DESIGN.md.
type Registry struct {
	path string
	mu   sync.Mutex
}

// DefaultPath is the registry location on the conversation volume.
const DefaultPath = "/data/sessions.json"

// NewRegistry creates a registry backed by the given file path. The file is
// created on first Save.
func NewRegistry(path string) *Registry {
	return &Registry{path: path}
}

// Load returns the session token for the key. A missing or unreadable store
// means no prior session; continuity is best-effort and Load never fails.
func (r *Registry) Load(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	store := r.read()
	token, ok := store[key]
	return token, ok && token != ""
}

// Save upserts the token for the key, rewriting the whole store.
func (r *Registry) Save(key, token string) error {
	if key == "" {
		return fmt.Errorf("sessions: key is required")
	}
	if token == "" {
		return fmt.Errorf("sessions: token is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	store := r.read()
	store[key] = token

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("sessions: encode store: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("sessions: write store: %w", err)
	}
	return nil
}

// read loads the backing file. Any read or decode failure yields an empty
// store; corruption must never surface as an error.
func (r *Registry) read() map[string]string {
	store := map[string]string{}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return store
	}
	if err := json.Unmarshal(data, &store); err != nil {
		return map[string]string{}
	}
	return store
}
