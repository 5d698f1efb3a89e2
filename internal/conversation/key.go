// Package conversation defines the stable identity that binds a Slack thread
// to a sandbox and a session registry entry.
package conversation

import (
	"errors"
	"path"
	"strings"
)

// sandboxNamePrefix namespaces sandboxes created by this service so they can
// be listed and reaped without touching unrelated environments.
const sandboxNamePrefix = "gif"

// Key identifies one conversation thread. TeamID is the Slack workspace and
// ThreadTS is the timestamp of the thread root (or of the message itself when
// it starts a new thread). The same Key always resolves to the same sandbox
// and session entry; distinct threads never collide because both components
// participate in every derived name.
type Key struct {
	TeamID   string
	ThreadTS string
}

// ErrIncompleteKey is returned when either component of the key is missing.
var ErrIncompleteKey = errors.New("conversation: key requires both team id and thread ts")

// NewKey builds a conversation key, rejecting partial identities.
func NewKey(teamID, threadTS string) (Key, error) {
	teamID = strings.TrimSpace(teamID)
	threadTS = strings.TrimSpace(threadTS)
	if teamID == "" || threadTS == "" {
		return Key{}, ErrIncompleteKey
	}
	return Key{TeamID: teamID, ThreadTS: threadTS}, nil
}

// SandboxName derives the deterministic sandbox name for this thread.
// Slack thread timestamps contain a dot, which sandbox names do not allow,
// so dots are mapped to dashes. The mapping stays injective because team ids
// and timestamps never contain dashes themselves.
func (k Key) SandboxName() string {
	name := sandboxNamePrefix + "-" + k.TeamID + "-" + k.ThreadTS
	return strings.ReplaceAll(name, ".", "-")
}

// String returns the registry key for this conversation. It is the sandbox
// name, matching what the agent entrypoint receives on its command line.
func (k Key) String() string {
	return k.SandboxName()
}

// DataDir returns the private directory for this thread inside the shared
// persistent volume.
func (k Key) DataDir(volumeRoot string) string {
	return path.Join(volumeRoot, k.SandboxName())
}

// IsZero reports whether the key is unset.
func (k Key) IsZero() bool {
	return k.TeamID == "" && k.ThreadTS == ""
}
