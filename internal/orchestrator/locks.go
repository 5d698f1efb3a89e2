package orchestrator

import "sync"

// conversationLocks serializes turns per conversation. Slack can deliver a
// second thread reply while the first turn is still running; running both
// against the same sandbox and session registry concurrently would corrupt
// the session chain.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*conversationLock
}

type conversationLock struct {
	mu   sync.Mutex
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{locks: make(map[string]*conversationLock)}
}

// Acquire blocks until the conversation's lock is held and returns the
// release function. Entries are dropped once the last holder releases.
func (c *conversationLocks) Acquire(key string) func() {
	c.mu.Lock()
	entry, ok := c.locks[key]
	if !ok {
		entry = &conversationLock{}
		c.locks[key] = entry
	}
	entry.refs++
	c.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		c.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(c.locks, key)
		}
		c.mu.Unlock()
	}
}
