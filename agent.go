package pigeon

import (
	"context"
	"sync"
)

// Role labels for transcript entries.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TranscriptEntry is one role-tagged message in an agent's conversation
// history.
type TranscriptEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Agent is an opaque conversational execution context. The process runs two
// of them: the interactive context serving chat messages and the background
// context executing queued tasks. They never share an execution turn.
type Agent interface {
	// Prompt sends text to the agent and blocks until it has produced a
	// final response. The agent may perform arbitrarily many internal tool
	// invocations before returning.
	Prompt(ctx context.Context, text string) (string, error)
	// Reset discards all conversational state.
	Reset()
	// Dispose releases resources. Implementations must tolerate repeated
	// calls.
	Dispose()
	// Transcript returns an ordered snapshot of the conversation so far.
	Transcript() []TranscriptEntry
}

// TranscriptSource is the read-only slice of the Agent contract the
// background worker needs for context extraction.
type TranscriptSource interface {
	Transcript() []TranscriptEntry
}

// SessionCell owns the live agent handle for one execution context. Reset
// atomically swaps in a fresh agent from the factory after disposing the
// old one; readers always go through the accessor and must not cache the
// agent across calls.
type SessionCell struct {
	mu      sync.RWMutex
	agent   Agent
	factory func() Agent
}

// NewSessionCell creates a cell holding an agent freshly built from factory.
func NewSessionCell(factory func() Agent) *SessionCell {
	return &SessionCell{agent: factory(), factory: factory}
}

// Current returns the live agent handle.
func (c *SessionCell) Current() Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.agent
}

// Reset disposes the current agent and installs a fresh one.
func (c *SessionCell) Reset() {
	c.mu.Lock()
	old := c.agent
	c.agent = c.factory()
	c.mu.Unlock()
	old.Dispose()
}

// Dispose releases the current agent. The cell must not be used afterwards.
func (c *SessionCell) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agent.Dispose()
}

// Prompt forwards to the current agent through the accessor.
func (c *SessionCell) Prompt(ctx context.Context, text string) (string, error) {
	return c.Current().Prompt(ctx, text)
}

// Transcript forwards to the current agent through the accessor.
func (c *SessionCell) Transcript() []TranscriptEntry {
	return c.Current().Transcript()
}
