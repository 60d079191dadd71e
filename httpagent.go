package pigeon

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// maxToolRounds bounds the tool-call loop of a single prompt so a
// misbehaving model cannot spin forever.
const maxToolRounds = 8

// HTTPAgentConfig configures one HTTPAgent instance. The interactive and
// background contexts each get their own, configured independently.
type HTTPAgentConfig struct {
	// BaseURL is the root of an OpenAI-compatible API, e.g.
	// "https://api.openai.com/v1".
	BaseURL string
	// APIKey is sent as a bearer token. May be empty for local endpoints.
	APIKey string
	// Model is the model name passed through to the endpoint.
	Model string
	// SystemPrompt seeds every fresh conversation.
	SystemPrompt string
	// Tools, when set, exposes the memory and task-enqueue capabilities
	// to the model.
	Tools *Toolkit
	// Timeout bounds a single completion call. Zero means 5 minutes.
	Timeout time.Duration
}

// HTTPAgent is an Agent backed by an OpenAI-compatible chat-completions
// endpoint. It keeps the running conversation in memory and resolves tool
// calls against the configured Toolkit before returning; Reset starts a
// fresh conversation.
type HTTPAgent struct {
	cfg     HTTPAgentConfig
	client  *http.Client
	encoder Encoder

	mu      sync.Mutex
	history []TranscriptEntry
}

// NewHTTPAgent creates an agent for the given endpoint configuration.
func NewHTTPAgent(cfg HTTPAgentConfig) *HTTPAgent {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &HTTPAgent{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		encoder: &JSONEncoder{},
	}
}

type toolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type toolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function toolCallFunction `json:"function"`
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type toolFunction struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

type toolDef struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []toolDef     `json:"tools,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Prompt appends the user turn, runs completions (resolving tool calls)
// until the model produces text, and appends the assistant turn. Transport
// and API errors leave the user turn recorded so a retry carries the same
// context.
func (a *HTTPAgent) Prompt(ctx context.Context, text string) (string, error) {
	a.mu.Lock()
	a.history = append(a.history, TranscriptEntry{Role: RoleUser, Content: text})
	msgs := a.requestMessages()
	a.mu.Unlock()

	var out string
	for round := 0; ; round++ {
		msg, err := a.complete(ctx, msgs)
		if err != nil {
			return "", err
		}
		if len(msg.ToolCalls) == 0 || a.cfg.Tools == nil || round >= maxToolRounds {
			out = msg.Content
			break
		}
		msgs = append(msgs, msg)
		for _, call := range msg.ToolCalls {
			msgs = append(msgs, chatMessage{
				Role:       "tool",
				Content:    a.dispatchTool(call),
				ToolCallID: call.ID,
			})
		}
	}

	a.mu.Lock()
	a.history = append(a.history, TranscriptEntry{Role: RoleAssistant, Content: out})
	a.mu.Unlock()
	return out, nil
}

// dispatchTool resolves one tool call. Tool failures come back as error
// text in the tool result, never as a Go error; the model decides how to
// proceed.
func (a *HTTPAgent) dispatchTool(call toolCall) string {
	switch call.Function.Name {
	case "memory":
		return a.cfg.Tools.MemoryTool([]byte(call.Function.Arguments))
	case "enqueue_task":
		var args struct {
			Description string `json:"description"`
		}
		if err := a.encoder.Decode([]byte(call.Function.Arguments), &args); err != nil {
			return fmt.Sprintf("error: malformed enqueue_task payload: %v", err)
		}
		return a.cfg.Tools.EnqueueTask(args.Description)
	default:
		return fmt.Sprintf("error: unknown tool %q", call.Function.Name)
	}
}

// requestMessages builds the wire messages. Callers must hold a.mu.
func (a *HTTPAgent) requestMessages() []chatMessage {
	msgs := make([]chatMessage, 0, len(a.history)+1)
	if a.cfg.SystemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: a.cfg.SystemPrompt})
	}
	for _, e := range a.history {
		msgs = append(msgs, chatMessage{Role: e.Role, Content: e.Content})
	}
	return msgs
}

// toolDefs describes the capability surface offered to the model.
func (a *HTTPAgent) toolDefs() []toolDef {
	if a.cfg.Tools == nil {
		return nil
	}
	return []toolDef{
		{
			Type: "function",
			Function: toolFunction{
				Name:        "memory",
				Description: "Read, append to or list the weekly memory log shared by all contexts.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"action": map[string]any{
							"type": "string",
							"enum": []string{MemoryActionRead, MemoryActionReadWeek, MemoryActionAppend, MemoryActionList},
						},
						"week":    map[string]any{"type": "string", "description": "ISO week id like 2026-W07, for read_week"},
						"content": map[string]any{"type": "string", "description": "entry text, for append"},
					},
					"required": []string{"action"},
				},
			},
		},
		{
			Type: "function",
			Function: toolFunction{
				Name:        "enqueue_task",
				Description: "Queue a background task. The description must be fully self-contained.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"description": map[string]any{"type": "string"},
					},
					"required": []string{"description"},
				},
			},
		},
	}
}

func (a *HTTPAgent) complete(ctx context.Context, msgs []chatMessage) (chatMessage, error) {
	body, err := a.encoder.Encode(chatRequest{
		Model:    a.cfg.Model,
		Messages: msgs,
		Tools:    a.toolDefs(),
	})
	if err != nil {
		return chatMessage{}, fmt.Errorf("pigeon: encode completion request: %w", err)
	}

	url := strings.TrimRight(a.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return chatMessage{}, fmt.Errorf("pigeon: build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return chatMessage{}, fmt.Errorf("pigeon: completion call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return chatMessage{}, fmt.Errorf("pigeon: read completion response: %w", err)
	}

	var parsed chatResponse
	if err := a.encoder.Decode(data, &parsed); err != nil {
		return chatMessage{}, fmt.Errorf("pigeon: decode completion response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return chatMessage{}, fmt.Errorf("pigeon: api error (status %d): %s", resp.StatusCode, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return chatMessage{}, fmt.Errorf("pigeon: completion returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return chatMessage{}, fmt.Errorf("pigeon: completion returned no choices")
	}
	return parsed.Choices[0].Message, nil
}

// Reset discards the conversation.
func (a *HTTPAgent) Reset() {
	a.mu.Lock()
	a.history = nil
	a.mu.Unlock()
}

// Dispose is a no-op; the agent holds no external resources beyond the
// shared HTTP client. Safe to call repeatedly.
func (a *HTTPAgent) Dispose() {}

// Transcript returns a snapshot copy of the conversation history. Tool
// plumbing is internal; only user and assistant text turns appear.
func (a *HTTPAgent) Transcript() []TranscriptEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]TranscriptEntry, len(a.history))
	copy(out, a.history)
	return out
}
