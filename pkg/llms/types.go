// Package llms defines the LLM provider contract consumed by the
// conversation pipeline and its ollama, openai, anthropic, and gemini
// implementations.
//
// The pipeline only ever needs plain chat: a message list in, text (or a
// stream of text deltas) out, optionally constrained to JSON. Tool calling
// stays on the orchestrator side, so the provider surface is deliberately
// small.
package llms

import (
	"context"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant builds an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Options tunes a single call. Zero values fall back to the provider's
// configured defaults. Timeout > 0 bounds the call with its own deadline;
// the surrounding turn deadline still applies either way.
type Options struct {
	Temperature float64
	MaxTokens   int
	JSONMode    bool
	Timeout     time.Duration
}

// StreamChunk is one unit of streamed output.
type StreamChunk struct {
	Type   string // "text", "done", "error"
	Text   string
	Tokens int
	Error  error
}

// Provider is the capability set the core consumes.
type Provider interface {
	// Chat performs a non-streaming request and returns the full text.
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)

	// ChatStream returns a channel of text deltas. The channel is closed
	// after a "done" or "error" chunk.
	ChatStream(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	ModelName() string

	Close() error
}
