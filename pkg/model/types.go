// Package model wraps the external language-model providers behind one
// gateway: bounded per-session conversation history, retry with backoff, and
// translation between the tool catalog and each provider's function-calling
// schema.
package model

import (
	"context"
	"errors"
	"time"

	"github.com/deskpilot/deskpilot/pkg/catalog"
)

// ErrModelUnavailable is returned once every retry attempt against the
// provider has been exhausted.
var ErrModelUnavailable = errors.New("model: provider unavailable")

// Message is a single conversation turn.
type Message struct {
	Role      string    `json:"role"` // system, user, assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ToolCall is the model's decision to invoke one tool with arguments.
// Consumed once by the orchestrator, never persisted.
type ToolCall struct {
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Decision is the outcome of a decision-pass model call: either free text or
// a list of tool calls to execute.
type Decision struct {
	RequiresTools bool
	ToolCalls     []ToolCall
	Content       string
}

// Request carries one provider call.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []catalog.Tool
	Temperature  float64
	MaxTokens    int
}

// Reply is a provider's answer: text, tool calls, or both.
type Reply struct {
	Content   string
	ToolCalls []ToolCall
}

// Provider is one language-model API backend.
type Provider interface {
	Call(ctx context.Context, req Request) (*Reply, error)
	Name() string
}
