package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deskpilot/deskpilot/pkg/catalog"
	"github.com/deskpilot/deskpilot/pkg/desktop"
	"github.com/rs/zerolog"
)

const systemPrompt = `You are a desktop automation assistant controlling a macOS machine through tools.
When the user asks you to perform an action on the desktop, use the available tools to do it rather than describing what could be done.
Chain tool calls in the order the user asked for them. Coordinates are absolute screen pixels.`

// Config holds gateway configuration. Retry attempts and the backoff base
// are configuration so they can be tightened in tests.
type Config struct {
	Provider     Provider
	Model        string
	Temperature  float64
	MaxTokens    int
	MaxRetries   int
	RetryBackoff time.Duration
	HistoryLimit int
	Logger       zerolog.Logger
}

// Gateway owns the per-session conversation history and all provider calls.
type Gateway struct {
	provider     Provider
	model        string
	temperature  float64
	maxTokens    int
	maxRetries   int
	retryBackoff time.Duration
	history      *historyStore
	logger       zerolog.Logger
}

// New creates a gateway. The provider is required; everything else has
// defaults (3 attempts, 1s backoff base, 20-message history, 4096 tokens).
func New(cfg Config) (*Gateway, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	return &Gateway{
		provider:     cfg.Provider,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		history:      newHistoryStore(cfg.HistoryLimit),
		logger:       cfg.Logger,
	}, nil
}

// ProcessMessage appends the user message to the session history and asks
// the model to either answer in text or request tool calls.
func (g *Gateway) ProcessMessage(ctx context.Context, message string, tools []catalog.Tool, sessionID string) (*Decision, error) {
	g.history.Append(sessionID, "user", message)

	reply, err := g.callWithRetry(ctx, Request{
		Model:        g.model,
		SystemPrompt: systemPrompt,
		Messages:     g.history.Snapshot(sessionID),
		Tools:        tools,
		Temperature:  g.temperature,
		MaxTokens:    g.maxTokens,
	})
	if err != nil {
		return nil, err
	}

	if reply.Content != "" {
		g.history.Append(sessionID, "assistant", reply.Content)
	}

	if len(reply.ToolCalls) > 0 {
		g.logger.Debug().
			Str("session_id", sessionID).
			Int("tool_calls", len(reply.ToolCalls)).
			Msg("Model requested tools")
		return &Decision{RequiresTools: true, ToolCalls: reply.ToolCalls, Content: reply.Content}, nil
	}
	return &Decision{RequiresTools: false, Content: reply.Content}, nil
}

// GenerateFollowUp asks the model to summarize executed tool results and
// suggest next steps. Tools are withheld from this call so the reply is
// always plain text and never re-invokes tools.
func (g *Gateway) GenerateFollowUp(ctx context.Context, original string, results []*desktop.ToolResult, sessionID string) (string, error) {
	prompt := followUpPrompt(original, results)

	reply, err := g.callWithRetry(ctx, Request{
		Model:        g.model,
		SystemPrompt: systemPrompt,
		Messages:     append(g.history.Snapshot(sessionID), Message{Role: "user", Content: prompt, Timestamp: time.Now()}),
		Temperature:  g.temperature,
		MaxTokens:    g.maxTokens,
	})
	if err != nil {
		return "", err
	}

	if reply.Content != "" {
		g.history.Append(sessionID, "assistant", reply.Content)
	}
	return reply.Content, nil
}

// ClearContext discards a session's conversation history.
func (g *Gateway) ClearContext(sessionID string) {
	g.history.Clear(sessionID)
}

// HistoryLen reports the retained message count for a session.
func (g *Gateway) HistoryLen(sessionID string) int {
	return g.history.Len(sessionID)
}

// callWithRetry runs a bounded retry loop with linearly increasing backoff
// (attempt x base delay). Context cancellation is never retried.
func (g *Gateway) callWithRetry(ctx context.Context, req Request) (*Reply, error) {
	var lastErr error

	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		reply, err := g.provider.Call(ctx, req)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == g.maxRetries {
			break
		}

		delay := time.Duration(attempt) * g.retryBackoff
		g.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("delay", delay).
			Str("provider", g.provider.Name()).
			Msg("Model call failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("%w: %v (after %d attempts)", ErrModelUnavailable, lastErr, g.maxRetries)
}

func followUpPrompt(original string, results []*desktop.ToolResult) string {
	var b strings.Builder
	b.WriteString("The following tools were just executed for the request ")
	fmt.Fprintf(&b, "%q:\n", original)

	for _, r := range results {
		switch {
		case r.Success && r.ImageData != "":
			fmt.Fprintf(&b, "- %s: succeeded (captured a screenshot)\n", r.ToolName)
		case r.Success:
			fmt.Fprintf(&b, "- %s: succeeded (%s)\n", r.ToolName, r.Content)
		default:
			fmt.Fprintf(&b, "- %s: FAILED (%s)\n", r.ToolName, r.Err)
		}
	}

	b.WriteString("\nBriefly summarize for the user what was accomplished, note any failures, and suggest a next step. Do not request more tools.")
	return b.String()
}
