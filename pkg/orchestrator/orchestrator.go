// Package orchestrator sequences model calls and tool executions into one
// chat response per inbound message: decide, execute in order, optionally
// continue once, then summarize.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/deskpilot/deskpilot/pkg/catalog"
	"github.com/deskpilot/deskpilot/pkg/desktop"
	"github.com/deskpilot/deskpilot/pkg/model"
	"github.com/rs/zerolog"
)

// Gateway is the model-facing dependency; satisfied by *model.Gateway.
type Gateway interface {
	ProcessMessage(ctx context.Context, message string, tools []catalog.Tool, sessionID string) (*model.Decision, error)
	GenerateFollowUp(ctx context.Context, original string, results []*desktop.ToolResult, sessionID string) (string, error)
}

// SessionTracker marks sessions active; satisfied by *session.Registry.
type SessionTracker interface {
	Touch(sessionID string)
}

// TranscriptWriter records conversation turns for audit; optional.
type TranscriptWriter interface {
	Append(sessionID, role, content string) error
}

// Orchestrator drives the per-message workflow.
type Orchestrator struct {
	controller  desktop.Controller
	gateway     Gateway
	sessions    SessionTracker
	transcripts TranscriptWriter
	logger      zerolog.Logger
}

// Config holds orchestrator dependencies. Controller, Gateway, and Sessions
// are required; Transcripts is optional.
type Config struct {
	Controller  desktop.Controller
	Gateway     Gateway
	Sessions    SessionTracker
	Transcripts TranscriptWriter
	Logger      zerolog.Logger
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session tracker is required")
	}
	return &Orchestrator{
		controller:  cfg.Controller,
		gateway:     cfg.Gateway,
		sessions:    cfg.Sessions,
		transcripts: cfg.Transcripts,
		logger:      cfg.Logger,
	}, nil
}

// HandleMessage produces exactly one response for one inbound user message.
// Failures of any kind become an error-typed response, never a panic or a
// missing reply.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID, message string) *Response {
	resp, err := o.handle(ctx, sessionID, message)
	if err != nil {
		o.logger.Error().
			Err(err).
			Str("session_id", sessionID).
			Msg("Message handling failed")
		resp = errorResponse()
	}

	o.record(sessionID, "assistant", resp.Content)
	return resp
}

func (o *Orchestrator) handle(ctx context.Context, sessionID, message string) (*Response, error) {
	o.sessions.Touch(sessionID)
	o.record(sessionID, "user", message)

	if !o.controller.Connected() {
		return nil, fmt.Errorf("tool backend unavailable: %w", desktop.ErrNotConnected)
	}
	cat := o.controller.Catalog()
	if cat == nil {
		return nil, fmt.Errorf("tool catalog not loaded: %w", desktop.ErrNotConnected)
	}
	tools := cat.List()

	decision, err := o.gateway.ProcessMessage(ctx, message, tools, sessionID)
	if err != nil {
		return nil, fmt.Errorf("decision call failed: %w", err)
	}

	if !decision.RequiresTools {
		content := decision.Content
		if content == "" {
			content = "I'm not sure how to help with that."
		}
		return textResponse(content), nil
	}

	results := o.executeBatch(ctx, cat, decision.ToolCalls)

	continued := false
	if shouldContinue(message, results) {
		continued = true
		o.logger.Info().
			Str("session_id", sessionID).
			Msg("Multi-step request stalled after screenshot, continuing")

		next, err := o.gateway.ProcessMessage(ctx, continuationPrompt(message), tools, sessionID)
		if err != nil {
			o.logger.Warn().Err(err).Msg("Continuation call failed, keeping first batch")
		} else if next.RequiresTools {
			results = append(results, o.executeBatch(ctx, cat, next.ToolCalls)...)
		}
	}

	// Fast path: a lone successful screenshot batch skips the second model
	// round trip and returns the image directly.
	if !continued {
		if shot := latestScreenshot(results); shot != nil {
			caption := "Here's a screenshot of the desktop."
			if anyFailed(results) {
				caption = "Here's a screenshot of the desktop, though some steps failed."
			}
			return imageResponse(caption, shot.ImageData, shot.ToolName), nil
		}
	}

	summary, err := o.gateway.GenerateFollowUp(ctx, message, results, sessionID)
	if err != nil {
		return nil, fmt.Errorf("follow-up call failed: %w", err)
	}
	if summary == "" {
		summary = summarizeResults(results)
	}
	return textResponse(summary), nil
}

// executeBatch runs tool calls strictly in order; a failure is recorded in
// its result and execution moves on to the next call.
func (o *Orchestrator) executeBatch(ctx context.Context, cat *catalog.Catalog, calls []model.ToolCall) []*desktop.ToolResult {
	results := make([]*desktop.ToolResult, 0, len(calls))

	for _, call := range calls {
		if err := cat.ValidateArguments(call.Name, call.Arguments); err != nil {
			o.logger.Warn().
				Str("tool", call.Name).
				Err(err).
				Msg("Rejecting tool call before dispatch")
			results = append(results, desktop.FailedResult(call.Name, err.Error()))
			continue
		}

		result, err := o.controller.CallTool(ctx, call.Name, call.Arguments)
		if err != nil {
			result = desktop.FailedResult(call.Name, err.Error())
		}

		o.logger.Info().
			Str("tool", call.Name).
			Bool("success", result.Success).
			Msg("Tool executed")
		results = append(results, result)
	}

	return results
}

func (o *Orchestrator) record(sessionID, role, content string) {
	if o.transcripts == nil || content == "" {
		return
	}
	if err := o.transcripts.Append(sessionID, role, content); err != nil {
		o.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to write transcript")
	}
}

func latestScreenshot(results []*desktop.ToolResult) *desktop.ToolResult {
	for i := len(results) - 1; i >= 0; i-- {
		r := results[i]
		if r.Success && isScreenshotTool(r.ToolName) && r.ImageData != "" {
			return r
		}
	}
	return nil
}

func anyFailed(results []*desktop.ToolResult) bool {
	for _, r := range results {
		if !r.Success {
			return true
		}
	}
	return false
}

// summarizeResults is the fallback when the follow-up call returns empty
// text.
func summarizeResults(results []*desktop.ToolResult) string {
	ok, failed := 0, 0
	for _, r := range results {
		if r.Success {
			ok++
		} else {
			failed++
		}
	}
	if failed == 0 {
		return fmt.Sprintf("Done. %d action(s) completed.", ok)
	}
	return fmt.Sprintf("Completed %d action(s); %d failed.", ok, failed)
}
