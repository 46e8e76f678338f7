package model

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/deskpilot/deskpilot/pkg/catalog"
	"github.com/deskpilot/deskpilot/pkg/desktop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider replays a scripted sequence of replies and errors and records
// every request it receives.
type fakeProvider struct {
	replies  []*Reply
	errs     []error
	calls    int
	requests []Request
}

func (f *fakeProvider) Call(ctx context.Context, req Request) (*Reply, error) {
	i := f.calls
	f.calls++
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return &Reply{Content: "default"}, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func newTestGateway(t *testing.T, p Provider) *Gateway {
	t.Helper()
	g, err := New(Config{
		Provider:     p,
		Model:        "test-model",
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return g
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Model: "m"})
	assert.Error(t, err)

	_, err = New(Config{Provider: &fakeProvider{}})
	assert.Error(t, err)
}

func TestGateway_ProcessMessage_TextDecision(t *testing.T) {
	p := &fakeProvider{replies: []*Reply{{Content: "just an answer"}}}
	g := newTestGateway(t, p)

	d, err := g.ProcessMessage(context.Background(), "what can you do?", nil, "s1")
	require.NoError(t, err)
	assert.False(t, d.RequiresTools)
	assert.Equal(t, "just an answer", d.Content)

	// Both the user turn and the assistant reply are retained.
	assert.Equal(t, 2, g.HistoryLen("s1"))

	req := p.requests[0]
	assert.Equal(t, "test-model", req.Model)
	assert.NotEmpty(t, req.SystemPrompt)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "what can you do?", req.Messages[0].Content)
}

func TestGateway_ProcessMessage_ToolDecision(t *testing.T) {
	p := &fakeProvider{replies: []*Reply{{
		ToolCalls: []ToolCall{
			{ID: "1", Name: "screenshot", Arguments: map[string]interface{}{}},
			{ID: "2", Name: "mouse_click", Arguments: map[string]interface{}{"x": 1.0, "y": 2.0}},
		},
	}}}
	g := newTestGateway(t, p)

	tools := []catalog.Tool{{Name: "screenshot"}, {Name: "mouse_click"}}
	d, err := g.ProcessMessage(context.Background(), "click the button", tools, "s1")
	require.NoError(t, err)
	assert.True(t, d.RequiresTools)
	require.Len(t, d.ToolCalls, 2)
	assert.Equal(t, "screenshot", d.ToolCalls[0].Name)
	assert.Equal(t, tools, p.requests[0].Tools)
}

func TestGateway_RetrySucceedsAfterFailures(t *testing.T) {
	p := &fakeProvider{
		errs:    []error{fmt.Errorf("overloaded"), fmt.Errorf("overloaded"), nil},
		replies: []*Reply{nil, nil, {Content: "third time lucky"}},
	}
	g := newTestGateway(t, p)

	d, err := g.ProcessMessage(context.Background(), "hi", nil, "s1")
	require.NoError(t, err)
	assert.Equal(t, "third time lucky", d.Content)
	assert.Equal(t, 3, p.calls)
}

func TestGateway_RetryExhaustion(t *testing.T) {
	p := &fakeProvider{
		errs: []error{fmt.Errorf("down"), fmt.Errorf("down"), fmt.Errorf("down")},
	}
	g := newTestGateway(t, p)

	_, err := g.ProcessMessage(context.Background(), "hi", nil, "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, p.calls)
}

func TestGateway_NoRetryAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakeProvider{errs: []error{fmt.Errorf("interrupted")}}
	g := newTestGateway(t, p)

	cancel()
	_, err := g.ProcessMessage(ctx, "hi", nil, "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.calls)
}

func TestGateway_GenerateFollowUp(t *testing.T) {
	p := &fakeProvider{replies: []*Reply{{Content: "Opened Safari; the click failed."}}}
	g := newTestGateway(t, p)

	results := []*desktop.ToolResult{
		desktop.TextResult("open_application", "opened Safari"),
		desktop.FailedResult("mouse_click", "coordinates out of bounds"),
	}

	summary, err := g.GenerateFollowUp(context.Background(), "open Safari and click Login", results, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Opened Safari; the click failed.", summary)

	// The follow-up request withholds tools so the reply cannot request
	// more of them, and the prompt names each outcome.
	req := p.requests[0]
	assert.Empty(t, req.Tools)
	prompt := req.Messages[len(req.Messages)-1].Content
	assert.Contains(t, prompt, "open_application: succeeded")
	assert.Contains(t, prompt, "mouse_click: FAILED")
	assert.Contains(t, prompt, "coordinates out of bounds")
}

func TestGateway_ClearContext(t *testing.T) {
	p := &fakeProvider{replies: []*Reply{{Content: "a"}, {Content: "b"}}}
	g := newTestGateway(t, p)

	_, err := g.ProcessMessage(context.Background(), "one", nil, "s1")
	require.NoError(t, err)
	assert.NotZero(t, g.HistoryLen("s1"))

	g.ClearContext("s1")
	assert.Zero(t, g.HistoryLen("s1"))
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider("anthropic", "key")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	p, err = NewProvider("openai", "key")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = NewProvider("gemini", "key")
	assert.Error(t, err)
}
