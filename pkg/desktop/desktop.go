// Package desktop provides the tool backends that execute desktop actions:
// a JSON-RPC stdio client driving an external tool-server subprocess, and an
// in-process variant that dispatches to host utilities. Both satisfy the
// Controller contract so callers are agnostic to which is in use.
package desktop

import (
	"context"

	"github.com/deskpilot/deskpilot/pkg/catalog"
)

// Controller is the contract shared by the subprocess client and the local
// backend. Connect must be called before CallTool; the catalog is loaded
// during Connect and discarded on Disconnect.
type Controller interface {
	// Connect acquires the backend and loads the tool catalog.
	Connect(ctx context.Context) error

	// Disconnect releases the backend and fails any outstanding work.
	Disconnect() error

	// Connected reports whether the backend is usable.
	Connected() bool

	// Catalog returns the cached tool catalog, or nil when disconnected.
	Catalog() *catalog.Catalog

	// CallTool executes one tool. Protocol-level tool failures are returned
	// as a failed ToolResult; transport failures (timeout, process death,
	// not connected) are returned as errors.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*ToolResult, error)
}

// ToolResult is the outcome of executing one tool call. Exactly one of
// Content, ImageData, or Err is populated, according to Success; use the
// constructors rather than building it by hand.
type ToolResult struct {
	ToolName  string `json:"toolName,omitempty"`
	Success   bool   `json:"success"`
	Content   string `json:"content,omitempty"`
	ImageData string `json:"imageData,omitempty"`
	Err       string `json:"error,omitempty"`
}

// TextResult returns a successful result carrying text output.
func TextResult(tool, text string) *ToolResult {
	return &ToolResult{ToolName: tool, Success: true, Content: text}
}

// ImageResult returns a successful result carrying a base64-encoded image.
func ImageResult(tool, data string) *ToolResult {
	return &ToolResult{ToolName: tool, Success: true, ImageData: data}
}

// FailedResult returns a failed result carrying an error message.
func FailedResult(tool, msg string) *ToolResult {
	return &ToolResult{ToolName: tool, Success: false, Err: msg}
}
