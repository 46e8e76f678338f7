package desktop

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/deskpilot/deskpilot/pkg/catalog"
	"github.com/rs/zerolog/log"
)

// Local is the in-process tool backend: it satisfies the same Controller
// contract as the subprocess client but dispatches to host utilities
// synchronously, for controlling the machine deskpilot itself runs on.
type Local struct {
	mu        sync.Mutex
	connected bool
	cat       *catalog.Catalog

	// run executes a host command; replaced in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewLocal creates a local backend.
func NewLocal() *Local {
	return &Local{
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// Connect builds the local tool catalog. Fails on unsupported platforms
// since the host utilities are macOS-specific.
func (l *Local) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connected {
		return nil
	}
	if runtime.GOOS != "darwin" {
		return &ConnectionError{Stage: "platform", Err: fmt.Errorf("local backend requires macOS, running on %s", runtime.GOOS)}
	}

	l.cat = catalog.New(localTools())
	l.connected = true
	log.Info().Int("tools", l.cat.Len()).Msg("Local desktop backend ready")
	return nil
}

// Disconnect clears the catalog; there is no subprocess to stop.
func (l *Local) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = false
	l.cat = nil
	return nil
}

// Connected reports whether Connect has succeeded.
func (l *Local) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Catalog returns the cached tool catalog, or nil when disconnected.
func (l *Local) Catalog() *catalog.Catalog {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cat
}

// CallTool dispatches one tool synchronously. Action failures come back as
// failed ToolResults so a batch can continue past them.
func (l *Local) CallTool(ctx context.Context, name string, args map[string]interface{}) (*ToolResult, error) {
	if !l.Connected() {
		return nil, ErrNotConnected
	}

	switch name {
	case "screenshot":
		return l.screenshot(ctx), nil
	case "mouse_move":
		return l.cliclick(ctx, name, fmt.Sprintf("m:%d,%d", intArg(args, "x"), intArg(args, "y"))), nil
	case "mouse_click":
		spec := fmt.Sprintf("c:%d,%d", intArg(args, "x"), intArg(args, "y"))
		if b, _ := args["button"].(string); b == "right" {
			spec = fmt.Sprintf("rc:%d,%d", intArg(args, "x"), intArg(args, "y"))
		}
		return l.cliclick(ctx, name, spec), nil
	case "send_keys":
		text, _ := args["text"].(string)
		if text == "" {
			return FailedResult(name, "text must be non-empty"), nil
		}
		return l.osascript(ctx, name, fmt.Sprintf(`tell application "System Events" to keystroke %q`, text)), nil
	case "open_application":
		app, _ := args["name"].(string)
		if strings.TrimSpace(app) == "" {
			return FailedResult(name, "name must be non-empty"), nil
		}
		if _, err := l.run(ctx, "open", "-a", app); err != nil {
			return FailedResult(name, fmt.Sprintf("failed to open %s: %v", app, err)), nil
		}
		return TextResult(name, fmt.Sprintf("opened %s", app)), nil
	default:
		return FailedResult(name, fmt.Sprintf("unknown tool: %s", name)), nil
	}
}

func (l *Local) screenshot(ctx context.Context) *ToolResult {
	tmp, err := os.CreateTemp("", "deskpilot-*.png")
	if err != nil {
		return FailedResult("screenshot", err.Error())
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	if _, err := l.run(ctx, "screencapture", "-x", path); err != nil {
		return FailedResult("screenshot", fmt.Sprintf("screencapture failed: %v", err))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return FailedResult("screenshot", err.Error())
	}
	return ImageResult("screenshot", base64.StdEncoding.EncodeToString(data))
}

func (l *Local) cliclick(ctx context.Context, tool, spec string) *ToolResult {
	if _, err := l.run(ctx, "cliclick", spec); err != nil {
		return FailedResult(tool, fmt.Sprintf("cliclick failed: %v", err))
	}
	return TextResult(tool, fmt.Sprintf("performed %s", spec))
}

func (l *Local) osascript(ctx context.Context, tool, script string) *ToolResult {
	if _, err := l.run(ctx, "osascript", "-e", script); err != nil {
		return FailedResult(tool, fmt.Sprintf("osascript failed: %v", err))
	}
	return TextResult(tool, "keys sent")
}

func intArg(args map[string]interface{}, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func coordSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"x": map[string]interface{}{"type": "integer", "description": "absolute x coordinate"},
			"y": map[string]interface{}{"type": "integer", "description": "absolute y coordinate"},
		},
		"required": []interface{}{"x", "y"},
	}
}

func localTools() []catalog.Tool {
	click := coordSchema()
	click["properties"].(map[string]interface{})["button"] = map[string]interface{}{
		"type":        "string",
		"description": "mouse button: left or right",
	}

	return []catalog.Tool{
		{
			Name:        "screenshot",
			Description: "Capture the screen and return a PNG image.",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
		{
			Name:        "mouse_move",
			Description: "Move the mouse cursor to an absolute position.",
			InputSchema: coordSchema(),
		},
		{
			Name:        "mouse_click",
			Description: "Click at the requested coordinate.",
			InputSchema: click,
		},
		{
			Name:        "send_keys",
			Description: "Type text on the keyboard.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"text": map[string]interface{}{"type": "string", "description": "text to type"},
				},
				"required": []interface{}{"text"},
			},
		},
		{
			Name:        "open_application",
			Description: "Open an application by name.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name": map[string]interface{}{"type": "string", "description": "application name"},
				},
				"required": []interface{}{"name"},
			},
		},
	}
}
