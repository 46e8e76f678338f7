package desktop

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/deskpilot/deskpilot/pkg/catalog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultRequestTimeout bounds a single tools/call round trip.
	DefaultRequestTimeout = 45 * time.Second

	// DefaultHandshakeTimeout bounds each handshake exchange.
	DefaultHandshakeTimeout = 15 * time.Second

	// DefaultSettleDelay is the fixed wait after spawning the subprocess
	// before the handshake begins, tolerating slow server startup.
	DefaultSettleDelay = time.Second

	protocolVersion = "2024-11-05"
	clientVersion   = "0.1.0"
)

// JSON-RPC 2.0 messages exchanged with the tool server over stdio.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id,omitempty"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`

	// Method is set when the server sends a notification of its own.
	Method string `json:"method,omitempty"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Config holds the subprocess launch parameters and protocol timeouts.
type Config struct {
	// Command and Args launch the tool server.
	Command string
	Args    []string

	// Env entries are appended to the inherited environment; this is how
	// the remote desktop host and credentials reach the server.
	Env map[string]string

	RequestTimeout   time.Duration
	HandshakeTimeout time.Duration
	SettleDelay      time.Duration
}

// ServerEnv builds the environment contract the remote desktop tool server
// reads at startup. Zero-valued fields are omitted.
func ServerEnv(host string, port int, username, password, encryption string, vncTimeout time.Duration) map[string]string {
	env := map[string]string{}
	if host != "" {
		env["MACOS_HOST"] = host
	}
	if port > 0 {
		env["MACOS_PORT"] = strconv.Itoa(port)
	}
	if username != "" {
		env["MACOS_USERNAME"] = username
	}
	if password != "" {
		env["MACOS_PASSWORD"] = password
	}
	if encryption != "" {
		env["MACOS_ENCRYPTION"] = encryption
	}
	if vncTimeout > 0 {
		env["MACOS_VNC_TIMEOUT"] = strconv.FormatFloat(vncTimeout.Seconds(), 'f', -1, 64)
	}
	return env
}

// Client speaks newline-delimited JSON-RPC with a tool-server subprocess.
// It owns the subprocess and its streams exclusively: requests are written
// to stdin, a single reader goroutine drains stdout and demultiplexes
// responses to outstanding requests by id.
type Client struct {
	cfg Config

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	connected bool
	closing   bool
	nextID    int64
	pending   map[int64]chan *rpcResponse
	cat       *catalog.Catalog
}

// NewClient creates a client for the given launch configuration. Zero
// timeouts are replaced with defaults.
func NewClient(cfg Config) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	return &Client{
		cfg:     cfg,
		pending: make(map[int64]chan *rpcResponse),
	}
}

// Connect launches the subprocess, waits out the settle delay, performs the
// initialize handshake, and loads the tool catalog. It is a no-op when
// already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	if c.stdin != nil {
		c.mu.Unlock()
		return fmt.Errorf("desktop: connect already in progress")
	}
	c.closing = false
	c.mu.Unlock()

	cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range c.cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &ConnectionError{Stage: "spawn", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ConnectionError{Stage: "spawn", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &ConnectionError{Stage: "spawn", Err: err}
	}

	if err := cmd.Start(); err != nil {
		return &ConnectionError{Stage: "spawn", Err: err}
	}

	log.Info().
		Str("command", c.cfg.Command).
		Int("pid", cmd.Process.Pid).
		Msg("Tool server started")

	c.mu.Lock()
	c.cmd = cmd
	c.stdin = stdin
	c.pending = make(map[int64]chan *rpcResponse)
	c.mu.Unlock()

	go c.readLoop(stdout)
	go drainStderr(stderr)
	go func() { _ = cmd.Wait() }()

	select {
	case <-time.After(c.cfg.SettleDelay):
	case <-ctx.Done():
		_ = c.Disconnect()
		return &ConnectionError{Stage: "settle", Err: ctx.Err()}
	}

	if err := c.handshake(ctx); err != nil {
		_ = c.Disconnect()
		return err
	}
	return nil
}

func (c *Client) handshake(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	initParams := map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "deskpilot",
			"version": clientVersion,
		},
	}

	resp, err := c.call(hctx, "initialize", initParams, c.cfg.HandshakeTimeout)
	if err != nil {
		return &ConnectionError{Stage: "initialize", Err: err}
	}
	if resp.Error != nil {
		return &ConnectionError{Stage: "initialize", Err: fmt.Errorf("server error (%d): %s", resp.Error.Code, resp.Error.Message)}
	}

	if err := c.notify("notifications/initialized", nil); err != nil {
		return &ConnectionError{Stage: "initialized", Err: err}
	}

	resp, err = c.call(hctx, "tools/list", nil, c.cfg.HandshakeTimeout)
	if err != nil {
		return &ConnectionError{Stage: "tools/list", Err: err}
	}
	if resp.Error != nil {
		return &ConnectionError{Stage: "tools/list", Err: fmt.Errorf("server error (%d): %s", resp.Error.Code, resp.Error.Message)}
	}

	var listResult struct {
		Tools []catalog.Tool `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &listResult); err != nil {
		return &ConnectionError{Stage: "tools/list", Err: fmt.Errorf("unreadable tool list: %w", err)}
	}

	c.mu.Lock()
	c.cat = catalog.New(listResult.Tools)
	c.connected = true
	c.mu.Unlock()

	log.Info().Int("tools", len(listResult.Tools)).Msg("Tool server handshake complete")
	return nil
}

// Connected reports whether the handshake has completed and the subprocess
// is still alive.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Catalog returns the tool catalog loaded during Connect.
func (c *Client) Catalog() *catalog.Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cat
}

// CallTool sends a tools/call request and suspends the caller until its
// correlated response arrives, its deadline elapses, or the subprocess dies.
// Tool-level failures come back as a failed ToolResult, not an error.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*ToolResult, error) {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return nil, ErrNotConnected
	}

	params := map[string]interface{}{
		"name":      name,
		"arguments": args,
	}

	resp, err := c.call(ctx, "tools/call", params, c.cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return FailedResult(name, resp.Error.Message), nil
	}
	return translateCallResult(name, resp.Result), nil
}

// Disconnect terminates the subprocess, fails every outstanding request with
// ErrDisconnected, and clears the catalog.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.stdin == nil && c.cmd == nil {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.connected = false
	c.cat = nil
	pending := c.pending
	c.pending = make(map[int64]chan *rpcResponse)
	stdin := c.stdin
	c.stdin = nil
	proc := c.cmd
	c.cmd = nil
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	if stdin != nil {
		_ = stdin.Close()
	}
	if proc != nil && proc.Process != nil {
		_ = proc.Process.Kill()
	}

	log.Info().Int("outstanding", len(pending)).Msg("Tool server disconnected")
	return nil
}

// call registers a pending request, writes one request line, and waits for
// the correlated response. On timeout or cancellation the pending entry is
// removed so no stale state survives the call.
func (c *Client) call(ctx context.Context, method string, params interface{}, timeout time.Duration) (*rpcResponse, error) {
	c.mu.Lock()
	if c.stdin == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.nextID++
	id := c.nextID
	ch := make(chan *rpcResponse, 1)
	c.pending[id] = ch
	stdin := c.stdin
	c.mu.Unlock()

	data, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		c.removePending(id)
		return nil, fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	if _, err := stdin.Write(append(data, '\n')); err != nil {
		c.removePending(id)
		return nil, fmt.Errorf("%s request write failed (%v): %w", method, err, ErrDisconnected)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrDisconnected
		}
		return resp, nil
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	case <-timer.C:
		c.removePending(id)
		return nil, fmt.Errorf("%s request %d exceeded %s: %w", method, id, timeout, ErrTimeout)
	}
}

// notify writes a notification line; no response is expected.
func (c *Client) notify(method string, params interface{}) error {
	c.mu.Lock()
	stdin := c.stdin
	c.mu.Unlock()
	if stdin == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("failed to marshal %s notification: %w", method, err)
	}
	if _, err := stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("%s notification write failed (%v): %w", method, err, ErrDisconnected)
	}
	return nil
}

func (c *Client) removePending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// readLoop drains subprocess stdout through the line buffer and dispatches
// complete lines. A read error means the subprocess exited or the pipe
// closed; either way every outstanding request fails.
func (c *Client) readLoop(r io.Reader) {
	var lb lineBuffer
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range lb.Append(buf[:n]) {
				c.dispatch(line)
			}
		}
		if err != nil {
			c.handleExit(err)
			return
		}
	}
}

func (c *Client) dispatch(line []byte) {
	var resp rpcResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		log.Warn().Err(err).Str("line", truncateForLog(line)).Msg("Discarding malformed line from tool server")
		return
	}

	if resp.ID == nil {
		if resp.Method != "" {
			log.Debug().Str("method", resp.Method).Msg("Ignoring server notification")
		}
		return
	}

	id, ok := resp.ID.(float64)
	if !ok {
		log.Warn().Interface("id", resp.ID).Msg("Discarding response with non-numeric id")
		return
	}

	c.mu.Lock()
	ch, exists := c.pending[int64(id)]
	if exists {
		delete(c.pending, int64(id))
	}
	c.mu.Unlock()

	if !exists {
		log.Debug().Int64("id", int64(id)).Msg("No pending request for response id")
		return
	}
	ch <- &resp
}

// handleExit runs when the reader sees EOF or a read error. Unless the exit
// was a deliberate Disconnect, it fails all outstanding requests and leaves
// the client requiring an explicit reconnect.
func (c *Client) handleExit(err error) {
	c.mu.Lock()
	deliberate := c.closing
	c.connected = false
	c.cat = nil
	pending := c.pending
	c.pending = make(map[int64]chan *rpcResponse)
	c.stdin = nil
	proc := c.cmd
	c.cmd = nil
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	if proc != nil && proc.Process != nil {
		_ = proc.Process.Kill()
	}

	if !deliberate {
		log.Error().Err(err).Int("outstanding", len(pending)).Msg("Tool server connection lost")
	}
}

// callToolResult is the wire shape of a tools/call result.
type callToolResult struct {
	Content []contentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Data string `json:"data,omitempty"`
}

// translateCallResult maps a protocol result onto a ToolResult. The first
// content element decides the classification.
func translateCallResult(name string, raw json.RawMessage) *ToolResult {
	var result callToolResult
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return FailedResult(name, fmt.Sprintf("unreadable tool result: %v", err))
		}
	}

	if result.IsError {
		msg := "tool reported an error"
		if len(result.Content) > 0 && result.Content[0].Text != "" {
			msg = result.Content[0].Text
		}
		return FailedResult(name, msg)
	}

	if len(result.Content) > 0 {
		first := result.Content[0]
		if first.Type == "image" && first.Data != "" {
			return ImageResult(name, first.Data)
		}
		if first.Text != "" {
			return TextResult(name, first.Text)
		}
	}
	return TextResult(name, "tool executed successfully")
}

func drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			log.Debug().Str("stream", "stderr").Msg(line)
		}
	}
}

func truncateForLog(b []byte) string {
	const max = 200
	s := string(b)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
