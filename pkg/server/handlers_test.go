package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deskpilot/deskpilot/pkg/catalog"
	"github.com/deskpilot/deskpilot/pkg/desktop"
	"github.com/deskpilot/deskpilot/pkg/orchestrator"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	lastSession string
	lastMessage string
}

func (f *fakeHandler) HandleMessage(ctx context.Context, sessionID, message string) *orchestrator.Response {
	f.lastSession = sessionID
	f.lastMessage = message
	return &orchestrator.Response{ID: "r1", Type: orchestrator.TypeText, Content: "echo: " + message}
}

type fakeController struct {
	connected bool
	cat       *catalog.Catalog
}

func (f *fakeController) Connect(ctx context.Context) error { return nil }
func (f *fakeController) Disconnect() error                 { return nil }
func (f *fakeController) Connected() bool                   { return f.connected }
func (f *fakeController) Catalog() *catalog.Catalog         { return f.cat }
func (f *fakeController) CallTool(ctx context.Context, name string, args map[string]interface{}) (*desktop.ToolResult, error) {
	return nil, desktop.ErrNotConnected
}

func newTestServer(t *testing.T) (*Server, *fakeHandler, *fakeController) {
	t.Helper()
	handler := &fakeHandler{}
	controller := &fakeController{
		connected: true,
		cat:       catalog.New([]catalog.Tool{{Name: "screenshot", Description: "Capture the screen"}}),
	}
	s, err := New(Config{
		Host:       "127.0.0.1",
		Port:       8080,
		Handler:    handler,
		Controller: controller,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	return s, handler, controller
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Port: 0, Handler: &fakeHandler{}, Controller: &fakeController{}})
	assert.Error(t, err)

	_, err = New(Config{Port: 8080, Controller: &fakeController{}})
	assert.Error(t, err)

	_, err = New(Config{Port: 8080, Handler: &fakeHandler{}})
	assert.Error(t, err)
}

func postChat(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	s.handleChat(w, req)
	return w
}

func TestHandleChat_Success(t *testing.T) {
	s, handler, _ := newTestServer(t)

	w := postChat(t, s, `{"message":"open Safari","sessionId":"chat-1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Type      string `json:"type"`
		Content   string `json:"content"`
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "text", resp.Type)
	assert.Equal(t, "echo: open Safari", resp.Content)
	assert.Equal(t, "chat-1", resp.SessionID)
	assert.Equal(t, "chat-1", handler.lastSession)
}

func TestHandleChat_GeneratesSessionID(t *testing.T) {
	s, handler, _ := newTestServer(t)

	w := postChat(t, s, `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, resp.SessionID, handler.lastSession)
}

func TestHandleChat_BadRequests(t *testing.T) {
	s, _, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing message", `{"sessionId":"chat-1"}`},
		{"empty message", `{"message":""}`},
		{"message not a string", `{"message":42}`},
		{"invalid json", `{nope`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postChat(t, s, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp errorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestHandleChat_MethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	w := httptest.NewRecorder()
	s.handleChat(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleTools(t *testing.T) {
	s, _, controller := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tools", nil)
	w := httptest.NewRecorder()
	s.handleTools(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Tools []catalog.Tool `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Tools, 1)
	assert.Equal(t, "screenshot", resp.Tools[0].Name)

	// No catalog while disconnected.
	controller.cat = nil
	w = httptest.NewRecorder()
	s.handleTools(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleHealth(t *testing.T) {
	s, _, controller := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status    string `json:"status"`
		Connected bool   `json:"connected"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Connected)

	controller.connected = false
	w = httptest.NewRecorder()
	s.handleHealth(w, req)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Connected)
}
