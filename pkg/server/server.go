// Package server is the thin chat transport: an HTTP JSON endpoint and a
// websocket loop that carry {message, sessionId} requests to the
// orchestrator and its responses back. No rendering, no auth.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/deskpilot/deskpilot/pkg/desktop"
	"github.com/deskpilot/deskpilot/pkg/orchestrator"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ChatHandler produces one response per inbound message; satisfied by
// *orchestrator.Orchestrator.
type ChatHandler interface {
	HandleMessage(ctx context.Context, sessionID, message string) *orchestrator.Response
}

// Config holds server configuration.
type Config struct {
	Host       string
	Port       int
	Handler    ChatHandler
	Controller desktop.Controller
	Logger     zerolog.Logger
}

// Server serves the chat transport.
type Server struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader
	handler    ChatHandler
	controller desktop.Controller
	logger     zerolog.Logger
	errCh      chan error
}

// New creates a server.
func New(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("chat handler is required")
	}
	if cfg.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}

	s := &Server{
		handler:    cfg.Handler,
		controller: cfg.Controller,
		logger:     cfg.Logger,
		errCh:      make(chan error, 1),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/tools", s.handleTools)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("Chat server listening")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.errCh <- err
		}
	}()
	return nil
}

// Err reports a fatal serve error, if any.
func (s *Server) Err() <-chan error {
	return s.errCh
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Chat server stopping")
	return s.httpServer.Shutdown(ctx)
}
