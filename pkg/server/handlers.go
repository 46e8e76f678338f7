package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/deskpilot/deskpilot/pkg/orchestrator"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// chatRequest is the inbound transport shape. Message is a pointer so a
// missing field is distinguishable from an empty one; a non-string value
// fails JSON decoding outright.
type chatRequest struct {
	Message   *string `json:"message"`
	SessionID string  `json:"sessionId"`
}

type chatResponse struct {
	*orchestrator.Response
	SessionID string `json:"sessionId"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (r *chatRequest) validate() string {
	if r.Message == nil {
		return "message is required and must be a string"
	}
	if *r.Message == "" {
		return "message cannot be empty"
	}
	return ""
}

// ensureSessionID fills in a generated id when the client did not supply
// one; the id is echoed back so the client can continue the session.
func (r *chatRequest) ensureSessionID() {
	if r.SessionID == "" {
		id, err := gonanoid.New()
		if err != nil {
			id = time.Now().Format("20060102150405.000000000")
		}
		r.SessionID = "web-" + id
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
		return
	}
	req.ensureSessionID()

	resp := s.handler.HandleMessage(r.Context(), req.SessionID, *req.Message)
	writeJSON(w, http.StatusOK, chatResponse{Response: resp, SessionID: req.SessionID})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
		return
	}

	cat := s.controller.Catalog()
	if cat == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "tool backend not connected"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": cat.List()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"connected": s.controller.Connected(),
		"timestamp": time.Now().UnixMilli(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
