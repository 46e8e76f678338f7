package server

import (
	"net/http"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// handleWebSocket upgrades the connection and runs a read-respond loop.
// Each inbound frame is a chat request; each outbound frame is the
// orchestrator's response. The loop ends when the peer closes or a read
// fails.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	connID, err := gonanoid.New()
	if err != nil {
		connID = r.RemoteAddr
	}
	s.logger.Info().Str("conn_id", connID).Msg("Websocket client connected")

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			s.logger.Debug().Str("conn_id", connID).Err(err).Msg("Websocket client disconnected")
			return
		}

		if msg := req.validate(); msg != "" {
			if err := conn.WriteJSON(errorBody{Error: msg}); err != nil {
				return
			}
			continue
		}
		if req.SessionID == "" {
			req.SessionID = "ws-" + connID
		}

		resp := s.handler.HandleMessage(r.Context(), req.SessionID, *req.Message)
		if err := conn.WriteJSON(chatResponse{Response: resp, SessionID: req.SessionID}); err != nil {
			s.logger.Warn().Str("conn_id", connID).Err(err).Msg("Websocket write failed")
			return
		}
	}
}
