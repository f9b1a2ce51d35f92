package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/harun/taskpilot/pkg/agent"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWebSocket serves the streaming chat channel. Each inbound frame
// is one chat turn; tool events stream back as they occur, followed by
// the final assistant message.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	s.logger.Debug().Str("user_id", userID).Msg("Websocket session opened")

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Msg("Websocket read failed")
			}
			return
		}

		if in.Message == "" {
			if err := conn.WriteJSON(wsEvent{Type: "error", Content: "message is required"}); err != nil {
				return
			}
			continue
		}

		req := ChatRequest{ConversationID: in.ConversationID, Message: in.Message}

		// runChatTurn is synchronous, so the callback writes never race
		// with the final message write below.
		resp, err := s.runChatTurn(r.Context(), userID, req, func(record agent.ToolCallRecord) {
			status := "success"
			if !record.Result.Success {
				status = "error"
			}
			if err := conn.WriteJSON(wsEvent{
				Type:     "tool",
				ToolName: record.Name,
				Status:   status,
			}); err != nil {
				s.logger.Debug().Err(err).Msg("Websocket tool event write failed")
			}
		})
		if err != nil {
			if werr := conn.WriteJSON(wsEvent{Type: "error", Content: err.Error()}); werr != nil {
				return
			}
			continue
		}

		if err := conn.WriteJSON(wsEvent{
			Type:           "message",
			ConversationID: resp.ConversationID,
			Content:        resp.Content,
		}); err != nil {
			return
		}
	}
}
