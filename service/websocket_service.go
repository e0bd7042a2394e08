package service

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/loresmith/loresmith-be/types"
)

const (
	wsMaxMessageSize = 512 * 1024
	wsReadTimeout    = 60 * time.Second
	wsWriteTimeout   = 10 * time.Second
)

// WebSocketService streams query answers over a websocket. Each query frame
// produces a sequence of chunk frames ending in a done or error frame; ping
// frames are answered with pong at any time between queries.
type WebSocketService struct {
	answers  *AnswerService
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWebSocketService(answers *AnswerService, logger *slog.Logger) *WebSocketService {
	return &WebSocketService{
		answers: answers,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins (adjust for production)
			},
		},
		logger: logger,
	}
}

func (s *WebSocketService) HandleQuery(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var req types.WebsocketRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			s.writeEvent(conn, types.StreamEvent{Type: types.StreamEventError, Error: "invalid message"})
			continue
		}

		switch req.Type {
		case types.TypeWebsocketPing:
			if err := s.writeJSON(conn, types.WebsocketResponse{Type: types.TypeWebsocketPong}); err != nil {
				return
			}
		case types.TypeWebsocketQuery:
			var query types.QueryRequest
			if err := json.Unmarshal(req.Payload, &query); err != nil {
				s.writeEvent(conn, types.StreamEvent{Type: types.StreamEventError, Error: "invalid query payload"})
				continue
			}
			if !s.streamAnswer(conn, r, &query) {
				return
			}
		default:
			s.writeEvent(conn, types.StreamEvent{Type: types.StreamEventError, Error: "unknown message type"})
		}
	}
}

// streamAnswer forwards stream events to the client. When a write fails the
// client is gone: the stream is detached so the producer can finalize and
// log the partial answer, and the remaining events are drained. Returns
// false once the connection is unusable.
func (s *WebSocketService) streamAnswer(conn *websocket.Conn, r *http.Request, query *types.QueryRequest) bool {
	stream := s.answers.AnswerStream(r.Context(), query)
	for event := range stream.Events() {
		if err := s.writeJSON(conn, event); err != nil {
			s.logger.Warn("client disconnected mid-stream, finalizing partial answer", "error", err)
			stream.Detach()
			for range stream.Events() {
			}
			return false
		}
	}
	return true
}

func (s *WebSocketService) writeJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}

func (s *WebSocketService) writeEvent(conn *websocket.Conn, event types.StreamEvent) {
	if err := s.writeJSON(conn, event); err != nil {
		s.logger.Warn("websocket write failed", "error", err)
	}
}
