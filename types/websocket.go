package types

import "encoding/json"

const (
	TypeWebsocketPing  = "ping"
	TypeWebsocketPong  = "pong"
	TypeWebsocketQuery = "query"
)

// WebsocketRequest is the client-to-server frame envelope. Payload decodes
// per Type: a QueryRequest for "query", empty for "ping".
type WebsocketRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WebsocketResponse is used for control frames (pong). Streamed answers are
// sent as bare StreamEvent frames.
type WebsocketResponse struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}
