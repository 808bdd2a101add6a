package gateway

import (
	"encoding/json"

	"voicekey/internal/domain"
)

// FrameType identifies the kind of frame sent over the WebSocket connection.
type FrameType string

const (
	FrameTypeRequest  FrameType = "request"
	FrameTypeResponse FrameType = "response"
	FrameTypeEvent    FrameType = "event"
)

// Frame is the envelope exchanged between the helpers and the server.
type Frame struct {
	Type    FrameType        `json:"type"`
	ID      uint64           `json:"id,omitempty"`      // request/response correlation ID
	Method  string           `json:"method,omitempty"`  // RPC method name (request only)
	Payload json.RawMessage  `json:"payload,omitempty"` // request params, response result or event
	Error   string           `json:"error,omitempty"`   // error description (response only)
	Code    domain.ErrorCode `json:"code,omitempty"`    // machine-parseable error category
}
