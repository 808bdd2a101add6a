package domain

import "time"

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is one chat-completion call. Temperature is nil when the
// parameter must be omitted. Extra is merged into the top-level request
// object.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	Stream      bool
	Extra       map[string]ParamValue
}

// NoContent is returned by a completion that produced no text, so callers
// can tell "nothing captured" from an empty answer.
const NoContent = "<no content>"

// Temperature returns a pointer suitable for ChatRequest.Temperature.
func Temperature(t float64) *float64 { return &t }

// Chat is one command-mode conversation.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryEntry is one delivered result.
type HistoryEntry struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Mode      RecordingMode `json:"mode"`
	App       AppContext    `json:"app"`
	RawText   string        `json:"raw_text"`
	FinalText string        `json:"final_text"`
}
