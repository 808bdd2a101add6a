package domain

import "time"

// KeyEventKind distinguishes raw keyboard events reported by an event tap.
type KeyEventKind string

const (
	KeyDown      KeyEventKind = "key_down"
	KeyUp        KeyEventKind = "key_up"
	FlagsChanged KeyEventKind = "flags_changed"
)

// KeyEvent is one raw keyboard event. For FlagsChanged events KeyCode is the
// physical modifier key that changed and Modifiers is the resulting set.
type KeyEvent struct {
	Kind      KeyEventKind `json:"kind"`
	KeyCode   uint16       `json:"key_code"`
	Modifiers ModifierSet  `json:"modifiers,omitempty"`
	At        time.Time    `json:"at,omitempty"`
}

// IsEscapeDown reports whether the event is an Escape key press.
func (e KeyEvent) IsEscapeDown() bool {
	return e.Kind == KeyDown && e.KeyCode == KeyEscape
}

// Verdict tells the event tap whether to deliver an event to the focused
// application.
type Verdict string

const (
	PassThrough Verdict = "pass"
	Suppress    Verdict = "suppress"
)
