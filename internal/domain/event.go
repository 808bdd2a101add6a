package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	// Session lifecycle.
	EventSessionStarted   EventType = "session.started"
	EventSessionStopping  EventType = "session.stopping"
	EventSessionFinished  EventType = "session.finished"
	EventSessionCancelled EventType = "session.cancelled"

	// Overlay and window state, consumed by the renderer.
	EventOverlayMode       EventType = "overlay.mode"
	EventOverlayProcessing EventType = "overlay.processing"
	EventOverlayExpanded   EventType = "overlay.expanded"
	EventOverlayCollapsed  EventType = "overlay.collapsed"
	EventViewChanged       EventType = "view.changed"

	// Output delivery.
	EventOutputInApp     EventType = "output.inapp"
	EventOutputDelivered EventType = "output.delivered"

	// Shortcut recording.
	EventShortcutArmed    EventType = "shortcut.armed"
	EventShortcutDisarmed EventType = "shortcut.disarmed"
	EventShortcutRecorded EventType = "shortcut.recorded"

	EventSettingsChanged EventType = "settings.changed"
	EventFocusChanged    EventType = "focus.changed"
	EventChatChanged     EventType = "command.chat.changed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event, encoding payload as JSON. A payload that fails to
// encode is dropped.
func NewEvent(t EventType, payload any) Event {
	ev := Event{Type: t, Timestamp: time.Now()}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			ev.Payload = b
		}
	}
	return ev
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
// Each subscriber observes events in publish order.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains queued events and prevents new publishes.
	Close()
}

// Payloads of the events above.

// SessionEventPayload accompanies session.* events.
type SessionEventPayload struct {
	Mode RecordingMode `json:"mode"`
	App  AppContext    `json:"app"`
}

// OverlayModePayload accompanies overlay.mode.
type OverlayModePayload struct {
	Mode OverlayMode `json:"mode"`
}

// ProcessingPayload accompanies overlay.processing.
type ProcessingPayload struct {
	On bool `json:"on"`
}

// TextPayload carries a block of text (overlay.expanded, output.inapp).
type TextPayload struct {
	Mode RecordingMode `json:"mode,omitempty"`
	Text string        `json:"text"`
}

// ViewPayload accompanies view.changed.
type ViewPayload struct {
	View View `json:"view"`
}

// ShortcutPayload accompanies shortcut.* events.
type ShortcutPayload struct {
	Target ChordTarget `json:"target"`
	Chord  *Chord      `json:"chord,omitempty"`
}

// DeliveryPayload accompanies output.delivered.
type DeliveryPayload struct {
	Mode    RecordingMode `json:"mode"`
	Typed   bool          `json:"typed"`
	Copied  bool          `json:"copied"`
	Stored  bool          `json:"stored"`
	InApp   bool          `json:"in_app"`
	Preview string        `json:"preview,omitempty"`
}
