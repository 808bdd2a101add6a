// Package overlay holds the state of the floating overlay and the main
// window view. Renderers follow it through bus events.
package overlay

import (
	"context"
	"sync"

	"voicekey/internal/domain"
)

// State is a snapshot of the model.
type State struct {
	Mode       domain.OverlayMode `json:"mode"`
	Processing bool               `json:"processing"`
	Expanded   bool               `json:"expanded"`
	Output     string             `json:"output,omitempty"`
	View       domain.View        `json:"view"`
}

// Model implements domain.Overlay and domain.ViewNavigator. Every state
// change is published on the bus.
type Model struct {
	bus domain.EventBus

	mu    sync.Mutex
	state State
}

var (
	_ domain.Overlay       = (*Model)(nil)
	_ domain.ViewNavigator = (*Model)(nil)
)

// NewModel creates a Model showing the welcome view with the overlay hidden.
func NewModel(bus domain.EventBus) *Model {
	return &Model{bus: bus, state: State{View: domain.ViewWelcome}}
}

// Snapshot returns the current state.
func (m *Model) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Model) SetMode(mode domain.OverlayMode) {
	m.mu.Lock()
	if m.state.Mode == mode {
		m.mu.Unlock()
		return
	}
	m.state.Mode = mode
	if mode == domain.OverlayHidden {
		m.state.Processing = false
	}
	m.mu.Unlock()
	m.publish(domain.EventOverlayMode, domain.OverlayModePayload{Mode: mode})
}

func (m *Model) SetProcessing(on bool) {
	m.mu.Lock()
	if m.state.Processing == on {
		m.mu.Unlock()
		return
	}
	m.state.Processing = on
	m.mu.Unlock()
	m.publish(domain.EventOverlayProcessing, domain.ProcessingPayload{On: on})
}

// ExpandCommandOutput shows text in the expanded command panel, replacing
// what was there.
func (m *Model) ExpandCommandOutput(text string) {
	m.mu.Lock()
	m.state.Expanded = true
	m.state.Output = text
	m.mu.Unlock()
	m.publish(domain.EventOverlayExpanded, domain.TextPayload{Mode: domain.ModeCommand, Text: text})
}

func (m *Model) CollapseCommandOutput() {
	m.mu.Lock()
	if !m.state.Expanded {
		m.mu.Unlock()
		return
	}
	m.state.Expanded = false
	m.state.Output = ""
	m.mu.Unlock()
	m.publish(domain.EventOverlayCollapsed, nil)
}

func (m *Model) IsCommandOutputExpanded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Expanded
}

func (m *Model) CurrentView() domain.View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.View
}

func (m *Model) ShowView(v domain.View) {
	m.mu.Lock()
	if m.state.View == v {
		m.mu.Unlock()
		return
	}
	m.state.View = v
	m.mu.Unlock()
	m.publish(domain.EventViewChanged, domain.ViewPayload{View: v})
}

func (m *Model) publish(t domain.EventType, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(context.Background(), domain.NewEvent(t, payload))
}
