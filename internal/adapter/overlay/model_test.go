package overlay

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicekey/internal/domain"
)

type recordingBus struct{ events []domain.Event }

func (b *recordingBus) Publish(_ context.Context, ev domain.Event) { b.events = append(b.events, ev) }
func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() {
	return func() {}
}
func (b *recordingBus) SubscribeAll(domain.EventHandler) func() { return func() {} }
func (b *recordingBus) Close()                                  {}

func (b *recordingBus) types() []domain.EventType {
	out := make([]domain.EventType, len(b.events))
	for i, ev := range b.events {
		out[i] = ev.Type
	}
	return out
}

func TestOverlayModeAndProcessing(t *testing.T) {
	bus := &recordingBus{}
	m := NewModel(bus)

	m.SetMode(domain.OverlayDictation)
	m.SetMode(domain.OverlayDictation)
	m.SetProcessing(true)
	m.SetProcessing(true)
	assert.Equal(t, State{Mode: domain.OverlayDictation, Processing: true, View: domain.ViewWelcome}, m.Snapshot())

	m.SetMode(domain.OverlayHidden)
	assert.False(t, m.Snapshot().Processing, "hiding clears the spinner")

	assert.Equal(t, []domain.EventType{
		domain.EventOverlayMode,
		domain.EventOverlayProcessing,
		domain.EventOverlayMode,
	}, bus.types())

	var p domain.OverlayModePayload
	require.NoError(t, json.Unmarshal(bus.events[0].Payload, &p))
	assert.Equal(t, domain.OverlayDictation, p.Mode)
}

func TestCommandOutputExpandCollapse(t *testing.T) {
	bus := &recordingBus{}
	m := NewModel(bus)

	m.CollapseCommandOutput()
	assert.Empty(t, bus.events, "collapse when already collapsed is silent")

	m.ExpandCommandOutput("Paris is the capital of France.")
	assert.True(t, m.IsCommandOutputExpanded())
	assert.Equal(t, "Paris is the capital of France.", m.Snapshot().Output)

	var p domain.TextPayload
	require.NoError(t, json.Unmarshal(bus.events[0].Payload, &p))
	assert.Equal(t, domain.ModeCommand, p.Mode)
	assert.Equal(t, "Paris is the capital of France.", p.Text)

	m.CollapseCommandOutput()
	assert.False(t, m.IsCommandOutputExpanded())
	assert.Empty(t, m.Snapshot().Output)
	assert.Equal(t, []domain.EventType{domain.EventOverlayExpanded, domain.EventOverlayCollapsed}, bus.types())
}

func TestViews(t *testing.T) {
	bus := &recordingBus{}
	m := NewModel(bus)
	assert.Equal(t, domain.ViewWelcome, m.CurrentView())

	m.ShowView(domain.ViewCommand)
	m.ShowView(domain.ViewCommand)
	assert.Equal(t, domain.ViewCommand, m.CurrentView())
	require.Len(t, bus.events, 1)
	assert.Equal(t, domain.EventViewChanged, bus.events[0].Type)
}

func TestNilBus(t *testing.T) {
	m := NewModel(nil)
	m.SetMode(domain.OverlayCommand)
	m.ExpandCommandOutput("x")
	m.ShowView(domain.ViewHistory)
	assert.Equal(t, domain.OverlayCommand, m.Snapshot().Mode)
}
