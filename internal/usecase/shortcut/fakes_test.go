package shortcut

import (
	"context"
	"sync"

	"voicekey/internal/domain"
)

// --- test doubles ---

type memSettings struct {
	mu        sync.Mutex
	s         domain.Settings
	loadErr   error
	updateErr error
}

func newMemSettings() *memSettings {
	return &memSettings{s: domain.DefaultSettings()}
}

func (m *memSettings) Load(context.Context) (*domain.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	cp := m.s.Clone()
	return &cp, nil
}

func (m *memSettings) Update(_ context.Context, fn func(*domain.Settings) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	cp := m.s.Clone()
	if err := fn(&cp); err != nil {
		return err
	}
	m.s = cp
	return nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}
func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *recordingBus) Close()                                                 {}

func (b *recordingBus) Types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventType, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}

type spyRegistrar struct {
	calls []struct {
		target domain.ChordTarget
		chord  domain.Chord
	}
}

func (r *spyRegistrar) Rebind(t domain.ChordTarget, c domain.Chord) {
	r.calls = append(r.calls, struct {
		target domain.ChordTarget
		chord  domain.Chord
	}{t, c})
}

type staticChords []domain.Chord

func (s staticChords) Chords() []domain.Chord { return s }

type escapeFunc func(ctx context.Context) bool

func (f escapeFunc) Run(ctx context.Context) bool { return f(ctx) }

type fakeOverlay struct {
	expanded  bool
	collapsed int
}

func (o *fakeOverlay) SetMode(domain.OverlayMode)      {}
func (o *fakeOverlay) SetProcessing(bool)              {}
func (o *fakeOverlay) ExpandCommandOutput(string)      { o.expanded = true }
func (o *fakeOverlay) CollapseCommandOutput()          { o.expanded = false; o.collapsed++ }
func (o *fakeOverlay) IsCommandOutputExpanded() bool   { return o.expanded }

type fakeViews struct{ view domain.View }

func (v *fakeViews) CurrentView() domain.View { return v.view }
func (v *fakeViews) ShowView(view domain.View) { v.view = view }

type fakeSession struct {
	active    bool
	cancelled int
}

func (s *fakeSession) OnCancelRequested(context.Context) bool {
	if !s.active {
		return false
	}
	s.active = false
	s.cancelled++
	return true
}

type spyDelegate struct {
	mu      sync.Mutex
	started []domain.RecordingMode
	stops   int
}

func (d *spyDelegate) OnStartRequested(_ context.Context, mode domain.RecordingMode) {
	d.mu.Lock()
	d.started = append(d.started, mode)
	d.mu.Unlock()
}
func (d *spyDelegate) OnStopRequested(context.Context) {
	d.mu.Lock()
	d.stops++
	d.mu.Unlock()
}
func (d *spyDelegate) OnCancelRequested(context.Context) bool { return false }

func (d *spyDelegate) Started() []domain.RecordingMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.RecordingMode(nil), d.started...)
}

// event constructors

func keyDown(code uint16, mods ...domain.Modifier) domain.KeyEvent {
	return domain.KeyEvent{Kind: domain.KeyDown, KeyCode: code, Modifiers: domain.Mods(mods...)}
}

func keyUp(code uint16) domain.KeyEvent {
	return domain.KeyEvent{Kind: domain.KeyUp, KeyCode: code}
}

func flags(code uint16, mods ...domain.Modifier) domain.KeyEvent {
	return domain.KeyEvent{Kind: domain.FlagsChanged, KeyCode: code, Modifiers: domain.Mods(mods...)}
}
