package shortcut

import (
	"context"
	"log/slog"
	"sync"

	"voicekey/internal/domain"
)

// Monitor owns the three global chord registrations and turns matching key
// events into session requests. A modifier-only chord fires when its key is
// released with no other key pressed while it was held.
type Monitor struct {
	mu     sync.Mutex
	chords map[domain.ChordTarget]domain.Chord

	// Modifier-only chord currently held down, if any.
	held        domain.ChordTarget
	interrupted bool

	delegate domain.SessionDelegate
	settings domain.SettingsStore
	logger   *slog.Logger
}

// NewMonitor creates a Monitor with no registrations. Call Load to read the
// bindings from settings.
func NewMonitor(delegate domain.SessionDelegate, settings domain.SettingsStore, logger *slog.Logger) *Monitor {
	return &Monitor{
		chords:   make(map[domain.ChordTarget]domain.Chord, len(domain.AllTargets)),
		delegate: delegate,
		settings: settings,
		logger:   logger,
	}
}

// Load replaces all registrations with the bindings stored in settings.
func (m *Monitor) Load(ctx context.Context) error {
	s, err := m.settings.Load(ctx)
	if err != nil {
		return domain.WrapOp("Monitor.Load", err)
	}
	for _, t := range domain.AllTargets {
		m.Rebind(t, s.ChordFor(t))
	}
	return nil
}

// Rebind replaces the chord registered for target. It implements
// domain.ChordRegistrar.
func (m *Monitor) Rebind(target domain.ChordTarget, chord domain.Chord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if chord.IsZero() {
		delete(m.chords, target)
	} else {
		m.chords[target] = chord
	}
	if m.held == target {
		m.held = domain.TargetNone
	}
}

// Chords returns the registered chords.
func (m *Monitor) Chords() []domain.Chord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Chord, 0, len(m.chords))
	for _, t := range domain.AllTargets {
		if c, ok := m.chords[t]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Chord returns the chord registered for target.
func (m *Monitor) Chord(target domain.ChordTarget) (domain.Chord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chords[target]
	return c, ok
}

// HandleEvent inspects one event and fires the matching binding. It reports
// whether a request was sent to the delegate.
func (m *Monitor) HandleEvent(ctx context.Context, ev domain.KeyEvent) bool {
	target := m.match(ev)
	if target == domain.TargetNone {
		return false
	}
	return m.fire(ctx, target)
}

func (m *Monitor) match(ev domain.KeyEvent) domain.ChordTarget {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Kind {
	case domain.KeyDown:
		if m.held != domain.TargetNone {
			m.interrupted = true
		}
		for _, t := range domain.AllTargets {
			c, ok := m.chords[t]
			if ok && !c.IsModifierOnly() && c.Matches(ev) {
				return t
			}
		}

	case domain.FlagsChanged:
		if m.held != domain.TargetNone {
			c := m.chords[m.held]
			if ev.KeyCode != c.KeyCode {
				// Another modifier joined in.
				m.interrupted = true
				return domain.TargetNone
			}
			mod, _ := domain.ModifierForKey(c.KeyCode)
			if ev.Modifiers.Has(mod) {
				return domain.TargetNone
			}
			t, interrupted := m.held, m.interrupted
			m.held, m.interrupted = domain.TargetNone, false
			if interrupted || !ev.Modifiers.Empty() {
				return domain.TargetNone
			}
			return t
		}
		for _, t := range domain.AllTargets {
			c, ok := m.chords[t]
			if !ok || !c.IsModifierOnly() || ev.KeyCode != c.KeyCode {
				continue
			}
			mod, _ := domain.ModifierForKey(c.KeyCode)
			// Only a press of this modifier alone arms the tap.
			if ev.Modifiers.Relevant() == domain.Mods(mod) {
				m.held, m.interrupted = t, false
			}
			return domain.TargetNone
		}
	}
	return domain.TargetNone
}

func (m *Monitor) fire(ctx context.Context, target domain.ChordTarget) bool {
	mode := target.Mode()
	if mode != domain.ModeDictation {
		s, err := m.settings.Load(ctx)
		if err != nil {
			m.logger.Warn("hotkey ignored, settings unavailable", "mode", string(mode), "error", err)
			return false
		}
		if !s.ShortcutEnabled(mode) {
			m.logger.Debug("hotkey disabled", "mode", string(mode))
			return false
		}
	}
	m.logger.Debug("hotkey fired", "mode", string(mode))
	m.delegate.OnStartRequested(ctx, mode)
	return true
}
