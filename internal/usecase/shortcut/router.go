package shortcut

import (
	"context"
	"log/slog"
	"sync"

	"voicekey/internal/domain"
)

// ChordSource lists the currently registered global chords.
type ChordSource interface {
	Chords() []domain.Chord
}

// EventObserver receives the events the router lets through.
type EventObserver interface {
	HandleEvent(ctx context.Context, ev domain.KeyEvent) bool
}

// EscapeHandler runs the Escape cascade.
type EscapeHandler interface {
	Run(ctx context.Context) bool
}

// Router decides for every raw key event whether it reaches the focused
// application. Registered global chords always pass through, an armed chord
// recording consumes everything else, and Escape runs the cancellation
// cascade when nothing is armed.
type Router struct {
	mu       sync.Mutex
	target   domain.ChordTarget
	recorder Recorder

	chords    ChordSource
	escape    EscapeHandler
	settings  domain.SettingsStore
	registrar domain.ChordRegistrar
	observer  EventObserver // nil = no global hotkey handling
	bus       domain.EventBus
	logger    *slog.Logger
}

// NewRouter creates a Router. The registrar is notified of every recorded
// chord after it has been persisted.
func NewRouter(
	chords ChordSource,
	escape EscapeHandler,
	settings domain.SettingsStore,
	registrar domain.ChordRegistrar,
	bus domain.EventBus,
	logger *slog.Logger,
) *Router {
	return &Router{
		chords:    chords,
		escape:    escape,
		settings:  settings,
		registrar: registrar,
		bus:       bus,
		logger:    logger,
	}
}

// SetObserver installs the handler for passed-through events, normally the
// global hotkey Monitor.
func (r *Router) SetObserver(o EventObserver) { r.observer = o }

// Handle routes ev and forwards it to the observer when it passes through.
func (r *Router) Handle(ctx context.Context, ev domain.KeyEvent) domain.Verdict {
	v := r.Route(ctx, ev)
	if v == domain.PassThrough && r.observer != nil {
		r.observer.HandleEvent(ctx, ev)
	}
	return v
}

// Route classifies one event.
func (r *Router) Route(ctx context.Context, ev domain.KeyEvent) domain.Verdict {
	for _, c := range r.chords.Chords() {
		if c.Matches(ev) {
			return domain.PassThrough
		}
	}

	r.mu.Lock()
	target := r.target
	if target == domain.TargetNone {
		r.mu.Unlock()
		if ev.IsEscapeDown() && r.escape.Run(ctx) {
			return domain.Suppress
		}
		return domain.PassThrough
	}

	out := r.recorder.Observe(ev)
	if out.Kind != Pending {
		r.target = domain.TargetNone
		r.recorder.Reset()
	}
	r.mu.Unlock()

	switch out.Kind {
	case Cancelled:
		r.logger.Debug("chord recording cancelled", "target", string(target))
		r.publish(ctx, domain.EventShortcutDisarmed, domain.ShortcutPayload{Target: target})
	case Committed:
		r.commit(ctx, target, out.Chord)
	}
	return domain.Suppress
}

func (r *Router) commit(ctx context.Context, target domain.ChordTarget, chord domain.Chord) {
	err := r.settings.Update(ctx, func(s *domain.Settings) error {
		return s.SetChord(target, chord)
	})
	if err != nil {
		r.logger.Error("persist recorded chord failed",
			"target", string(target), "chord", chord.String(), "error", err)
	}
	r.registrar.Rebind(target, chord)
	r.logger.Info("chord recorded", "target", string(target), "chord", chord.String())
	r.publish(ctx, domain.EventShortcutRecorded, domain.ShortcutPayload{Target: target, Chord: &chord})
}

// Arm starts recording a chord for target, replacing any armed recording.
// Arming TargetNone disarms.
func (r *Router) Arm(ctx context.Context, target domain.ChordTarget) {
	if target == domain.TargetNone {
		r.Disarm(ctx)
		return
	}
	r.mu.Lock()
	r.target = target
	r.recorder.Reset()
	r.mu.Unlock()
	r.publish(ctx, domain.EventShortcutArmed, domain.ShortcutPayload{Target: target})
}

// Disarm stops any armed recording without committing.
func (r *Router) Disarm(ctx context.Context) {
	r.mu.Lock()
	prev := r.target
	r.target = domain.TargetNone
	r.recorder.Reset()
	r.mu.Unlock()
	if prev != domain.TargetNone {
		r.publish(ctx, domain.EventShortcutDisarmed, domain.ShortcutPayload{Target: prev})
	}
}

// Armed returns the target being recorded, or TargetNone.
func (r *Router) Armed() domain.ChordTarget {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target
}

func (r *Router) publish(ctx context.Context, t domain.EventType, payload any) {
	if r.bus != nil {
		r.bus.Publish(ctx, domain.NewEvent(t, payload))
	}
}
