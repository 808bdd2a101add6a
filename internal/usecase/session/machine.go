// Package session owns the recording session state machine and the
// orchestration of a session from hotkey to delivered text.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"voicekey/internal/domain"
)

// Transcript is the text captured by one session. It is only valid for the
// session that produced it; Finish rejects transcripts of cancelled sessions.
type Transcript struct {
	Mode domain.RecordingMode
	App  domain.AppContext
	Text string

	gen uint64
	ctx context.Context
}

// IsEmpty reports whether no speech was recognised.
func (t *Transcript) IsEmpty() bool { return strings.TrimSpace(t.Text) == "" }

// Context is cancelled when the session is cancelled. Post-processing for
// the transcript runs under it.
func (t *Transcript) Context() context.Context { return t.ctx }

// Machine is the single authority for "is something recording". Starts are
// only accepted from Idle; there are no direct transitions between modes.
type Machine struct {
	mu       sync.Mutex
	mode     domain.RecordingMode
	app      domain.AppContext
	stopping bool
	gen      uint64
	procCtx  context.Context
	cancel   context.CancelFunc
	ready    chan struct{} // closed once the live session finished starting
	closed   bool

	asr     domain.ASREngine
	rewrite domain.RewriteService
	overlay domain.Overlay
	focus   domain.FocusProvider
	bus     domain.EventBus
	logger  *slog.Logger

	warmups sync.WaitGroup
}

// NewMachine creates an idle Machine.
func NewMachine(
	asr domain.ASREngine,
	rewrite domain.RewriteService,
	overlay domain.Overlay,
	focus domain.FocusProvider,
	bus domain.EventBus,
	logger *slog.Logger,
) *Machine {
	return &Machine{
		mode:    domain.ModeIdle,
		asr:     asr,
		rewrite: rewrite,
		overlay: overlay,
		focus:   focus,
		bus:     bus,
		logger:  logger,
	}
}

// StartDictation begins a plain dictation session.
func (m *Machine) StartDictation(ctx context.Context) error {
	return m.start(ctx, domain.ModeDictation)
}

// StartCommand begins a command session.
func (m *Machine) StartCommand(ctx context.Context) error {
	return m.start(ctx, domain.ModeCommand)
}

// StartRewrite begins a rewrite session. The current selection is captured
// before the overlay changes; without a selection the session composes new
// text (write mode).
func (m *Machine) StartRewrite(ctx context.Context) error {
	return m.start(ctx, domain.ModeRewrite)
}

// Start dispatches to the start operation of mode.
func (m *Machine) Start(ctx context.Context, mode domain.RecordingMode) error {
	if !mode.IsActive() {
		return domain.NewDomainError("Machine.Start", domain.ErrInvalidInput, fmt.Sprintf("mode %q", mode))
	}
	return m.start(ctx, mode)
}

func (m *Machine) start(ctx context.Context, mode domain.RecordingMode) error {
	st, err := m.begin(ctx, mode)
	if err != nil {
		return err
	}
	return m.complete(ctx, st)
}

// startup is a session that has been admitted but whose recorder may not be
// running yet.
type startup struct {
	mode    domain.RecordingMode
	app     domain.AppContext
	gen     uint64
	procCtx context.Context
	ready   chan struct{}
}

// begin admits a session from Idle and captures the frontmost application.
// It never blocks on collaborators, so callers on the key event path can run
// complete elsewhere.
func (m *Machine) begin(ctx context.Context, mode domain.RecordingMode) (*startup, error) {
	const op = "Machine.Start"

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, domain.NewDomainError(op, domain.ErrSessionCancelled, "machine closed")
	}
	if m.mode != domain.ModeIdle {
		return nil, domain.NewDomainError(op, domain.ErrSessionActive, fmt.Sprintf("%s requested while %s", mode, m.mode))
	}
	st := &startup{
		mode:  mode,
		app:   m.focus.Frontmost(),
		ready: make(chan struct{}),
	}
	m.gen++
	st.gen = m.gen
	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	st.procCtx = procCtx
	m.mode, m.app, m.stopping = mode, st.app, false
	m.procCtx, m.cancel, m.ready = procCtx, cancel, st.ready
	return st, nil
}

// complete captures the selection for rewrite sessions, launches the
// recorder and shows the overlay. A cancel that lands in between discards
// whatever was already started.
func (m *Machine) complete(ctx context.Context, st *startup) error {
	const op = "Machine.Start"
	defer close(st.ready)

	overlayMode := domain.OverlayMode(st.mode)
	if st.mode == domain.ModeRewrite {
		if m.rewrite.CaptureSelectedText(ctx) {
			overlayMode = domain.OverlayRewrite
		} else {
			m.rewrite.StartWithoutSelection()
			overlayMode = domain.OverlayWrite
		}
	}

	if !m.isLive(st.gen) {
		m.abandon(st.mode)
		return domain.NewDomainError(op, domain.ErrSessionCancelled, string(st.mode))
	}

	if err := m.asr.Start(ctx); err != nil {
		m.mu.Lock()
		if m.gen == st.gen {
			m.resetLocked()
		}
		m.mu.Unlock()
		if st.mode == domain.ModeRewrite {
			m.rewrite.ClearState()
		}
		return domain.WrapOp(op, err)
	}

	m.mu.Lock()
	live := m.gen == st.gen
	if live && !m.closed {
		m.warmups.Add(1)
		go func() {
			defer m.warmups.Done()
			if err := m.asr.EnsureModelReady(st.procCtx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Warn("speech model warm-up failed", "mode", string(st.mode), "error", err)
			}
		}()
	}
	m.mu.Unlock()

	if !live {
		// Cancelled while the recorder was launching. The cancel found
		// nothing to discard, so the recorder must be stopped here.
		if err := m.asr.StopWithoutTranscription(context.WithoutCancel(ctx)); err != nil {
			m.logger.Warn("discard recording failed", "mode", string(st.mode), "error", err)
		}
		m.abandon(st.mode)
		return domain.NewDomainError(op, domain.ErrSessionCancelled, string(st.mode))
	}

	m.overlay.SetMode(overlayMode)
	m.logger.Info("session started", "mode", string(st.mode), "app", st.app.Name, "bundle_id", st.app.BundleID)
	m.publish(ctx, domain.EventSessionStarted, domain.SessionEventPayload{Mode: st.mode, App: st.app})
	return nil
}

func (m *Machine) isLive(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen == gen
}

// abandon drops per-session collaborator state of a session that never
// became live.
func (m *Machine) abandon(mode domain.RecordingMode) {
	if mode == domain.ModeRewrite {
		m.rewrite.ClearState()
	}
}

// Stop ends capture and waits for the transcript. The machine stays in the
// session's mode until Finish is called with the returned transcript.
func (m *Machine) Stop(ctx context.Context) (*Transcript, error) {
	op := "Machine.Stop"

	m.mu.Lock()
	switch {
	case m.mode == domain.ModeIdle:
		m.mu.Unlock()
		return nil, domain.NewDomainError(op, domain.ErrSessionIdle, "")
	case m.stopping:
		m.mu.Unlock()
		return nil, domain.NewDomainError(op, domain.ErrSessionBusy, string(m.mode))
	}
	m.stopping = true
	gen, mode, app, procCtx, ready := m.gen, m.mode, m.app, m.procCtx, m.ready
	m.mu.Unlock()

	// A toggle that arrives while the session is still starting stops it
	// once the recorder is up.
	if ready != nil {
		<-ready
	}
	if !m.isLive(gen) {
		return nil, domain.NewDomainError(op, domain.ErrSessionCancelled, string(mode))
	}

	m.publish(ctx, domain.EventSessionStopping, domain.SessionEventPayload{Mode: mode, App: app})

	text, err := m.asr.Stop(procCtx)

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return nil, domain.NewDomainError(op, domain.ErrSessionCancelled, string(mode))
	}
	if err != nil {
		m.resetLocked()
		m.mu.Unlock()
		m.abandon(mode)
		m.overlay.SetMode(domain.OverlayHidden)
		return nil, domain.WrapOp(op, err)
	}
	m.mu.Unlock()
	return &Transcript{Mode: mode, App: app, Text: text, gen: gen, ctx: procCtx}, nil
}

// Finish returns the machine to Idle once t has been consumed. It reports
// false when the session was cancelled after t was produced, in which case
// the result must be dropped.
func (m *Machine) Finish(ctx context.Context, t *Transcript) bool {
	if t == nil {
		return false
	}
	m.mu.Lock()
	if m.mode == domain.ModeIdle || m.gen != t.gen {
		m.mu.Unlock()
		return false
	}
	m.resetLocked()
	m.mu.Unlock()

	m.overlay.SetMode(domain.OverlayHidden)
	m.publish(ctx, domain.EventSessionFinished, domain.SessionEventPayload{Mode: t.Mode, App: t.App})
	return true
}

// StopWithoutTranscription discards the live session from any non-idle
// state, including while Stop is waiting for the transcript. It reports
// whether a session was cancelled.
func (m *Machine) StopWithoutTranscription(ctx context.Context) bool {
	m.mu.Lock()
	if m.mode == domain.ModeIdle {
		m.mu.Unlock()
		return false
	}
	mode, app := m.mode, m.app
	m.resetLocked()
	m.mu.Unlock()

	if err := m.asr.StopWithoutTranscription(ctx); err != nil {
		m.logger.Warn("discard recording failed", "mode", string(mode), "error", err)
	}
	if mode == domain.ModeRewrite {
		m.rewrite.ClearState()
	}
	m.overlay.SetProcessing(false)
	m.overlay.SetMode(domain.OverlayHidden)

	m.logger.Info("session cancelled", "mode", string(mode))
	m.publish(ctx, domain.EventSessionCancelled, domain.SessionEventPayload{Mode: mode, App: app})
	return true
}

// SetShortcutEnabled applies a change of a mode's shortcut flag. Disabling
// the shortcut of the live command or rewrite session cancels it.
func (m *Machine) SetShortcutEnabled(ctx context.Context, mode domain.RecordingMode, enabled bool) bool {
	if enabled || (mode != domain.ModeCommand && mode != domain.ModeRewrite) {
		return false
	}
	if m.Mode() != mode {
		return false
	}
	m.logger.Info("shortcut disabled during session", "mode", string(mode))
	return m.StopWithoutTranscription(ctx)
}

// Mode returns the live mode.
func (m *Machine) Mode() domain.RecordingMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// App returns the application context captured when the session started.
func (m *Machine) App() domain.AppContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.app
}

// IsStopping reports whether Stop is waiting for a transcript.
func (m *Machine) IsStopping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopping
}

// Wait blocks until detached model warm-ups have returned.
func (m *Machine) Wait() { m.warmups.Wait() }

// Close stops accepting new sessions and waits for model warm-ups.
func (m *Machine) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.warmups.Wait()
}

// resetLocked returns to Idle and invalidates the session's generation, so
// transcripts and startups of the old session are recognised as stale.
func (m *Machine) resetLocked() {
	m.gen++
	if m.cancel != nil {
		m.cancel()
	}
	m.mode = domain.ModeIdle
	m.app = domain.AppContext{}
	m.stopping = false
	m.procCtx, m.cancel, m.ready = nil, nil, nil
}

func (m *Machine) publish(ctx context.Context, t domain.EventType, payload any) {
	if m.bus != nil {
		m.bus.Publish(ctx, domain.NewEvent(t, payload))
	}
}
