package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"voicekey/internal/domain"
	"voicekey/internal/infra/tracer"
	"voicekey/internal/usecase/output"
	"voicekey/internal/usecase/postprocess"
)

// Processor turns a transcript into final text.
type Processor interface {
	Process(ctx context.Context, req postprocess.Request) postprocess.Result
}

// Deliverer hands final text to the user.
type Deliverer interface {
	Dispatch(ctx context.Context, out output.Output) output.Delivery
}

// Orchestrator drives a session from hotkey to delivered text. It implements
// domain.SessionDelegate with toggle semantics: a mode's shortcut starts it
// from Idle and stops it while it is live. Shortcuts of other modes are
// ignored while a session is active.
type Orchestrator struct {
	machine    *Machine
	pipeline   Processor
	dispatcher Deliverer
	overlay    domain.Overlay
	rewrite    domain.RewriteService
	settings   domain.SettingsStore
	logger     *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ domain.SessionDelegate = (*Orchestrator)(nil)

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	machine *Machine,
	pipeline Processor,
	dispatcher Deliverer,
	overlay domain.Overlay,
	rewrite domain.RewriteService,
	settings domain.SettingsStore,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		machine:    machine,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		overlay:    overlay,
		rewrite:    rewrite,
		settings:   settings,
		logger:     logger,
	}
}

// OnStartRequested toggles the session of mode. The session is admitted and
// its AppContext captured before returning; selection capture and recorder
// launch continue in the background so the key event path is not held up.
func (o *Orchestrator) OnStartRequested(ctx context.Context, mode domain.RecordingMode) {
	switch live := o.machine.Mode(); live {
	case domain.ModeIdle:
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return
		}
		st, err := o.machine.begin(ctx, mode)
		if err != nil {
			o.mu.Unlock()
			o.logger.Warn("start session failed", "mode", string(mode), "error", err)
			return
		}
		o.wg.Add(1)
		o.mu.Unlock()
		go func() {
			defer o.wg.Done()
			if err := o.machine.complete(context.WithoutCancel(ctx), st); err != nil {
				if errors.Is(err, domain.ErrSessionCancelled) {
					o.logger.Debug("session cancelled while starting", "mode", string(mode))
					return
				}
				o.logger.Warn("start session failed", "mode", string(mode), "error", err)
			}
		}()
	case mode:
		o.OnStopRequested(ctx)
	default:
		o.logger.Debug("shortcut ignored during session", "requested", string(mode), "live", string(live))
	}
}

// OnStopRequested stops the live session. Transcription, post-processing
// and delivery run in the background; Wait blocks until they are done.
func (o *Orchestrator) OnStopRequested(ctx context.Context) {
	if o.machine.Mode() == domain.ModeIdle {
		return
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()
	go func() {
		defer o.wg.Done()
		o.stopAndDeliver(context.WithoutCancel(ctx))
	}()
}

// OnCancelRequested discards the live session without transcribing it.
func (o *Orchestrator) OnCancelRequested(ctx context.Context) bool {
	return o.machine.StopWithoutTranscription(ctx)
}

// ApplySettings reacts to changed shortcut flags.
func (o *Orchestrator) ApplySettings(ctx context.Context, s *domain.Settings) {
	o.machine.SetShortcutEnabled(ctx, domain.ModeCommand, s.Shortcuts.CommandEnabled)
	o.machine.SetShortcutEnabled(ctx, domain.ModeRewrite, s.Shortcuts.RewriteEnabled)
}

// SubscribeSettings applies settings on every settings.changed event.
func (o *Orchestrator) SubscribeSettings(bus domain.EventBus) func() {
	return bus.Subscribe(domain.EventSettingsChanged, func(ctx context.Context, _ domain.Event) {
		s, err := o.settings.Load(ctx)
		if err != nil {
			o.logger.Warn("reload settings failed", "error", err)
			return
		}
		o.ApplySettings(ctx, s)
	})
}

// Wait blocks until background starts, stops and model warm-ups have
// returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
	o.machine.Wait()
}

// Close stops accepting shortcuts and waits for background work. Callers
// cancel the live session first when its result should be dropped.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.wg.Wait()
	o.machine.Close()
}

func (o *Orchestrator) stopAndDeliver(ctx context.Context) {
	ctx, span := tracer.StartSpan(ctx, "session.stop")
	defer span.End()

	t, err := o.machine.Stop(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSessionCancelled) || errors.Is(err, domain.ErrSessionIdle) || errors.Is(err, domain.ErrSessionBusy) {
			o.logger.Debug("stop ended early", "error", err)
		} else {
			o.logger.Warn("stop session failed", "error", err)
			tracer.RecordError(span, err)
		}
		return
	}
	span.SetAttributes(tracer.StringAttr("mode", string(t.Mode)), tracer.IntAttr("transcript_len", len(t.Text)))

	if t.IsEmpty() {
		o.logger.Info("empty transcript, nothing to deliver", "mode", string(t.Mode))
		if o.machine.Finish(ctx, t) && t.Mode == domain.ModeRewrite {
			o.rewrite.ClearState()
		}
		tracer.SetOK(span)
		return
	}

	req := postprocess.Request{
		Raw:      t.Text,
		Mode:     t.Mode,
		App:      t.App,
		FollowUp: t.Mode == domain.ModeCommand && o.overlay.IsCommandOutputExpanded(),
	}
	o.overlay.SetProcessing(true)
	res := o.pipeline.Process(t.Context(), req)
	o.overlay.SetProcessing(false)

	if !o.machine.Finish(ctx, t) {
		o.logger.Info("session cancelled during processing, result dropped", "mode", string(t.Mode))
		span.AddEvent("dropped", trace.WithAttributes(tracer.StringAttr("mode", string(t.Mode))))
		return
	}

	o.dispatcher.Dispatch(ctx, output.Output{Text: res.Text, Raw: t.Text, Mode: t.Mode, App: t.App})
	if t.Mode == domain.ModeRewrite {
		o.rewrite.ClearState()
	}
	if res.Err != nil {
		tracer.RecordError(span, res.Err)
		return
	}
	tracer.SetOK(span)
}
