package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"voicekey/internal/adapter/asr"
	"voicekey/internal/adapter/desktop"
	"voicekey/internal/adapter/focus"
	"voicekey/internal/adapter/gateway"
	"voicekey/internal/adapter/history"
	"voicekey/internal/adapter/llm"
	"voicekey/internal/adapter/overlay"
	"voicekey/internal/adapter/settings"
	"voicekey/internal/domain"
	"voicekey/internal/infra/config"
	"voicekey/internal/usecase/command"
	"voicekey/internal/usecase/eventbus"
	"voicekey/internal/usecase/output"
	"voicekey/internal/usecase/postprocess"
	"voicekey/internal/usecase/rewrite"
	"voicekey/internal/usecase/session"
	"voicekey/internal/usecase/scheduling"
	"voicekey/internal/usecase/shortcut"
)

// app holds the wired components and what must be released on shutdown.
type app struct {
	log          *slog.Logger
	bus          *eventbus.Bus
	settings     *settings.Store
	watcher      *settings.Watcher // nil when watching is disabled
	history      *history.SQLiteStore
	scheduler    *scheduling.Scheduler
	asr          *asr.Engine
	orchestrator *session.Orchestrator
	gateway      *gateway.Server
	unsubs       []func()
}

func initApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{log: log}

	// Event bus
	a.bus = eventbus.New(log)

	// Settings
	a.settings = settings.NewStore(cfg.Settings.Path, os.Getenv(config.PassphraseEnv), a.bus, log)
	if _, err := a.settings.Load(ctx); err != nil {
		a.bus.Close()
		return nil, fmt.Errorf("settings: %w", err)
	}
	if cfg.Settings.Watch {
		a.watcher = settings.NewWatcher(cfg.Settings.Path, cfg.Settings.Debounce, a.bus, log)
	}

	// History
	var hist domain.HistoryStore
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path, cfg.History.MaxEntries)
		if err != nil {
			a.bus.Close()
			return nil, fmt.Errorf("history: %w", err)
		}
		a.history = store
		hist = store
	}

	// Maintenance
	a.scheduler = scheduling.NewScheduler(log)
	if a.history != nil && cfg.History.MaxAge > 0 {
		task := scheduling.HistoryRetention(a.history, cfg.History.MaxAge, cfg.History.PruneSchedule, log)
		if err := a.scheduler.Add(task); err != nil {
			a.history.Close()
			a.bus.Close()
			return nil, fmt.Errorf("history retention: %w", err)
		}
	}

	// Desktop
	clip := desktop.SystemClipboard{}
	var keys desktop.Keyboard
	if kb, err := desktop.NewSystemKeyboard(); err != nil {
		log.Warn("keyboard unavailable, results will be copied to the clipboard", "error", err)
		keys = desktop.UnavailableKeyboard{Err: err}
	} else {
		keys = kb
	}
	typer := desktop.NewPasteTyper(clip, keys, cfg.Desktop.KeyDelay, log.With("component", "typer"))
	selection := desktop.NewSelectionCapturer(clip, keys, cfg.Desktop.CopyDelay, log.With("component", "selection"))

	// Focus, overlay, speech
	tracker := focus.NewTracker(cfg.Desktop.OwnBundleID, a.bus)
	model := overlay.NewModel(a.bus)
	a.asr = asr.NewEngine(cfg.ASR, log)

	// AI services
	client := llm.NewClient(cfg.LLM, log)
	commands := command.NewService(a.settings, client, a.bus, log.With("component", "command"))
	rewriter := rewrite.NewService(selection, a.settings, client, log.With("component", "rewrite"))
	pipeline := postprocess.New(a.settings, client, commands, rewriter, log.With("component", "postprocess"))
	dispatcher := output.NewDispatcher(a.settings, tracker, typer, clip, hist, model, a.bus, log.With("component", "output"))

	// Session
	machine := session.NewMachine(a.asr, rewriter, model, tracker, a.bus, log.With("component", "session"))
	a.orchestrator = session.NewOrchestrator(machine, pipeline, dispatcher, model, rewriter, a.settings, log.With("component", "orchestrator"))
	if s, err := a.settings.Load(ctx); err == nil {
		a.orchestrator.ApplySettings(ctx, s)
	}
	a.unsubs = append(a.unsubs, a.orchestrator.SubscribeSettings(a.bus))

	// Shortcuts
	monitor := shortcut.NewMonitor(a.orchestrator, a.settings, log.With("component", "hotkeys"))
	if err := monitor.Load(ctx); err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("shortcuts: %w", err)
	}
	a.unsubs = append(a.unsubs, a.bus.Subscribe(domain.EventSettingsChanged, func(ctx context.Context, _ domain.Event) {
		if err := monitor.Load(ctx); err != nil {
			log.Warn("reload shortcuts failed", "error", err)
		}
	}))
	cascade := shortcut.NewCascade(model, a.orchestrator, model, log.With("component", "escape"))
	router := shortcut.NewRouter(monitor, cascade, a.settings, monitor, a.bus, log.With("component", "router"))
	router.SetObserver(monitor)

	// Gateway
	tokens := cfg.Gateway.Auth.Tokens
	if len(tokens) == 0 {
		tok, err := ensureGatewayToken(filepath.Join(filepath.Dir(cfg.Settings.Path), "gateway.token"))
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("gateway token: %w", err)
		}
		tokens = []config.TokenConfig{{Token: tok, Name: "local"}}
	}
	a.gateway = gateway.NewServer(a.bus, gateway.NewStaticTokenAuth(tokens), cfg.Gateway, log)
	deps := gateway.HandlerDeps{
		Router:   router,
		Focus:    tracker,
		Overlay:  model,
		Commands: commands,
		Session:  a.orchestrator,
		Machine:  machine,
		History:  hist,
		Bus:      a.bus,
		Logger:   log,
	}
	gateway.RegisterDefaultHandlers(a.gateway, deps)
	gateway.RegisterRESTHandlers(a.gateway, deps)

	return a, nil
}

// Close cancels any live recording, waits for in-flight deliveries and
// releases resources.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for _, u := range a.unsubs {
		u()
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.orchestrator != nil {
		a.orchestrator.OnCancelRequested(ctx)
		done := make(chan struct{})
		go func() {
			a.orchestrator.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("wait for sessions: %w", ctx.Err()))
		}
	}
	if a.asr != nil && a.asr.IsRunning() {
		if err := a.asr.StopWithoutTranscription(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop recorder: %w", err))
		}
	}
	if a.gateway != nil {
		if err := a.gateway.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop gateway: %w", err))
		}
	}
	if a.bus != nil {
		a.bus.Close()
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ensureGatewayToken returns the token stored at path, creating a random one
// when the file does not exist.
func ensureGatewayToken(path string) (string, error) {
	if b, err := os.ReadFile(path); err == nil {
		if tok := strings.TrimSpace(string(b)); tok != "" {
			return tok, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	tok := hex.EncodeToString(buf)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(tok+"\n"), 0o600); err != nil {
		return "", err
	}
	return tok, nil
}
