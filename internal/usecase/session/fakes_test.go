package session

import (
	"context"
	"log/slog"
	"sync"

	"voicekey/internal/domain"
	"voicekey/internal/usecase/output"
	"voicekey/internal/usecase/postprocess"
)

type fakeASR struct {
	mu       sync.Mutex
	starts   int
	stops    int
	discards int

	calls    []string

	startErr error
	startFn  func() // runs before Start returns
	stopFn   func(ctx context.Context) (string, error)
	readyFn  func(ctx context.Context) error
}

func (f *fakeASR) Start(context.Context) error {
	f.mu.Lock()
	f.starts++
	f.calls = append(f.calls, "start")
	fn, err := f.startFn, f.startErr
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
	return err
}

func (f *fakeASR) Stop(ctx context.Context) (string, error) {
	f.mu.Lock()
	f.stops++
	f.calls = append(f.calls, "stop")
	fn := f.stopFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return "hello world", nil
}

func (f *fakeASR) StopWithoutTranscription(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discards++
	f.calls = append(f.calls, "discard")
	return nil
}

func (f *fakeASR) EnsureModelReady(ctx context.Context) error {
	if f.readyFn != nil {
		return f.readyFn(ctx)
	}
	return nil
}

func (f *fakeASR) IsRunning() bool { return false }

func (f *fakeASR) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeASR) counts() (starts, stops, discards int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops, f.discards
}

type fakeRewrite struct {
	mu        sync.Mutex
	hasSel    bool
	captures  int
	writeMode bool
	clears    int
	captureFn func() // runs before CaptureSelectedText returns
}

func (f *fakeRewrite) CaptureSelectedText(context.Context) bool {
	f.mu.Lock()
	f.captures++
	fn, has := f.captureFn, f.hasSel
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
	return has
}

func (f *fakeRewrite) StartWithoutSelection() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeMode = true
}

func (f *fakeRewrite) ProcessRewriteRequest(context.Context, string) error { return nil }

func (f *fakeRewrite) ClearState() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	f.writeMode = false
}

func (f *fakeRewrite) OriginalText() string  { return "" }
func (f *fakeRewrite) RewrittenText() string { return "" }

func (f *fakeRewrite) IsWriteMode() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeMode
}

func (f *fakeRewrite) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears
}

type fakeOverlay struct {
	mu       sync.Mutex
	modes    []domain.OverlayMode
	spinner  []bool
	expanded bool
}

func (f *fakeOverlay) SetMode(m domain.OverlayMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, m)
}

func (f *fakeOverlay) SetProcessing(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spinner = append(f.spinner, on)
}

func (f *fakeOverlay) ExpandCommandOutput(string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expanded = true
}

func (f *fakeOverlay) CollapseCommandOutput() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expanded = false
}

func (f *fakeOverlay) IsCommandOutputExpanded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expanded
}

func (f *fakeOverlay) lastMode() domain.OverlayMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.modes) == 0 {
		return domain.OverlayHidden
	}
	return f.modes[len(f.modes)-1]
}

func (f *fakeOverlay) spinnerLog() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.spinner...)
}

type fakeFocus struct {
	mu  sync.Mutex
	app domain.AppContext
}

func (f *fakeFocus) Frontmost() domain.AppContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.app
}

func (f *fakeFocus) IsOwnAppFocused() bool { return false }

func (f *fakeFocus) set(app domain.AppContext) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.app = app
}

type recordingBus struct {
	mu       sync.Mutex
	events   []domain.Event
	handlers map[domain.EventType][]domain.EventHandler
}

func (b *recordingBus) Publish(ctx context.Context, e domain.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	hs := append([]domain.EventHandler(nil), b.handlers[e.Type]...)
	b.mu.Unlock()
	for _, h := range hs {
		h(ctx, e)
	}
}

func (b *recordingBus) Subscribe(t domain.EventType, h domain.EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[domain.EventType][]domain.EventHandler)
	}
	b.handlers[t] = append(b.handlers[t], h)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, t)
	}
}

func (b *recordingBus) SubscribeAll(domain.EventHandler) func() { return func() {} }
func (b *recordingBus) Close() {}

func (b *recordingBus) types() []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.EventType, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

type memSettings struct {
	mu sync.Mutex
	s  domain.Settings
}

func (m *memSettings) Load(context.Context) (*domain.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := m.s.Clone()
	return &cp, nil
}

func (m *memSettings) Update(_ context.Context, fn func(*domain.Settings) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&m.s)
}

type fakePipeline struct {
	mu        sync.Mutex
	reqs      []postprocess.Request
	processFn func(ctx context.Context, req postprocess.Request) postprocess.Result
}

func (f *fakePipeline) Process(ctx context.Context, req postprocess.Request) postprocess.Result {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	fn := f.processFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return postprocess.Result{Text: "Cleaned: " + req.Raw, UsedAI: true}
}

func (f *fakePipeline) requests() []postprocess.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]postprocess.Request(nil), f.reqs...)
}

type fakeDispatcher struct {
	mu   sync.Mutex
	outs []output.Output
}

func (f *fakeDispatcher) Dispatch(_ context.Context, out output.Output) output.Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outs = append(f.outs, out)
	return output.Delivery{Typed: true}
}

func (f *fakeDispatcher) outputs() []output.Output {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]output.Output(nil), f.outs...)
}

type harness struct {
	asr      *fakeASR
	rewrite  *fakeRewrite
	overlay  *fakeOverlay
	focus    *fakeFocus
	bus      *recordingBus
	settings *memSettings
	pipeline *fakePipeline
	out      *fakeDispatcher
	machine  *Machine
	orch     *Orchestrator
}

func newHarness() *harness {
	h := &harness{
		asr:      &fakeASR{},
		rewrite:  &fakeRewrite{hasSel: true},
		overlay:  &fakeOverlay{},
		focus:    &fakeFocus{app: domain.AppContext{Name: "Mail", BundleID: "com.apple.mail", WindowTitle: "Draft"}},
		bus:      &recordingBus{},
		settings: &memSettings{s: domain.DefaultSettings()},
		pipeline: &fakePipeline{},
		out:      &fakeDispatcher{},
	}
	h.machine = NewMachine(h.asr, h.rewrite, h.overlay, h.focus, h.bus, slog.Default())
	h.orch = NewOrchestrator(h.machine, h.pipeline, h.out, h.overlay, h.rewrite, h.settings, slog.Default())
	return h
}
