package domain

import "context"

// ASREngine captures audio and transcribes it. Discarding is a distinct
// operation from stopping: a Stop that is in flight when
// StopWithoutTranscription is called returns ErrTranscriptionDiscarded.
type ASREngine interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (string, error)
	StopWithoutTranscription(ctx context.Context) error
	EnsureModelReady(ctx context.Context) error
	IsRunning() bool
}

// RewriteService rewrites selected text, or composes new text in write mode
// when nothing was selected.
type RewriteService interface {
	// CaptureSelectedText copies the current selection of the focused
	// application. It must run before focus moves to the overlay.
	CaptureSelectedText(ctx context.Context) bool
	StartWithoutSelection()
	ProcessRewriteRequest(ctx context.Context, instruction string) error
	ClearState()
	OriginalText() string
	RewrittenText() string
	IsWriteMode() bool
}

// CommandService answers spoken commands in a chat.
type CommandService interface {
	ProcessUserCommand(ctx context.Context, text string) (string, error)
	ProcessFollowUpCommand(ctx context.Context, text string) (string, error)
	CreateNewChat() string
	SwitchToChat(id string) error
	DeleteCurrentChat() error
	Chats() []Chat
}

// Overlay is the floating recording indicator.
type Overlay interface {
	SetMode(mode OverlayMode)
	SetProcessing(on bool)
	ExpandCommandOutput(text string)
	CollapseCommandOutput()
	IsCommandOutputExpanded() bool
}

// ViewNavigator switches the main window between surfaces.
type ViewNavigator interface {
	CurrentView() View
	ShowView(v View)
}

// SettingsStore is read-through: every Load returns the persisted state as
// of that call.
type SettingsStore interface {
	Load(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, fn func(*Settings) error) error
}

// TextTyper types text into the focused external application.
type TextTyper interface {
	TypeText(ctx context.Context, text string) error
}

// Clipboard is the system pasteboard.
type Clipboard interface {
	WriteText(text string) error
	ReadText() (string, error)
}

// HistoryStore persists delivered results.
type HistoryStore interface {
	Append(ctx context.Context, entry HistoryEntry) error
	Recent(ctx context.Context, limit int) ([]HistoryEntry, error)
}

// FocusProvider reports which application is frontmost.
type FocusProvider interface {
	Frontmost() AppContext
	IsOwnAppFocused() bool
}

// ChordRegistrar owns the global chord registrations.
type ChordRegistrar interface {
	Rebind(target ChordTarget, chord Chord)
}

// SessionDelegate receives requests from the global hotkey handler.
type SessionDelegate interface {
	// OnStartRequested runs on the key event path and must not wait for
	// the recorder to start.
	OnStartRequested(ctx context.Context, mode RecordingMode)
	OnStopRequested(ctx context.Context)
	// OnCancelRequested reports whether anything was cancelled.
	OnCancelRequested(ctx context.Context) bool
}

// ChatCompleter performs one chat-completion call against cfg and returns
// the assistant text.
type ChatCompleter interface {
	Complete(ctx context.Context, cfg ProviderConfig, req ChatRequest) (string, error)
}
