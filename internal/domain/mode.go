package domain

import "fmt"

// RecordingMode is the live voice-capture mode. Exactly one is active at a time.
type RecordingMode string

const (
	ModeIdle      RecordingMode = "idle"
	ModeDictation RecordingMode = "dictation"
	ModeCommand   RecordingMode = "command"
	ModeRewrite   RecordingMode = "rewrite"
)

// IsActive reports whether the mode represents a live session.
func (m RecordingMode) IsActive() bool {
	return m == ModeDictation || m == ModeCommand || m == ModeRewrite
}

// Valid reports whether m is one of the known modes.
func (m RecordingMode) Valid() bool {
	return m == ModeIdle || m.IsActive()
}

// ChordTarget names the binding a chord recording will replace. A single
// value makes "two recordings armed at once" unrepresentable.
type ChordTarget string

const (
	TargetNone      ChordTarget = ""
	TargetDictation ChordTarget = "dictation"
	TargetCommand   ChordTarget = "command"
	TargetRewrite   ChordTarget = "rewrite"
)

// AllTargets lists the bindable targets in display order.
var AllTargets = []ChordTarget{TargetDictation, TargetCommand, TargetRewrite}

// Mode returns the recording mode a target's chord starts.
func (t ChordTarget) Mode() RecordingMode {
	switch t {
	case TargetDictation:
		return ModeDictation
	case TargetCommand:
		return ModeCommand
	case TargetRewrite:
		return ModeRewrite
	}
	return ModeIdle
}

// ParseChordTarget validates a target name received over the wire.
func ParseChordTarget(s string) (ChordTarget, error) {
	switch t := ChordTarget(s); t {
	case TargetDictation, TargetCommand, TargetRewrite:
		return t, nil
	}
	return TargetNone, fmt.Errorf("%w: chord target %q", ErrInvalidInput, s)
}

// OverlayMode is the mode indicator shown by the overlay renderer.
type OverlayMode string

const (
	OverlayHidden    OverlayMode = ""
	OverlayDictation OverlayMode = "dictation"
	OverlayCommand   OverlayMode = "command"
	OverlayRewrite   OverlayMode = "rewrite"
	OverlayWrite     OverlayMode = "write"
)

// View is a top-level surface of the application window.
type View string

const (
	ViewWelcome  View = "welcome"
	ViewCommand  View = "command"
	ViewRewrite  View = "rewrite"
	ViewHistory  View = "history"
	ViewSettings View = "settings"
)

// IsModeView reports whether the view belongs to a voice mode and should be
// left when the user presses Escape.
func (v View) IsModeView() bool {
	return v == ViewCommand || v == ViewRewrite
}

// ParseView validates a view name received over the wire.
func ParseView(s string) (View, error) {
	switch v := View(s); v {
	case ViewWelcome, ViewCommand, ViewRewrite, ViewHistory, ViewSettings:
		return v, nil
	}
	return "", fmt.Errorf("%w: view %q", ErrInvalidInput, s)
}

// AppContext identifies the application that was frontmost when a session
// started. It is captured once and never refreshed during the session.
type AppContext struct {
	Name        string `json:"name,omitempty"`
	BundleID    string `json:"bundle_id,omitempty"`
	WindowTitle string `json:"window_title,omitempty"`
}

// IsZero reports whether no application information was captured.
func (a AppContext) IsZero() bool {
	return a.Name == "" && a.BundleID == "" && a.WindowTitle == ""
}
