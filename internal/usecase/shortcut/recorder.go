// Package shortcut turns raw key events into chord recordings, Escape
// cancellation and global hotkey requests.
package shortcut

import "voicekey/internal/domain"

// OutcomeKind is the result class of one observed event.
type OutcomeKind int

const (
	// Pending means the recorder needs more input.
	Pending OutcomeKind = iota
	// Committed means a chord was recorded.
	Committed
	// Cancelled means the user pressed Escape.
	Cancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case Committed:
		return "committed"
	case Cancelled:
		return "cancelled"
	}
	return "pending"
}

// Outcome is returned by Recorder.Observe. Chord is set only when Kind is
// Committed.
type Outcome struct {
	Kind  OutcomeKind
	Chord domain.Chord
}

// Recorder builds a chord from the events seen while recording is armed.
// A modifier-only chord is committed when all modifiers are released
// without a key-down in between. Recorder is not safe for concurrent use.
type Recorder struct {
	pendingModifiers    domain.ModifierSet
	pendingKeyCode      uint16
	hasPendingKeyCode   bool
	pendingModifierOnly bool
}

// Observe feeds one event to the recorder.
func (r *Recorder) Observe(ev domain.KeyEvent) Outcome {
	switch ev.Kind {
	case domain.KeyDown:
		if ev.KeyCode == domain.KeyEscape {
			r.Reset()
			return Outcome{Kind: Cancelled}
		}
		chord := domain.Chord{
			KeyCode:   ev.KeyCode,
			Modifiers: r.pendingModifiers | ev.Modifiers.Relevant(),
		}
		r.Reset()
		return Outcome{Kind: Committed, Chord: chord}

	case domain.FlagsChanged:
		mods := ev.Modifiers.Relevant()
		if !mods.Empty() {
			r.pendingKeyCode = r.canonicalKeyCode(ev.KeyCode, mods)
			r.hasPendingKeyCode = true
			r.pendingModifiers = mods
			r.pendingModifierOnly = true
			return Outcome{Kind: Pending}
		}
		if r.pendingModifierOnly && r.hasPendingKeyCode {
			chord := domain.Chord{KeyCode: r.pendingKeyCode}
			r.Reset()
			return Outcome{Kind: Committed, Chord: chord}
		}
		return Outcome{Kind: Pending}
	}
	return Outcome{Kind: Pending}
}

// canonicalKeyCode picks the key code that identifies the held modifiers:
// the changed key if it is a held modifier, else the previous pending key if
// still held, else the left variant of the first held modifier.
func (r *Recorder) canonicalKeyCode(code uint16, held domain.ModifierSet) uint16 {
	if m, ok := domain.ModifierForKey(code); ok && held.Has(m) {
		return code
	}
	if r.hasPendingKeyCode {
		if m, ok := domain.ModifierForKey(r.pendingKeyCode); ok && held.Has(m) {
			return r.pendingKeyCode
		}
	}
	for _, m := range []domain.Modifier{
		domain.ModFunction, domain.ModCommand, domain.ModOption, domain.ModControl, domain.ModShift,
	} {
		if held.Has(m) {
			return domain.CanonicalModifierKey(m)
		}
	}
	return code
}

// Reset clears all pending state.
func (r *Recorder) Reset() {
	*r = Recorder{}
}

// PendingModifiers returns the modifiers currently held during recording.
func (r *Recorder) PendingModifiers() domain.ModifierSet { return r.pendingModifiers }

// PendingKeyCode returns the canonical key code of the held modifiers.
func (r *Recorder) PendingKeyCode() (uint16, bool) { return r.pendingKeyCode, r.hasPendingKeyCode }

// PendingModifierOnly reports whether only modifiers have been seen so far.
func (r *Recorder) PendingModifierOnly() bool { return r.pendingModifierOnly }
