package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Modifier is a single modifier-key flag.
type Modifier uint16

// ModifierSet is a bitset of Modifier flags.
type ModifierSet uint16

const (
	ModFunction Modifier = 1 << iota
	ModCommand
	ModOption
	ModControl
	ModShift

	// Reported by event taps but never part of a chord.
	ModCapsLock
	ModNumericPad
)

// relevantMask selects the modifiers that take part in chord equality.
const relevantMask = ModifierSet(ModFunction | ModCommand | ModOption | ModControl | ModShift)

// modifierOrder is the canonical display and derivation order.
var modifierOrder = []struct {
	mod  Modifier
	name string
}{
	{ModFunction, "fn"},
	{ModControl, "control"},
	{ModOption, "option"},
	{ModShift, "shift"},
	{ModCommand, "command"},
}

// Mods builds a ModifierSet from individual flags.
func Mods(mods ...Modifier) ModifierSet {
	var s ModifierSet
	for _, m := range mods {
		s |= ModifierSet(m)
	}
	return s
}

// Has reports whether m is present in the set.
func (s ModifierSet) Has(m Modifier) bool { return s&ModifierSet(m) != 0 }

// With returns a copy of the set with m added.
func (s ModifierSet) With(m Modifier) ModifierSet { return s | ModifierSet(m) }

// Relevant strips flags that never participate in chord matching.
func (s ModifierSet) Relevant() ModifierSet { return s & relevantMask }

// Empty reports whether no relevant modifier is held.
func (s ModifierSet) Empty() bool { return s.Relevant() == 0 }

// String renders the relevant modifiers as "control+shift".
func (s ModifierSet) String() string {
	var parts []string
	for _, m := range modifierOrder {
		if s.Has(m.mod) {
			parts = append(parts, m.name)
		}
	}
	return strings.Join(parts, "+")
}

// MarshalText implements encoding.TextMarshaler.
func (s ModifierSet) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ModifierSet) UnmarshalText(b []byte) error {
	parsed, err := ParseModifiers(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseModifiers parses a "+"-separated modifier list. Aliases such as "cmd",
// "alt", "ctrl" and "function" are accepted.
func ParseModifiers(s string) (ModifierSet, error) {
	var set ModifierSet
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	for _, part := range strings.Split(s, "+") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "fn", "function":
			set = set.With(ModFunction)
		case "command", "cmd":
			set = set.With(ModCommand)
		case "option", "opt", "alt":
			set = set.With(ModOption)
		case "control", "ctrl":
			set = set.With(ModControl)
		case "shift":
			set = set.With(ModShift)
		default:
			return 0, fmt.Errorf("%w: unknown modifier %q", ErrInvalidInput, part)
		}
	}
	return set, nil
}

// Virtual key codes (macOS table) used by the chord logic.
const (
	KeyEscape       uint16 = 53
	KeyRightCommand uint16 = 54
	KeyLeftCommand  uint16 = 55
	KeyLeftShift    uint16 = 56
	KeyCapsLock     uint16 = 57
	KeyLeftOption   uint16 = 58
	KeyLeftControl  uint16 = 59
	KeyRightShift   uint16 = 60
	KeyRightOption  uint16 = 61
	KeyRightControl uint16 = 62
	KeyFunction     uint16 = 63
	KeySpace        uint16 = 49
)

var modifierKeys = map[uint16]Modifier{
	KeyRightCommand: ModCommand,
	KeyLeftCommand:  ModCommand,
	KeyLeftShift:    ModShift,
	KeyRightShift:   ModShift,
	KeyLeftOption:   ModOption,
	KeyRightOption:  ModOption,
	KeyLeftControl:  ModControl,
	KeyRightControl: ModControl,
	KeyFunction:     ModFunction,
}

var modifierKeyNames = map[uint16]string{
	KeyRightCommand: "right command",
	KeyLeftCommand:  "left command",
	KeyLeftShift:    "left shift",
	KeyRightShift:   "right shift",
	KeyLeftOption:   "left option",
	KeyRightOption:  "right option",
	KeyLeftControl:  "left control",
	KeyRightControl: "right control",
	KeyFunction:     "fn",
}

// ModifierForKey returns the modifier flag produced by a physical modifier key.
func ModifierForKey(code uint16) (Modifier, bool) {
	m, ok := modifierKeys[code]
	return m, ok
}

// CanonicalModifierKey returns the key code used for a modifier when the
// physical key is unknown. Left variants are preferred.
func CanonicalModifierKey(m Modifier) uint16 {
	switch m {
	case ModFunction:
		return KeyFunction
	case ModCommand:
		return KeyLeftCommand
	case ModOption:
		return KeyLeftOption
	case ModControl:
		return KeyLeftControl
	case ModShift:
		return KeyLeftShift
	}
	return 0
}

// Chord is a key code plus the modifiers that must be held with it.
// A chord with no modifiers is a bare-key chord; when its key code is a
// modifier key it is satisfied by tapping that modifier alone.
type Chord struct {
	KeyCode   uint16      `yaml:"key_code" json:"key_code"`
	Modifiers ModifierSet `yaml:"modifiers,omitempty" json:"modifiers,omitempty"`
}

// IsZero reports whether the chord is unset.
func (c Chord) IsZero() bool { return c.KeyCode == 0 && c.Modifiers.Relevant() == 0 }

// IsBare reports whether the chord has no modifiers.
func (c Chord) IsBare() bool { return c.Modifiers.Empty() }

// IsModifierOnly reports whether the chord is a tap of a single modifier key.
func (c Chord) IsModifierOnly() bool {
	_, ok := modifierKeys[c.KeyCode]
	return ok && c.IsBare()
}

// Equal compares key code and the relevant modifier subset.
func (c Chord) Equal(o Chord) bool {
	return c.KeyCode == o.KeyCode && c.Modifiers.Relevant() == o.Modifiers.Relevant()
}

// Matches reports whether ev triggers the chord. Key-down events must match
// exactly; flags-changed events only match bare chords on the same key, so
// pressing an unrelated key with no modifiers held never matches a modifier
// chord.
func (c Chord) Matches(ev KeyEvent) bool {
	if c.IsZero() {
		return false
	}
	switch ev.Kind {
	case KeyDown:
		return ev.KeyCode == c.KeyCode && ev.Modifiers.Relevant() == c.Modifiers.Relevant()
	case FlagsChanged:
		return c.IsBare() && ev.KeyCode == c.KeyCode
	default:
		return false
	}
}

// String renders the chord for logs and settings, e.g. "command+shift+49"
// or "right option".
func (c Chord) String() string {
	if c.IsModifierOnly() {
		return modifierKeyNames[c.KeyCode]
	}
	key := strconv.Itoa(int(c.KeyCode))
	if mods := c.Modifiers.String(); mods != "" {
		return mods + "+" + key
	}
	return key
}

// ParseChord parses the text form produced by String ("option+49", "61").
func ParseChord(s string) (Chord, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Chord{}, fmt.Errorf("%w: empty chord", ErrInvalidInput)
	}
	for code, name := range modifierKeyNames {
		if strings.EqualFold(s, name) {
			return Chord{KeyCode: code}, nil
		}
	}
	idx := strings.LastIndex(s, "+")
	keyPart, modPart := s, ""
	if idx >= 0 {
		keyPart, modPart = s[idx+1:], s[:idx]
	}
	code, err := strconv.ParseUint(strings.TrimSpace(keyPart), 10, 16)
	if err != nil {
		return Chord{}, fmt.Errorf("%w: chord key %q", ErrInvalidInput, keyPart)
	}
	mods, err := ParseModifiers(modPart)
	if err != nil {
		return Chord{}, err
	}
	return Chord{KeyCode: uint16(code), Modifiers: mods}, nil
}
