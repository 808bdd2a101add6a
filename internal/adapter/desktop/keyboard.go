// Package desktop delivers text to other applications through the system
// clipboard and synthetic paste/copy keystrokes.
package desktop

import (
	"fmt"
	"sync"

	"github.com/micmonay/keybd_event"
)

// Keys pressed together with the platform's primary modifier.
const (
	KeyPaste = keybd_event.VK_V
	KeyCopy  = keybd_event.VK_C
)

// Keyboard sends a shortcut made of the primary modifier (Command on macOS,
// Control elsewhere) and one key.
type Keyboard interface {
	Shortcut(key int) error
}

// SystemKeyboard posts key events through keybd_event.
type SystemKeyboard struct {
	mu sync.Mutex
	kb keybd_event.KeyBonding
}

// NewSystemKeyboard creates the OS key event source. On Linux this needs
// access to /dev/uinput.
func NewSystemKeyboard() (*SystemKeyboard, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("create key bonding: %w", err)
	}
	return &SystemKeyboard{kb: kb}, nil
}

// Shortcut implements Keyboard.
func (k *SystemKeyboard) Shortcut(key int) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.kb.Clear()
	setPrimaryModifier(&k.kb)
	k.kb.SetKeys(key)
	return k.kb.Launching()
}

// UnavailableKeyboard is used when no key event source could be opened.
// Every shortcut fails with Err, so delivery falls back to the clipboard.
type UnavailableKeyboard struct {
	Err error
}

// Shortcut implements Keyboard.
func (k UnavailableKeyboard) Shortcut(int) error { return k.Err }
