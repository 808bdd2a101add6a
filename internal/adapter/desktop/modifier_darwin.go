//go:build darwin

package desktop

import "github.com/micmonay/keybd_event"

func setPrimaryModifier(kb *keybd_event.KeyBonding) { kb.HasSuper(true) }
