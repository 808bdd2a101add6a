// Package focus tracks the frontmost application as reported by the
// event-tap helper.
package focus

import (
	"context"
	"strings"
	"sync"

	"voicekey/internal/domain"
)

// Tracker implements domain.FocusProvider.
type Tracker struct {
	ownBundleID string
	bus         domain.EventBus

	mu  sync.RWMutex
	app domain.AppContext
}

var _ domain.FocusProvider = (*Tracker)(nil)

// NewTracker creates a Tracker. ownBundleID identifies this app's windows;
// bus may be nil.
func NewTracker(ownBundleID string, bus domain.EventBus) *Tracker {
	return &Tracker{ownBundleID: ownBundleID, bus: bus}
}

// Update records app as frontmost and publishes focus.changed when it
// differs from the previous one.
func (t *Tracker) Update(ctx context.Context, app domain.AppContext) {
	t.mu.Lock()
	changed := t.app != app
	t.app = app
	t.mu.Unlock()

	if changed && t.bus != nil {
		t.bus.Publish(ctx, domain.NewEvent(domain.EventFocusChanged, app))
	}
}

// Frontmost implements domain.FocusProvider.
func (t *Tracker) Frontmost() domain.AppContext {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.app
}

// IsOwnAppFocused implements domain.FocusProvider.
func (t *Tracker) IsOwnAppFocused() bool {
	if t.ownBundleID == "" {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return strings.EqualFold(t.app.BundleID, t.ownBundleID)
}
