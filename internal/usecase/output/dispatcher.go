// Package output delivers finished text to where the user expects it.
package output

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"voicekey/internal/domain"
)

// previewLen bounds the text echoed in output.delivered events.
const previewLen = 80

// Output is one finished result.
type Output struct {
	Text string
	Raw  string
	Mode domain.RecordingMode
	App  domain.AppContext
}

// Delivery reports which channels received the text.
type Delivery struct {
	Typed  bool
	Copied bool
	Stored bool
	InApp  bool
}

// Dispatcher decides between typing, clipboard and history. Output settings
// are read on every dispatch.
type Dispatcher struct {
	settings  domain.SettingsStore
	focus     domain.FocusProvider
	typer     domain.TextTyper
	clipboard domain.Clipboard
	history   domain.HistoryStore
	overlay   domain.Overlay
	bus       domain.EventBus
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher. history may be nil.
func NewDispatcher(
	settings domain.SettingsStore,
	focus domain.FocusProvider,
	typer domain.TextTyper,
	clipboard domain.Clipboard,
	history domain.HistoryStore,
	overlay domain.Overlay,
	bus domain.EventBus,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		settings:  settings,
		focus:     focus,
		typer:     typer,
		clipboard: clipboard,
		history:   history,
		overlay:   overlay,
		bus:       bus,
		logger:    logger,
	}
}

// Dispatch delivers out. Command answers go to the expanded overlay. When
// this app has focus the text is handed to the renderer. Otherwise it is
// typed into the focused app, copied to the clipboard when enabled or when
// typing failed, and appended to history.
func (d *Dispatcher) Dispatch(ctx context.Context, out Output) Delivery {
	prefs := domain.DefaultSettings().Output
	if s, err := d.settings.Load(ctx); err != nil {
		d.logger.Warn("load settings for output failed, using defaults", "error", err)
	} else {
		prefs = s.Output
	}

	var del Delivery
	switch {
	case out.Mode == domain.ModeCommand:
		d.overlay.ExpandCommandOutput(out.Text)
		del.InApp = true
	case d.focus.IsOwnAppFocused():
		d.publish(ctx, domain.EventOutputInApp, domain.TextPayload{Mode: out.Mode, Text: out.Text})
		del.InApp = true
	default:
		if prefs.TypeIntoApp {
			if err := d.typer.TypeText(ctx, out.Text); err != nil {
				d.logger.Warn("typing into focused app failed", "app", out.App.Name, "error", err)
			} else {
				del.Typed = true
			}
		}
		if prefs.CopyToClipboard || !del.Typed {
			if err := d.clipboard.WriteText(out.Text); err != nil {
				d.logger.Warn("clipboard write failed", "error", err)
			} else {
				del.Copied = true
			}
		}
	}

	if prefs.SaveHistory && d.history != nil {
		del.Stored = d.store(ctx, out)
	}

	d.logger.Debug("output delivered",
		"mode", string(out.Mode), "typed", del.Typed, "copied", del.Copied,
		"stored", del.Stored, "in_app", del.InApp)
	d.publish(ctx, domain.EventOutputDelivered, domain.DeliveryPayload{
		Mode:    out.Mode,
		Typed:   del.Typed,
		Copied:  del.Copied,
		Stored:  del.Stored,
		InApp:   del.InApp,
		Preview: preview(out.Text),
	})
	return del
}

func (d *Dispatcher) store(ctx context.Context, out Output) bool {
	now := time.Now()
	entry := domain.HistoryEntry{
		ID:        generateULID(now),
		CreatedAt: now,
		Mode:      out.Mode,
		App:       out.App,
		RawText:   out.Raw,
		FinalText: out.Text,
	}
	if err := d.history.Append(ctx, entry); err != nil {
		d.logger.Warn("history append failed", "error", domain.WrapOp("Dispatcher.store", err))
		return false
	}
	return true
}

func (d *Dispatcher) publish(ctx context.Context, t domain.EventType, payload any) {
	if d.bus != nil {
		d.bus.Publish(ctx, domain.NewEvent(t, payload))
	}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen]) + "…"
}

func generateULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
