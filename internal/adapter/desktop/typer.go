package desktop

import (
	"context"
	"log/slog"
	"time"

	"voicekey/internal/domain"
)

// PasteTyper implements domain.TextTyper by pasting: it puts the text on the
// clipboard, sends the paste shortcut, then restores the previous clipboard.
type PasteTyper struct {
	clipboard domain.Clipboard
	keys      Keyboard
	delay     time.Duration
	logger    *slog.Logger
}

var _ domain.TextTyper = (*PasteTyper)(nil)

// NewPasteTyper creates a PasteTyper. delay is how long to wait for the
// clipboard to settle around the keystroke.
func NewPasteTyper(cb domain.Clipboard, keys Keyboard, delay time.Duration, logger *slog.Logger) *PasteTyper {
	return &PasteTyper{clipboard: cb, keys: keys, delay: delay, logger: logger}
}

// TypeText implements domain.TextTyper.
func (t *PasteTyper) TypeText(ctx context.Context, text string) error {
	const op = "desktop.TypeText"
	if text == "" {
		return nil
	}

	orig, readErr := t.clipboard.ReadText()
	if err := t.clipboard.WriteText(text); err != nil {
		return domain.NewDomainError(op, domain.ErrTypingFailed, err.Error())
	}
	if err := sleep(ctx, t.delay); err != nil {
		return domain.WrapOp(op, err)
	}
	if err := t.keys.Shortcut(KeyPaste); err != nil {
		return domain.NewDomainError(op, domain.ErrTypingFailed, err.Error())
	}

	// The target app reads the clipboard asynchronously.
	if err := sleep(ctx, t.delay); err != nil {
		return nil
	}
	if readErr == nil {
		if err := t.clipboard.WriteText(orig); err != nil {
			t.logger.Debug("restore clipboard failed", "error", err)
		}
	}
	return nil
}
