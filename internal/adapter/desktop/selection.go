package desktop

import (
	"context"
	"log/slog"
	"time"

	"voicekey/internal/domain"
)

// SelectionCapturer reads the selection of the focused application by
// sending the copy shortcut. The previous clipboard content is restored.
type SelectionCapturer struct {
	clipboard domain.Clipboard
	keys      Keyboard
	delay     time.Duration
	logger    *slog.Logger
}

// NewSelectionCapturer creates a SelectionCapturer. delay is how long the
// focused application gets to answer the copy shortcut.
func NewSelectionCapturer(cb domain.Clipboard, keys Keyboard, delay time.Duration, logger *slog.Logger) *SelectionCapturer {
	return &SelectionCapturer{clipboard: cb, keys: keys, delay: delay, logger: logger}
}

// SelectedText returns the current selection, or "" when nothing is
// selected.
func (s *SelectionCapturer) SelectedText(ctx context.Context) (string, error) {
	const op = "desktop.SelectedText"

	orig, readErr := s.clipboard.ReadText()
	defer func() {
		if readErr != nil {
			return
		}
		if err := s.clipboard.WriteText(orig); err != nil {
			s.logger.Debug("restore clipboard failed", "error", err)
		}
	}()

	// Clear first so an app that ignores the shortcut reads as "no selection".
	if err := s.clipboard.WriteText(""); err != nil {
		return "", domain.WrapOp(op, err)
	}
	if err := s.keys.Shortcut(KeyCopy); err != nil {
		return "", domain.WrapOp(op, err)
	}
	if err := sleep(ctx, s.delay); err != nil {
		return "", domain.WrapOp(op, err)
	}

	text, err := s.clipboard.ReadText()
	if err != nil {
		return "", domain.WrapOp(op, err)
	}
	return text, nil
}
