package desktop

import (
	"context"
	"time"

	"github.com/atotto/clipboard"

	"voicekey/internal/domain"
)

// SystemClipboard implements domain.Clipboard on the OS pasteboard.
type SystemClipboard struct{}

var _ domain.Clipboard = SystemClipboard{}

// WriteText implements domain.Clipboard.
func (SystemClipboard) WriteText(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return domain.NewDomainError("clipboard.Write", domain.ErrClipboard, err.Error())
	}
	return nil
}

// ReadText implements domain.Clipboard.
func (SystemClipboard) ReadText() (string, error) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", domain.NewDomainError("clipboard.Read", domain.ErrClipboard, err.Error())
	}
	return text, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
