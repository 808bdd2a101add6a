package shortcut

import (
	"context"
	"log/slog"

	"voicekey/internal/domain"
)

// SessionCanceller stops a live session without transcribing it.
type SessionCanceller interface {
	OnCancelRequested(ctx context.Context) bool
}

// Cascade is the Escape key behaviour when no chord recording is armed.
// Every applicable step runs, in order:
//  1. collapse the expanded command output,
//  2. cancel the live recording session,
//  3. leave the command or rewrite view for the welcome view.
type Cascade struct {
	overlay domain.Overlay
	session SessionCanceller
	views   domain.ViewNavigator
	logger  *slog.Logger
}

// NewCascade creates the Escape cascade.
func NewCascade(overlay domain.Overlay, session SessionCanceller, views domain.ViewNavigator, logger *slog.Logger) *Cascade {
	return &Cascade{overlay: overlay, session: session, views: views, logger: logger}
}

// Run executes the cascade and reports whether any step fired.
func (c *Cascade) Run(ctx context.Context) bool {
	var fired []string

	if c.overlay.IsCommandOutputExpanded() {
		c.overlay.CollapseCommandOutput()
		fired = append(fired, "collapse_output")
	}
	if c.session.OnCancelRequested(ctx) {
		fired = append(fired, "cancel_session")
	}
	if c.views.CurrentView().IsModeView() {
		c.views.ShowView(domain.ViewWelcome)
		fired = append(fired, "welcome_view")
	}

	if len(fired) > 0 {
		c.logger.Debug("escape cascade", "steps", fired)
	}
	return len(fired) > 0
}
