// Package rewrite rewrites the selected text of the focused application by
// spoken instruction, or composes new text when nothing is selected.
package rewrite

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"voicekey/internal/domain"
)

const rewriteTemperature = 0.3

const rewritePrompt = `You rewrite text according to a spoken instruction.
The user message contains the instruction and the original text. Apply the instruction to the original text and return only the rewritten text, with no preamble, quotes or explanation.
Keep the original language and formatting unless the instruction says otherwise.`

const writePrompt = `You write text from a spoken instruction, for example "draft a polite reply declining the meeting".
Return only the text to insert, with no preamble, quotes or explanation.`

// SelectionReader reads the current selection of the focused application.
type SelectionReader interface {
	SelectedText(ctx context.Context) (string, error)
}

// Service implements domain.RewriteService. It holds the state of one
// rewrite session at a time.
type Service struct {
	mu        sync.Mutex
	original  string
	rewritten string
	writeMode bool

	selection SelectionReader
	settings  domain.SettingsStore
	llm       domain.ChatCompleter
	logger    *slog.Logger
}

var _ domain.RewriteService = (*Service)(nil)

// NewService creates a rewrite Service.
func NewService(selection SelectionReader, settings domain.SettingsStore, llm domain.ChatCompleter, logger *slog.Logger) *Service {
	return &Service{selection: selection, settings: settings, llm: llm, logger: logger}
}

// CaptureSelectedText stores the current selection as the text to rewrite.
// It reports false when nothing is selected.
func (s *Service) CaptureSelectedText(ctx context.Context) bool {
	text, err := s.selection.SelectedText(ctx)
	if err != nil {
		s.logger.Debug("read selection failed", "error", err)
		return false
	}
	if strings.TrimSpace(text) == "" {
		return false
	}
	s.mu.Lock()
	s.original, s.rewritten, s.writeMode = text, "", false
	s.mu.Unlock()
	return true
}

// StartWithoutSelection switches to write mode.
func (s *Service) StartWithoutSelection() {
	s.mu.Lock()
	s.original, s.rewritten, s.writeMode = "", "", true
	s.mu.Unlock()
}

// ProcessRewriteRequest applies instruction to the captured text, or
// composes new text in write mode. The result is available from
// RewrittenText.
func (s *Service) ProcessRewriteRequest(ctx context.Context, instruction string) error {
	const op = "rewrite.process"

	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return domain.NewDomainError(op, domain.ErrInvalidInput, "empty instruction")
	}

	s.mu.Lock()
	original, writeMode := s.original, s.writeMode
	s.mu.Unlock()
	if original == "" && !writeMode {
		return domain.NewDomainError(op, domain.ErrNoSelection, "")
	}

	st, err := s.settings.Load(ctx)
	if err != nil {
		return domain.WrapOp(op, err)
	}
	cfg, err := st.ActiveProviderConfig()
	if err != nil {
		return err
	}
	if err := cfg.CheckCredentials(); err != nil {
		return err
	}

	req := domain.ChatRequest{
		Model:  cfg.Model,
		Stream: cfg.Streaming,
		Extra:  cfg.Extra,
	}
	if writeMode {
		req.Messages = []domain.Message{
			{Role: domain.RoleSystem, Content: writePrompt},
			{Role: domain.RoleUser, Content: instruction},
		}
	} else {
		req.Messages = []domain.Message{
			{Role: domain.RoleSystem, Content: rewritePrompt},
			{Role: domain.RoleUser, Content: "Instruction: " + instruction + "\n\nOriginal text:\n" + original},
		}
	}
	if !domain.IsReasoningModel(cfg.Model) {
		req.Temperature = domain.Temperature(rewriteTemperature)
	}

	text, err := s.llm.Complete(ctx, cfg, req)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" || text == domain.NoContent {
		return domain.NewDomainError(op, domain.ErrProviderError, "empty response")
	}

	s.mu.Lock()
	s.rewritten = text
	s.mu.Unlock()
	s.logger.Debug("rewrite done", "write_mode", writeMode, "model", cfg.Model, "len", len(text))
	return nil
}

// ClearState forgets the current session.
func (s *Service) ClearState() {
	s.mu.Lock()
	s.original, s.rewritten, s.writeMode = "", "", false
	s.mu.Unlock()
}

// OriginalText returns the captured selection.
func (s *Service) OriginalText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.original
}

// RewrittenText returns the result of the last ProcessRewriteRequest.
func (s *Service) RewrittenText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rewritten
}

// IsWriteMode reports whether the session composes new text.
func (s *Service) IsWriteMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeMode
}
