// Package postprocess turns a raw transcript into the text that is
// delivered: AI cleanup for dictation, delegation for command and rewrite.
package postprocess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"voicekey/internal/domain"
	"voicekey/internal/infra/tracer"
)

// cleanupTemperature biases non-reasoning models toward deterministic edits.
const cleanupTemperature = 0.2

// Request is one transcript to post-process.
type Request struct {
	Raw  string
	Mode domain.RecordingMode
	App  domain.AppContext
	// FollowUp continues the current command chat instead of opening a new
	// exchange. Set when the command output is already expanded.
	FollowUp bool
}

// Result is the final text. Failures are reported in-band as
// "Error: <description>" text; Err keeps the cause for logging.
type Result struct {
	Text   string
	Err    error
	UsedAI bool
}

// Pipeline decides how a transcript is processed. Provider settings are read
// from the store on every call.
type Pipeline struct {
	settings domain.SettingsStore
	llm      domain.ChatCompleter
	commands domain.CommandService
	rewrite  domain.RewriteService
	logger   *slog.Logger
}

// New creates a Pipeline.
func New(
	settings domain.SettingsStore,
	llm domain.ChatCompleter,
	commands domain.CommandService,
	rewrite domain.RewriteService,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{settings: settings, llm: llm, commands: commands, rewrite: rewrite, logger: logger}
}

// Process runs the pipeline for one transcript. It never retries.
func (p *Pipeline) Process(ctx context.Context, req Request) Result {
	ctx, span := tracer.StartSpan(ctx, "postprocess.process",
		trace.WithAttributes(
			tracer.StringAttr("mode", string(req.Mode)),
			tracer.IntAttr("raw_len", len(req.Raw)),
		),
	)
	defer span.End()

	var res Result
	switch req.Mode {
	case domain.ModeCommand:
		res = p.command(ctx, req)
	case domain.ModeRewrite:
		res = p.rewriteText(ctx, req)
	case domain.ModeDictation:
		res = p.cleanup(ctx, req)
	default:
		res = errorResult(domain.NewDomainError("Pipeline.Process", domain.ErrInvalidInput, fmt.Sprintf("mode %q", req.Mode)))
	}

	if res.Err != nil {
		tracer.RecordError(span, res.Err)
		p.logger.Warn("post-processing failed", "mode", string(req.Mode), "error", res.Err)
	} else {
		tracer.SetOK(span)
	}
	return res
}

func (p *Pipeline) command(ctx context.Context, req Request) Result {
	var (
		text string
		err  error
	)
	if req.FollowUp {
		text, err = p.commands.ProcessFollowUpCommand(ctx, req.Raw)
	} else {
		text, err = p.commands.ProcessUserCommand(ctx, req.Raw)
	}
	if err != nil {
		return errorResult(err)
	}
	return Result{Text: text, UsedAI: true}
}

func (p *Pipeline) rewriteText(ctx context.Context, req Request) Result {
	if err := p.rewrite.ProcessRewriteRequest(ctx, req.Raw); err != nil {
		return errorResult(err)
	}
	return Result{Text: p.rewrite.RewrittenText(), UsedAI: true}
}

func (p *Pipeline) cleanup(ctx context.Context, req Request) Result {
	s, err := p.settings.Load(ctx)
	if err != nil {
		return errorResult(err)
	}
	if !s.AI.CleanupEnabled {
		return Result{Text: req.Raw}
	}

	cfg, err := s.ActiveProviderConfig()
	if err != nil {
		return errorResult(err)
	}
	if err := cfg.CheckCredentials(); err != nil {
		return errorResult(err)
	}

	chatReq := domain.ChatRequest{
		Model: cfg.Model,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: buildCleanupPrompt(req.App)},
			{Role: domain.RoleUser, Content: req.Raw},
		},
		Stream: cfg.Streaming,
		Extra:  cfg.Extra,
	}
	if !domain.IsReasoningModel(cfg.Model) {
		chatReq.Temperature = domain.Temperature(cleanupTemperature)
	}

	text, err := p.llm.Complete(ctx, cfg, chatReq)
	if err != nil {
		return errorResult(err)
	}
	if text == domain.NoContent || strings.TrimSpace(text) == "" {
		p.logger.Warn("cleanup returned no content, keeping transcript", "model", cfg.Model)
		return Result{Text: req.Raw}
	}
	return Result{Text: strings.TrimSpace(text), UsedAI: true}
}

func errorResult(err error) Result {
	return Result{Text: "Error: " + describe(err), Err: err}
}

// describe picks the most user-meaningful message from an error chain.
func describe(err error) string {
	var he *domain.HTTPStatusError
	if errors.As(err, &he) {
		return he.Error()
	}
	var de *domain.DomainError
	if errors.As(err, &de) && errors.Is(de.Err, domain.ErrAPIKeyMissing) {
		return "API Key not set for " + de.Detail
	}
	if errors.As(err, &de) && de.Detail != "" {
		return fmt.Sprintf("%s (%s)", de.Err, de.Detail)
	}
	return err.Error()
}
