// Package asr runs an external recorder/transcriber process as the speech
// recognition engine.
//
// The process records while it runs. Closing its stdin asks it to finish;
// it then prints the transcript on stdout and exits. Killing it discards the
// recording.
package asr

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voicekey/internal/domain"
	"voicekey/internal/infra/config"
)

const (
	maxTranscript = 1024 * 1024
	maxStderr     = 8 * 1024

	// waitDelay bounds how long Wait waits for output pipes held open by
	// children of a killed process.
	waitDelay = 2 * time.Second
)

// run is one recorder process.
type run struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *tailBuffer
	stderr    *tailBuffer
	done      chan struct{}
	waitErr   error
	discarded atomic.Bool
}

// Engine implements domain.ASREngine. At most one process runs at a time.
type Engine struct {
	cfg    config.ASRConfig
	logger *slog.Logger

	mu  sync.Mutex
	cur *run
}

var _ domain.ASREngine = (*Engine)(nil)

// NewEngine creates an Engine.
func NewEngine(cfg config.ASRConfig, logger *slog.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger.With("component", "asr")}
}

// Start launches the recorder. The process is not tied to ctx; it lives
// until Stop or StopWithoutTranscription.
func (e *Engine) Start(_ context.Context) error {
	const op = "asr.Start"

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur != nil {
		return domain.NewDomainError(op, domain.ErrSessionActive, "recorder already running")
	}
	if e.cfg.Command == "" {
		return domain.NewDomainError(op, domain.ErrModelNotReady, "asr.command is not configured")
	}

	cmd := exec.Command(e.cfg.Command, e.cfg.Args...)
	cmd.Env = mergeEnv(e.cfg.Env)
	cmd.WaitDelay = waitDelay

	r := &run{
		cmd:    cmd,
		stdout: newTailBuffer(maxTranscript),
		stderr: newTailBuffer(maxStderr),
		done:   make(chan struct{}),
	}
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%s: stdin pipe: %w", op, err)
	}
	r.stdin = stdin

	if err := cmd.Start(); err != nil {
		return domain.NewDomainError(op, domain.ErrModelNotReady, err.Error())
	}

	go func() {
		r.waitErr = cmd.Wait()
		close(r.done)
	}()

	e.cur = r
	e.logger.Debug("recorder started", "pid", cmd.Process.Pid, "command", e.cfg.Command)
	return nil
}

// Stop asks the recorder to finish and returns the trimmed transcript. A
// concurrent StopWithoutTranscription makes it return
// domain.ErrTranscriptionDiscarded.
func (e *Engine) Stop(ctx context.Context) (string, error) {
	const op = "asr.Stop"

	e.mu.Lock()
	r := e.cur
	e.mu.Unlock()
	if r == nil {
		return "", domain.NewDomainError(op, domain.ErrSessionIdle, "recorder not running")
	}

	if err := r.stdin.Close(); err != nil {
		e.logger.Debug("close recorder stdin", "error", err)
	}

	timeout := e.cfg.StopTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-r.done:
	case <-ctx.Done():
		e.kill(r)
		return "", domain.WrapOp(op, ctx.Err())
	case <-timer.C:
		e.kill(r)
		return "", domain.NewDomainError(op, domain.ErrTimeout, fmt.Sprintf("no transcript after %s", timeout))
	}

	e.release(r)

	if r.discarded.Load() {
		return "", domain.ErrTranscriptionDiscarded
	}
	if r.waitErr != nil {
		return "", fmt.Errorf("%s: recorder failed: %w: %s", op, r.waitErr, strings.TrimSpace(r.stderr.String()))
	}
	if r.stdout.Truncated() {
		e.logger.Warn("transcript truncated", "max_bytes", maxTranscript)
	}
	return strings.TrimSpace(r.stdout.String()), nil
}

// StopWithoutTranscription kills the recorder. It is a no-op when nothing
// is running.
func (e *Engine) StopWithoutTranscription(ctx context.Context) error {
	e.mu.Lock()
	r := e.cur
	e.cur = nil
	e.mu.Unlock()
	if r == nil {
		return nil
	}

	r.discarded.Store(true)
	e.kill(r)

	select {
	case <-r.done:
	case <-ctx.Done():
		return domain.WrapOp("asr.StopWithoutTranscription", ctx.Err())
	}
	e.logger.Debug("recording discarded")
	return nil
}

// EnsureModelReady runs the warm-up command when one is configured, and
// otherwise checks that the recorder binary can be found.
func (e *Engine) EnsureModelReady(ctx context.Context) error {
	const op = "asr.EnsureModelReady"

	if e.cfg.WarmupCommand != "" {
		cmd := exec.CommandContext(ctx, e.cfg.WarmupCommand, e.cfg.WarmupArgs...)
		cmd.Env = mergeEnv(e.cfg.Env)
		out, err := cmd.CombinedOutput()
		if err != nil {
			return domain.NewDomainError(op, domain.ErrModelNotReady, fmt.Sprintf("%v: %s", err, tail(out, 512)))
		}
		return nil
	}
	if e.cfg.Command == "" {
		return domain.NewDomainError(op, domain.ErrModelNotReady, "asr.command is not configured")
	}
	if _, err := exec.LookPath(e.cfg.Command); err != nil {
		return domain.NewDomainError(op, domain.ErrModelNotReady, err.Error())
	}
	return nil
}

// IsRunning reports whether a recorder process is live.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur != nil
}

func (e *Engine) kill(r *run) {
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	e.release(r)
}

func (e *Engine) release(r *run) {
	e.mu.Lock()
	if e.cur == r {
		e.cur = nil
	}
	e.mu.Unlock()
}

func mergeEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return "…" + s[len(s)-n:]
	}
	return s
}
