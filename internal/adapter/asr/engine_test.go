package asr

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicekey/internal/domain"
	"voicekey/internal/infra/config"
)

func shellEngine(t *testing.T, script string, mutate func(*config.ASRConfig)) *Engine {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	cfg := config.ASRConfig{
		Command:     "sh",
		Args:        []string{"-c", script},
		StopTimeout: 5 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewEngine(cfg, slog.Default())
}

func TestStartStopReturnsTranscript(t *testing.T) {
	e := shellEngine(t, `cat >/dev/null; printf '  hello world \n'`, nil)
	ctx := context.Background()

	require.NoError(t, e.Start(ctx))
	assert.True(t, e.IsRunning())

	text, err := e.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
	assert.False(t, e.IsRunning())
}

func TestStartTwiceRejected(t *testing.T) {
	e := shellEngine(t, `cat >/dev/null`, nil)
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	assert.ErrorIs(t, e.Start(ctx), domain.ErrSessionActive)
	_, err := e.Stop(ctx)
	require.NoError(t, err)
}

func TestStopWhenIdle(t *testing.T) {
	e := shellEngine(t, `true`, nil)
	_, err := e.Stop(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionIdle)
}

func TestStartWithoutCommand(t *testing.T) {
	e := NewEngine(config.ASRConfig{}, slog.Default())
	assert.ErrorIs(t, e.Start(context.Background()), domain.ErrModelNotReady)
}

func TestStartMissingBinary(t *testing.T) {
	e := NewEngine(config.ASRConfig{Command: "voicekey-no-such-recorder"}, slog.Default())
	assert.ErrorIs(t, e.Start(context.Background()), domain.ErrModelNotReady)
	assert.False(t, e.IsRunning())
}

func TestRecorderFailureIncludesStderr(t *testing.T) {
	e := shellEngine(t, `cat >/dev/null; echo "mic unavailable" >&2; exit 3`, nil)
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))

	_, err := e.Stop(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mic unavailable")
	assert.False(t, e.IsRunning())
}

func TestEnvPassedToRecorder(t *testing.T) {
	e := shellEngine(t, `cat >/dev/null; printf '%s' "$VK_LANG"`, func(c *config.ASRConfig) {
		c.Env = map[string]string{"VK_LANG": "en"}
	})
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	text, err := e.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "en", text)
}

func TestDiscardDuringStop(t *testing.T) {
	// ignores stdin, so Stop blocks until the process is killed
	e := shellEngine(t, `exec sleep 30`, nil)
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))

	errc := make(chan error, 1)
	go func() {
		_, err := e.Stop(ctx)
		errc <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, e.StopWithoutTranscription(ctx))
	assert.False(t, e.IsRunning())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, domain.ErrTranscriptionDiscarded)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after discard")
	}
}

func TestStopWithoutTranscriptionIdle(t *testing.T) {
	e := shellEngine(t, `true`, nil)
	assert.NoError(t, e.StopWithoutTranscription(context.Background()))
}

func TestStopTimeout(t *testing.T) {
	e := shellEngine(t, `exec sleep 30`, func(c *config.ASRConfig) { c.StopTimeout = 100 * time.Millisecond })
	ctx := context.Background()
	require.NoError(t, e.Start(ctx))

	_, err := e.Stop(ctx)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.False(t, e.IsRunning())
}

func TestEnsureModelReady(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     config.ASRConfig
		wantErr bool
	}{
		{"binary on path", config.ASRConfig{Command: "sh"}, false},
		{"binary missing", config.ASRConfig{Command: "voicekey-no-such-recorder"}, true},
		{"no command", config.ASRConfig{}, true},
		{"warmup ok", config.ASRConfig{WarmupCommand: "sh", WarmupArgs: []string{"-c", "exit 0"}}, false},
		{"warmup fails", config.ASRConfig{WarmupCommand: "sh", WarmupArgs: []string{"-c", "echo model missing; exit 1"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewEngine(tt.cfg, slog.Default()).EnsureModelReady(ctx)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrModelNotReady)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(8)
	_, _ = b.Write([]byte("hello "))
	assert.False(t, b.Truncated())
	_, _ = b.Write([]byte("world!"))
	assert.Equal(t, "o world!", b.String())
	assert.True(t, b.Truncated())
}

func TestTail(t *testing.T) {
	assert.Equal(t, "short", tail([]byte(" short \n"), 10))
	assert.True(t, strings.HasPrefix(tail([]byte(strings.Repeat("x", 20)), 5), "…"))
}
