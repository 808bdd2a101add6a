package settings

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicekey/internal/domain"
	"voicekey/internal/infra/config"
	"voicekey/internal/usecase/eventbus"
)

func newTestStore(t *testing.T, passphrase string) (*Store, <-chan domain.Event) {
	t.Helper()
	bus := eventbus.New(slog.Default())
	t.Cleanup(bus.Close)
	events := make(chan domain.Event, 8)
	bus.Subscribe(domain.EventSettingsChanged, func(_ context.Context, ev domain.Event) { events <- ev })

	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	return NewStore(path, passphrase, bus, slog.Default()), events
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	store, _ := newTestStore(t, "")
	st, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), *st)
}

func TestUpdateRoundTrip(t *testing.T) {
	store, events := newTestStore(t, "")
	ctx := context.Background()

	chord := domain.Chord{KeyCode: 2, Modifiers: domain.Mods(domain.ModCommand, domain.ModShift)}
	err := store.Update(ctx, func(s *domain.Settings) error {
		s.Shortcuts.Command = chord
		s.Shortcuts.RewriteEnabled = false
		s.AI.CleanupEnabled = true
		s.AI.ActiveProvider = domain.CustomProvider("lmstudio")
		s.AI.Providers = append(s.AI.Providers, domain.ProviderSettings{
			ID:      domain.CustomProvider("lmstudio"),
			BaseURL: "http://localhost:1234/v1",
			Model:   "qwen3-8b",
			Extra:   map[string]domain.ParamValue{"enable_thinking": domain.BoolParam(false)},
		})
		s.Output.CopyToClipboard = true
		return nil
	})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, domain.EventSettingsChanged, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("settings.changed not published")
	}

	st, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, chord.Equal(st.Shortcuts.Command))
	assert.False(t, st.Shortcuts.RewriteEnabled)
	assert.True(t, st.AI.CleanupEnabled)
	assert.Equal(t, domain.CustomProvider("lmstudio"), st.AI.ActiveProvider)
	require.Len(t, st.AI.Providers, 3)
	assert.Equal(t, domain.BoolParam(false), st.AI.Providers[2].Extra["enable_thinking"])
	assert.True(t, st.Output.CopyToClipboard)

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestUpdateFailureWritesNothing(t *testing.T) {
	store, events := newTestStore(t, "")
	boom := errors.New("rejected")
	err := store.Update(context.Background(), func(s *domain.Settings) error {
		s.Output.TypeIntoApp = false
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, statErr := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, events)
}

func TestLoadIsReadThrough(t *testing.T) {
	store, _ := newTestStore(t, "")
	ctx := context.Background()
	require.NoError(t, store.Update(ctx, func(s *domain.Settings) error { return nil }))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	edited := strings.Replace(string(data), "cleanup_enabled: false", "cleanup_enabled: true", 1)
	require.NoError(t, os.WriteFile(store.Path(), []byte(edited), 0o600))

	st, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, st.AI.CleanupEnabled)
}

func TestLoadInvalidYAML(t *testing.T) {
	store, _ := newTestStore(t, "")
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o700))
	require.NoError(t, os.WriteFile(store.Path(), []byte("shortcuts: [oops"), 0o600))

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfigLoad)
}

func TestAPIKeysEncryptedAtRest(t *testing.T) {
	store, _ := newTestStore(t, "correct horse")
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, func(s *domain.Settings) error {
		s.AI.Providers[0].APIKey = "sk-plain"
		return nil
	}))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-plain")
	assert.Contains(t, string(data), config.EncryptedPrefix)

	st, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-plain", st.AI.Providers[0].APIKey)

	// a second update keeps the key usable
	require.NoError(t, store.Update(ctx, func(s *domain.Settings) error {
		s.AI.CleanupEnabled = true
		return nil
	}))
	st, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-plain", st.AI.Providers[0].APIKey)
}

func TestEncryptedKeyWithoutPassphrase(t *testing.T) {
	enc, err := config.EncryptValue("sk-secret", "pw")
	require.NoError(t, err)

	store, _ := newTestStore(t, "")
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o700))
	content := "ai:\n  providers:\n    - id: openai\n      model: gpt-4.1-mini\n      api_key: \"enc:" + enc + "\"\n"
	require.NoError(t, os.WriteFile(store.Path(), []byte(content), 0o600))

	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrDecryption)

	withKey := NewStore(store.Path(), "pw", nil, slog.Default())
	st, err := withKey.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", st.AI.Providers[0].APIKey)

	wrongKey := NewStore(store.Path(), "nope", nil, slog.Default())
	_, err = wrongKey.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrDecryption)
}
