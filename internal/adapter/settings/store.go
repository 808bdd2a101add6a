// Package settings persists user preferences in a YAML file and reports
// changes made by this process or by other editors of the file.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"voicekey/internal/domain"
	"voicekey/internal/infra/config"
)

// Store implements domain.SettingsStore on a YAML file. Every Load reads
// the file; nothing is cached.
type Store struct {
	path       string
	passphrase string
	bus        domain.EventBus
	logger     *slog.Logger

	mu sync.Mutex // serializes Update
}

var _ domain.SettingsStore = (*Store)(nil)

// NewStore creates a Store for path. API keys stored as "enc:" values are
// decrypted with passphrase, and when passphrase is set Update encrypts
// plaintext keys before writing. bus may be nil.
func NewStore(path, passphrase string, bus domain.EventBus, logger *slog.Logger) *Store {
	return &Store{
		path:       path,
		passphrase: passphrase,
		bus:        bus,
		logger:     logger.With("component", "settings"),
	}
}

// Path returns the settings file path.
func (s *Store) Path() string { return s.path }

// Load returns the persisted settings, or the defaults when the file does
// not exist yet.
func (s *Store) Load(_ context.Context) (*domain.Settings, error) {
	st, err := s.read()
	if err != nil {
		return nil, err
	}
	if err := s.decryptKeys(st); err != nil {
		return nil, err
	}
	return st, nil
}

// Update applies fn to the current settings and writes the result. Nothing
// is written when fn fails. A successful write publishes settings.changed.
func (s *Store) Update(ctx context.Context, fn func(*domain.Settings) error) error {
	const op = "settings.Update"

	s.mu.Lock()
	st, err := s.Load(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := fn(st); err != nil {
		s.mu.Unlock()
		return domain.WrapOp(op, err)
	}
	if err := s.encryptKeys(st); err != nil {
		s.mu.Unlock()
		return err
	}
	err = s.write(st)
	s.mu.Unlock()
	if err != nil {
		return domain.WrapOp(op, err)
	}

	s.logger.Debug("settings saved", "path", s.path)
	if s.bus != nil {
		s.bus.Publish(ctx, domain.NewEvent(domain.EventSettingsChanged, nil))
	}
	return nil
}

func (s *Store) read() (*domain.Settings, error) {
	st := domain.DefaultSettings()
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &st, nil
	}
	if err != nil {
		return nil, domain.NewDomainError("settings.Load", domain.ErrConfigLoad, err.Error())
	}
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, domain.NewDomainError("settings.Load", domain.ErrConfigLoad, fmt.Sprintf("parse %s: %v", s.path, err))
	}
	return &st, nil
}

// write atomically replaces the settings file.
func (s *Store) write(st *domain.Settings) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return domain.WrapOp("marshal", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return domain.WrapOp("mkdir", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return domain.WrapOp("write", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) decryptKeys(st *domain.Settings) error {
	for i := range st.AI.Providers {
		p := &st.AI.Providers[i]
		if !config.IsEncrypted(p.APIKey) {
			continue
		}
		if s.passphrase == "" {
			return domain.NewDomainError("settings.Load", domain.ErrDecryption,
				fmt.Sprintf("api key for %s is encrypted but %s is not set", p.ID.DisplayName(), config.PassphraseEnv))
		}
		if err := config.DecryptField(&p.APIKey, s.passphrase); err != nil {
			return domain.NewDomainError("settings.Load", domain.ErrDecryption,
				fmt.Sprintf("api key for %s: %v", p.ID.DisplayName(), err))
		}
	}
	return nil
}

func (s *Store) encryptKeys(st *domain.Settings) error {
	if s.passphrase == "" {
		return nil
	}
	for i := range st.AI.Providers {
		p := &st.AI.Providers[i]
		if p.APIKey == "" || config.IsEncrypted(p.APIKey) {
			continue
		}
		enc, err := config.EncryptValue(p.APIKey, s.passphrase)
		if err != nil {
			return domain.NewDomainError("settings.Update", domain.ErrEncryption, err.Error())
		}
		p.APIKey = config.EncryptedPrefix + enc
	}
	return nil
}
