package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PassphraseEnv names the environment variable holding the passphrase for
// "enc:" values in the config and settings files.
const PassphraseEnv = "VOICEKEY_SETTINGS_KEY"

// Config is the process configuration. User preferences (chords, providers,
// output channels) live in the settings file named by Settings.Path.
type Config struct {
	Settings SettingsConfig `yaml:"settings"`
	History  HistoryConfig  `yaml:"history"`
	LLM      LLMConfig      `yaml:"llm"`
	ASR      ASRConfig      `yaml:"asr"`
	Desktop  DesktopConfig  `yaml:"desktop"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
}

// SettingsConfig locates the user settings file.
type SettingsConfig struct {
	Path     string        `yaml:"path"`
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

// HistoryConfig holds the history database settings.
type HistoryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxEntries int    `yaml:"max_entries"` // 0 = unlimited
	// MaxAge drops entries older than this on PruneSchedule. 0 keeps them.
	MaxAge        time.Duration `yaml:"max_age"`
	PruneSchedule string        `yaml:"prune_schedule"`
}

// LLMConfig holds HTTP and resilience settings shared by all providers.
type LLMConfig struct {
	ConnTimeout    time.Duration        `yaml:"conn_timeout"`
	RespTimeout    time.Duration        `yaml:"resp_timeout"`
	Pool           PoolConfig           `yaml:"pool"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ASRConfig configures the external recorder/transcriber process. Command
// records while running and prints the transcript to stdout after its
// stdin is closed.
type ASRConfig struct {
	Command       string            `yaml:"command"`
	Args          []string          `yaml:"args,omitempty"`
	Env           map[string]string `yaml:"env,omitempty"`
	WarmupCommand string            `yaml:"warmup_command,omitempty"`
	WarmupArgs    []string          `yaml:"warmup_args,omitempty"`
	StopTimeout   time.Duration     `yaml:"stop_timeout"`
}

// DesktopConfig holds settings for the keyboard and clipboard adapters.
type DesktopConfig struct {
	// OwnBundleID identifies this app's windows in focus reports.
	OwnBundleID string        `yaml:"own_bundle_id"`
	CopyDelay   time.Duration `yaml:"copy_delay"`
	KeyDelay    time.Duration `yaml:"key_delay"`
}

// GatewayConfig holds the WebSocket bridge settings.
type GatewayConfig struct {
	Addr      string     `yaml:"addr"`
	Auth      AuthConfig `yaml:"auth"`
	RateLimit float64    `yaml:"rate_limit"` // inbound frames per second per connection
	Burst     int        `yaml:"burst"`
	// ConnectPerMin caps HTTP requests (upgrades and REST) per client IP.
	ConnectPerMin int `yaml:"connect_per_min"`
	ConnectBurst  int `yaml:"connect_burst"`
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig holds a single gateway auth token.
type TokenConfig struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// DefaultDir returns $HOME/.voicekey, or "./.voicekey" when $HOME cannot be
// determined.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".voicekey"
	}
	return filepath.Join(home, ".voicekey")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dir := DefaultDir()
	return &Config{
		Settings: SettingsConfig{
			Path:     filepath.Join(dir, "settings.yaml"),
			Watch:    true,
			Debounce: 200 * time.Millisecond,
		},
		History: HistoryConfig{
			Enabled:    true,
			Path:       filepath.Join(dir, "history.db"),
			MaxEntries:    1000,
			MaxAge:        30 * 24 * time.Hour,
			PruneSchedule: "@hourly",
		},
		LLM: LLMConfig{
			ConnTimeout: 10 * time.Second,
			RespTimeout: 60 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		ASR: ASRConfig{
			StopTimeout: 60 * time.Second,
		},
		Desktop: DesktopConfig{
			OwnBundleID: "dev.voicekey.app",
			CopyDelay:   150 * time.Millisecond,
			KeyDelay:    5 * time.Millisecond,
		},
		Gateway: GatewayConfig{
			Addr:      "127.0.0.1:7321",
			RateLimit:     200,
			Burst:         400,
			ConnectPerMin: 120,
			ConnectBurst:  20,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts
// secrets. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := validatePermissions(path); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv(PassphraseEnv); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps VOICEKEY_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOICEKEY_SETTINGS_PATH"); v != "" {
		cfg.Settings.Path = v
	}
	if v := os.Getenv("VOICEKEY_SETTINGS_WATCH"); v != "" {
		cfg.Settings.Watch = parseBool(v, cfg.Settings.Watch)
	}
	if v := os.Getenv("VOICEKEY_HISTORY_ENABLED"); v != "" {
		cfg.History.Enabled = parseBool(v, cfg.History.Enabled)
	}
	if v := os.Getenv("VOICEKEY_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("VOICEKEY_ASR_COMMAND"); v != "" {
		cfg.ASR.Command = v
	}
	if v := os.Getenv("VOICEKEY_ASR_ARGS"); v != "" {
		cfg.ASR.Args = strings.Fields(v)
	}
	if v := os.Getenv("VOICEKEY_OWN_BUNDLE_ID"); v != "" {
		cfg.Desktop.OwnBundleID = v
	}
	if v := os.Getenv("VOICEKEY_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("VOICEKEY_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Auth.Tokens = append(cfg.Gateway.Auth.Tokens, TokenConfig{Token: v, Name: "env"})
	}
	if v := os.Getenv("VOICEKEY_LLM_CIRCUIT_BREAKER"); v != "" {
		cfg.LLM.CircuitBreaker.Enabled = parseBool(v, cfg.LLM.CircuitBreaker.Enabled)
	}
	if v := os.Getenv("VOICEKEY_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("VOICEKEY_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("VOICEKEY_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("VOICEKEY_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("VOICEKEY_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

func parseBool(s string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return b
}

// decryptSecrets decrypts "enc:" gateway tokens in place.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.Gateway.Auth.Tokens {
		tok := cfg.Gateway.Auth.Tokens[i].Token
		if !IsEncrypted(tok) {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(tok, EncryptedPrefix), passphrase)
		if err != nil {
			return fmt.Errorf("gateway auth token %s: %w", cfg.Gateway.Auth.Tokens[i].Name, err)
		}
		cfg.Gateway.Auth.Tokens[i].Token = decrypted
	}
	return nil
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Readable by others is fine, writable is not.
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
