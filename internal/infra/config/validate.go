package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateSettings(cfg, ve)
	validateHistory(cfg, ve)
	validateLLM(cfg, ve)
	validateASR(cfg, ve)
	validateDesktop(cfg, ve)
	validateGateway(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateSettings(cfg *Config, ve *ValidationError) {
	if cfg.Settings.Path == "" {
		ve.Add("settings.path is required")
	}
	if cfg.Settings.Watch && cfg.Settings.Debounce < 0 {
		ve.Add("settings.debounce must be >= 0")
	}
}

func validateHistory(cfg *Config, ve *ValidationError) {
	if cfg.History.Enabled && cfg.History.Path == "" {
		ve.Add("history.path is required when history is enabled")
	}
	if cfg.History.MaxAge < 0 {
		ve.Add("history.max_age must be >= 0")
	}
	if cfg.History.MaxAge > 0 && cfg.History.PruneSchedule == "" {
		ve.Add("history.prune_schedule is required when max_age is set")
	}
	if cfg.History.MaxEntries < 0 {
		ve.Add("history.max_entries must be >= 0")
	}
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.ConnTimeout <= 0 {
		ve.Add("llm.conn_timeout must be > 0")
	}
	if cfg.LLM.RespTimeout <= 0 {
		ve.Add("llm.resp_timeout must be > 0")
	}
	if cb := cfg.LLM.CircuitBreaker; cb.Enabled {
		if cb.MaxFailures == 0 {
			ve.Add("llm.circuit_breaker.max_failures must be > 0")
		}
		if cb.Timeout <= 0 {
			ve.Add("llm.circuit_breaker.timeout must be > 0")
		}
	}
	if p := cfg.LLM.Pool; p.MaxIdleConns < 0 || p.MaxIdleConnsPerHost < 0 || p.MaxConnsPerHost < 0 {
		ve.Add("llm.pool limits must be >= 0")
	}
}

func validateASR(cfg *Config, ve *ValidationError) {
	if cfg.ASR.Command == "" && len(cfg.ASR.Args) > 0 {
		ve.Add("asr.args set without asr.command")
	}
	if cfg.ASR.WarmupCommand == "" && len(cfg.ASR.WarmupArgs) > 0 {
		ve.Add("asr.warmup_args set without asr.warmup_command")
	}
	if cfg.ASR.StopTimeout <= 0 {
		ve.Add("asr.stop_timeout must be > 0")
	}
}

func validateDesktop(cfg *Config, ve *ValidationError) {
	if cfg.Desktop.OwnBundleID == "" {
		ve.Add("desktop.own_bundle_id is required")
	}
	if cfg.Desktop.CopyDelay < 0 || cfg.Desktop.KeyDelay < 0 {
		ve.Add("desktop delays must be >= 0")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr is required")
	} else if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is not host:port: %v", cfg.Gateway.Addr, err)
	}
	if cfg.Gateway.RateLimit < 0 {
		ve.Add("gateway.rate_limit must be >= 0")
	}
	if cfg.Gateway.RateLimit > 0 && cfg.Gateway.Burst <= 0 {
		ve.Add("gateway.burst must be > 0 when rate_limit is set")
	}
	if cfg.Gateway.ConnectPerMin < 0 {
		ve.Add("gateway.connect_per_min must be >= 0")
	}
	seen := make(map[string]bool)
	for i, tok := range cfg.Gateway.Auth.Tokens {
		if tok.Token == "" {
			ve.Add("gateway.auth.tokens[%d].token is required", i)
			continue
		}
		if IsEncrypted(tok.Token) {
			ve.Add("gateway.auth.tokens[%d] is encrypted but %s is not set", i, PassphraseEnv)
		}
		if seen[tok.Token] {
			ve.Add("gateway.auth.tokens[%d] duplicates an earlier token", i)
		}
		seen[tok.Token] = true
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		ve.Add("logger.level %q must be debug, info, warn or error", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q must be text or json", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q must be noop or stdout", cfg.Tracer.Exporter)
	}
}
