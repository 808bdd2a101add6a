package config

import (
	"strings"
	"testing"
	"time"
)

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}

func TestValidateDefaultsPass(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("Defaults should pass validation: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"settings path", func(c *Config) { c.Settings.Path = "" }, "settings.path is required"},
		{"history path", func(c *Config) { c.History.Path = "" }, "history.path is required"},
		{"history disabled no path", func(c *Config) { c.History.Enabled = false; c.History.Path = "" }, ""},
		{"history max", func(c *Config) { c.History.MaxEntries = -1 }, "history.max_entries"},
		{"conn timeout", func(c *Config) { c.LLM.ConnTimeout = 0 }, "llm.conn_timeout"},
		{"resp timeout", func(c *Config) { c.LLM.RespTimeout = 0 }, "llm.resp_timeout"},
		{"breaker failures", func(c *Config) { c.LLM.CircuitBreaker.MaxFailures = 0 }, "max_failures"},
		{"breaker disabled", func(c *Config) { c.LLM.CircuitBreaker = CircuitBreakerConfig{} }, ""},
		{"pool", func(c *Config) { c.LLM.Pool.MaxConnsPerHost = -2 }, "llm.pool"},
		{"asr args", func(c *Config) { c.ASR.Args = []string{"-v"} }, "asr.args set without"},
		{"warmup args", func(c *Config) { c.ASR.WarmupArgs = []string{"-v"} }, "asr.warmup_args"},
		{"asr stop timeout", func(c *Config) { c.ASR.StopTimeout = 0 }, "asr.stop_timeout"},
		{"bundle id", func(c *Config) { c.Desktop.OwnBundleID = "" }, "own_bundle_id"},
		{"desktop delay", func(c *Config) { c.Desktop.KeyDelay = -time.Millisecond }, "desktop delays"},
		{"gateway addr", func(c *Config) { c.Gateway.Addr = "" }, "gateway.addr is required"},
		{"gateway host port", func(c *Config) { c.Gateway.Addr = "localhost" }, "not host:port"},
		{"gateway burst", func(c *Config) { c.Gateway.Burst = 0 }, "gateway.burst"},
		{"history max age", func(c *Config) { c.History.MaxAge = -time.Hour }, "history.max_age"},
		{"prune schedule", func(c *Config) { c.History.PruneSchedule = "" }, "history.prune_schedule"},
		{"connect limit", func(c *Config) { c.Gateway.ConnectPerMin = -1 }, "gateway.connect_per_min"},
		{"rate limit off", func(c *Config) { c.Gateway.RateLimit = 0; c.Gateway.Burst = 0 }, ""},
		{"empty token", func(c *Config) { c.Gateway.Auth.Tokens = []TokenConfig{{Name: "x"}} }, "tokens[0].token is required"},
		{"duplicate token", func(c *Config) {
			c.Gateway.Auth.Tokens = []TokenConfig{{Token: "a"}, {Token: "a"}}
		}, "tokens[1] duplicates"},
		{"logger level", func(c *Config) { c.Logger.Level = "trace" }, "logger.level"},
		{"logger format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
		{"tracer exporter", func(c *Config) { c.Tracer.Enabled = true; c.Tracer.Exporter = "otlp" }, "tracer.exporter"},
		{"tracer disabled", func(c *Config) { c.Tracer.Exporter = "otlp" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			assertContains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateAccumulates(t *testing.T) {
	cfg := Defaults()
	cfg.Settings.Path = ""
	cfg.Gateway.Addr = ""
	cfg.Logger.Level = "loud"

	err := Validate(cfg)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("want *ValidationError, got %T", err)
	}
	if len(ve.Errors) != 3 {
		t.Errorf("got %d errors: %v", len(ve.Errors), ve.Errors)
	}
	assertContains(t, ve.Error(), "config validation failed:\n  - ")
}
