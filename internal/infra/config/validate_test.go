package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateDefaultsPass(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Defaults should pass validation: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty base url", func(c *Config) { c.Agents.BaseURL = "" }, "agents.base_url must not be empty"},
		{"relative base url", func(c *Config) { c.Agents.BaseURL = "/api" }, "must be an absolute http(s) URL"},
		{"zero attempts", func(c *Config) { c.Polling.MaxAttempts = 0 }, "polling.max_attempts must be > 0"},
		{"negative interval", func(c *Config) { c.Polling.Interval = -1 }, "polling.interval must be >= 0"},
		{"empty faq keyword", func(c *Config) { c.Routing.FAQKeyword = " " }, "routing.faq_keyword must not be empty"},
		{"same fallback label", func(c *Config) { c.Routing.FallbackLabel = c.Routing.FAQLabel }, "fallback_label must differ"},
		{"burst missing", func(c *Config) { c.HTTP.RequestsPerSecond = 2 }, "http.burst must be > 0"},
		{"bad addr", func(c *Config) { c.Gateway.Addr = "8090" }, "gateway.addr"},
		{"bad proxy", func(c *Config) { c.Gateway.TrustedProxies = []string{"proxy"} }, "is not an IP address"},
		{"bad level", func(c *Config) { c.Logger.Level = "loud" }, "logger.level"},
		{"bad exporter", func(c *Config) { c.Tracer.Enabled = true; c.Tracer.Exporter = "jaeger" }, "tracer.exporter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			assertContains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateAccumulates(t *testing.T) {
	cfg := Defaults()
	cfg.Polling.MaxAttempts = 0
	cfg.Logger.Level = "loud"

	err := Validate(cfg)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(ve.Errors) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(ve.Errors), ve.Errors)
	}
}

func TestValidateMissingKeysIsNotAnError(t *testing.T) {
	cfg := Defaults()
	if len(cfg.MissingKeys()) != 3 {
		t.Fatalf("expected all keys missing by default")
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("missing keys must not fail validation: %v", err)
	}
}

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}
