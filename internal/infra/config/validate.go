package config

import (
	"fmt"
	"net"
	"net/url"
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
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
// Missing agent credentials are not an error here; see Config.MissingKeys.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateAgents(cfg, ve)
	validatePolling(cfg, ve)
	validateRouting(cfg, ve)
	validateHTTP(cfg, ve)
	validateGateway(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateAgents(cfg *Config, ve *ValidationError) {
	if cfg.Agents.BaseURL == "" {
		ve.Add("agents.base_url must not be empty")
		return
	}
	u, err := url.Parse(cfg.Agents.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		ve.Add("agents.base_url %q must be an absolute http(s) URL", cfg.Agents.BaseURL)
	}
}

func validatePolling(cfg *Config, ve *ValidationError) {
	if cfg.Polling.MaxAttempts <= 0 {
		ve.Add("polling.max_attempts must be > 0")
	}
	if cfg.Polling.Interval < 0 {
		ve.Add("polling.interval must be >= 0")
	}
}

func validateRouting(cfg *Config, ve *ValidationError) {
	r := cfg.Routing
	if strings.TrimSpace(r.FAQKeyword) == "" {
		ve.Add("routing.faq_keyword must not be empty")
	}
	if strings.TrimSpace(r.ReportKeyword) == "" {
		ve.Add("routing.report_keyword must not be empty")
	}
	if r.FAQLabel == "" || r.ReportsLabel == "" || r.FallbackLabel == "" {
		ve.Add("routing labels must not be empty")
	}
	if r.FallbackLabel != "" && r.FallbackLabel == r.FAQLabel {
		ve.Add("routing.fallback_label must differ from routing.faq_label")
	}
}

func validateHTTP(cfg *Config, ve *ValidationError) {
	if cfg.HTTP.ConnTimeout < 0 || cfg.HTTP.RespTimeout < 0 {
		ve.Add("http timeouts must be >= 0")
	}
	if cfg.HTTP.RequestsPerSecond < 0 {
		ve.Add("http.requests_per_second must be >= 0")
	}
	if cfg.HTTP.RequestsPerSecond > 0 && cfg.HTTP.Burst <= 0 {
		ve.Add("http.burst must be > 0 when requests_per_second is set")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if cfg.Gateway.Addr != "" {
		if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
			ve.Add("gateway.addr %q is invalid: %v", cfg.Gateway.Addr, err)
		}
	}
	if cfg.Gateway.SessionTTL <= 0 {
		ve.Add("gateway.session_ttl must be > 0")
	}
	if cfg.Gateway.RequestsPerMin <= 0 || cfg.Gateway.BurstSize <= 0 {
		ve.Add("gateway.requests_per_min and gateway.burst_size must be > 0")
	}
	for i, p := range cfg.Gateway.TrustedProxies {
		if net.ParseIP(p) == nil {
			ve.Add("gateway.trusted_proxies[%d] %q is not an IP address", i, p)
		}
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json", "":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter %q is invalid (want: stdout, noop)", cfg.Tracer.Exporter)
	}
}
