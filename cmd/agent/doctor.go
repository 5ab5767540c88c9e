package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"agent-orchestrator/internal/adapter/agentapi"
	"agent-orchestrator/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and writes a report to out.
func runDoctor(out io.Writer) error {
	cfgPath := configPath()
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Agent API keys", Fn: checkAgentKeys},
		{Name: "Agent API", Fn: checkAgentAPI},
		{Name: "FAQ documentation", Fn: checkDocs},
		{Name: "Team password", Fn: checkTeamPassword},
	}

	fmt.Fprintln(out, "agent-orchestrator doctor")
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(out, "  [%s] %s: %s\n", result.Status, result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(out, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 50))
	fmt.Fprintf(out, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func notLoaded() CheckResult {
	return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
}

// checkConfigFile reports whether the config file loaded. A missing file is
// only a warning: defaults plus environment are enough to run.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check config.yaml syntax and permissions (0600)",
			}
		}
		if _, err := os.Stat(cfgPath); errors.Is(err, fs.ErrNotExist) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults and environment", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkAgentKeys verifies every role has an API key.
func checkAgentKeys(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if missing := cfg.MissingKeys(); len(missing) > 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("missing: %s", strings.Join(missing, ", ")),
			Fix:     "Export the variables above or set them under agents: in config.yaml",
		}
	}
	return CheckResult{Status: StatusPass, Message: "classifier, faq and reports keys configured"}
}

// checkAgentAPI tests whether the agent API base URL answers HTTP at all.
// Any response counts as reachable; only transport errors fail.
func checkAgentAPI(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	endpoint := strings.TrimRight(cfg.Agents.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("invalid base URL: %v", err)}
	}

	start := time.Now()
	resp, err := agentapi.NewHTTPClient(cfg.HTTP).Do(req)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     "Check AGENTORCH_AGENTS_BASE_URL, network and proxy settings",
		}
	}
	resp.Body.Close()

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (HTTP %d, latency: %dms)", endpoint, resp.StatusCode, latency.Milliseconds()),
	}
}

// checkDocs reports whether the FAQ reference text is present.
func checkDocs(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	data, err := os.ReadFile(cfg.Docs.Path)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("no FAQ docs at %q, the FAQ agent will run without context", cfg.Docs.Path),
			Fix:     "Create the file or set AGENTORCH_DOCS_PATH",
		}
	}
	if len(data) == 0 {
		return CheckResult{Status: StatusWarn, Message: fmt.Sprintf("%s is empty", cfg.Docs.Path)}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("FAQ docs loaded (%d chars)", utf8.RuneCount(data)),
	}
}

// checkTeamPassword warns when the gateway still uses the built-in password.
func checkTeamPassword(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if cfg.Gateway.TeamPassword == config.DefaultTeamPassword {
		return CheckResult{
			Status:  StatusWarn,
			Message: "using the built-in default password",
			Fix:     "Set TEAM_PASSWORD",
		}
	}
	return CheckResult{Status: StatusPass, Message: "custom team password configured"}
}
