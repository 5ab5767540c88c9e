package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Polling.MaxAttempts != 60 {
		t.Errorf("Polling.MaxAttempts = %d, want 60", cfg.Polling.MaxAttempts)
	}
	if cfg.Polling.Interval != time.Second {
		t.Errorf("Polling.Interval = %v, want 1s", cfg.Polling.Interval)
	}
	if cfg.Agents.BaseURL != "https://api.toqan.ai/api" {
		t.Errorf("Agents.BaseURL = %q", cfg.Agents.BaseURL)
	}
	if cfg.Routing.ReportKeyword != "REPORTE" {
		t.Errorf("Routing.ReportKeyword = %q, want %q", cfg.Routing.ReportKeyword, "REPORTE")
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "info")
	}
	if cfg.Maintenance.SessionReap != "10m" || cfg.Maintenance.BreakerReport != "5m" {
		t.Errorf("Maintenance = %+v", cfg.Maintenance)
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	t.Setenv("TEAM_PASSWORD", "")
	cfg, err := Load("/tmp/nonexistent-agentorch-config-12345.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Polling.MaxAttempts != 60 {
		t.Errorf("expected defaults, got MaxAttempts=%d", cfg.Polling.MaxAttempts)
	}
	if cfg.Gateway.TeamPassword != DefaultTeamPassword {
		t.Errorf("TeamPassword = %q, want default %q", cfg.Gateway.TeamPassword, DefaultTeamPassword)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
agents:
  base_url: "http://localhost:9999/api"
  classifier_api_key: "k-orch"
  faq_api_key: "k-faq"
  reports_api_key: "k-rep"
polling:
  max_attempts: 5
  interval: 10ms
gateway:
  team_password: "secret"
logger:
  level: "debug"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agents.BaseURL != "http://localhost:9999/api" {
		t.Errorf("BaseURL = %q", cfg.Agents.BaseURL)
	}
	if cfg.Polling.MaxAttempts != 5 || cfg.Polling.Interval != 10*time.Millisecond {
		t.Errorf("Polling = %+v", cfg.Polling)
	}
	if cfg.Gateway.TeamPassword != "secret" {
		t.Errorf("TeamPassword = %q, want %q", cfg.Gateway.TeamPassword, "secret")
	}
	if len(cfg.MissingKeys()) != 0 {
		t.Errorf("MissingKeys = %v, want none", cfg.MissingKeys())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ORCHESTRATOR_API_KEY", "env-orch")
	t.Setenv("FAQ_AGENT_API_KEY", "env-faq")
	t.Setenv("REPORTS_AGENT_API_KEY", "env-rep")
	t.Setenv("TEAM_PASSWORD", "env-pass")
	t.Setenv("AGENTORCH_POLLING_MAX_ATTEMPTS", "7")
	t.Setenv("AGENTORCH_POLLING_INTERVAL", "250ms")
	t.Setenv("AGENTORCH_LOGGER_LEVEL", "debug")
	t.Setenv("AGENTORCH_GATEWAY_TRUSTED_PROXIES", "10.0.0.1, 10.0.0.2")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Agents.ClassifierAPIKey != "env-orch" || cfg.Agents.FAQAPIKey != "env-faq" || cfg.Agents.ReportsAPIKey != "env-rep" {
		t.Errorf("agent keys = %+v", cfg.Agents)
	}
	if cfg.Gateway.TeamPassword != "env-pass" {
		t.Errorf("TeamPassword = %q", cfg.Gateway.TeamPassword)
	}
	if cfg.Polling.MaxAttempts != 7 || cfg.Polling.Interval != 250*time.Millisecond {
		t.Errorf("Polling = %+v", cfg.Polling)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "debug")
	}
	if len(cfg.Gateway.TrustedProxies) != 2 || cfg.Gateway.TrustedProxies[1] != "10.0.0.2" {
		t.Errorf("TrustedProxies = %v", cfg.Gateway.TrustedProxies)
	}
}

func TestEnvOverridesIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("AGENTORCH_POLLING_MAX_ATTEMPTS", "zero")
	t.Setenv("AGENTORCH_POLLING_INTERVAL", "soon")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	if cfg.Polling.MaxAttempts != 60 || cfg.Polling.Interval != time.Second {
		t.Errorf("invalid env values should be ignored, got %+v", cfg.Polling)
	}
}

func TestMissingKeys(t *testing.T) {
	cfg := Defaults()
	cfg.Agents.FAQAPIKey = "k"
	got := cfg.MissingKeys()
	if strings.Join(got, ",") != "ORCHESTRATOR_API_KEY,REPORTS_AGENT_API_KEY" {
		t.Errorf("MissingKeys = %v", got)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	passphrase := "test-passphrase-123"
	plaintext := "sk-abcdef123456"

	encrypted, err := EncryptValue(plaintext, passphrase)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}

	decrypted, err := DecryptValue(encrypted, passphrase)
	if err != nil {
		t.Fatalf("DecryptValue: %v", err)
	}

	if decrypted != plaintext {
		t.Errorf("got %q, want %q", decrypted, plaintext)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	encrypted, err := EncryptValue("secret", "right")
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}
	if _, err := DecryptValue(encrypted, "wrong"); err == nil {
		t.Error("expected error for wrong passphrase")
	}
}

func TestDecryptValueInvalidFormat(t *testing.T) {
	for _, in := range []string{"no-colon", "zz:00", "00:zz", "00:00"} {
		if _, err := DecryptValue(in, "p"); err == nil {
			t.Errorf("DecryptValue(%q) expected error", in)
		}
	}
}

func TestLoadWithConfigKey(t *testing.T) {
	passphrase := "config-key"
	enc, err := EncryptValue("k-orch-decrypted", passphrase)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "agents:\n  classifier_api_key: \"enc:" + enc + "\"\n  faq_api_key: \"plain\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AGENTORCH_CONFIG_KEY", passphrase)
	t.Setenv("ORCHESTRATOR_API_KEY", "")
	t.Setenv("FAQ_AGENT_API_KEY", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agents.ClassifierAPIKey != "k-orch-decrypted" {
		t.Errorf("ClassifierAPIKey = %q", cfg.Agents.ClassifierAPIKey)
	}
	if cfg.Agents.FAQAPIKey != "plain" {
		t.Errorf("FAQAPIKey = %q, non-enc values must pass through", cfg.Agents.FAQAPIKey)
	}
}

func TestLoadInsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("logger:\n  level: info\n"), 0666); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "insecure permissions") {
		t.Errorf("expected insecure permissions error, got %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("polling: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}
