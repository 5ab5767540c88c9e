package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// DefaultTeamPassword is used when neither the config file nor the
// environment provide gateway.team_password.
const DefaultTeamPassword = "STADS2026"

// Config is the top-level application configuration.
type Config struct {
	Agents         AgentsConfig         `yaml:"agents"`
	Polling        PollingConfig        `yaml:"polling"`
	Routing        RoutingConfig        `yaml:"routing"`
	Docs           DocsConfig           `yaml:"docs"`
	HTTP           HTTPConfig           `yaml:"http"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Gateway        GatewayConfig        `yaml:"gateway"`
	Logger         LoggerConfig         `yaml:"logger"`
	Tracer         TracerConfig         `yaml:"tracer"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	Maintenance    MaintenanceConfig    `yaml:"maintenance"`
}

// AgentsConfig holds the remote agent API base URL and one credential per role.
type AgentsConfig struct {
	BaseURL          string `yaml:"base_url"`
	ClassifierAPIKey string `yaml:"classifier_api_key"`
	FAQAPIKey        string `yaml:"faq_api_key"`
	ReportsAPIKey    string `yaml:"reports_api_key"`
}

// PollingConfig controls the get_answer loop.
type PollingConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Interval    time.Duration `yaml:"interval"`
}

// RoutingConfig holds the classifier keywords and the labels reported
// back to callers for each dispatch path.
type RoutingConfig struct {
	FAQKeyword    string `yaml:"faq_keyword"`
	ReportKeyword string `yaml:"report_keyword"`
	FAQLabel      string `yaml:"faq_label"`
	ReportsLabel  string `yaml:"reports_label"`
	FallbackLabel string `yaml:"fallback_label"`
}

// DocsConfig points at the FAQ reference text.
type DocsConfig struct {
	Path string `yaml:"path"`
}

// PoolConfig holds HTTP connection pool settings.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// HTTPConfig holds outbound HTTP settings for the agent API.
type HTTPConfig struct {
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
	// RequestsPerSecond caps outbound calls per role; 0 disables the limiter.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// CircuitBreakerConfig configures the per-role circuit breaker.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// GatewayConfig holds the HTTP gateway settings.
type GatewayConfig struct {
	Addr           string        `yaml:"addr"`
	TeamPassword   string        `yaml:"team_password"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	RequestsPerMin int           `yaml:"requests_per_min"`
	BurstSize      int           `yaml:"burst_size"`
	TrustedProxies []string      `yaml:"trusted_proxies,omitempty"`
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
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MaintenanceConfig holds schedules for background housekeeping. Each value
// is a cron expression or a duration; empty disables the job.
type MaintenanceConfig struct {
	SessionReap   string `yaml:"session_reap"`
	BreakerReport string `yaml:"breaker_report"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Agents: AgentsConfig{
			BaseURL: "https://api.toqan.ai/api",
		},
		Polling: PollingConfig{
			MaxAttempts: 60,
			Interval:    time.Second,
		},
		Routing: RoutingConfig{
			FAQKeyword:    "FAQ",
			ReportKeyword: "REPORTE",
			FAQLabel:      "FAQ",
			ReportsLabel:  "Reportes",
			FallbackLabel: "FAQ (por defecto)",
		},
		Docs: DocsConfig{
			Path: "faq_docs.txt",
		},
		HTTP: HTTPConfig{
			ConnTimeout: 30 * time.Second,
			RespTimeout: 60 * time.Second,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:     true,
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			Interval:    60 * time.Second,
		},
		Gateway: GatewayConfig{
			Addr:           ":8090",
			SessionTTL:     12 * time.Hour,
			RequestsPerMin: 60,
			BurstSize:      10,
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
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Maintenance: MaintenanceConfig{
			SessionReap:   "10m",
			BreakerReport: "5m",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if cfg.Gateway.TeamPassword == "" {
		cfg.Gateway.TeamPassword = DefaultTeamPassword
	}

	passphrase := os.Getenv("AGENTORCH_CONFIG_KEY")
	if passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps environment variables to config fields. The three
// agent keys and TEAM_PASSWORD keep their historical unprefixed names.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ORCHESTRATOR_API_KEY"); v != "" {
		cfg.Agents.ClassifierAPIKey = v
	}
	if v := os.Getenv("FAQ_AGENT_API_KEY"); v != "" {
		cfg.Agents.FAQAPIKey = v
	}
	if v := os.Getenv("REPORTS_AGENT_API_KEY"); v != "" {
		cfg.Agents.ReportsAPIKey = v
	}
	if v := os.Getenv("TEAM_PASSWORD"); v != "" {
		cfg.Gateway.TeamPassword = v
	}
	if v := os.Getenv("AGENTORCH_AGENTS_BASE_URL"); v != "" {
		cfg.Agents.BaseURL = v
	}
	if v := os.Getenv("AGENTORCH_POLLING_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Polling.MaxAttempts = n
		}
	}
	if v := os.Getenv("AGENTORCH_POLLING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.Polling.Interval = d
		}
	}
	if v := os.Getenv("AGENTORCH_DOCS_PATH"); v != "" {
		cfg.Docs.Path = v
	}
	if v := os.Getenv("AGENTORCH_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("AGENTORCH_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("AGENTORCH_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("AGENTORCH_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("AGENTORCH_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("AGENTORCH_CIRCUIT_BREAKER_ENABLED"); v == "false" {
		cfg.CircuitBreaker.Enabled = false
	}
	if v := os.Getenv("AGENTORCH_GATEWAY_TRUSTED_PROXIES"); v != "" {
		cfg.Gateway.TrustedProxies = splitAndTrim(v, ",")
	}
}

// MissingKeys lists the env var names of agent credentials that are unset.
func (c *Config) MissingKeys() []string {
	var missing []string
	if c.Agents.ClassifierAPIKey == "" {
		missing = append(missing, "ORCHESTRATOR_API_KEY")
	}
	if c.Agents.FAQAPIKey == "" {
		missing = append(missing, "FAQ_AGENT_API_KEY")
	}
	if c.Agents.ReportsAPIKey == "" {
		missing = append(missing, "REPORTS_AGENT_API_KEY")
	}
	return missing
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// decryptSecrets finds "enc:..." values in credentials and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	secrets := map[string]*string{
		"agents.classifier_api_key": &cfg.Agents.ClassifierAPIKey,
		"agents.faq_api_key":        &cfg.Agents.FAQAPIKey,
		"agents.reports_api_key":    &cfg.Agents.ReportsAPIKey,
		"gateway.team_password":     &cfg.Gateway.TeamPassword,
	}
	for name, fp := range secrets {
		if !strings.HasPrefix(*fp, "enc:") {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(*fp, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*fp = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
