// Package config provides YAML configuration loading with validation and
// environment variable substitution for the breaker daemon.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dskow/breaker-core/internal/backoff"
	"github.com/dskow/breaker-core/internal/breaker"
)

// Config is the top-level daemon configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth" json:"auth"`
	Admin     AdminConfig     `yaml:"admin" json:"admin"`
	Breakers  []BreakerConfig `yaml:"breakers" json:"breakers"`

	// Warnings holds non-fatal config issues detected during loading.
	// Stored on the Config itself (not a package-level var) so it is
	// safe to call Load concurrently from the hot-reload goroutine.
	Warnings []string `yaml:"-" json:"-"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
// Enabled defaults to true; set to false to disable metrics.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// IsEnabled returns whether metrics are enabled (defaults to true).
func (m MetricsConfig) IsEnabled() bool {
	if m.Enabled == nil {
		return true
	}
	return *m.Enabled
}

// LoggingConfig holds log output and rotation settings.
type LoggingConfig struct {
	Output     string `yaml:"output" json:"output"`           // "stdout", "stderr", or file path; default: "stdout"
	Level      string `yaml:"level" json:"level"`             // "debug", "info", "warn", "error"; default: "info"
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"` // max log file size before rotation; default: 100
	MaxBackups int    `yaml:"max_backups" json:"max_backups"` // number of rotated files to keep; default: 3
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
}

// ValidLogLevels are the accepted logging.level strings.
var ValidLogLevels = map[string]bool{
	"":      true, // empty means default ("info")
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// RateLimitConfig holds the per-client rate limiter settings.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" json:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" json:"burst_size"`
}

// AuthConfig holds JWT authentication settings for the admin API.
type AuthConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	JWTSecret string   `yaml:"jwt_secret" json:"jwt_secret"`
	Issuer    string   `yaml:"issuer" json:"issuer"`
	Audience  string   `yaml:"audience" json:"audience"`
	Scopes    []string `yaml:"scopes" json:"scopes"`
}

// AdminConfig holds admin API settings.
type AdminConfig struct {
	Enabled     bool     `yaml:"enabled" json:"enabled"`           // default: false
	IPAllowlist []string `yaml:"ip_allowlist" json:"ip_allowlist"` // CIDR notation
}

// BreakerConfig defines one named breaker and the upstream it guards.
type BreakerConfig struct {
	Name     string `yaml:"name" json:"name"`
	Upstream string `yaml:"upstream" json:"upstream"`

	// TimeoutMs bounds each proxied call; the upstream call is abandoned
	// (not cancelled) past this deadline. Default: 30000.
	TimeoutMs int `yaml:"timeout_ms" json:"timeout_ms"`

	FailureThreshold int           `yaml:"failure_threshold" json:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout" json:"reset_timeout"`
	MonitoringPeriod time.Duration `yaml:"monitoring_period" json:"monitoring_period"`

	// HealthCheckInterval is the watchdog tick. Unset means the 30s
	// default; an explicit 0 disables the watchdog entirely.
	HealthCheckInterval *time.Duration `yaml:"health_check_interval" json:"health_check_interval"`

	Adaptive bool `yaml:"adaptive" json:"adaptive"`

	RetryablePatterns    []string `yaml:"retryable_patterns" json:"retryable_patterns"`
	NonRetryablePatterns []string `yaml:"non_retryable_patterns" json:"non_retryable_patterns"`

	BackoffStrategy string        `yaml:"backoff_strategy" json:"backoff_strategy"` // "fixed", "linear", "exponential"; default: "exponential"
	MaxBackoff      time.Duration `yaml:"max_backoff" json:"max_backoff"`
	Jitter          *bool         `yaml:"jitter" json:"jitter"` // default: true
}

// Timeout returns the per-call deadline as a time.Duration.
func (b BreakerConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// ToBreakerConfig converts the YAML form into the breaker package's
// config, resolving the pointer-typed fields to their defaults.
func (b BreakerConfig) ToBreakerConfig() breaker.Config {
	cfg := breaker.Config{
		FailureThreshold:     b.FailureThreshold,
		ResetTimeout:         b.ResetTimeout,
		MonitoringPeriod:     b.MonitoringPeriod,
		Adaptive:             b.Adaptive,
		RetryablePatterns:    b.RetryablePatterns,
		NonRetryablePatterns: b.NonRetryablePatterns,
		BackoffStrategy:      backoff.Strategy(b.BackoffStrategy),
		MaxBackoff:           b.MaxBackoff,
		Jitter:               b.Jitter == nil || *b.Jitter,
	}
	if b.HealthCheckInterval != nil {
		if *b.HealthCheckInterval <= 0 {
			cfg.DisableWatchdog = true
		} else {
			cfg.HealthCheckInterval = *b.HealthCheckInterval
		}
	}
	return cfg
}

var envVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns in s with the corresponding
// environment variable value.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		key := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return match
	})
}

// Load reads and parses a YAML configuration file, applies environment
// variable substitution, sets defaults, and validates the result.
// Warnings are stored on cfg.Warnings (goroutine-safe, no package-level state).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes. Useful for testing.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.Warnings = collectWarnings(&cfg)

	return &cfg, nil
}

// BreakerConfigs returns the per-breaker configs keyed by name, in the
// form the breaker registry consumes.
func (c *Config) BreakerConfigs() map[string]breaker.Config {
	out := make(map[string]breaker.Config, len(c.Breakers))
	for _, b := range c.Breakers {
		out[b.Name] = b.ToBreakerConfig()
	}
	return out
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Logging defaults
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 3
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 30
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RequestsPerSecond == 0 {
			cfg.RateLimit.RequestsPerSecond = 100
		}
		if cfg.RateLimit.BurstSize == 0 {
			cfg.RateLimit.BurstSize = 50
		}
	}

	for i := range cfg.Breakers {
		if cfg.Breakers[i].TimeoutMs == 0 {
			cfg.Breakers[i].TimeoutMs = 30000
		}
		if cfg.Breakers[i].BackoffStrategy == "" {
			cfg.Breakers[i].BackoffStrategy = string(backoff.Exponential)
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if !ValidLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "stdout" && cfg.Logging.Output != "stderr" {
		if cfg.Logging.MaxSizeMB < 1 {
			return fmt.Errorf("logging.max_size_mb must be positive when output is a file path")
		}
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limit.requests_per_second must be positive")
		}
		if cfg.RateLimit.BurstSize <= 0 {
			return fmt.Errorf("rate_limit.burst_size must be positive")
		}
	}

	if cfg.Auth.Enabled {
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
		}
		if cfg.Auth.Issuer == "" {
			return fmt.Errorf("auth.issuer is required when auth is enabled")
		}
		if cfg.Auth.Audience == "" {
			return fmt.Errorf("auth.audience is required when auth is enabled")
		}
	}

	// Admin validation
	if cfg.Admin.Enabled {
		if len(cfg.Admin.IPAllowlist) == 0 {
			return fmt.Errorf("admin.ip_allowlist is required when admin is enabled")
		}
		for i, cidr := range cfg.Admin.IPAllowlist {
			if _, _, err := net.ParseCIDR(cidr); err != nil {
				return fmt.Errorf("admin.ip_allowlist[%d]: invalid CIDR %q: %w", i, cidr, err)
			}
		}
	}

	if len(cfg.Breakers) == 0 {
		return fmt.Errorf("at least one breaker must be configured")
	}

	seen := make(map[string]bool)
	for i, b := range cfg.Breakers {
		if b.Name == "" {
			return fmt.Errorf("breakers[%d].name is required", i)
		}
		if strings.ContainsAny(b.Name, "/ ") {
			return fmt.Errorf("breakers[%d].name must not contain slashes or spaces", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate breaker name: %s", b.Name)
		}
		seen[b.Name] = true

		if b.Upstream == "" {
			return fmt.Errorf("breakers[%d].upstream is required", i)
		}
		u, err := url.Parse(b.Upstream)
		if err != nil {
			return fmt.Errorf("breakers[%d].upstream: invalid URL: %w", i, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("breakers[%d].upstream: scheme must be http or https, got %q", i, u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("breakers[%d].upstream: host is required", i)
		}

		if b.TimeoutMs < 0 {
			return fmt.Errorf("breakers[%d].timeout_ms must be non-negative", i)
		}
		if b.FailureThreshold < 0 {
			return fmt.Errorf("breakers[%d].failure_threshold must be non-negative", i)
		}
		if !backoff.Valid(backoff.Strategy(b.BackoffStrategy)) {
			return fmt.Errorf("breakers[%d].backoff_strategy must be one of fixed, linear, exponential; got %q", i, b.BackoffStrategy)
		}
		if err := b.ToBreakerConfig().Validate(); err != nil {
			return fmt.Errorf("breakers[%d]: %w", i, err)
		}
	}

	return nil
}

func collectWarnings(cfg *Config) []string {
	var warnings []string
	if cfg.Auth.Enabled && strings.Contains(cfg.Auth.JWTSecret, "${") {
		warnings = append(warnings, "auth.jwt_secret contains unresolved environment variable")
	}
	if cfg.Admin.Enabled && !cfg.Auth.Enabled {
		warnings = append(warnings, "admin API is enabled without JWT auth; only the IP allowlist protects it")
	}
	for _, b := range cfg.Breakers {
		if b.HealthCheckInterval != nil && *b.HealthCheckInterval <= 0 {
			warnings = append(warnings, fmt.Sprintf("breaker %q runs without a watchdog; a stuck-open circuit will not self-recover", b.Name))
		}
	}
	return warnings
}
