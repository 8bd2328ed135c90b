package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the expensify-os configuration.
type Config struct {
	Expensify     ExpensifyConfig         `yaml:"expensify"`
	Plugins       map[string]PluginConfig `yaml:"plugins"`
	Browser       BrowserConfig           `yaml:"browser"`
	RateLimit     RateLimitConfig         `yaml:"rate_limit"`
	Notifications NotificationsConfig     `yaml:"notifications"`
	Ledger        LedgerConfig            `yaml:"ledger"`
	HTTP          HTTPConfig              `yaml:"http"`
	Logging       LoggingConfig           `yaml:"logging"`
}

// ExpensifyConfig holds backend credentials.
type ExpensifyConfig struct {
	PartnerUserID     string `yaml:"partner_user_id"`
	PartnerUserSecret string `yaml:"partner_user_secret"`
	EmployeeEmail     string `yaml:"employee_email"`
	DefaultCurrency   string `yaml:"default_currency"`
	BaseURL           string `yaml:"base_url"`
}

// PluginConfig holds one vendor source's settings.
type PluginConfig struct {
	Enabled     *bool             `yaml:"enabled"` // default true
	Credentials map[string]string `yaml:"credentials"`
	Category    string            `yaml:"category"`
	BaseURL     string            `yaml:"base_url"`
	TimeoutSec  int               `yaml:"timeout_sec"` // 0 = no per-plugin timeout
}

// IsEnabled reports whether the plugin runs when no sources are given.
func (p PluginConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// BrowserConfig holds settings for the external receipt-download command.
type BrowserConfig struct {
	Headless           *bool    `yaml:"headless"` // default true
	TimeoutMS          int      `yaml:"timeout_ms"`
	ScreenshotsOnError *bool    `yaml:"screenshots_on_error"` // default true
	Command            []string `yaml:"command"`
	CommandTimeoutSec  int      `yaml:"command_timeout_sec"`
	StateDir           string   `yaml:"state_dir"`
	DownloadsDir       string   `yaml:"downloads_dir"`
}

// RateLimitConfig holds the backend quotas.
type RateLimitConfig struct {
	ShortLimit     int `yaml:"short_limit"`
	ShortWindowSec int `yaml:"short_window_sec"`
	LongLimit      int `yaml:"long_limit"`
	LongWindowSec  int `yaml:"long_window_sec"`
}

// NotificationsConfig holds run summary targets.
type NotificationsConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	Desktop         bool   `yaml:"desktop"`
}

// LedgerConfig holds the Redis-compatible submission ledger. Empty addrs disables it.
type LedgerConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	KeyPrefix        string   `yaml:"key_prefix"`
	TTLDays          int      `yaml:"ttl_days"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Enabled reports whether a ledger is configured.
func (l LedgerConfig) Enabled() bool { return len(l.Addrs) > 0 }

// HTTPConfig holds the control plane server settings.
type HTTPConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec"`
	APIKeys         []string `yaml:"api_keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// Options tune Load.
type Options struct {
	// Resolver resolves secret references. Nil leaves references untouched.
	Resolver SecretResolver
}

// Load locates, parses, resolves and validates the configuration.
// An empty path searches the default locations.
func Load(path string, opts Options) (Config, string, error) {
	configPath, err := findConfigPath(path)
	if err != nil {
		return Config{}, "", err
	}

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, configPath, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, configPath, fmt.Errorf("failed to parse config: %w", err)
	}

	if opts.Resolver != nil {
		if err := cfg.ResolveSecrets(opts.Resolver); err != nil {
			return Config{}, configPath, err
		}
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, configPath, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, configPath, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Expensify.DefaultCurrency == "" {
		c.Expensify.DefaultCurrency = "EUR"
	}
	for name, p := range c.Plugins {
		if p.Category == "" {
			p.Category = "Uncategorized"
		}
		if p.Credentials == nil {
			p.Credentials = map[string]string{}
		}
		c.Plugins[name] = p
	}

	if c.Browser.Headless == nil {
		c.Browser.Headless = boolPtr(true)
	}
	if c.Browser.ScreenshotsOnError == nil {
		c.Browser.ScreenshotsOnError = boolPtr(true)
	}
	if c.Browser.TimeoutMS <= 0 {
		c.Browser.TimeoutMS = 30000
	}
	if c.Browser.CommandTimeoutSec <= 0 {
		c.Browser.CommandTimeoutSec = 300
	}
	if c.Browser.DownloadsDir == "" {
		c.Browser.DownloadsDir = "downloads"
	}
	if c.Browser.StateDir == "" {
		c.Browser.StateDir = filepath.Join(userConfigDir(), "browser_state")
	}

	if c.RateLimit.ShortLimit <= 0 {
		c.RateLimit.ShortLimit = 5
	}
	if c.RateLimit.ShortWindowSec <= 0 {
		c.RateLimit.ShortWindowSec = 10
	}
	if c.RateLimit.LongLimit <= 0 {
		c.RateLimit.LongLimit = 20
	}
	if c.RateLimit.LongWindowSec <= 0 {
		c.RateLimit.LongWindowSec = 60
	}

	if c.Ledger.KeyPrefix == "" {
		c.Ledger.KeyPrefix = "expensify-os:"
	}
	if c.Ledger.TTLDays <= 0 {
		c.Ledger.TTLDays = 400
	}
	if c.Ledger.ReadinessTimeout <= 0 {
		c.Ledger.ReadinessTimeout = 10
	}

	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8090
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 600
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	var errs []error

	if c.Expensify.PartnerUserID == "" {
		errs = append(errs, errors.New("expensify.partner_user_id is required"))
	}
	if c.Expensify.PartnerUserSecret == "" {
		errs = append(errs, errors.New("expensify.partner_user_secret is required"))
	}
	if !strings.Contains(c.Expensify.EmployeeEmail, "@") {
		errs = append(errs, fmt.Errorf("expensify.employee_email must be an email address, got %q", c.Expensify.EmployeeEmail))
	}
	if len(c.Expensify.DefaultCurrency) != 3 {
		errs = append(errs, fmt.Errorf("expensify.default_currency must be a 3-letter code, got %q", c.Expensify.DefaultCurrency))
	}

	rl := c.RateLimit
	if rl.ShortWindowSec > rl.LongWindowSec {
		errs = append(errs, fmt.Errorf(
			"rate_limit.short_window_sec (%d) must not exceed rate_limit.long_window_sec (%d)",
			rl.ShortWindowSec, rl.LongWindowSec))
	}
	if rl.ShortLimit > rl.LongLimit {
		errs = append(errs, fmt.Errorf(
			"rate_limit.short_limit (%d) must not exceed rate_limit.long_limit (%d)",
			rl.ShortLimit, rl.LongLimit))
	}

	for name, p := range c.Plugins {
		if p.TimeoutSec < 0 {
			errs = append(errs, fmt.Errorf("plugins.%s.timeout_sec must be >= 0, got %d", name, p.TimeoutSec))
		}
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}

	if c.Logging.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
			errs = append(errs, fmt.Errorf("logging.level %q is invalid", c.Logging.Level))
		}
	}

	return errors.Join(errs...)
}

// DefaultSearchPaths lists the locations tried when no explicit path is given.
func DefaultSearchPaths() []string {
	return []string{
		"config.yaml",
		"config.yml",
		filepath.Join(userConfigDir(), "config.yaml"),
	}
}

// findConfigPath locates the config file.
func findConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if fileExists(explicit) {
			return explicit, nil
		}
		return "", fmt.Errorf("config file not found: %s", explicit)
	}

	paths := DefaultSearchPaths()
	for _, p := range paths {
		if fileExists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("no config file found, searched: %s", strings.Join(paths, ", "))
}

// userConfigDir is ~/.config/expensify-os.
func userConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "expensify-os")
	}
	return filepath.Join(home, ".config", "expensify-os")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func boolPtr(b bool) *bool { return &b }

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
