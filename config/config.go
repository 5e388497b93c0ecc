// Package config provides configuration management for the mailgraph
// ingestion service: sync/worker/cost-policy/LLM-budget settings loaded
// from a YAML file, then overlaid by environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/mailgraph/pkg/extraction/router"
)

// Default configuration values.
const (
	DefaultWindowMonths           = 3
	DefaultMaxEmailsPerSync       = 5000
	DefaultWorkerConcurrency      = 4
	DefaultSoftTimeLimitSeconds   = 9 * 60
	DefaultHardTimeLimitSeconds   = 10 * 60
	DefaultCostPolicy             = router.CostConservative
	DefaultLLMPerUserRPM          = 10
	DefaultLLMGlobalRPM           = 200
	DefaultLLMDailyUserDollarCap  = 5.0
	DefaultTemplateTTLDays        = 90
	DefaultOverlapWindowHours     = 24
	DefaultRateLimitBurst         = 5
	DefaultConfigDir              = ".mailgraph"
	DefaultConfigFile             = "config.yaml"
	DefaultCertDir                = ".config/mailgraph/certs"
)

// TLSConfig holds client TLS settings for connections to Postgres/Redis/LLM
// endpoints that require mTLS.
type TLSConfig struct {
	// Enabled indicates whether TLS should be used for connections.
	Enabled bool `yaml:"enabled"`

	// CACert is the path to the CA certificate for verifying the server.
	CACert string `yaml:"ca_cert"`

	// ClientCert is the path to the client certificate for mTLS authentication.
	ClientCert string `yaml:"client_cert"`

	// ClientKey is the path to the client private key for mTLS authentication.
	ClientKey string `yaml:"client_key"`

	// CertDir is a directory containing ca.crt, client.crt, and client.key files.
	// If set, it provides default paths for CACert, ClientCert, and ClientKey.
	CertDir string `yaml:"cert_dir"`

	// SkipVerify disables server certificate verification (insecure, for testing only).
	SkipVerify bool `yaml:"skip_verify"`
}

// ResolvePaths expands ~ in paths and sets defaults from CertDir if configured.
func (c *TLSConfig) ResolvePaths() {
	if c.CertDir != "" {
		c.CertDir = expandPath(c.CertDir)
		if c.CACert == "" {
			c.CACert = filepath.Join(c.CertDir, "ca.crt")
		}
		if c.ClientCert == "" {
			c.ClientCert = filepath.Join(c.CertDir, "client.crt")
		}
		if c.ClientKey == "" {
			c.ClientKey = filepath.Join(c.CertDir, "client.key")
		}
	} else {
		c.CACert = expandPath(c.CACert)
		c.ClientCert = expandPath(c.ClientCert)
		c.ClientKey = expandPath(c.ClientKey)
	}
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path // Return original if home dir lookup fails.
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// DatabaseConfig holds Postgres connection settings for the graph store,
// template cache, job queue lease connections, and blob store.
type DatabaseConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Database string `yaml:"database,omitempty"`
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	SSLMode  string `yaml:"ssl_mode,omitempty"`
	PoolSize int    `yaml:"pool_size,omitempty"`
}

// ConnectionString builds a libpq-style DSN from the configured fields.
func (c *DatabaseConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.User, c.Password, sslMode)
}

// IsConfigured reports whether enough fields are set to attempt a connection.
func (c *DatabaseConfig) IsConfigured() bool {
	return c != nil && c.Host != "" && c.Database != ""
}

// RedisConfig holds connection settings for C5's job queue broker.
type RedisConfig struct {
	Address  string `yaml:"address,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// AppConfig is the top-level configuration for the ingestion/extraction
// service, covering C3 (sync), C5 (worker pool), C7 (cost policy + LLM
// budget), and C8 (template TTL).
type AppConfig struct {
	// Database holds Postgres connection settings (C9 graph store, C8
	// template cache, C6 lease connections, blob store).
	Database DatabaseConfig `yaml:"database"`

	// Redis holds connection settings for C5's job queue.
	Redis RedisConfig `yaml:"redis"`

	// WindowMonths bounds how far back C3's Sync Coordinator looks on a
	// user's first sync (spec.md §4.3).
	WindowMonths int `yaml:"window_months"`

	// OverlapWindowHours is how far before the last sync's high-water mark
	// C3 re-checks for late-arriving messages (spec.md §4.3).
	OverlapWindowHours int `yaml:"overlap_window_hours"`

	// MaxEmailsPerSync caps how many messages one sync run processes.
	MaxEmailsPerSync int `yaml:"max_emails_per_sync"`

	// WorkerConcurrency is C5's fixed number of concurrent job handlers.
	WorkerConcurrency int `yaml:"worker_concurrency"`

	// SoftTimeLimitSeconds/HardTimeLimitSeconds bound one C5 job's
	// processing time (spec.md §5).
	SoftTimeLimitSeconds int `yaml:"soft_time_limit_s"`
	HardTimeLimitSeconds int `yaml:"hard_time_limit_s"`

	// CostPolicy governs C7's scanned/image routing decision.
	CostPolicy router.CostPolicy `yaml:"cost_policy"`

	// LLMPerUserRPM/LLMGlobalRPM/LLMDailyUserDollarCap configure the
	// shared llm.Budget used by C4, C7, and the classify package.
	LLMPerUserRPM         int     `yaml:"llm_per_user_rpm"`
	LLMGlobalRPM          int     `yaml:"llm_global_rpm"`
	LLMDailyUserDollarCap float64 `yaml:"llm_daily_user_dollar_cap"`

	// RateLimitBurst is the token-bucket burst size applied to provider
	// adapter calls (spec.md §5).
	RateLimitBurst int `yaml:"rate_limit_burst"`

	// TemplateTTLDays is how long an unused C8 template survives before
	// eviction (spec.md §4.8).
	TemplateTTLDays int `yaml:"template_ttl_days"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`

	// TLS contains the TLS/mTLS configuration settings for upstream
	// connections.
	TLS TLSConfig `yaml:"tls"`
}

// DefaultConfig returns an AppConfig with default values.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		WindowMonths:          DefaultWindowMonths,
		OverlapWindowHours:    DefaultOverlapWindowHours,
		MaxEmailsPerSync:      DefaultMaxEmailsPerSync,
		WorkerConcurrency:     DefaultWorkerConcurrency,
		SoftTimeLimitSeconds:  DefaultSoftTimeLimitSeconds,
		HardTimeLimitSeconds:  DefaultHardTimeLimitSeconds,
		CostPolicy:            DefaultCostPolicy,
		LLMPerUserRPM:         DefaultLLMPerUserRPM,
		LLMGlobalRPM:          DefaultLLMGlobalRPM,
		LLMDailyUserDollarCap: DefaultLLMDailyUserDollarCap,
		RateLimitBurst:        DefaultRateLimitBurst,
		TemplateTTLDays:       DefaultTemplateTTLDays,
	}
}

// ConfigDir returns the configuration directory path.
// Uses $MAILGRAPH_CONFIG_DIR if set, otherwise ~/.mailgraph
func ConfigDir() (string, error) {
	if dir := os.Getenv("MAILGRAPH_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the service configuration from file and environment
// variables. Configuration is loaded in this order (later sources override
// earlier):
// 1. Default values
// 2. Config file (~/.mailgraph/config.yaml or $MAILGRAPH_CONFIG_DIR/config.yaml)
// 3. Environment variables (MAILGRAPH_*)
func LoadConfig() (*AppConfig, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *AppConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fileCfg AppConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fileCfg.Database.Host != "" {
		cfg.Database = fileCfg.Database
	}
	if fileCfg.Redis.Address != "" {
		cfg.Redis = fileCfg.Redis
	}
	if fileCfg.WindowMonths != 0 {
		cfg.WindowMonths = fileCfg.WindowMonths
	}
	if fileCfg.OverlapWindowHours != 0 {
		cfg.OverlapWindowHours = fileCfg.OverlapWindowHours
	}
	if fileCfg.MaxEmailsPerSync != 0 {
		cfg.MaxEmailsPerSync = fileCfg.MaxEmailsPerSync
	}
	if fileCfg.WorkerConcurrency != 0 {
		cfg.WorkerConcurrency = fileCfg.WorkerConcurrency
	}
	if fileCfg.SoftTimeLimitSeconds != 0 {
		cfg.SoftTimeLimitSeconds = fileCfg.SoftTimeLimitSeconds
	}
	if fileCfg.HardTimeLimitSeconds != 0 {
		cfg.HardTimeLimitSeconds = fileCfg.HardTimeLimitSeconds
	}
	if fileCfg.CostPolicy != "" {
		cfg.CostPolicy = fileCfg.CostPolicy
	}
	if fileCfg.LLMPerUserRPM != 0 {
		cfg.LLMPerUserRPM = fileCfg.LLMPerUserRPM
	}
	if fileCfg.LLMGlobalRPM != 0 {
		cfg.LLMGlobalRPM = fileCfg.LLMGlobalRPM
	}
	if fileCfg.LLMDailyUserDollarCap != 0 {
		cfg.LLMDailyUserDollarCap = fileCfg.LLMDailyUserDollarCap
	}
	if fileCfg.RateLimitBurst != 0 {
		cfg.RateLimitBurst = fileCfg.RateLimitBurst
	}
	if fileCfg.TemplateTTLDays != 0 {
		cfg.TemplateTTLDays = fileCfg.TemplateTTLDays
	}
	cfg.Debug = fileCfg.Debug
	cfg.TLS = fileCfg.TLS

	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *AppConfig) {
	if v := os.Getenv("MAILGRAPH_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("MAILGRAPH_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("MAILGRAPH_DB_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("MAILGRAPH_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("MAILGRAPH_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("MAILGRAPH_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}

	if v := os.Getenv("MAILGRAPH_REDIS_ADDRESS"); v != "" {
		cfg.Redis.Address = v
	}
	if v := os.Getenv("MAILGRAPH_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("MAILGRAPH_WINDOW_MONTHS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WindowMonths = n
		}
	}
	if v := os.Getenv("MAILGRAPH_OVERLAP_WINDOW_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.OverlapWindowHours = n
		}
	}
	if v := os.Getenv("MAILGRAPH_MAX_EMAILS_PER_SYNC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxEmailsPerSync = n
		}
	}
	if v := os.Getenv("MAILGRAPH_WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkerConcurrency = n
		}
	}
	if v := os.Getenv("MAILGRAPH_SOFT_TIME_LIMIT_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SoftTimeLimitSeconds = n
		}
	}
	if v := os.Getenv("MAILGRAPH_HARD_TIME_LIMIT_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HardTimeLimitSeconds = n
		}
	}
	if v := os.Getenv("MAILGRAPH_COST_POLICY"); v != "" {
		cfg.CostPolicy = router.CostPolicy(v)
	}
	if v := os.Getenv("MAILGRAPH_LLM_PER_USER_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLMPerUserRPM = n
		}
	}
	if v := os.Getenv("MAILGRAPH_LLM_GLOBAL_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLMGlobalRPM = n
		}
	}
	if v := os.Getenv("MAILGRAPH_LLM_DAILY_USER_DOLLAR_CAP"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LLMDailyUserDollarCap = f
		}
	}
	if v := os.Getenv("MAILGRAPH_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}
	if v := os.Getenv("MAILGRAPH_TEMPLATE_TTL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TemplateTTLDays = n
		}
	}
	if v := os.Getenv("MAILGRAPH_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}

	if v := os.Getenv("MAILGRAPH_TLS_ENABLED"); v == "true" || v == "1" {
		cfg.TLS.Enabled = true
	}
	if v := os.Getenv("MAILGRAPH_TLS_CA_CERT"); v != "" {
		cfg.TLS.CACert = v
	}
	if v := os.Getenv("MAILGRAPH_TLS_CLIENT_CERT"); v != "" {
		cfg.TLS.ClientCert = v
	}
	if v := os.Getenv("MAILGRAPH_TLS_CLIENT_KEY"); v != "" {
		cfg.TLS.ClientKey = v
	}
	if v := os.Getenv("MAILGRAPH_TLS_CERT_DIR"); v != "" {
		cfg.TLS.CertDir = v
	}
	if v := os.Getenv("MAILGRAPH_TLS_SKIP_VERIFY"); v == "true" || v == "1" {
		cfg.TLS.SkipVerify = true
	}
}

// Validate checks that the configuration is usable.
func (c *AppConfig) Validate() error {
	if c.WindowMonths <= 0 {
		return fmt.Errorf("window_months must be positive")
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("worker_concurrency must be positive")
	}
	if c.SoftTimeLimitSeconds <= 0 || c.HardTimeLimitSeconds <= 0 {
		return fmt.Errorf("soft_time_limit_s and hard_time_limit_s must be positive")
	}
	if c.SoftTimeLimitSeconds >= c.HardTimeLimitSeconds {
		return fmt.Errorf("soft_time_limit_s must be less than hard_time_limit_s")
	}
	if c.CostPolicy != router.CostConservative && c.CostPolicy != router.AccuracyFirst {
		return fmt.Errorf("invalid cost_policy: %q (must be cost_conservative or accuracy_first)", c.CostPolicy)
	}
	if c.LLMDailyUserDollarCap <= 0 {
		return fmt.Errorf("llm_daily_user_dollar_cap must be positive")
	}
	return nil
}

// SoftTimeLimit returns SoftTimeLimitSeconds as a time.Duration, for C5's
// worker.Config.
func (c *AppConfig) SoftTimeLimit() time.Duration {
	return time.Duration(c.SoftTimeLimitSeconds) * time.Second
}

// HardTimeLimit returns HardTimeLimitSeconds as a time.Duration, for C5's
// worker.Config.
func (c *AppConfig) HardTimeLimit() time.Duration {
	return time.Duration(c.HardTimeLimitSeconds) * time.Second
}

// SaveConfig saves the configuration to the config file.
func SaveConfig(cfg *AppConfig) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
