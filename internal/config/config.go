package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/asynccts/internal/domain"
)

// Supported database drivers.
const (
	DriverRedis  = "redis"
	DriverValkey = "valkey"
	DriverSQLite = "sqlite"
)

// ProviderOpenAI selects the built-in OpenAI-compatible searcher.
const ProviderOpenAI = "openai"

var serviceIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Config holds the asynccts service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	CTS      CTSConfig      `yaml:"cts"`
	Searcher SearcherConfig `yaml:"searcher"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds persistent store settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, valkey, sqlite (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	SQLitePath       string   `yaml:"sqlite_path"` // file path or ":memory:"
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// CTSConfig holds the behaviour of the threat service itself.
type CTSConfig struct {
	ID               string `yaml:"id"`
	RetrySecs        int    `yaml:"retry_secs"`
	HitTTLSec        int    `yaml:"hit_ttl_sec"`
	UploadFiles      bool   `yaml:"upload_files"`
	MaxUploadSize    int64  `yaml:"max_upload_size"` // bytes
	UploadDir        string `yaml:"upload_dir"`      // default: os.TempDir()
	SerializeSubmits bool   `yaml:"serialize_submits"`
	PurgeOnStart     *bool  `yaml:"purge_on_start"` // default: true
}

// SearcherConfig holds settings of the built-in searcher.
type SearcherConfig struct {
	Provider          string       `yaml:"provider"` // openai, empty when the searcher is supplied in code
	BaseURL           string       `yaml:"base_url"`
	APIKey            string       `yaml:"api_key"`
	Model             string       `yaml:"model"`
	RequestsPerSecond float64      `yaml:"requests_per_second"`
	Burst             int          `yaml:"burst"`
	TimeoutSec        int          `yaml:"timeout_sec"`
	Budget            BudgetConfig `yaml:"budget"`
}

// Budget actions.
const (
	BudgetActionWarn   = "warn"
	BudgetActionReject = "reject"
)

// BudgetConfig caps the tokens the built-in searcher may spend. Zero limits are unlimited.
type BudgetConfig struct {
	DailyTokenLimit      int64   `yaml:"daily_token_limit"`
	MonthlyTokenLimit    int64   `yaml:"monthly_token_limit"`
	CostPerMillionTokens float64 `yaml:"cost_per_million_tokens"` // USD, for usage reports
	Action               string  `yaml:"action"`                  // warn (default) or reject
}

// Enabled reports whether any limit is set.
func (b BudgetConfig) Enabled() bool {
	return b.DailyTokenLimit > 0 || b.MonthlyTokenLimit > 0
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it, applies defaults
// and validates the result.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
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
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 30
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverValkey
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}

	def := domain.DefaultServiceConfig()
	if c.CTS.ID == "" {
		c.CTS.ID = def.ID
	}
	if c.CTS.RetrySecs <= 0 {
		c.CTS.RetrySecs = def.RetrySecs
	}
	if c.CTS.HitTTLSec <= 0 {
		c.CTS.HitTTLSec = int(def.HitTTL / time.Second)
	}
	if c.CTS.MaxUploadSize <= 0 {
		c.CTS.MaxUploadSize = def.MaxUploadSize
	}
	if c.CTS.UploadDir == "" {
		c.CTS.UploadDir = os.TempDir()
	}
	if c.CTS.PurgeOnStart == nil {
		purge := true
		c.CTS.PurgeOnStart = &purge
	}

	if c.Searcher.RequestsPerSecond <= 0 {
		c.Searcher.RequestsPerSecond = 5
	}
	if c.Searcher.Burst <= 0 {
		c.Searcher.Burst = 1
	}
	if c.Searcher.TimeoutSec <= 0 {
		c.Searcher.TimeoutSec = 60
	}
	if c.Searcher.Budget.Action == "" {
		c.Searcher.Budget.Action = BudgetActionWarn
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Database.Driver {
	case DriverRedis, DriverValkey:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", c.Database.Driver)
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver must be one of redis, valkey, sqlite, got %q", c.Database.Driver)
	}

	if !serviceIDRegex.MatchString(c.CTS.ID) {
		return fmt.Errorf("cts.id must match %s, got %q", serviceIDRegex, c.CTS.ID)
	}

	return c.Searcher.Validate()
}

// Validate checks the built-in searcher settings. An empty provider means the
// searcher is supplied by the embedding program.
func (s *SearcherConfig) Validate() error {
	if s.Provider == "" {
		return nil
	}
	if s.Provider != ProviderOpenAI {
		return fmt.Errorf("searcher.provider must be %q, got %q", ProviderOpenAI, s.Provider)
	}
	if s.Model == "" {
		return fmt.Errorf("searcher.model is required")
	}

	b := s.Budget
	if b.DailyTokenLimit < 0 || b.MonthlyTokenLimit < 0 {
		return fmt.Errorf("searcher.budget token limits must be >= 0")
	}
	if b.CostPerMillionTokens < 0 {
		return fmt.Errorf("searcher.budget.cost_per_million_tokens must be >= 0")
	}
	switch b.Action {
	case "", BudgetActionWarn, BudgetActionReject:
	default:
		return fmt.Errorf("searcher.budget.action must be %q or %q, got %q",
			BudgetActionWarn, BudgetActionReject, b.Action)
	}
	return nil
}

// PurgeOnStart reports whether leftover active searches are removed at start-up.
func (c *Config) PurgeOnStart() bool {
	return c.CTS.PurgeOnStart == nil || *c.CTS.PurgeOnStart
}

// Service converts the cts section into the coordinator's settings.
func (c *Config) Service() domain.ServiceConfig {
	return domain.ServiceConfig{
		ID:               c.CTS.ID,
		RetrySecs:        c.CTS.RetrySecs,
		HitTTL:           time.Duration(c.CTS.HitTTLSec) * time.Second,
		UploadsEnabled:   c.CTS.UploadFiles,
		MaxUploadSize:    c.CTS.MaxUploadSize,
		SerializeSubmits: c.CTS.SerializeSubmits,
	}
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
