package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Runner   RunnerConfig   `yaml:"runner"`
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Security SecurityConfig `yaml:"security"`
	TLS      TLSConfig      `yaml:"tls"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBody  int64         `yaml:"max_request_body_bytes"`
}

// RunnerConfig controls the execution harness: which external commands run
// staged code, how long they may run, and how much input/output is allowed.
type RunnerConfig struct {
	Interpreter  []string `yaml:"interpreter"`   // argv prefix; the staged source filename is appended
	TestRunner   []string `yaml:"test_runner"`   // full argv; discovers tests in the working directory
	SourceFile   string   `yaml:"source_file"`   // staged filename for /run
	SolutionFile string   `yaml:"solution_file"` // staged subject filename for /test
	TestFile     string   `yaml:"test_file"`     // staged test filename for /test

	DefaultTimeoutSec int `yaml:"default_timeout_sec"`
	MinTimeoutSec     int `yaml:"min_timeout_sec"`
	MaxTimeoutSec     int `yaml:"max_timeout_sec"`

	MaxCodeChars     int `yaml:"max_code_chars"`     // per code/tests field
	OutputLimitChars int `yaml:"output_limit_chars"` // per captured stream

	// TempRoot is where per-request workspaces are created. Empty means the
	// OS default temp directory.
	TempRoot string `yaml:"temp_root"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type SecurityConfig struct {
	AuthEnabled    bool     `yaml:"auth_enabled"`
	APIKeyHeader   string   `yaml:"api_key_header"`
	APIKeys        []string `yaml:"api_keys"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
}

// TLSConfig controls HTTPS/TLS termination.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CLI flag or hardcoded default
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second, // > max run timeout + overhead
			ShutdownTimeout: 30 * time.Second,
			MaxRequestBody:  1 << 20, // 1MB
		},
		Runner: RunnerConfig{
			Interpreter:       []string{"python3", "-u", "-B"},
			TestRunner:        []string{"pytest", "-q", "--maxfail=1", "--disable-warnings"},
			SourceFile:        "main.py",
			SolutionFile:      "solution.py",
			TestFile:          "test_solution.py",
			DefaultTimeoutSec: 5,
			MinTimeoutSec:     1,
			MaxTimeoutSec:     20,
			MaxCodeChars:      20_000,
			OutputLimitChars:  100_000,
		},
		Database: DatabaseConfig{
			DSN:             "",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Security: SecurityConfig{
			AuthEnabled:    false,
			APIKeyHeader:   "X-API-Key",
			RateLimitRPS:   100,
			RateLimitBurst: 200,
		},
		TLS: TLSConfig{
			Enabled: false,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if len(c.Runner.Interpreter) == 0 {
		return fmt.Errorf("runner.interpreter must not be empty")
	}
	if len(c.Runner.TestRunner) == 0 {
		return fmt.Errorf("runner.test_runner must not be empty")
	}
	for _, name := range []string{c.Runner.SourceFile, c.Runner.SolutionFile, c.Runner.TestFile} {
		if name == "" || name != filepath.Base(name) {
			return fmt.Errorf("runner staged filename %q must be a bare filename", name)
		}
	}
	if c.Runner.MinTimeoutSec < 1 {
		return fmt.Errorf("runner.min_timeout_sec must be >= 1")
	}
	if c.Runner.DefaultTimeoutSec < c.Runner.MinTimeoutSec || c.Runner.DefaultTimeoutSec > c.Runner.MaxTimeoutSec {
		return fmt.Errorf("runner.default_timeout_sec (%d) must be within [%d, %d]",
			c.Runner.DefaultTimeoutSec, c.Runner.MinTimeoutSec, c.Runner.MaxTimeoutSec)
	}
	if c.Runner.MaxCodeChars < 1 {
		return fmt.Errorf("runner.max_code_chars must be >= 1")
	}
	if c.Runner.OutputLimitChars < 1 {
		return fmt.Errorf("runner.output_limit_chars must be >= 1")
	}
	if c.Runner.TempRoot != "" && !filepath.IsAbs(c.Runner.TempRoot) {
		return fmt.Errorf("runner.temp_root %q must be an absolute path", c.Runner.TempRoot)
	}
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.cert_file and tls.key_file are required when TLS is enabled")
		}
	}
	return nil
}

// Address returns the listen address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
