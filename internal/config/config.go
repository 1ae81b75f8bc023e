// Package config loads the proxy configuration.
//
// Values are layered: code defaults, then an optional YAML file named by
// DKHP_CONFIG_FILE, then environment variables with the DKHP_ prefix.
// A .env file in the working directory is loaded first without overriding
// variables that are already set.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/dkhp-proxy/pkg/batch"
	"github.com/Sternrassler/dkhp-proxy/pkg/logging"
	"github.com/Sternrassler/dkhp-proxy/pkg/portal"
)

const (
	// EnvPrefix is the prefix of every environment variable read by Load.
	EnvPrefix = "DKHP"

	// ConfigFileEnv names the optional YAML configuration file.
	ConfigFileEnv = "DKHP_CONFIG_FILE"
)

// Config represents the application configuration structure.
type Config struct {
	Environment string `yaml:"environment"`
	ListenAddr  string `yaml:"listen_addr" split_words:"true"`

	Portal PortalConfig `yaml:"portal"`
	Batch  BatchConfig  `yaml:"batch"`
	Redis  RedisConfig  `yaml:"redis"`
	Log    LogConfig    `yaml:"log"`

	// CORSOrigins lists allowed browser origins. Empty allows any origin.
	CORSOrigins []string `yaml:"cors_origins" envconfig:"CORS_ORIGINS"`
}

// PortalConfig configures the upstream portal client.
type PortalConfig struct {
	BaseURL     string        `yaml:"base_url" split_words:"true"`
	ExchangeURL string        `yaml:"exchange_url" split_words:"true"`
	UserAgent   string        `yaml:"user_agent" split_words:"true"`
	Timeout     time.Duration `yaml:"timeout"`
}

// BatchConfig configures the fan-out operations.
type BatchConfig struct {
	ChunkSize           int `yaml:"chunk_size" split_words:"true"`
	RegisterConcurrency int `yaml:"register_concurrency" split_words:"true"`
}

// RedisConfig configures the optional health store. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Environment: "development",
		ListenAddr:  ":8080",
		Portal: PortalConfig{
			BaseURL:     portal.DefaultBaseURL,
			ExchangeURL: portal.DefaultExchangeURL,
			UserAgent:   portal.DefaultConfig().UserAgent,
			Timeout:     portal.DefaultConfig().Timeout,
		},
		Batch: BatchConfig{
			ChunkSize: batch.DefaultChunkSize,
		},
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file and the environment.
func Load() (*Config, error) {
	// Load a .env file if it exists
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config: process env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if err := validateURL("portal.base_url", c.Portal.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if err := validateURL("portal.exchange_url", c.Portal.ExchangeURL); err != nil {
		errs = append(errs, err)
	}
	if c.Portal.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("portal.timeout must be positive (got %s)", c.Portal.Timeout))
	}
	if c.Batch.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("batch.chunk_size must be at least 1 (got %d)", c.Batch.ChunkSize))
	}
	if c.Batch.RegisterConcurrency < 0 {
		errs = append(errs, fmt.Errorf("batch.register_concurrency must not be negative (got %d)", c.Batch.RegisterConcurrency))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("redis.db must not be negative (got %d)", c.Redis.DB))
	}
	if _, ok := logging.ParseLevel(logging.LogLevel(c.Log.Level)); !ok {
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error, disabled", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) url (got %q)", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host (got %q)", field, raw)
	}
	return nil
}

// IsProduction reports whether the proxy runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// PortalClient returns the portal client configuration.
func (c *Config) PortalClient() portal.Config {
	cfg := portal.DefaultConfig()
	cfg.BaseURL = c.Portal.BaseURL
	cfg.ExchangeURL = c.Portal.ExchangeURL
	cfg.UserAgent = c.Portal.UserAgent
	cfg.Timeout = c.Portal.Timeout
	return cfg
}

// Aggregator returns the aggregator configuration.
func (c *Config) Aggregator() batch.Config {
	return batch.Config{ChunkSize: c.Batch.ChunkSize}
}

// Logging returns the logger configuration. Production always logs JSON.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty && !c.IsProduction()
	return cfg
}
