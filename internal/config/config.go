// Package config provides unified configuration loading for demosim.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"demosim/internal/archive"
	"demosim/internal/logging"
	"demosim/internal/params"
	"demosim/internal/storage"
)

// Config contains all demosim configuration settings.
type Config struct {
	// OutputRoot is the directory runs are written below unless a parameter
	// set names its own output directory.
	OutputRoot string `yaml:"output_root"`

	// Workers > 0 runs batches on a bounded pool of that size.
	Workers int `yaml:"workers"`

	// UnitTimeout bounds every simulation in a batch. Zero disables it.
	UnitTimeout time.Duration `yaml:"unit_timeout"`

	// SkipIfExists skips runs whose output directory already exists.
	SkipIfExists bool `yaml:"skip_if_exists"`

	Logging LoggingConfig `yaml:"logging"`
	Store   StoreConfig   `yaml:"store"`
	Archive ArchiveConfig `yaml:"archive"`
	Metrics MetricsConfig `yaml:"metrics"`

	// Params overrides the default parameter set by name.
	Params map[string]any `yaml:"params"`
}

type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "text" (default) or "json".
	Format string `yaml:"format"`
}

// StoreConfig selects the run index backend.
type StoreConfig struct {
	// Kind is memory, sqlite or postgres.
	Kind string `yaml:"kind"`
	// DSN is the sqlite file path or postgres connection string. Supports
	// ${VAR} expansion.
	DSN string `yaml:"dsn"`
}

type ArchiveConfig struct {
	Driver string           `yaml:"driver"`
	Root   string           `yaml:"root"`
	S3     archive.S3Config `yaml:"s3"`
}

type MetricsConfig struct {
	// Addr is the listen address of the Prometheus endpoint; empty disables it.
	Addr string `yaml:"addr"`
	// Runtime adds Go runtime and process collectors.
	Runtime bool `yaml:"runtime"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		OutputRoot:   params.DefaultOutputRoot,
		Workers:      0,
		SkipIfExists: true,
		Logging:      LoggingConfig{Level: "info", Format: "text"},
		Store:        StoreConfig{Kind: "memory"},
		Params:       map[string]any{},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Params == nil {
		cfg.Params = map[string]any{}
	}
	cfg.Store.DSN = expandEnvVars(cfg.Store.DSN)
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OutputRoot) == "" {
		return errors.New("output_root must not be empty")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	if c.UnitTimeout < 0 {
		return fmt.Errorf("unit_timeout must be non-negative, got %v", c.UnitTimeout)
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: trace, debug, info, warn, error)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.Logging.Format)
	}
	if !validStoreKind(c.Store.Kind) {
		return fmt.Errorf("invalid store kind: %s (valid: %s)", c.Store.Kind, strings.Join(storage.Kinds(), ", "))
	}
	switch archive.Driver(strings.ToLower(c.Archive.Driver)) {
	case archive.DriverNone, "none", archive.DriverMemory:
	case archive.DriverFilesystem:
		if c.Archive.Root == "" {
			return errors.New("archive.root is required for the fs driver")
		}
	case archive.DriverS3:
		if c.Archive.S3.Bucket == "" {
			return errors.New("archive.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("invalid archive driver: %s (valid: fs, s3, memory, or empty)", c.Archive.Driver)
	}
	if _, err := c.BaseParams(); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	return nil
}

// BaseParams applies the configured overrides to the defaults rooted at
// OutputRoot.
func (c *Config) BaseParams() (params.Params, error) {
	return params.DefaultAt(c.OutputRoot).Override(c.Params)
}

// ArchiveSinkConfig converts the archive section for archive.NewSink.
func (c *Config) ArchiveSinkConfig() archive.Config {
	return archive.Config{
		Driver: archive.Driver(c.Archive.Driver),
		Root:   c.Archive.Root,
		S3:     c.Archive.S3,
	}
}

func validStoreKind(kind string) bool {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "postgresql", "pgx":
		return true
	}
	for _, k := range storage.Kinds() {
		if strings.EqualFold(k, strings.TrimSpace(kind)) {
			return true
		}
	}
	return false
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DEMOSIM_OUTPUT_ROOT"); v != "" {
		cfg.OutputRoot = v
	}
	if v := os.Getenv("DEMOSIM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("DEMOSIM_UNIT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.UnitTimeout = d
		}
	}
	if v := os.Getenv("DEMOSIM_SKIP_IF_EXISTS"); v != "" {
		cfg.SkipIfExists = v == "true" || v == "1"
	}
	if v := os.Getenv("DEMOSIM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DEMOSIM_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("DEMOSIM_STORE"); v != "" {
		cfg.Store.Kind = v
	}
	if v := os.Getenv("DEMOSIM_DB_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("DEMOSIM_ARCHIVE_DRIVER"); v != "" {
		cfg.Archive.Driver = v
	}
	if v := os.Getenv("DEMOSIM_ARCHIVE_ROOT"); v != "" {
		cfg.Archive.Root = v
	}
	if v := os.Getenv("DEMOSIM_ARCHIVE_S3_BUCKET"); v != "" {
		cfg.Archive.S3.Bucket = v
	}
	if v := os.Getenv("DEMOSIM_ARCHIVE_S3_REGION"); v != "" {
		cfg.Archive.S3.Region = v
	}
	if v := os.Getenv("DEMOSIM_ARCHIVE_S3_ENDPOINT"); v != "" {
		cfg.Archive.S3.Endpoint = v
		// Custom endpoints are S3-compatible servers that expect path-style URLs.
		cfg.Archive.S3.PathStyle = true
	}
	if v := os.Getenv("DEMOSIM_ARCHIVE_S3_ACCESS_KEY_ID"); v != "" {
		cfg.Archive.S3.AccessKeyID = v
	}
	if v := os.Getenv("DEMOSIM_ARCHIVE_S3_SECRET_ACCESS_KEY"); v != "" {
		cfg.Archive.S3.SecretAccessKey = v
	}
	if v := os.Getenv("DEMOSIM_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
