// Package config handles TOML and YAML configuration for kartta.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvEndpoint overrides aws.endpoint when set.
const EnvEndpoint = "KARTTA_AWS_ENDPOINT"

// Config is the root configuration structure.
type Config struct {
	AWS     AWSConfig    `toml:"aws" yaml:"aws"`
	Scan    ScanConfig   `toml:"scan" yaml:"scan"`
	Emit    EmitConfig   `toml:"emit" yaml:"emit"`
	OTEL    OTELConfig   `toml:"otel" yaml:"otel"`
	Metrics ServerConfig `toml:"metrics" yaml:"metrics"`
	Log     LogConfig    `toml:"log" yaml:"log"`
}

// AWSConfig holds AWS provider settings.
type AWSConfig struct {
	// Regions to scan. Empty enumerates the account's enabled regions.
	Regions         []string `toml:"regions" yaml:"regions"`
	Services        []string `toml:"services" yaml:"services"`
	ExcludeServices []string `toml:"exclude_services" yaml:"exclude_services"`
	ExcludeTypes    []string `toml:"exclude_types" yaml:"exclude_types"`
	Strategy        string   `toml:"strategy" yaml:"strategy"`
	RoleARN         string   `toml:"role_arn" yaml:"role_arn"`
	ExternalID      string   `toml:"external_id" yaml:"external_id"`
	Endpoint        string   `toml:"endpoint" yaml:"endpoint"`
	Profile         string   `toml:"profile" yaml:"profile"`
	AccountID       string   `toml:"account_id" yaml:"account_id"`
}

// ScanConfig holds scan scheduling settings.
type ScanConfig struct {
	Workers          int           `toml:"workers" yaml:"workers"`
	ModuleTimeoutStr string        `toml:"module_timeout" yaml:"module_timeout"`
	ModuleTimeout    time.Duration `toml:"-" yaml:"-"`
	IntervalStr      string        `toml:"interval" yaml:"interval"`
	Interval         time.Duration `toml:"-" yaml:"-"`
	OneShot          bool          `toml:"one_shot" yaml:"one_shot"`
}

// EmitConfig selects the envelope sinks.
type EmitConfig struct {
	Format      string `toml:"format" yaml:"format"`
	Pretty      bool   `toml:"pretty" yaml:"pretty"`
	Output      string `toml:"output" yaml:"output"`
	BoltPath    string `toml:"bolt_path" yaml:"bolt_path"`
	NATSURL     string `toml:"nats_url" yaml:"nats_url"`
	NATSSubject string `toml:"nats_subject" yaml:"nats_subject"`
	QueueSize   int    `toml:"queue_size" yaml:"queue_size"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `toml:"endpoint" yaml:"endpoint"`
	Insecure    bool          `toml:"insecure" yaml:"insecure"`
	ServiceName string        `toml:"service_name" yaml:"service_name"`
	Traces      TracesConfig  `toml:"traces" yaml:"traces"`
	Metrics     MetricsConfig `toml:"metrics" yaml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `toml:"enabled" yaml:"enabled"`
	SampleRate float64 `toml:"sample_rate" yaml:"sample_rate"`
}

// MetricsConfig holds OTLP metrics settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
}

// ServerConfig holds the Prometheus and health endpoint settings.
type ServerConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level   string `toml:"level" yaml:"level"`
	Console bool   `toml:"console" yaml:"console"`
}

// Load reads and parses a config file. Files ending in .yaml or .yml are
// parsed as YAML, everything else as TOML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := Finalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	// Defaults always parse.
	_ = Finalize(cfg)
	return cfg
}

// Finalize applies defaults, environment overrides and duration parsing.
func Finalize(cfg *Config) error {
	applyDefaults(cfg)
	applyEnv(cfg)
	return parseDurations(cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.AWS.Strategy == "" {
		cfg.AWS.Strategy = "local"
	}
	if cfg.Scan.Workers == 0 {
		cfg.Scan.Workers = 1
	}
	if cfg.Scan.IntervalStr == "" {
		cfg.Scan.IntervalStr = "1h"
	}
	if cfg.Emit.Format == "" {
		cfg.Emit.Format = "ndjson"
	}
	if cfg.Emit.NATSSubject == "" {
		cfg.Emit.NATSSubject = "kartta.envelopes"
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "kartta"
	}
	if cfg.OTEL.Traces.SampleRate == 0 {
		cfg.OTEL.Traces.SampleRate = 1.0
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvEndpoint); v != "" {
		cfg.AWS.Endpoint = v
	}
}

func parseDurations(cfg *Config) error {
	d, err := time.ParseDuration(cfg.Scan.IntervalStr)
	if err != nil {
		return fmt.Errorf("parse interval %q: %w", cfg.Scan.IntervalStr, err)
	}
	cfg.Scan.Interval = d

	if cfg.Scan.ModuleTimeoutStr != "" {
		d, err := time.ParseDuration(cfg.Scan.ModuleTimeoutStr)
		if err != nil {
			return fmt.Errorf("parse module_timeout %q: %w", cfg.Scan.ModuleTimeoutStr, err)
		}
		cfg.Scan.ModuleTimeout = d
	}
	return nil
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	switch c.AWS.Strategy {
	case "local":
		if c.AWS.RoleARN != "" {
			return errors.New("aws: role_arn requires strategy \"assume-role\"")
		}
		if c.AWS.ExternalID != "" {
			return errors.New("aws: external_id requires strategy \"assume-role\"")
		}
	case "assume-role":
		if c.AWS.RoleARN == "" {
			return errors.New("aws: strategy \"assume-role\" requires role_arn")
		}
	default:
		return fmt.Errorf("aws: unknown strategy %q", c.AWS.Strategy)
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan: workers must be at least 1 (got %d)", c.Scan.Workers)
	}
	if c.Scan.ModuleTimeout < 0 {
		return fmt.Errorf("scan: module_timeout must not be negative (got %s)", c.Scan.ModuleTimeout)
	}
	if !c.Scan.OneShot && c.Scan.Interval <= 0 {
		return fmt.Errorf("scan: interval must be positive (got %s)", c.Scan.Interval)
	}
	if c.Emit.Format != "json" && c.Emit.Format != "ndjson" {
		return fmt.Errorf("emit: format must be \"json\" or \"ndjson\" (got %q)", c.Emit.Format)
	}
	if c.Emit.QueueSize < 0 {
		return fmt.Errorf("emit: queue_size must not be negative (got %d)", c.Emit.QueueSize)
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	return nil
}
