// Package config manages application configuration loading and validation.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// StorageConfig selects the snapshot backend.
type StorageConfig struct {
	Backend   StorageBackend `yaml:"backend"`
	Directory string         `yaml:"directory"`
}

// DatabaseConfig controls PostgreSQL connectivity and migration behaviour.
type DatabaseConfig struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	ConnectTimeout    time.Duration `yaml:"connectTimeout"`
	RunMigrations     bool          `yaml:"runMigrations"`
}

func (c *DatabaseConfig) applyDefaults() {
	c.DSN = strings.TrimSpace(c.DSN)
	if c.DSN == "" {
		c.DSN = "postgresql://localhost:5432/pricestage"
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 8
	}
	if c.MinConns <= 0 {
		c.MinConns = 1
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 5 * time.Minute
	}
	if c.HealthCheckPeriod <= 0 {
		c.HealthCheckPeriod = 30 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
}

func (c DatabaseConfig) validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("dsn required")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("maxConns must be >0")
	}
	if c.MinConns < 0 {
		return fmt.Errorf("minConns must be >=0")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("minConns must be <= maxConns")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connectTimeout must be >0")
	}
	return nil
}

// TelemetryConfig configures OTLP exporters (metrics only).
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	OTLPInsecure bool   `yaml:"otlpInsecure"`
	ServiceName  string `yaml:"serviceName"`
}

// BenchmarkPipelineConfig configures the benchmark price list pipeline.
type BenchmarkPipelineConfig struct {
	Dataset string `yaml:"dataset"`
}

// MerchantPipelineConfig configures the merchant price list pipeline.
type MerchantPipelineConfig struct {
	Dataset             string `yaml:"dataset"`
	PriceGuardThreshold string `yaml:"priceGuardThreshold"`
	RequireOverrideAck  bool   `yaml:"requireOverrideAck"`
}

// GuardThreshold parses the configured relative price change limit.
func (c MerchantPipelineConfig) GuardThreshold() (decimal.Decimal, error) {
	threshold, err := decimal.NewFromString(strings.TrimSpace(c.PriceGuardThreshold))
	if err != nil {
		return decimal.Zero, fmt.Errorf("priceGuardThreshold: %w", err)
	}
	if !threshold.IsPositive() {
		return decimal.Zero, fmt.Errorf("priceGuardThreshold must be >0")
	}
	return threshold, nil
}

// PipelinesConfig groups the per-dataset settings.
type PipelinesConfig struct {
	Benchmark BenchmarkPipelineConfig `yaml:"benchmark"`
	Merchant  MerchantPipelineConfig  `yaml:"merchant"`
}

// AppConfig is the unified pricestage configuration sourced from YAML.
type AppConfig struct {
	Environment Environment     `yaml:"environment"`
	Storage     StorageConfig   `yaml:"storage"`
	Database    DatabaseConfig  `yaml:"database"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Pipelines   PipelinesConfig `yaml:"pipelines"`
}

// DefaultAppConfig returns the configuration used when no file is present.
func DefaultAppConfig() AppConfig {
	cfg := AppConfig{
		Environment: EnvDev,
		Storage:     StorageConfig{Backend: BackendFile},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4318",
			OTLPInsecure: true,
		},
	}
	_ = cfg.normalise()
	return cfg
}

// Load reads and validates an AppConfig from the provided YAML file.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	_ = ctx

	reader, closer, err := openConfigFile(configPath)
	if err != nil {
		return AppConfig{}, err
	}
	defer closer()

	return decode(reader)
}

// LoadOrDefault behaves like Load but falls back to DefaultAppConfig when the
// file does not exist. The boolean reports whether a file was read.
func LoadOrDefault(ctx context.Context, configPath string) (AppConfig, bool, error) {
	cfg, err := Load(ctx, configPath)
	if err == nil {
		return cfg, true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultAppConfig(), false, nil
	}
	return AppConfig{}, false, err
}

func decode(reader io.Reader) (AppConfig, error) {
	bytes, err := io.ReadAll(reader)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return AppConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c *AppConfig) normalise() error {
	c.Environment = Environment(normalizeIdentifier(string(c.Environment)))
	if c.Environment == "" {
		c.Environment = EnvDev
	}

	c.Storage.Backend = StorageBackend(normalizeIdentifier(string(c.Storage.Backend)))
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendFile
	}
	dir := strings.TrimSpace(c.Storage.Directory)
	if dir == "" {
		dir = filepath.Join("var", "pricestage")
	}
	c.Storage.Directory = filepath.Clean(dir)

	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "pricestage"
	}

	c.Pipelines.Benchmark.Dataset = normalizeIdentifier(c.Pipelines.Benchmark.Dataset)
	if c.Pipelines.Benchmark.Dataset == "" {
		c.Pipelines.Benchmark.Dataset = "zppa"
	}
	c.Pipelines.Merchant.Dataset = normalizeIdentifier(c.Pipelines.Merchant.Dataset)
	if c.Pipelines.Merchant.Dataset == "" {
		c.Pipelines.Merchant.Dataset = "merchant"
	}
	c.Pipelines.Merchant.PriceGuardThreshold = strings.TrimSpace(c.Pipelines.Merchant.PriceGuardThreshold)
	if c.Pipelines.Merchant.PriceGuardThreshold == "" {
		c.Pipelines.Merchant.PriceGuardThreshold = "0.30"
	}

	c.Database.applyDefaults()
	return nil
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}

	switch c.Storage.Backend {
	case BackendMemory, BackendPostgres:
	case BackendFile:
		if strings.TrimSpace(c.Storage.Directory) == "" {
			return fmt.Errorf("storage directory required for file backend")
		}
	default:
		return fmt.Errorf("storage backend must be one of memory, file, postgres")
	}

	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry otlpEndpoint required when enabled")
	}

	if c.Pipelines.Benchmark.Dataset == c.Pipelines.Merchant.Dataset {
		return fmt.Errorf("pipelines must use distinct dataset names")
	}
	if _, err := c.Pipelines.Merchant.GuardThreshold(); err != nil {
		return fmt.Errorf("pipelines.merchant: %w", err)
	}

	if c.Storage.Backend == BackendPostgres {
		if err := c.Database.validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	return nil
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := strings.TrimSpace(path)
	candidate = filepath.Clean(candidate)

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open app config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
