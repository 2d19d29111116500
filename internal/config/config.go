// Package config provides configuration management for dendroreduce.
//
// The config file holds reduction defaults, the mechanism registry
// extensions and where runs are stored. Command line flags override it.
//
// Config file locations (priority order):
//  1. $DENDROREDUCE_CONFIG
//  2. ./dendroreduce.yaml
//  3. ~/.config/dendroreduce/config.yaml
//  4. /etc/dendroreduce/config.yaml
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"dendroreduce/internal/biophys"
	"dendroreduce/internal/reduce"
	"dendroreduce/internal/telemetry"
)

const defaultExportInterval = 30 * time.Second

var validate = validator.New()

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Reduction.Segmentation.Strategy == "" {
		c.Reduction.Segmentation.Strategy = reduce.StrategyLambda
	}
	if c.Reduction.Interpolation.Missing == "" {
		c.Reduction.Interpolation.Missing = reduce.MissingUnset
	}
	if c.Reduction.Bisection.MaxIter == 0 {
		c.Reduction.Bisection.MaxIter = reduce.DefaultMaxIter
	}
	if c.Reduction.Bisection.Tolerance == 0 {
		c.Reduction.Bisection.Tolerance = reduce.DefaultTolerance
	}
	if c.Mechanisms.Exclude == nil {
		c.Mechanisms.Exclude = append([]string(nil), biophys.DefaultExcluded...)
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath()
	}
	if c.Logging.Prefix == "" {
		c.Logging.Prefix = "[dendroreduce] "
	}
}

// Validate checks field ranges and the manual segmentation target
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	seg := c.Reduction.Segmentation
	if seg.Strategy == reduce.StrategyManual && seg.TotalSegments < 2 {
		return fmt.Errorf("invalid config: manual segmentation needs total_segments >= 2, got %d", seg.TotalSegments)
	}
	return nil
}

// ReduceConfig returns the reduction request defaults
func (c *Config) ReduceConfig() reduce.Config {
	return reduce.Config{
		Frequency:    c.Reduction.Frequency,
		Segmentation: c.Reduction.Segmentation,
		Missing:      c.Reduction.Interpolation.Missing,
		MaxIter:      c.Reduction.Bisection.MaxIter,
		Tolerance:    c.Reduction.Bisection.Tolerance,
	}
}

// Registry builds the mechanism registry: the builtins, then custom
// mechanisms, then the exclusion list.
func (c *Config) Registry() (*biophys.Registry, error) {
	reg := biophys.DefaultRegistry()
	for _, m := range c.Mechanisms.Custom {
		if err := reg.Register(m); err != nil {
			return nil, fmt.Errorf("mechanism %s: %w", m.Name, err)
		}
	}
	reg.Exclude(c.Mechanisms.Exclude...)
	return reg, nil
}

// TelemetryConfig returns the exporter settings
func (c *Config) TelemetryConfig(version string) telemetry.Config {
	interval := defaultExportInterval
	if c.Telemetry.ExportInterval != nil {
		interval = c.Telemetry.ExportInterval.Duration()
	}
	return telemetry.Config{
		Endpoint:       c.Telemetry.Endpoint,
		Organization:   c.Telemetry.Organization,
		Insecure:       c.Telemetry.Insecure,
		ExportInterval: interval,
		ServiceName:    ConfigDirName,
		ServiceVersion: version,
	}
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	r := c.Reduction
	summary := fmt.Sprintf("Frequency: %g Hz, Segmentation: %s", r.Frequency, r.Segmentation.Strategy)
	if r.Segmentation.Strategy == reduce.StrategyManual {
		summary += fmt.Sprintf(" (%d segments)", r.Segmentation.TotalSegments)
	}
	if r.Segmentation.MinFraction > 0 {
		summary += fmt.Sprintf(", min fraction %g", r.Segmentation.MinFraction)
	}
	summary += fmt.Sprintf("\nMissing values: %s, Bisection: %d iterations, tolerance %g\n",
		r.Interpolation.Missing, r.Bisection.MaxIter, r.Bisection.Tolerance)
	summary += fmt.Sprintf("Database: %s\n", c.Database.Path)
	summary += fmt.Sprintf("Excluded mechanisms (%d):", len(c.Mechanisms.Exclude))
	for _, name := range c.Mechanisms.Exclude {
		summary += fmt.Sprintf(" %s", name)
	}
	if c.Telemetry.Endpoint != "" {
		summary += fmt.Sprintf("\nTelemetry: %s", c.Telemetry.Endpoint)
	}
	return summary
}
