package config

import (
	"time"

	"dendroreduce/internal/biophys"
	"dendroreduce/internal/reduce"
)

// Config is the root configuration structure
type Config struct {
	Version    int              `yaml:"version" validate:"gte=1"`
	Reduction  ReductionConfig  `yaml:"reduction"`
	Mechanisms MechanismsConfig `yaml:"mechanisms"`
	Database   DatabaseConfig   `yaml:"database"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ReductionConfig holds the defaults for reduction requests
type ReductionConfig struct {
	Frequency     float64             `yaml:"frequency" validate:"gte=0"`
	Segmentation  reduce.Segmentation `yaml:"segmentation"`
	Interpolation InterpolationConfig `yaml:"interpolation"`
	Bisection     BisectionConfig     `yaml:"bisection"`
}

// InterpolationConfig selects which new segments interpolation fills
type InterpolationConfig struct {
	Missing reduce.MissingPolicy `yaml:"missing" validate:"omitempty,oneof=unset zero"`
}

// BisectionConfig bounds the root searches
type BisectionConfig struct {
	MaxIter   int     `yaml:"max_iter" validate:"gte=1,lte=200"`
	Tolerance float64 `yaml:"tolerance" validate:"gt=0"`
}

// MechanismsConfig extends and restricts the mechanism registry
type MechanismsConfig struct {
	Exclude []string            `yaml:"exclude,omitempty"`
	Custom  []biophys.Mechanism `yaml:"custom,omitempty" validate:"dive"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// TelemetryConfig holds OTLP exporter settings. An empty endpoint disables
// export.
type TelemetryConfig struct {
	Endpoint       string    `yaml:"endpoint,omitempty" validate:"omitempty,hostname_port"`
	Organization   string    `yaml:"organization,omitempty"`
	Insecure       bool      `yaml:"insecure,omitempty"`
	ExportInterval *Duration `yaml:"export_interval,omitempty"`
}

// LoggingConfig controls diagnostic output
type LoggingConfig struct {
	Prefix string `yaml:"prefix,omitempty"`
	Quiet  bool   `yaml:"quiet,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
