package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dendroreduce/internal/biophys"
	"dendroreduce/internal/reduce"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Reduction.Frequency != 0 {
		t.Errorf("Frequency = %g, want 0", cfg.Reduction.Frequency)
	}
	if cfg.Reduction.Segmentation.Strategy != reduce.StrategyLambda {
		t.Errorf("Strategy = %s, want %s", cfg.Reduction.Segmentation.Strategy, reduce.StrategyLambda)
	}
	if cfg.Reduction.Interpolation.Missing != reduce.MissingUnset {
		t.Errorf("Missing = %s, want %s", cfg.Reduction.Interpolation.Missing, reduce.MissingUnset)
	}
	if cfg.Database.Path == "" {
		t.Error("Database.Path should not be empty")
	}
	if len(cfg.Mechanisms.Exclude) != len(biophys.DefaultExcluded) {
		t.Errorf("Exclude = %v, want %v", cfg.Mechanisms.Exclude, biophys.DefaultExcluded)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestReduceConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reduction.Frequency = 100
	cfg.Reduction.Interpolation.Missing = reduce.MissingZero

	rc := cfg.ReduceConfig()
	if rc.Frequency != 100 || rc.Missing != reduce.MissingZero {
		t.Errorf("ReduceConfig() = %+v", rc)
	}
	if rc.MaxIter != reduce.DefaultMaxIter || rc.Tolerance != reduce.DefaultTolerance {
		t.Errorf("bisection = (%d, %g), want defaults", rc.MaxIter, rc.Tolerance)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"negative frequency", func(c *Config) { c.Reduction.Frequency = -1 }, true},
		{"unknown strategy", func(c *Config) { c.Reduction.Segmentation.Strategy = "cubic" }, true},
		{"min fraction above one", func(c *Config) { c.Reduction.Segmentation.MinFraction = 1.5 }, true},
		{"unknown missing policy", func(c *Config) { c.Reduction.Interpolation.Missing = "nan" }, true},
		{"manual without total", func(c *Config) { c.Reduction.Segmentation.Strategy = reduce.StrategyManual }, true},
		{"manual with total", func(c *Config) {
			c.Reduction.Segmentation.Strategy = reduce.StrategyManual
			c.Reduction.Segmentation.TotalSegments = 20
		}, false},
		{"bad endpoint", func(c *Config) { c.Telemetry.Endpoint = "not an endpoint" }, true},
		{"endpoint", func(c *Config) { c.Telemetry.Endpoint = "localhost:4317" }, false},
		{"unnamed mechanism", func(c *Config) {
			c.Mechanisms.Custom = []biophys.Mechanism{{Params: map[string]float64{"gbar_x": 1}}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mechanisms.Custom = []biophys.Mechanism{
		{Name: "na3", Params: map[string]float64{"gbar_na3": 0}, Reducible: true},
		{Name: "kdr", Params: map[string]float64{"gbar_kdr": 0}, Reducible: true},
	}
	cfg.Mechanisms.Exclude = append(cfg.Mechanisms.Exclude, "kdr", "not_loaded")

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry() error: %v", err)
	}
	if !reg.IsReducible("na3") {
		t.Error("na3 should be reducible")
	}
	if reg.IsReducible("kdr") {
		t.Error("kdr is excluded")
	}
	if reg.IsReducible(biophys.LeakMechanism) {
		t.Error("leak is excluded by default")
	}

	cfg.Mechanisms.Custom = append(cfg.Mechanisms.Custom, biophys.Mechanism{Name: "na3"})
	if _, err := cfg.Registry(); !errors.Is(err, biophys.ErrDuplicateMechanism) {
		t.Errorf("Registry() error = %v, want ErrDuplicateMechanism", err)
	}
}

func TestTelemetryConfig(t *testing.T) {
	cfg := DefaultConfig()
	if tc := cfg.TelemetryConfig("v1"); tc.Enabled() || tc.ExportInterval != defaultExportInterval {
		t.Errorf("TelemetryConfig() = %+v", tc)
	}

	interval := 5 * time.Second
	cfg.Telemetry.Endpoint = "collector:4317"
	cfg.Telemetry.ExportInterval = (*Duration)(&interval)
	tc := cfg.TelemetryConfig("v1")
	if !tc.Enabled() || tc.ExportInterval != interval || tc.ServiceVersion != "v1" {
		t.Errorf("TelemetryConfig() = %+v", tc)
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Reduction.Frequency = 250
	cfg.Reduction.Segmentation = reduce.Segmentation{Strategy: reduce.StrategyManual, TotalSegments: 30}
	cfg.Mechanisms.Custom = []biophys.Mechanism{{Name: "kdr", Params: map[string]float64{"gbar_kdr": 0.01}, Reducible: true}}
	interval := time.Minute
	cfg.Telemetry.ExportInterval = (*Duration)(&interval)

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, path, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}
	if path != configPath {
		t.Errorf("path = %s, want %s", path, configPath)
	}
	if loaded.Reduction.Frequency != 250 {
		t.Errorf("Frequency = %g, want 250", loaded.Reduction.Frequency)
	}
	if loaded.Reduction.Segmentation.TotalSegments != 30 {
		t.Errorf("TotalSegments = %d, want 30", loaded.Reduction.Segmentation.TotalSegments)
	}
	if len(loaded.Mechanisms.Custom) != 1 || loaded.Mechanisms.Custom[0].Params["gbar_kdr"] != 0.01 {
		t.Errorf("Custom = %+v", loaded.Mechanisms.Custom)
	}
	if loaded.Telemetry.ExportInterval == nil || loaded.Telemetry.ExportInterval.Duration() != time.Minute {
		t.Errorf("ExportInterval = %v, want 1m", loaded.Telemetry.ExportInterval)
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := writeConfig(t, "reduction:\n  frequency: 10\n")

	cfg, _, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}
	if cfg.Reduction.Frequency != 10 {
		t.Errorf("Frequency = %g, want 10", cfg.Reduction.Frequency)
	}
	if cfg.Reduction.Bisection.MaxIter != reduce.DefaultMaxIter {
		t.Errorf("MaxIter = %d, want default", cfg.Reduction.Bisection.MaxIter)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed yaml", "reduction: [", "parse config"},
		{"invalid value", "reduction:\n  segmentation:\n    strategy: cubic\n", "invalid config"},
		{"bad duration", "telemetry:\n  export_interval: soon\n", "parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := LoadFromPath(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadFromPath() error = %v, want %q", err, tt.want)
			}
		})
	}

	if _, _, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFromPath() should fail for a missing file")
	}
}

func TestFindConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ConfigFileName)

	cfg := DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	t.Chdir(tmpDir)

	found := FindConfigPath()
	if found == "" {
		t.Error("FindConfigPath() should find config in working directory")
	}

	// Explicit path doesn't exist, should fall back
	t.Setenv(EnvConfigPath, "/nonexistent/path.yaml")
	found = FindConfigPath()
	if found == "" {
		t.Error("FindConfigPath() should fall back when env path doesn't exist")
	}

	explicit := writeConfig(t, "version: 1\n")
	t.Setenv(EnvConfigPath, explicit)
	if found = FindConfigPath(); found != explicit {
		t.Errorf("FindConfigPath() = %s, want %s", found, explicit)
	}
}

func TestSearchPaths(t *testing.T) {
	t.Setenv(EnvConfigPath, "/srv/cell.yaml")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	t.Setenv("HOME", "/home/user")

	want := []string{
		"/srv/cell.yaml",
		ConfigFileName,
		"/xdg/dendroreduce/config.yaml",
		"/home/user/.config/dendroreduce/config.yaml",
		"/etc/dendroreduce/config.yaml",
	}
	got := SearchPaths()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("SearchPaths() = %v, want %v", got, want)
	}
	if path := DefaultConfigPath(); path != want[2] {
		t.Errorf("DefaultConfigPath() = %s, want %s", path, want[2])
	}

	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "")
	got = SearchPaths()
	if len(got) != 2 || got[0] != ConfigFileName {
		t.Errorf("SearchPaths() without env = %v", got)
	}
	if path := DefaultConfigPath(); path != ConfigFileName {
		t.Errorf("DefaultConfigPath() = %s, want %s", path, ConfigFileName)
	}
}

func TestDuration(t *testing.T) {
	d := Duration(5 * time.Minute)

	if d.Duration() != 5*time.Minute {
		t.Errorf("Duration() = %s, want 5m", d.Duration())
	}

	marshaled, err := d.MarshalYAML()
	if err != nil {
		t.Fatalf("MarshalYAML() error: %v", err)
	}
	if marshaled != "5m0s" {
		t.Errorf("MarshalYAML() = %v, want 5m0s", marshaled)
	}
}
