// Package config handles exporter configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Dialects and angle units accepted by ExportConfig.
const (
	DialectAP203 = "ap203"
	DialectAP214 = "ap214"

	AngleDegree = "degree"
	AngleRadian = "radian"
)

// Config holds all exporter settings.
type Config struct {
	Export  ExportConfig  `yaml:"export" toml:"export"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Output  OutputConfig  `yaml:"output" toml:"output"`
}

// ExportConfig controls the STEP output.
type ExportConfig struct {
	Dialect        string  `yaml:"dialect" toml:"dialect"`
	Tolerance      float64 `yaml:"tolerance" toml:"tolerance"` // uncertainty measure, mm
	AngleUnit      string  `yaml:"angle_unit" toml:"angle_unit"`
	FlipTransforms bool    `yaml:"flip_transforms" toml:"flip_transforms"`
	Author         string  `yaml:"author" toml:"author"`
	Organization   string  `yaml:"organization" toml:"organization"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
	File  string `yaml:"file" toml:"file"`
}

// OutputConfig names the optional side outputs of a run.
type OutputConfig struct {
	MetricsFile  string `yaml:"metrics_file" toml:"metrics_file"`
	ManifestFile string `yaml:"manifest_file" toml:"manifest_file"`
}

// Default returns a Config with the default values.
func Default() *Config {
	return &Config{
		Export: ExportConfig{
			Dialect:   DialectAP214,
			Tolerance: 0.05,
			AngleUnit: AngleDegree,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults. The format follows the extension:
// .yaml/.yml or .toml. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("config %s: unsupported format %q", path, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks enumerated values and ranges.
func (c *Config) Validate() error {
	switch c.Export.Dialect {
	case DialectAP203, DialectAP214:
	default:
		return fmt.Errorf("export.dialect %q: want %s or %s", c.Export.Dialect, DialectAP203, DialectAP214)
	}
	switch c.Export.AngleUnit {
	case AngleDegree, AngleRadian:
	default:
		return fmt.Errorf("export.angle_unit %q: want %s or %s", c.Export.AngleUnit, AngleDegree, AngleRadian)
	}
	if c.Export.Tolerance <= 0 {
		return fmt.Errorf("export.tolerance must be positive, got %g", c.Export.Tolerance)
	}
	return nil
}
