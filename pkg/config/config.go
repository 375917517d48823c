// Package config provides configuration loading and management for vesselstenosis.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Branch tree reconstruction parameters
	Tree struct {
		// MinBranchLength discards branches shorter than this arc length in mm
		MinBranchLength float64 `yaml:"minBranchLength"`

		// EndCutoff is the arc length in mm trimmed from both branch ends
		EndCutoff float64 `yaml:"endCutoff"`

		// OverlapTolerance is the distance in mm under which two samples of
		// different lines count as the same point; 0 requires exact equality
		OverlapTolerance float64 `yaml:"overlapTolerance"`
	} `yaml:"tree"`

	// Stenosis detection parameters
	Detection struct {
		// EdgeMargin is the number of samples a candidate keeps from window edges
		EdgeMargin int `yaml:"edgeMargin"`

		// DiameterThreshold in mm; 0 derives a threshold from each branch
		DiameterThreshold float64 `yaml:"diameterThreshold"`

		// AutoThresholdRatio scales the median branch diameter when no
		// threshold is given
		AutoThresholdRatio float64 `yaml:"autoThresholdRatio"`
	} `yaml:"detection"`

	// Radius profile smoothing applied before detection
	Smoothing struct {
		// MedianWindow is the odd width of the sliding median; 0 disables it
		MedianWindow int `yaml:"medianWindow"`

		// LowPassCutoff is the kept fraction of the frequency band; 0 disables it
		LowPassCutoff float64 `yaml:"lowPassCutoff"`
	} `yaml:"smoothing"`

	// Stenosis quantification parameters
	Quantification struct {
		// NormalHalfWindow is the half-width of the tangent stencil in samples
		NormalHalfWindow int `yaml:"normalHalfWindow"`

		// PaletteSize is the number of display color slots
		PaletteSize int `yaml:"paletteSize"`
	} `yaml:"quantification"`

	// Mesh clipping parameters
	Clip struct {
		// SphereStride is the sample spacing between clip sphere centers
		SphereStride int `yaml:"sphereStride"`

		// RadiusScale multiplies the largest stenosis radius for the spheres
		RadiusScale float64 `yaml:"radiusScale"`

		// LargestComponent keeps only the largest connected piece of the clip
		LargestComponent bool `yaml:"largestComponent"`
	} `yaml:"clip"`

	// Output parameters
	Output struct {
		// LogFile receives JSON logs in addition to stderr; empty disables it
		LogFile string `yaml:"logFile"`

		// LogLevel is one of DEBUG, INFO, WARN, ERROR
		LogLevel string `yaml:"logLevel"`

		// Verbose prints per-branch details in the CLI
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Tree.MinBranchLength = 20.0
	cfg.Tree.EndCutoff = 1.0
	cfg.Tree.OverlapTolerance = 0

	cfg.Detection.EdgeMargin = 10
	cfg.Detection.DiameterThreshold = 0
	cfg.Detection.AutoThresholdRatio = 0.7

	cfg.Smoothing.MedianWindow = 0
	cfg.Smoothing.LowPassCutoff = 0

	cfg.Quantification.NormalHalfWindow = 5
	cfg.Quantification.PaletteSize = 10

	cfg.Clip.SphereStride = 10
	cfg.Clip.RadiusScale = 2.0
	cfg.Clip.LargestComponent = false

	cfg.Output.LogFile = ""
	cfg.Output.LogLevel = "INFO"
	cfg.Output.Verbose = true

	return cfg
}

// Validate checks that the configuration values are usable
func (c *Config) Validate() error {
	var errs []error
	if c.Tree.MinBranchLength < 0 {
		errs = append(errs, fmt.Errorf("tree.minBranchLength must be non-negative, got %g", c.Tree.MinBranchLength))
	}
	if c.Tree.EndCutoff < 0 {
		errs = append(errs, fmt.Errorf("tree.endCutoff must be non-negative, got %g", c.Tree.EndCutoff))
	}
	if c.Tree.OverlapTolerance < 0 {
		errs = append(errs, fmt.Errorf("tree.overlapTolerance must be non-negative, got %g", c.Tree.OverlapTolerance))
	}
	if c.Detection.EdgeMargin < 0 {
		errs = append(errs, fmt.Errorf("detection.edgeMargin must be non-negative, got %d", c.Detection.EdgeMargin))
	}
	if c.Detection.DiameterThreshold < 0 {
		errs = append(errs, fmt.Errorf("detection.diameterThreshold must be non-negative, got %g", c.Detection.DiameterThreshold))
	}
	if c.Detection.AutoThresholdRatio <= 0 || c.Detection.AutoThresholdRatio > 1 {
		errs = append(errs, fmt.Errorf("detection.autoThresholdRatio must be in (0, 1], got %g", c.Detection.AutoThresholdRatio))
	}
	if c.Smoothing.MedianWindow < 0 || (c.Smoothing.MedianWindow > 0 && c.Smoothing.MedianWindow%2 == 0) {
		errs = append(errs, fmt.Errorf("smoothing.medianWindow must be zero or odd, got %d", c.Smoothing.MedianWindow))
	}
	if c.Smoothing.LowPassCutoff < 0 || c.Smoothing.LowPassCutoff > 1 {
		errs = append(errs, fmt.Errorf("smoothing.lowPassCutoff must be in [0, 1], got %g", c.Smoothing.LowPassCutoff))
	}
	if c.Quantification.NormalHalfWindow < 1 {
		errs = append(errs, fmt.Errorf("quantification.normalHalfWindow must be positive, got %d", c.Quantification.NormalHalfWindow))
	}
	if c.Quantification.PaletteSize < 1 {
		errs = append(errs, fmt.Errorf("quantification.paletteSize must be positive, got %d", c.Quantification.PaletteSize))
	}
	if c.Clip.SphereStride < 1 {
		errs = append(errs, fmt.Errorf("clip.sphereStride must be positive, got %d", c.Clip.SphereStride))
	}
	if c.Clip.RadiusScale <= 0 {
		errs = append(errs, fmt.Errorf("clip.radiusScale must be positive, got %g", c.Clip.RadiusScale))
	}
	return errors.Join(errs...)
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
