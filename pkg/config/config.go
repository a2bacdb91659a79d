// Package config provides configuration loading and management for the
// raster processing engine. It handles loading configuration from YAML files
// and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"rastermath/pkg/rastermath"
)

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Processing parameters
	Processing struct {
		// Workers is the size of the block compute pool
		Workers int `yaml:"workers"`

		// BlockSize pins a square block side in pixels; 0 lets the
		// memory budget decide
		BlockSize int `yaml:"blockSize"`

		// FlushInterval is the number of block writes between output flushes
		FlushInterval int `yaml:"flushInterval"`

		// ForceNativeBlocks follows the raster's native tiling even when
		// the memory budget would pick smaller blocks
		ForceNativeBlocks bool `yaml:"forceNativeBlocks"`

		// FilterNoData drops pixel rows whose first band equals the input
		// nodata value, in addition to the mask
		FilterNoData bool `yaml:"filterNoData"`
	} `yaml:"processing"`

	// Mask parameters
	Mask struct {
		// ValidMin and ValidMax bound the mask values that mark a pixel
		// as participating
		ValidMin float64 `yaml:"validMin"`
		ValidMax float64 `yaml:"validMax"`
	} `yaml:"mask"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.Workers = max(1, runtime.NumCPU()-1)
	cfg.Processing.BlockSize = 0
	cfg.Processing.FlushInterval = rastermath.DefaultFlushInterval
	cfg.Processing.ForceNativeBlocks = false
	cfg.Processing.FilterNoData = false

	// Mask convention: any value >= 1 keeps the pixel.
	cfg.Mask.ValidMin = 1
	cfg.Mask.ValidMax = 255

	cfg.Output.Verbose = false

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// EngineParams converts the configuration into engine parameters.
func (cfg *Config) EngineParams() rastermath.Params {
	return rastermath.Params{
		BlockSize:         cfg.Processing.BlockSize,
		Workers:           cfg.Processing.Workers,
		FlushInterval:     cfg.Processing.FlushInterval,
		ForceNativeBlocks: cfg.Processing.ForceNativeBlocks,
		FilterNoData:      cfg.Processing.FilterNoData,
		Verbose:           cfg.Output.Verbose,
	}
}

// MaskRange returns the mask validity range from the configuration.
func (cfg *Config) MaskRange() rastermath.ValidRange {
	return rastermath.ValidRange{Min: cfg.Mask.ValidMin, Max: cfg.Mask.ValidMax}
}
