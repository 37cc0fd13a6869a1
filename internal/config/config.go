// Package config holds the render settings shared across the pipeline.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config controls one render run. Zero values are filled in by Default
// semantics via Load or ApplyDefaults.
type Config struct {
	FPS           int     `yaml:"fps"`
	CanvasSize    int     `yaml:"canvas_size"`
	CRF           int     `yaml:"crf"`
	Preset        string  `yaml:"preset"`
	Workers       int     `yaml:"workers"`        // 0 = size from the host
	EncodeTimeout float64 `yaml:"encode_timeout"` // seconds per scene encode
	AmbientFX     bool    `yaml:"ambient_effects"`
	OutputDir     string  `yaml:"output_dir"`
}

// Default returns the standard settings: 30 fps on the 1024 canvas,
// near-visually-lossless H.264.
func Default() *Config {
	return &Config{
		FPS:           30,
		CanvasSize:    1024,
		CRF:           18,
		Preset:        "medium",
		EncodeTimeout: 600,
		AmbientFX:     true,
		OutputDir:     "output",
	}
}

// Load reads a YAML settings file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the renderer cannot honor.
func (c *Config) Validate() error {
	if c.FPS <= 0 {
		return fmt.Errorf("config: fps must be > 0, got %d", c.FPS)
	}
	if c.CanvasSize <= 0 {
		return fmt.Errorf("config: canvas_size must be > 0, got %d", c.CanvasSize)
	}
	if c.CRF < 0 || c.CRF > 51 {
		return fmt.Errorf("config: crf must be in [0,51], got %d", c.CRF)
	}
	return nil
}
