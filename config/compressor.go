package config

import (
	"fmt"

	"github.com/leeforge/imgcompress/logging"
	"github.com/leeforge/imgcompress/media/processor"
	"github.com/leeforge/imgcompress/media/queue"
)

// CompressorConfig is the full configuration of an image compression service.
type CompressorConfig struct {
	Processor    processor.Options `mapstructure:"processor" json:"processor" yaml:"processor"`
	Queue        queue.Options     `mapstructure:"queue" json:"queue" yaml:"queue"`
	Logging      logging.Config    `mapstructure:"logging" json:"logging" yaml:"logging"`
	DefaultClass string            `mapstructure:"default-class" json:"defaultClass" yaml:"default-class" default:"standard" validate:"required"`
}

// Validate resolves the default size class.
func (c *CompressorConfig) Validate() error {
	if _, err := processor.ParseSizeClass(c.DefaultClass); err != nil {
		return fmt.Errorf("default-class: %w", err)
	}
	return nil
}

// SizeClass returns the configured default size class.
func (c *CompressorConfig) SizeClass() processor.SizeClass {
	class, err := processor.ParseSizeClass(c.DefaultClass)
	if err != nil {
		return processor.Standard
	}
	return class
}

// LoadCompressor reads, defaults and validates a CompressorConfig. Missing
// files are allowed so the defaults alone form a usable config.
func LoadCompressor(opts ConfigOptions) (*CompressorConfig, *Config, error) {
	opts.AllowMissing = true
	c, err := NewConfig(opts)
	if err != nil {
		return nil, nil, err
	}

	cfg := &CompressorConfig{}
	if err := c.BindWithDefaults(cfg); err != nil {
		return nil, nil, err
	}
	if err := c.Validate(cfg); err != nil {
		return nil, nil, err
	}
	return cfg, c, nil
}
