// Package config loads and saves run configurations for the CLI.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRelTol   = 1e-6
	DefaultAbsTol   = 1e-8
	DefaultTEnd     = 10.0
	DefaultPoints   = 200
	DefaultMaxSteps = 5000
)

type Config struct {
	Model    string  `yaml:"model"`
	Method   string  `yaml:"method"`
	Solver   string  `yaml:"solver"`
	RelTol   float64 `yaml:"rtol"`
	AbsTol   float64 `yaml:"atol"`
	T0       float64 `yaml:"t0"`
	TEnd     float64 `yaml:"tend"`
	Points   int     `yaml:"points"`
	MaxSteps int64   `yaml:"max_steps"`
	StopTime float64 `yaml:"stop_time"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:    "pendulum",
		Method:   "adams",
		Solver:   "",
		RelTol:   DefaultRelTol,
		AbsTol:   DefaultAbsTol,
		TEnd:     DefaultTEnd,
		Points:   DefaultPoints,
		MaxSteps: DefaultMaxSteps,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.RelTol < 0 || c.AbsTol <= 0 {
		return fmt.Errorf("config: tolerances must be positive (rtol=%g atol=%g)", c.RelTol, c.AbsTol)
	}
	if c.TEnd <= c.T0 {
		return fmt.Errorf("config: tend %g must exceed t0 %g", c.TEnd, c.T0)
	}
	if c.Points < 2 {
		return fmt.Errorf("config: need at least 2 output points, got %d", c.Points)
	}
	return nil
}
