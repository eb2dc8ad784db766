package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Automation AutomationConfig `toml:"automation"`
	Validator  ValidatorConfig  `toml:"validator"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type AutomationConfig struct {
	Workspace       string `toml:"workspace"`
	OutputsDir      string `toml:"outputs_dir"`
	PollIntervalSec int    `toml:"poll_interval_sec"`
	MaxIterations   int    `toml:"max_iterations"`
}

type ValidatorConfig struct {
	RunnerPath string `toml:"runner_path"`
	TimeoutSec int    `toml:"timeout_sec"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "data/stratforge.db",
		},
		Automation: AutomationConfig{
			Workspace:       ".",
			OutputsDir:      "automation_outputs",
			PollIntervalSec: 5,
			MaxIterations:   3,
		},
		Validator: ValidatorConfig{
			RunnerPath: "build/strategy_runner",
			TimeoutSec: 120,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// PollInterval returns the controller idle sleep as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Automation.PollIntervalSec) * time.Second
}

// ValidatorTimeout returns the external runner deadline as a duration.
func (c *Config) ValidatorTimeout() time.Duration {
	return time.Duration(c.Validator.TimeoutSec) * time.Second
}
