package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models castline.yml.
type Config struct {
	Scheduler struct {
		TickSeconds int `yaml:"tick_seconds"`
	} `yaml:"scheduler"`
	Sends struct {
		MinDelaySec int `yaml:"min_delay_sec"`
		MaxDelaySec int `yaml:"max_delay_sec"`
	} `yaml:"sends"`
	Window struct {
		StartHour *int `yaml:"start_hour"`
		EndHour   *int `yaml:"end_hour"`
	} `yaml:"window"`
	Gateway struct {
		URL            string `yaml:"url"`
		Token          string `yaml:"token"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"gateway"`
	Depth struct {
		DefaultLevel int `yaml:"default_level"`
	} `yaml:"depth"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with cast config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Scheduler.TickSeconds <= 0 {
		return fmt.Errorf("config.scheduler.tick_seconds must be positive")
	}
	if c.Sends.MinDelaySec < 0 {
		return fmt.Errorf("config.sends.min_delay_sec must not be negative")
	}
	if c.Sends.MaxDelaySec < c.Sends.MinDelaySec {
		return fmt.Errorf("config.sends.max_delay_sec must be >= min_delay_sec")
	}
	if (c.Window.StartHour == nil) != (c.Window.EndHour == nil) {
		return fmt.Errorf("config.window requires both start_hour and end_hour")
	}
	if c.Window.StartHour != nil {
		if *c.Window.StartHour < 0 || *c.Window.StartHour > 23 {
			return fmt.Errorf("config.window.start_hour must be 0-23")
		}
		if *c.Window.EndHour < 0 || *c.Window.EndHour > 23 {
			return fmt.Errorf("config.window.end_hour must be 0-23")
		}
	}
	if c.Depth.DefaultLevel < 1 || c.Depth.DefaultLevel > 10 {
		return fmt.Errorf("config.depth.default_level must be 1-10")
	}
	if c.Gateway.TimeoutSeconds < 0 {
		return fmt.Errorf("config.gateway.timeout_seconds must not be negative")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "castline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `scheduler:
  tick_seconds: 60

sends:
  min_delay_sec: 5
  max_delay_sec: 15

# Uncomment to restrict sending hours globally. Campaigns may
# define their own operating window on top of this default.
# window:
#   start_hour: 9
#   end_hour: 21

gateway:
  url: http://127.0.0.1:3001
  token: ""
  timeout_seconds: 15

depth:
  default_level: 1
`
