package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxExecuteDurationMinutes caps execution windows; AI-suggested durations
// above the cap are clamped, configured ones are rejected.
const MaxExecuteDurationMinutes = 15

// Config models loopline.yml.
type Config struct {
	Profile struct {
		ID string `yaml:"id"`
	} `yaml:"profile"`
	Execute struct {
		DefaultDurationMinutes int    `yaml:"default_duration_minutes"`
		FallbackStartAction    string `yaml:"fallback_start_action"`
		FallbackStopRule       string `yaml:"fallback_stop_rule"`
	} `yaml:"execute"`
	Focus struct {
		TickMillis int `yaml:"tick_ms"`
		PollMillis int `yaml:"poll_ms"`
	} `yaml:"focus"`
	Sync struct {
		Enabled        bool   `yaml:"enabled"`
		URL            string `yaml:"url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"sync"`
	AI struct {
		Enabled bool   `yaml:"enabled"`
		Model   string `yaml:"model"`
	} `yaml:"ai"`
	Inspector struct {
		Mode         string `yaml:"mode" enum:"static,browser"`
		ControlURL   string `yaml:"control_url"`
		StaticDomain string `yaml:"static_domain"`
	} `yaml:"inspector"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns defaults if the config file does not exist.
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
	if c.Execute.DefaultDurationMinutes <= 0 {
		return fmt.Errorf("config.execute.default_duration_minutes must be positive")
	}
	if c.Execute.DefaultDurationMinutes > MaxExecuteDurationMinutes {
		return fmt.Errorf("config.execute.default_duration_minutes must be <= %d", MaxExecuteDurationMinutes)
	}
	if c.Execute.FallbackStartAction == "" {
		return fmt.Errorf("config.execute.fallback_start_action is required")
	}
	if c.Execute.FallbackStopRule == "" {
		return fmt.Errorf("config.execute.fallback_stop_rule is required")
	}
	if c.Focus.TickMillis <= 0 || c.Focus.PollMillis <= 0 {
		return fmt.Errorf("config.focus intervals must be positive")
	}
	if c.Sync.Enabled && c.Sync.URL == "" {
		return fmt.Errorf("config.sync.url is required when sync is enabled")
	}
	switch c.Inspector.Mode {
	case "static", "browser":
	default:
		return fmt.Errorf("config.inspector.mode must be 'static' or 'browser'")
	}
	return nil
}

// TickInterval returns the countdown recompute cadence.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Focus.TickMillis) * time.Millisecond
}

// PollInterval returns the domain-inspection cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Focus.PollMillis) * time.Millisecond
}

// SyncTimeout returns the outbound delivery timeout.
func (c *Config) SyncTimeout() time.Duration {
	if c.Sync.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Sync.TimeoutSeconds) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "loopline.yml")
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

const defaultTemplate = `profile:
  id: ""

execute:
  default_duration_minutes: 10
  fallback_start_action: "Open the item and take the first concrete step."
  fallback_stop_rule: "Stop when the timer ends, whatever the state."

focus:
  tick_ms: 1000
  poll_ms: 1000

sync:
  enabled: false
  url: ""
  timeout_seconds: 5

ai:
  enabled: false
  model: gemini-2.0-flash

inspector:
  mode: static
  control_url: ""
  static_domain: ""
`
