package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models talentline.yml.
type Config struct {
	Gateway      GatewayConfig      `yaml:"gateway"`
	Sequencer    SequencerConfig    `yaml:"sequencer"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

type GatewayConfig struct {
	// Mode selects canned deterministic results ("mock") or HTTP calls to
	// the collaborator services ("live").
	Mode           string            `yaml:"mode"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Provider       string            `yaml:"provider"`
	Collaborators  map[string]string `yaml:"collaborators"`
}

type SequencerConfig struct {
	BaseIntervalHours int     `yaml:"base_interval_hours"`
	Multiplier        float64 `yaml:"multiplier"`
	MaxIntervalHours  int     `yaml:"max_interval_hours"`
	MaxFailures       int     `yaml:"max_failures"`
	Tone              string  `yaml:"tone"`
}

type OrchestratorConfig struct {
	IntervalMinutes   int `yaml:"interval_minutes"`
	Workers           int `yaml:"workers"`
	MaxSendsPerRole   int `yaml:"max_sends_per_role"`
	MaxSourcesPerRole int `yaml:"max_sources_per_role"`
}

func (g GatewayConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

func (s SequencerConfig) BaseInterval() time.Duration {
	return time.Duration(s.BaseIntervalHours) * time.Hour
}

func (s SequencerConfig) MaxInterval() time.Duration {
	return time.Duration(s.MaxIntervalHours) * time.Hour
}

func (o OrchestratorConfig) Interval() time.Duration {
	return time.Duration(o.IntervalMinutes) * time.Minute
}

// Load reads and validates config from the workspace, falling back to
// defaults when talentline.yml does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
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
	switch c.Gateway.Mode {
	case "mock", "live":
	default:
		return fmt.Errorf("config.gateway.mode must be mock or live, got %q", c.Gateway.Mode)
	}
	if c.Gateway.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.gateway.timeout_seconds must be positive")
	}
	if c.Gateway.Mode == "live" {
		for _, capability := range []string{"search", "enrich", "score", "draft", "send", "meeting"} {
			if c.Gateway.Collaborators[capability] == "" {
				return fmt.Errorf("config.gateway.collaborators.%s is required in live mode", capability)
			}
		}
	}
	if c.Sequencer.BaseIntervalHours <= 0 {
		return fmt.Errorf("config.sequencer.base_interval_hours must be positive")
	}
	if c.Sequencer.Multiplier < 1 {
		return fmt.Errorf("config.sequencer.multiplier must be >= 1")
	}
	if c.Sequencer.MaxIntervalHours < c.Sequencer.BaseIntervalHours {
		return fmt.Errorf("config.sequencer.max_interval_hours must be >= base_interval_hours")
	}
	if c.Sequencer.MaxFailures <= 0 {
		return fmt.Errorf("config.sequencer.max_failures must be positive")
	}
	if c.Orchestrator.IntervalMinutes <= 0 {
		return fmt.Errorf("config.orchestrator.interval_minutes must be positive")
	}
	if c.Orchestrator.Workers <= 0 {
		return fmt.Errorf("config.orchestrator.workers must be positive")
	}
	if c.Orchestrator.MaxSendsPerRole <= 0 {
		return fmt.Errorf("config.orchestrator.max_sends_per_role must be positive")
	}
	if c.Orchestrator.MaxSourcesPerRole <= 0 {
		return fmt.Errorf("config.orchestrator.max_sources_per_role must be positive")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "talentline.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	cfg := &Config{}
	_ = yaml.Unmarshal([]byte(defaultTemplate), cfg)
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes, layering the
// file over defaults so partial configs stay valid.
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

// WriteDefault writes the commented default template to path.
func WriteDefault(path string) error {
	return os.WriteFile(path, []byte(defaultTemplate), 0o644)
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `gateway:
  mode: mock
  timeout_seconds: 15
  provider: default
  collaborators:
    search: ""
    enrich: ""
    score: ""
    draft: ""
    send: ""
    meeting: ""

sequencer:
  base_interval_hours: 24
  multiplier: 2.0
  max_interval_hours: 168
  max_failures: 3
  tone: professional

orchestrator:
  interval_minutes: 15
  workers: 4
  max_sends_per_role: 25
  max_sources_per_role: 5
`
