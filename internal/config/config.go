package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models ticketflow.yml.
type Config struct {
	Project struct {
		ID string `yaml:"id"`
	} `yaml:"project"`
	Verification struct {
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		MaxRetries     int    `yaml:"max_retries"`
		ArtifactsDir   string `yaml:"artifacts_dir"`
	} `yaml:"verification"`
	Assets struct {
		Dir string `yaml:"dir"`
	} `yaml:"assets"`
	Worker struct {
		Agent       string `yaml:"agent"`
		Command     string `yaml:"command"`
		PollSeconds int    `yaml:"poll_seconds"`
	} `yaml:"worker"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with tf config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if c.Verification.TimeoutSeconds < 0 {
		return fmt.Errorf("config.verification.timeout_seconds must not be negative")
	}
	if c.Verification.MaxRetries < 0 {
		return fmt.Errorf("config.verification.max_retries must not be negative")
	}
	if c.Worker.PollSeconds < 0 {
		return fmt.Errorf("config.worker.poll_seconds must not be negative")
	}
	if c.Worker.Agent != "" {
		for _, r := range c.Worker.Agent {
			if r == '/' || r == ' ' {
				return fmt.Errorf("config.worker.agent must not contain %q", r)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "ticketflow.yml")
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	cfg.Project.ID = projectID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, projectID))).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `project:
  id: %s

verification:
  # Runs with a context deadline; 0 means no deadline.
  timeout_seconds: 600
  # Verification attempts per ticket before the worker gives up.
  max_retries: 3
  artifacts_dir: artifacts

assets:
  dir: assets

worker:
  agent: radkit
  # Shell command run on each attempt; failure output arrives in TF_FEEDBACK.
  command: ""
  poll_seconds: 5
`
