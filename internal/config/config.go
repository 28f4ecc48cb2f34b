package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models intakeline.yml.
type Config struct {
	Portal struct {
		Name string `yaml:"name"`
	} `yaml:"portal"`
	Requests struct {
		// DefaultRejectNote is stored when a manager rejects without a note.
		DefaultRejectNote string `yaml:"default_reject_note"`
		AllowedTypes      []string `yaml:"allowed_types"`
	} `yaml:"requests"`
	Sprints struct {
		// TasksPerSprint pairs generated tasks into sprints at conversion.
		TasksPerSprint int `yaml:"tasks_per_sprint"`
	} `yaml:"sprints"`
	Auth struct {
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Portal.Name == "" {
		return fmt.Errorf("config.portal.name is required")
	}
	if c.Sprints.TasksPerSprint <= 0 {
		return fmt.Errorf("config.sprints.tasks_per_sprint must be positive")
	}
	if len(c.Requests.AllowedTypes) == 0 {
		return fmt.Errorf("config.requests.allowed_types is required")
	}
	for _, t := range c.Requests.AllowedTypes {
		if t == "" {
			return fmt.Errorf("config.requests.allowed_types contains empty type")
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "intakeline.yml")
}

// Load reads and validates config from workspace.
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

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
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

// Default returns the default Config struct for a portal.
func Default(portalName string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, portalName))).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(portalName string) string {
	return fmt.Sprintf(defaultTemplate, portalName)
}

const defaultTemplate = `portal:
  name: %s

requests:
  default_reject_note: "Request rejected by manager review."
  allowed_types: [web_dev, app_dev, prototype, research]

sprints:
  tasks_per_sprint: 2

auth:
  jwt_secret: ""
  allow_legacy_actor_header: true
`
