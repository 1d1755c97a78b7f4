package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"opsboard/internal/domain"
)

// Config models opsboard.yml.
type Config struct {
	Project struct {
		ID   string `yaml:"id" json:"id"`
		Name string `yaml:"name,omitempty" json:"name,omitempty"`
	} `yaml:"project" json:"project"`
	Board struct {
		// Templates maps a stage type to the ordered stage columns seeded
		// for it. Seeding only happens through an explicit command; a new
		// project starts with no stages at all.
		Templates map[string][]StageTemplate `yaml:"templates" json:"templates"`
	} `yaml:"board" json:"board"`
	Webhooks []Webhook `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

type StageTemplate struct {
	Name  string `yaml:"name" json:"name"`
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
}

type Webhook struct {
	URL    string   `yaml:"url" json:"url"`
	Events []string `yaml:"events,omitempty" json:"events,omitempty"`
	Secret string   `yaml:"secret,omitempty" json:"secret,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with ob project config import --file <path>", path)
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
	for stageType, tmpl := range c.Board.Templates {
		switch stageType {
		case domain.StageTypeTask, domain.StageTypeIncident, domain.StageTypeResource:
		default:
			return fmt.Errorf("config.board.templates has unknown stage type %s", stageType)
		}
		if len(tmpl) == 0 {
			return fmt.Errorf("config.board.templates.%s is empty", stageType)
		}
		seen := map[string]bool{}
		for _, st := range tmpl {
			if st.Name == "" {
				return fmt.Errorf("config.board.templates.%s has a stage with no name", stageType)
			}
			if seen[st.Name] {
				return fmt.Errorf("config.board.templates.%s repeats stage %s", stageType, st.Name)
			}
			seen[st.Name] = true
		}
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
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
	return filepath.Join(workspace, "opsboard.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID string) string {
	return fmt.Sprintf(defaultTemplate, projectID)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	cfg.Project.ID = projectID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, projectID))).Decode(&cfg)
	return &cfg
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

board:
  templates:
    TASK:
      - name: To Do
        color: "#94a3b8"
      - name: In Progress
        color: "#3b82f6"
      - name: Done
        color: "#22c55e"

    INCIDENT:
      - name: New
        color: "#ef4444"
      - name: Investigating
        color: "#f97316"
      - name: Resolved
        color: "#22c55e"

    RESOURCE:
      - name: Requested
        color: "#94a3b8"
      - name: Approved
        color: "#3b82f6"
      - name: Fulfilled
        color: "#22c55e"
`
