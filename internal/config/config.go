// Package config loads and validates the nao project configuration.
//
// A project is a directory containing a nao_config.yaml file. The file
// names the project, selects default models, declares warehouse
// connections for the sql tool, and points at the external tool server
// directory file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nao-labs/nao-agent/pkg/models"
)

// ConfigFileName is the well-known project configuration file name.
const ConfigFileName = "nao_config.yaml"

// ErrNoProjectConfig is returned when no nao_config.yaml exists in the
// project directory.
var ErrNoProjectConfig = errors.New("no nao_config.yaml found")

// ErrNoModelConfig is returned when no model can be resolved from the
// request, the project config, or the environment.
var ErrNoModelConfig = errors.New("no model configured: set llm.provider and llm.model in nao_config.yaml or export ANTHROPIC_API_KEY / OPENAI_API_KEY")

// Config is the root project configuration.
type Config struct {
	ProjectName string `yaml:"project_name"`

	LLM       LLMConfig        `yaml:"llm,omitempty"`
	Databases []DatabaseConfig `yaml:"databases,omitempty"`
	Agent     AgentConfig      `yaml:"agent,omitempty"`
	Logging   LoggingConfig    `yaml:"logging,omitempty"`
	Metrics   MetricsConfig    `yaml:"metrics,omitempty"`

	// ToolServersFile points at the external tool server directory file,
	// relative to the project root unless absolute.
	ToolServersFile string `yaml:"tool_servers_file,omitempty"`

	// SkillsDir holds markdown skill files, relative to the project root
	// unless absolute.
	SkillsDir string `yaml:"skills_dir,omitempty"`

	// ProjectDir is the directory the config was loaded from. Not part
	// of the file.
	ProjectDir string `yaml:"-"`
}

// LLMConfig selects the project's default models.
type LLMConfig struct {
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`

	// ExtractorModel overrides the cheap model used for background
	// memory extraction. Empty selects a provider default.
	ExtractorModel string `yaml:"extractor_model,omitempty"`
}

// DatabaseType identifies a supported warehouse backend.
type DatabaseType string

const (
	DatabasePostgres DatabaseType = "postgres"
	DatabaseSQLite   DatabaseType = "sqlite"
)

// DatabaseConfig declares one warehouse connection usable by the sql
// tool. Secrets belong in environment variables referenced with
// ${VAR} placeholders, which are expanded at load time.
type DatabaseConfig struct {
	Name string       `yaml:"name"`
	Type DatabaseType `yaml:"type"`

	// DSN is the driver connection string for postgres.
	DSN string `yaml:"dsn,omitempty"`

	// Path is the database file path for sqlite.
	Path string `yaml:"path,omitempty"`

	// MaxRows caps rows returned per query. Zero uses the default.
	MaxRows int `yaml:"max_rows,omitempty"`
}

// AgentConfig tunes run behavior.
type AgentConfig struct {
	// DisabledTools lists static tools removed from the merged tool set.
	DisabledTools []string `yaml:"disabled_tools,omitempty"`

	// MaxOutputTokens is the cumulative output-token ceiling per run.
	// Zero uses the default.
	MaxOutputTokens int `yaml:"max_output_tokens,omitempty"`

	// MemoryTokenBudget caps tokens spent on injected memories.
	// Zero uses the default.
	MemoryTokenBudget int `yaml:"memory_token_budget,omitempty"`

	// MaxSteps caps model calls per run. Zero uses the default.
	MaxSteps int `yaml:"max_steps,omitempty"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Addr    string `yaml:"addr,omitempty"`
}

// Validate checks internal consistency. Called after load.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ProjectName) == "" {
		return fmt.Errorf("project_name is required")
	}
	if c.LLM.Provider != "" {
		switch models.Provider(c.LLM.Provider) {
		case models.ProviderAnthropic, models.ProviderOpenAI:
		default:
			return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
		}
	}
	seen := make(map[string]bool, len(c.Databases))
	for i, db := range c.Databases {
		if strings.TrimSpace(db.Name) == "" {
			return fmt.Errorf("databases[%d]: name is required", i)
		}
		if seen[db.Name] {
			return fmt.Errorf("databases[%d]: duplicate name %q", i, db.Name)
		}
		seen[db.Name] = true
		switch db.Type {
		case DatabasePostgres:
			if db.DSN == "" {
				return fmt.Errorf("database %q: dsn is required for postgres", db.Name)
			}
		case DatabaseSQLite:
			if db.Path == "" {
				return fmt.Errorf("database %q: path is required for sqlite", db.Name)
			}
		default:
			return fmt.Errorf("database %q: unknown type %q", db.Name, db.Type)
		}
	}
	return nil
}

// Database returns the named connection config, or false.
func (c *Config) Database(name string) (DatabaseConfig, bool) {
	for _, db := range c.Databases {
		if db.Name == name {
			return db, true
		}
	}
	return DatabaseConfig{}, false
}
