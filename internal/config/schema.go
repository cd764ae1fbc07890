package config

import (
	"fmt"
	"time"

	"github.com/chameleon-db/chameleon-mock/pkg/engine"
)

// FileName is the project config file looked up in the work directory
const FileName = ".chameleon-mock.yml"

// Version is written to new config files
const Version = "0.2.0"

// Config represents the complete .chameleon-mock.yml configuration
type Config struct {
	Version   string         `yaml:"version"`
	CreatedAt time.Time      `yaml:"created_at"`
	Schema    SchemaConfig   `yaml:"schema"`
	Seed      SeedConfig     `yaml:"seed"`
	Engine    EngineConfig   `yaml:"engine"`
	Database  DatabaseConfig `yaml:"database"`
	Features  FeaturesConfig `yaml:"features"`
}

// SchemaConfig holds schema descriptor settings
type SchemaConfig struct {
	Paths        []string `yaml:"paths"`                   // Directories or files with *.json descriptors
	MergedOutput string   `yaml:"merged_output,omitempty"` // Where to save the merged descriptor
	StrictFields *bool    `yaml:"strict_fields,omitempty"` // Reject payload keys that name no field; nil means enabled
}

// SeedConfig says where initial records come from
type SeedConfig struct {
	Source string   `yaml:"source"`          // files, database or none
	Paths  []string `yaml:"paths,omitempty"` // json / yaml / toml seed files or directories
}

// EngineConfig maps onto engine options
type EngineConfig struct {
	CaseInsensitive bool   `yaml:"case_insensitive,omitempty"`
	Indexes         *bool  `yaml:"indexes,omitempty"` // nil means enabled
	Debug           string `yaml:"debug,omitempty"`   // ops, trace or explain
}

// DatabaseConfig holds the PostgreSQL settings used by seed import
type DatabaseConfig struct {
	ConnectionString  string   `yaml:"connection_string"` // ${DATABASE_URL} or hardcoded
	MaxConnections    int      `yaml:"max_connections,omitempty"`
	ConnectionTimeout int      `yaml:"connection_timeout,omitempty"` // seconds
	Tables            []string `yaml:"tables,omitempty"`             // entities to import, all when empty
}

// FeaturesConfig holds feature flags
type FeaturesConfig struct {
	AuditLogging bool `yaml:"audit_logging,omitempty"` // Enable journal
}

// Seed sources
const (
	SeedSourceFiles    = "files"
	SeedSourceDatabase = "database"
	SeedSourceNone     = "none"
)

// Defaults returns a Config with sensible defaults
func Defaults() *Config {
	return &Config{
		Version:   Version,
		CreatedAt: time.Now(),
		Schema: SchemaConfig{
			Paths:        []string{"./schemas"},
			MergedOutput: ".chameleon-mock/state/schema.merged.json",
		},
		Seed: SeedConfig{
			Source: SeedSourceFiles,
			Paths:  []string{"./seeds"},
		},
		Database: DatabaseConfig{
			ConnectionString:  "${DATABASE_URL}",
			MaxConnections:    4,
			ConnectionTimeout: 30,
		},
		Features: FeaturesConfig{
			AuditLogging: true,
		},
	}
}

// Validate checks if config is valid
func (c *Config) Validate() error {
	if len(c.Schema.Paths) == 0 {
		return &ConfigError{
			Field:  "schema.paths",
			Reason: "At least one schema path is required",
		}
	}

	switch c.Seed.Source {
	case "":
		c.Seed.Source = SeedSourceFiles
	case SeedSourceFiles, SeedSourceDatabase, SeedSourceNone:
	default:
		return &ConfigError{
			Field:      "seed.source",
			Reason:     fmt.Sprintf("Unknown seed source %q", c.Seed.Source),
			Suggestion: "Use one of: files, database, none",
		}
	}

	if c.Seed.Source == SeedSourceDatabase && c.Database.ConnectionString == "" {
		return &ConfigError{
			Field:      "database.connection_string",
			Reason:     "A connection string is required to seed from a database",
			Suggestion: "Set DATABASE_URL or database.connection_string",
		}
	}

	if c.Engine.Debug != "" && engine.ParseDebugLevel(c.Engine.Debug) == engine.DebugNone {
		return &ConfigError{
			Field:      "engine.debug",
			Reason:     fmt.Sprintf("Unknown debug level %q", c.Engine.Debug),
			Suggestion: "Use one of: ops, trace, explain",
		}
	}

	if c.Database.ConnectionTimeout < 1 {
		c.Database.ConnectionTimeout = 30
	}

	if c.Database.MaxConnections < 1 {
		c.Database.MaxConnections = 4
	}

	return nil
}

// IndexesEnabled reports the effective engine.indexes setting
func (c *Config) IndexesEnabled() bool {
	return c.Engine.Indexes == nil || *c.Engine.Indexes
}

// StrictFieldsEnabled reports the effective schema.strict_fields setting
func (c *Config) StrictFieldsEnabled() bool {
	return c.Schema.StrictFields == nil || *c.Schema.StrictFields
}

// EngineOptions converts the engine section into engine options
func (c *Config) EngineOptions() []engine.Option {
	opts := []engine.Option{
		engine.WithCaseInsensitive(c.Engine.CaseInsensitive),
		engine.WithIndexes(c.IndexesEnabled()),
		engine.WithValidatorConfig(engine.ValidatorConfig{StrictFields: c.StrictFieldsEnabled()}),
	}
	if level := engine.ParseDebugLevel(c.Engine.Debug); level != engine.DebugNone {
		dc := engine.DefaultDebugContext()
		dc.Level = level
		dc.EnableTiming = true
		opts = append(opts, engine.WithDebugContext(dc))
	}
	return opts
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Reason     string
	Suggestion string
}

func (e *ConfigError) Error() string {
	msg := "Configuration error: " + e.Field + ": " + e.Reason
	if e.Suggestion != "" {
		msg += "\nSuggestion: " + e.Suggestion
	}
	return msg
}
