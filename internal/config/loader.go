package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by Load when the work directory has no config file
var ErrNotFound = errors.New("config file not found")

// Loader handles loading and parsing .chameleon-mock.yml
type Loader struct {
	filePath string
	workDir  string
}

// NewLoader creates a new config loader
func NewLoader(workDir string) *Loader {
	return &Loader{
		filePath: filepath.Join(workDir, FileName),
		workDir:  workDir,
	}
}

// Path returns the config file location
func (l *Loader) Path() string {
	return l.filePath
}

// Load reads and parses .chameleon-mock.yml
func (l *Loader) Load() (*Config, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s\nRun 'chameleon-mock init' to create one", ErrNotFound, l.filePath)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// DATABASE_URL wins over the file
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.ConnectionString = url
	} else {
		cfg.Database.ConnectionString = os.ExpandEnv(cfg.Database.ConnectionString)
	}

	if err := l.resolvePaths(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// resolvePaths converts relative paths to absolute
func (l *Loader) resolvePaths(cfg *Config) error {
	for i, path := range cfg.Schema.Paths {
		abs, err := l.resolvePath(path)
		if err != nil {
			return fmt.Errorf("invalid schema path '%s': %w", path, err)
		}
		cfg.Schema.Paths[i] = abs
	}

	for i, path := range cfg.Seed.Paths {
		abs, err := l.resolvePath(path)
		if err != nil {
			return fmt.Errorf("invalid seed path '%s': %w", path, err)
		}
		cfg.Seed.Paths[i] = abs
	}

	if cfg.Schema.MergedOutput != "" {
		abs, err := l.resolvePath(cfg.Schema.MergedOutput)
		if err != nil {
			return fmt.Errorf("invalid merged_output path '%s': %w", cfg.Schema.MergedOutput, err)
		}
		cfg.Schema.MergedOutput = abs
	}

	return nil
}

// resolvePath converts relative or absolute path to absolute
func (l *Loader) resolvePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Abs(filepath.Join(l.workDir, path))
}

// LoadOrDefault loads config or returns defaults resolved against the work
// directory.
func (l *Loader) LoadOrDefault() (*Config, error) {
	cfg, err := l.Load()
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	cfg = Defaults()
	cfg.Database.ConnectionString = os.Getenv("DATABASE_URL")
	if err := l.resolvePaths(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to file
func (l *Loader) Save(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(l.filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// WriteTemplate writes the commented template, filled with cfg's version
// and creation time. The result loads back into an equivalent Config.
func (l *Loader) WriteTemplate(cfg *Config) error {
	tmpl, err := template.New("config").Parse(Template())
	if err != nil {
		return fmt.Errorf("failed to parse config template: %w", err)
	}
	var b strings.Builder
	err = tmpl.Execute(&b, map[string]string{
		"Version":   cfg.Version,
		"CreatedAt": cfg.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to render config template: %w", err)
	}
	if err := os.WriteFile(l.filePath, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Template returns the template content for .chameleon-mock.yml
func Template() string {
	return `# chameleon-mock configuration
# Generated at {{.CreatedAt}}

version: "{{.Version}}"
created_at: {{.CreatedAt}}

# Schema descriptors (*.json), directories or files
schema:
  paths:
    - "./schemas"

  # Where to save the merged descriptor (for reference)
  merged_output: ".chameleon-mock/state/schema.merged.json"

  # Reject create/update payload keys that name no field
  strict_fields: true

# Initial records
seed:
  # files | database | none
  source: files
  paths:
    - "./seeds"

# In-memory engine behaviour
engine:
  case_insensitive: false
  indexes: true
  # ops | trace | explain
  # debug: ops

# Live database used when seed.source is "database"
database:
  # DATABASE_URL takes precedence when set
  connection_string: ${DATABASE_URL}
  max_connections: 4
  connection_timeout: 30  # seconds
  # tables: [User, Post]

# Feature flags
features:
  # Record CLI actions in .chameleon-mock/journal
  audit_logging: true
`
}
