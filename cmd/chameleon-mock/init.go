package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/chameleon-db/chameleon-mock/internal/admin"
	"github.com/chameleon-db/chameleon-mock/internal/config"
	"github.com/chameleon-db/chameleon-mock/internal/journal"
)

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Initialize a new chameleon-mock project",
	Long: `Create a new chameleon-mock project with a schema, seed data and
configuration.

This will create:
  .chameleon-mock.yml   Main configuration file
  .chameleon-mock/      Working directory (state, snapshots, journal)
  schemas/              Schema descriptors (*.json)
  seeds/                Seed data (json, yaml or toml)
  README.md             Getting started guide

If no name is provided, initializes in the current directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var dir string

		if len(args) > 0 {
			dir = args[0]
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create project directory: %w", err)
			}
			printInfo("Creating new project in: %s", dir)
		} else {
			var err error
			dir, err = resolveWorkDir()
			if err != nil {
				return err
			}
			printInfo("Initializing chameleon-mock in: %s", dir)
		}

		factory := admin.NewManagerFactory(dir)
		loader := factory.CreateConfigLoader()
		if _, err := os.Stat(loader.Path()); err == nil {
			return fmt.Errorf("project already initialized at %s\nDelete %s to reinitialize", dir, config.FileName)
		}

		// Working directory (.chameleon-mock/)
		if err := factory.Initialize(); err != nil {
			return fmt.Errorf("failed to create %s structure: %w", admin.DirName, err)
		}
		printSuccess("Created %s/ directory", admin.DirName)

		cfg := config.Defaults()
		cfg.CreatedAt = time.Now()
		if err := loader.WriteTemplate(cfg); err != nil {
			return fmt.Errorf("failed to create %s: %w", config.FileName, err)
		}
		printSuccess("Created %s", config.FileName)

		files := []struct {
			path    string
			content string
		}{
			{filepath.Join("schemas", "blog.json"), exampleSchema()},
			{filepath.Join("seeds", "blog.yaml"), exampleSeed()},
			{"README.md", exampleReadme(filepath.Base(dir))},
		}
		for _, f := range files {
			path := filepath.Join(dir, f.path)
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", filepath.Dir(f.path), err)
			}
			if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
				return fmt.Errorf("failed to create %s: %w", f.path, err)
			}
			printSuccess("Created %s", f.path)
		}

		if logger, err := factory.CreateJournalLogger(); err == nil {
			_ = logger.Log("init", journal.StatusSuccess, map[string]any{"dir": dir}, nil)
		}

		fmt.Println()
		printSuccess("Project initialized successfully!")
		fmt.Println()
		fmt.Println("Next steps:")
		if len(args) > 0 {
			fmt.Printf("  cd %s\n", dir)
		}
		fmt.Println("  chameleon-mock validate")
		fmt.Println("  chameleon-mock query User findMany --args '{\"include\": {\"posts\": true}}'")
		fmt.Println("  chameleon-mock snapshot save baseline")
		fmt.Println()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func exampleSchema() string {
	return `{
  "entities": [
    {
      "name": "User",
      "fields": [
        {"name": "id", "type": "Int", "is_id": true, "default": {"kind": "autoincrement"}},
        {"name": "email", "type": "String", "is_unique": true, "is_required": true},
        {"name": "name", "type": "String"},
        {"name": "createdAt", "type": "DateTime", "default": {"kind": "now"}},
        {"name": "posts", "kind": "relation", "type": "Post", "is_list": true, "relation": {"name": "PostToUser"}}
      ]
    },
    {
      "name": "Post",
      "fields": [
        {"name": "id", "type": "Int", "is_id": true, "default": {"kind": "autoincrement"}},
        {"name": "title", "type": "String", "is_required": true},
        {"name": "published", "type": "Boolean", "default": {"value": false}},
        {"name": "authorId", "type": "Int"},
        {"name": "updatedAt", "type": "DateTime", "is_updated_at": true},
        {"name": "author", "kind": "relation", "type": "User",
         "relation": {"name": "PostToUser", "from_fields": ["authorId"], "to_fields": ["id"], "on_delete": "Cascade"}}
      ]
    }
  ]
}
`
}

func exampleSeed() string {
	return `# Seed records, keyed by entity name
User:
  - id: 1
    email: ana@example.com
    name: Ana
  - id: 2
    email: bob@example.com
    name: Bob

Post:
  - id: 1
    title: Hello world
    published: true
    authorId: 1
  - id: 2
    title: Draft
    authorId: 1
`
}

func exampleReadme(projectName string) string {
	return `# ` + projectName + `

chameleon-mock project initialized with ` + "`chameleon-mock init`" + `.

## Quick Start

` + "```bash" + `
chameleon-mock validate
chameleon-mock query User findMany --args '{"include": {"posts": true}}'
chameleon-mock query Post count --args '{"where": {"published": true}}'
chameleon-mock query Post --filter published:eq:true --order title:asc
` + "```" + `

## Project Structure

` + "```" + `
.
├── .chameleon-mock.yml     Configuration (version controlled)
├── .chameleon-mock/        Working directory
│   ├── state/              Merged schema (local)
│   ├── snapshots/          Saved store snapshots
│   └── journal/            Audit log (local)
├── schemas/                Schema descriptors (*.json)
├── seeds/                  Seed data (json, yaml, toml)
└── README.md               This file
` + "```" + `

## Snapshots

` + "```bash" + `
chameleon-mock snapshot save baseline
chameleon-mock snapshot list
chameleon-mock query User findMany --snapshot baseline
` + "```" + `

## Journal

` + "```bash" + `
chameleon-mock journal last 10
chameleon-mock journal errors
` + "```" + `
`
}
