package main

import (
	"fmt"
	"os"

	"github.com/chameleon-db/chameleon-mock/pkg/engine"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
	workDir string

	// Colors
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
)

var rootCmd = &cobra.Command{
	Use:   "chameleon-mock",
	Short: "chameleon-mock - in-memory mock of a schema-driven ORM client",
	Long: `chameleon-mock runs ORM-style queries and mutations against an in-memory
store described by a JSON schema descriptor. Use it to seed fixtures,
inspect query results and save reusable state snapshots for tests.

Get started:
  chameleon-mock init myproject
  cd myproject
  chameleon-mock validate
  chameleon-mock query User findMany --args '{"include": {"posts": true}}'`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&workDir, "dir", "C", "", "project directory (default: current directory)")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if engine.IsEngineError(err) {
			fmt.Fprint(os.Stderr, engine.FormatError(err))
		} else {
			errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// Helper functions for consistent output
func printSuccess(format string, args ...any) {
	successColor.Printf("✓ "+format+"\n", args...)
}

func printError(format string, args ...any) {
	errorColor.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

func printWarning(format string, args ...any) {
	warningColor.Printf("⚠ "+format+"\n", args...)
}

func printInfo(format string, args ...any) {
	infoColor.Printf("ℹ "+format+"\n", args...)
}

// resolveWorkDir returns --dir or the current directory
func resolveWorkDir() (string, error) {
	if workDir != "" {
		return workDir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return wd, nil
}
