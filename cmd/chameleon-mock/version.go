package main

import (
	"fmt"
	"runtime"

	"github.com/chameleon-db/chameleon-mock/internal/config"
	"github.com/chameleon-db/chameleon-mock/internal/state"
	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = config.Version

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show chameleon-mock version",
	Long:  "Display the current version of the chameleon-mock CLI and its file formats",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("chameleon-mock v%s\n", version)

		if verbose {
			fmt.Println("\nComponents:")
			fmt.Printf("  CLI:             v%s\n", version)
			fmt.Printf("  Config format:   v%s\n", config.Version)
			fmt.Printf("  Snapshot format: v%s\n", state.FormatVersion)
			fmt.Printf("  Go:              %s\n", runtime.Version())
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
