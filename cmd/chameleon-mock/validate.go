package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var validateNoSeed bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the project's schema descriptors and seed data",
	Long: `Load every schema descriptor, check it against the descriptor format,
merge the files and build an engine from the configured seed.

The merged descriptor is written to schema.merged_output.

Examples:
  chameleon-mock validate
  chameleon-mock validate --no-seed
  chameleon-mock validate -C path/to/project`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()

		p, err := openProject()
		if err != nil {
			printError("Validation failed")
			return err
		}

		printInfo("Validating %d entities...", len(p.merged.Schema.Entities))

		records := 0
		if validateNoSeed {
			_, err = p.newEngine(emptyState())
		} else {
			st, seedErr := p.loadSeed(context.Background())
			if seedErr != nil {
				p.record("validate", start, nil, seedErr)
				printError("Validation failed")
				return seedErr
			}
			records = countRecords(st)
			_, err = p.newEngine(st)
		}
		if err != nil {
			p.record("validate", start, nil, err)
			printError("Validation failed")
			return err
		}

		if out := p.cfg.Schema.MergedOutput; out != "" {
			if err := p.merged.Save(out); err != nil {
				printWarning("Could not write merged schema: %v", err)
			} else if verbose {
				printInfo("Merged schema written to %s", out)
			}
		}

		p.record("validate", start, map[string]any{
			"entities": len(p.merged.Schema.Entities),
			"records":  records,
		}, nil)

		printSuccess("Schema is valid")
		if verbose {
			fmt.Println("\nEntities:")
			for _, name := range p.merged.Schema.EntityNames() {
				fmt.Printf("  %-20s %s\n", name, p.merged.Sources[name])
			}
			fmt.Println("\nValidation checks passed:")
			fmt.Println("  ✓ Descriptor format is correct")
			fmt.Println("  ✓ Entity names are unique across files")
			fmt.Println("  ✓ All relation targets exist")
			fmt.Println("  ✓ Foreign key fields are consistent")
			fmt.Println("  ✓ Every entity has an identifier")
			if !validateNoSeed {
				fmt.Printf("  ✓ %d seed records accepted\n", records)
			}
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateNoSeed, "no-seed", false, "skip loading seed data")
	rootCmd.AddCommand(validateCmd)
}
