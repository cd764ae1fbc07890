package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chameleon-db/chameleon-mock/internal/schema"
	"github.com/chameleon-db/chameleon-mock/pkg/engine"
	"github.com/spf13/cobra"
)

var (
	outputJSON bool
)

var checkCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Check one schema descriptor (used by editor extensions)",
	Long: `Check a single schema descriptor file and report errors.

This command is designed for editor integrations. It validates the
descriptor format and the schema semantics without reading the project
config. Reads stdin when no file is given.

Examples:
  chameleon-mock check schemas/blog.json
  chameleon-mock check schemas/blog.json --json
  chameleon-mock check --json < schemas/blog.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := "<stdin>"
		var content []byte
		var err error

		if len(args) > 0 {
			filename = args[0]
			content, err = os.ReadFile(filename)
		} else {
			content, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			if outputJSON {
				return printCheckResult(cmd.OutOrStdout(), []CheckError{{
					Message: fmt.Sprintf("Failed to read input: %v", err), File: filename, Severity: "error",
				}})
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		checkErrs := checkDescriptor(filename, content)

		if outputJSON {
			return printCheckResult(cmd.OutOrStdout(), checkErrs)
		}
		if len(checkErrs) == 0 {
			printSuccess("Schema is valid")
			return nil
		}
		for _, e := range checkErrs {
			if e.Code != "" {
				fmt.Printf("%s [%s] %s\n", e.File, e.Code, e.Message)
			} else {
				fmt.Printf("%s %s\n", e.File, e.Message)
			}
		}
		return fmt.Errorf("validation failed")
	},
}

func init() {
	checkCmd.Flags().BoolVar(&outputJSON, "json", false, "output errors in JSON format")
	rootCmd.AddCommand(checkCmd)
}

// CheckError represents a single validation error
type CheckError struct {
	Message  string `json:"message"`
	File     string `json:"file"`
	Code     string `json:"code,omitempty"`
	Severity string `json:"severity"` // "error" or "warning"
}

// CheckResult is the JSON output format
type CheckResult struct {
	Valid  bool         `json:"valid"`
	Errors []CheckError `json:"errors"`
}

// checkDescriptor runs the format check, then builds an engine to run the
// semantic schema checks.
func checkDescriptor(filename string, content []byte) []CheckError {
	file := schema.SourceFile{Name: filename, Path: filename, Content: content}

	if err := schema.Validate(file); err != nil {
		var descErr *schema.DescriptorError
		if errors.As(err, &descErr) {
			out := make([]CheckError, 0, len(descErr.Errors))
			for _, msg := range descErr.Errors {
				out = append(out, CheckError{Message: msg, File: filename, Code: "DESCRIPTOR_ERROR", Severity: "error"})
			}
			return out
		}
		return []CheckError{{Message: err.Error(), File: filename, Severity: "error"}}
	}

	parsed, err := engine.ParseSchemaJSON(content)
	if err == nil {
		_, err = engine.NewEngine(parsed)
	}
	if err != nil {
		code := ""
		if engine.IsEngineError(err) {
			code = engine.ErrorCode(err)
		}
		return []CheckError{{Message: err.Error(), File: filename, Code: code, Severity: "error"}}
	}
	return nil
}

func printCheckResult(w io.Writer, errs []CheckError) error {
	result := CheckResult{
		Valid:  len(errs) == 0,
		Errors: errs,
	}
	if result.Errors == nil {
		result.Errors = []CheckError{}
	}

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(output))
	return nil
}
