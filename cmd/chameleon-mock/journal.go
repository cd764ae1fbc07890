package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/chameleon-db/chameleon-mock/internal/admin"
	"github.com/chameleon-db/chameleon-mock/internal/journal"
)

var journalFormat string

var journalCmd = &cobra.Command{
	Use:   "journal <subcommand>",
	Short: "Query and audit the operation journal",
	Long: `View the operation journal (audit log).

The journal is an append-only log of chameleon-mock commands, stored in
.chameleon-mock/journal/ with daily rotation. It is written when
features.audit_logging is enabled.

Subcommands:
  journal last [n]    Show last N operations
  journal errors      Show failed operations
  journal snapshots   Show snapshot history`,
	Args: cobra.MinimumNArgs(1),
}

var journalLastCmd = &cobra.Command{
	Use:   "last [n]",
	Short: "Show last N journal entries",
	Long: `Display the most recent journal entries.

Examples:
  chameleon-mock journal last        # Last 10 entries
  chameleon-mock journal last 20     # Last 20 entries
  chameleon-mock journal last 5 --format=json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit := 10
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("invalid number: %s", args[0])
			}
			limit = n
		}

		return showJournal(cmd.OutOrStdout(), "No journal entries found", func(l *journal.Logger) ([]*journal.Entry, error) {
			return l.Last(limit)
		})
	},
}

var journalErrorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Show error journal entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showJournal(cmd.OutOrStdout(), "No errors found", (*journal.Logger).Errors)
	},
}

var journalSnapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Show snapshot history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showJournal(cmd.OutOrStdout(), "No snapshot entries found", (*journal.Logger).Snapshots)
	},
}

func init() {
	journalCmd.AddCommand(journalLastCmd)
	journalCmd.AddCommand(journalErrorsCmd)
	journalCmd.AddCommand(journalSnapshotsCmd)

	journalCmd.PersistentFlags().StringVar(&journalFormat, "format", "table", "output format (table|json)")

	rootCmd.AddCommand(journalCmd)
}

func showJournal(w io.Writer, empty string, read func(*journal.Logger) ([]*journal.Entry, error)) error {
	dir, err := resolveWorkDir()
	if err != nil {
		return err
	}

	factory := admin.NewManagerFactory(dir)
	if !factory.Directory().IsInitialized() {
		return fmt.Errorf("no %s directory in %s\nRun 'chameleon-mock init' first", admin.DirName, dir)
	}
	logger, err := factory.CreateJournalLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize journal: %w", err)
	}

	entries, err := read(logger)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}

	if journalFormat == "json" {
		return printJSON(w, entries, false)
	}
	if len(entries) == 0 {
		printInfo("%s", empty)
		return nil
	}
	printEntriesTable(w, entries)
	return nil
}

// printEntriesTable prints entries in table format
func printEntriesTable(w io.Writer, entries []*journal.Entry) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Timestamp            Action           Status    Details")
	fmt.Fprintln(w, "─────────────────────────────────────────────────────────────────")

	for _, entry := range entries {
		timestamp := entry.Timestamp.Local().Format("2006-01-02 15:04:05")

		details := ""
		if entry.Duration > 0 {
			details = fmt.Sprintf("duration=%dms", entry.Duration)
		}
		if name, ok := entry.Details["name"]; ok {
			details = appendDetail(details, fmt.Sprintf("name=%v", name))
		}
		if entity, ok := entry.Details["entity"]; ok {
			details = appendDetail(details, fmt.Sprintf("entity=%v op=%v", entity, entry.Details["operation"]))
		}
		if entry.Error != "" {
			details = appendDetail(details, "error="+truncate(entry.Error, 50))
		}

		fmt.Fprintf(w, "%-20s %-16s %-9s %s\n", timestamp, entry.Action, entry.Status, details)
	}

	fmt.Fprintln(w)
}

func appendDetail(details, s string) string {
	if details == "" {
		return s
	}
	return details + " " + s
}

// truncate truncates a string to max length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
