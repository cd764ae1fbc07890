package main

import (
	"context"
	"fmt"
	"time"

	"github.com/chameleon-db/chameleon-mock/internal/admin"
	"github.com/chameleon-db/chameleon-mock/internal/state"
	"github.com/chameleon-db/chameleon-mock/pkg/engine"
	"github.com/spf13/cobra"
)

var snapshotForce bool

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <subcommand>",
	Short: "Save, inspect and remove store snapshots",
	Long: `Snapshots capture every record and join record of the store in a
msgpack file under .chameleon-mock/snapshots/. They load much faster than
re-reading seed files or re-importing from a database.

Subcommands:
  snapshot save <name>     Save the seeded store
  snapshot show <name>     Show records per entity
  snapshot list            List saved snapshots
  snapshot delete <name>   Delete a snapshot`,
	Args: cobra.MinimumNArgs(1),
}

var snapshotSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Save the seeded store as a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProject()
		if err != nil {
			return err
		}
		eng, err := p.seededEngine(context.Background())
		if err != nil {
			return err
		}
		if err := p.saveSnapshot(args[0], eng.GetInternalState()); err != nil {
			return err
		}
		printSuccess("Saved snapshot %s", args[0])
		return nil
	},
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a snapshot's records per entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openProject()
		if err != nil {
			return err
		}
		snap, err := p.loadSnapshot(args[0])
		if err != nil {
			return err
		}
		// Building the engine checks the records against the schema
		eng, err := p.newEngine(snap.State())
		if err != nil {
			return err
		}

		fmt.Printf("Snapshot:   %s\n", snap.Name)
		fmt.Printf("Created:    %s\n", snap.CreatedAt.Format(time.RFC3339))
		fmt.Printf("Schema:     %s\n", shortHash(snap.SchemaHash))
		fmt.Println()
		fmt.Println("Entity               Records")
		fmt.Println("────────────────────────────")
		for _, name := range eng.Models() {
			n, err := eng.Model(name).Count(engine.M{})
			if err != nil {
				return err
			}
			fmt.Printf("%-20s %d\n", name, n)
		}
		for relation, links := range snap.Links {
			fmt.Printf("%-20s %d links\n", relation, len(links))
		}
		return nil
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved snapshots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveWorkDir()
		if err != nil {
			return err
		}
		tracker, err := admin.NewManagerFactory(dir).CreateSnapshotTracker()
		if err != nil {
			return err
		}
		infos, err := tracker.List()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			printInfo("No snapshots found")
			return nil
		}

		fmt.Println()
		fmt.Println("Name                 Created               Records   Size      Schema")
		fmt.Println("─────────────────────────────────────────────────────────────────────────")
		for _, info := range infos {
			fmt.Printf("%-20s %-21s %-9d %-9s %s\n",
				info.Name,
				info.CreatedAt.Format("2006-01-02 15:04:05"),
				info.Records,
				formatBytes(info.SizeBytes),
				shortHash(info.SchemaHash),
			)
		}
		fmt.Println()
		return nil
	},
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveWorkDir()
		if err != nil {
			return err
		}
		factory := admin.NewManagerFactory(dir)
		tracker, err := factory.CreateSnapshotTracker()
		if err != nil {
			return err
		}
		if err := tracker.Delete(args[0]); err != nil {
			return err
		}
		if logger, err := factory.CreateJournalLogger(); err == nil {
			_ = logger.LogSnapshot("delete", args[0], 0, 0)
		}
		printSuccess("Deleted snapshot %s", args[0])
		return nil
	},
}

func init() {
	snapshotShowCmd.Flags().BoolVar(&snapshotForce, "force", false, "load even if the schema changed since the snapshot")
	queryCmd.Flags().BoolVar(&snapshotForce, "force", false, "with --snapshot, load even if the schema changed")

	snapshotCmd.AddCommand(snapshotSaveCmd)
	snapshotCmd.AddCommand(snapshotShowCmd)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)

	rootCmd.AddCommand(snapshotCmd)
}

// saveSnapshot writes st under name and journals it
func (p *project) saveSnapshot(name string, st engine.State) error {
	start := time.Now()
	tracker, err := p.factory.CreateSnapshotTracker()
	if err != nil {
		return err
	}
	snap := state.NewSnapshot(name, p.schemaHash(), st)
	if err := tracker.Save(snap); err != nil {
		p.record("snapshot.save", start, map[string]any{"name": name}, err)
		return err
	}
	if p.journal != nil {
		_ = p.journal.LogSnapshot("save", name, snap.RecordCount(), time.Since(start))
	}
	return nil
}

// loadSnapshot reads name and rejects it when the schema has changed,
// unless --force is set.
func (p *project) loadSnapshot(name string) (*state.Snapshot, error) {
	start := time.Now()
	tracker, err := p.factory.CreateSnapshotTracker()
	if err != nil {
		return nil, err
	}
	snap, err := tracker.Load(name)
	if err != nil {
		p.record("snapshot.load", start, map[string]any{"name": name}, err)
		return nil, err
	}
	if err := snap.CheckSchema(p.schemaHash()); err != nil {
		if !snapshotForce {
			return nil, fmt.Errorf("%w\nUse --force to load it anyway", err)
		}
		printWarning("%v", err)
	}
	if p.journal != nil {
		_ = p.journal.LogSnapshot("load", name, snap.RecordCount(), time.Since(start))
	}
	return snap, nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	if h == "" {
		return "-"
	}
	return h
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%dB", n)
}
