package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chameleon-db/chameleon-mock/internal/admin"
	"github.com/chameleon-db/chameleon-mock/internal/config"
	"github.com/chameleon-db/chameleon-mock/internal/journal"
	"github.com/chameleon-db/chameleon-mock/internal/schema"
	"github.com/chameleon-db/chameleon-mock/internal/seed"
	"github.com/chameleon-db/chameleon-mock/internal/state"
	"github.com/chameleon-db/chameleon-mock/pkg/engine"
	"github.com/chameleon-db/chameleon-mock/pkg/engine/mutation"
)

// project bundles what every command needs: config, merged schema and the
// optional journal.
type project struct {
	workDir string
	factory *admin.ManagerFactory
	cfg     *config.Config
	merged  *schema.MergedSchemaResult
	journal *journal.Logger
}

// openProject loads the config (or defaults) and the schema descriptors
func openProject() (*project, error) {
	dir, err := resolveWorkDir()
	if err != nil {
		return nil, err
	}

	factory := admin.NewManagerFactory(dir)
	cfg, err := factory.CreateConfigLoader().LoadOrDefault()
	if err != nil {
		return nil, err
	}

	p := &project{workDir: dir, factory: factory, cfg: cfg}

	if cfg.Features.AuditLogging && factory.Directory().IsInitialized() {
		logger, err := factory.CreateJournalLogger()
		if err != nil {
			printWarning("Journal disabled: %v", err)
		} else {
			p.journal = logger
		}
	}

	merged, err := schema.LoadSchema(cfg.Schema.Paths)
	if err != nil {
		p.record("schema.load", time.Now(), nil, err)
		return nil, err
	}
	p.merged = merged

	if verbose {
		printInfo("Loaded %d entities from %v", len(merged.Schema.Entities), cfg.Schema.Paths)
	}
	return p, nil
}

// loadSeed reads the initial records from the configured source
func (p *project) loadSeed(ctx context.Context) (engine.State, error) {
	switch p.cfg.Seed.Source {
	case config.SeedSourceNone:
		return engine.State{}, nil

	case config.SeedSourceDatabase:
		return p.importDatabase(ctx)
	}

	var paths []string
	for _, path := range p.cfg.Seed.Paths {
		if _, err := os.Stat(path); err != nil {
			if verbose {
				printWarning("Skipping seed path %s: %v", path, err)
			}
			continue
		}
		paths = append(paths, path)
	}
	st, err := seed.NewLoader(paths).LoadAll()
	if err != nil {
		return engine.State{}, fmt.Errorf("failed to load seed: %w", err)
	}
	return st, nil
}

func (p *project) importDatabase(ctx context.Context) (engine.State, error) {
	dbCfg, err := seed.ParseConnectionString(p.cfg.Database.ConnectionString)
	if err != nil {
		return engine.State{}, err
	}
	dbCfg.MaxConns = int32(p.cfg.Database.MaxConnections)
	dbCfg.ConnectTimeout = time.Duration(p.cfg.Database.ConnectionTimeout) * time.Second

	if verbose {
		printInfo("Importing seed from %s:%d/%s", dbCfg.Host, dbCfg.Port, dbCfg.Database)
	}

	importer := seed.NewImporter(dbCfg)
	if err := importer.Connect(ctx); err != nil {
		return engine.State{}, err
	}
	defer importer.Close()

	return importer.Import(ctx, p.merged.Schema, p.cfg.Database.Tables)
}

// newEngine builds an engine seeded with st, with mutation builders wired
func (p *project) newEngine(st engine.State, extra ...engine.Option) (*engine.Engine, error) {
	opts := append(p.cfg.EngineOptions(), engine.WithSeedState(st))
	opts = append(opts, extra...)

	eng, err := engine.NewEngine(p.merged.Schema, opts...)
	if err != nil {
		return nil, err
	}
	mutation.Register(eng)
	return eng, nil
}

// seededEngine loads the configured seed and builds an engine from it
func (p *project) seededEngine(ctx context.Context, extra ...engine.Option) (*engine.Engine, error) {
	st, err := p.loadSeed(ctx)
	if err != nil {
		return nil, err
	}
	return p.newEngine(st, extra...)
}

// schemaHash identifies the merged schema in snapshots
func (p *project) schemaHash() string {
	return state.HashSchema(p.merged.JSON)
}

// record writes a journal entry when auditing is enabled
func (p *project) record(action string, start time.Time, details map[string]any, err error) {
	if p == nil || p.journal == nil {
		return
	}
	if details == nil {
		details = map[string]any{}
	}
	details["duration_ms"] = time.Since(start).Milliseconds()

	var logErr error
	if err != nil {
		logErr = p.journal.LogError(action, err, details)
	} else {
		logErr = p.journal.Log(action, journal.StatusSuccess, details, nil)
	}
	if logErr != nil && verbose {
		printWarning("Failed to write journal: %v", logErr)
	}
}

// countRecords sums records per entity
func countRecords(st engine.State) int {
	n := 0
	for _, recs := range st.Entities {
		n += len(recs)
	}
	return n
}

func emptyState() engine.State {
	return engine.State{}
}
