package admin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chameleon-db/chameleon-mock/internal/config"
	"github.com/chameleon-db/chameleon-mock/internal/journal"
	"github.com/chameleon-db/chameleon-mock/internal/state"
)

// DirName is the per-project working directory
const DirName = ".chameleon-mock"

// Directory manages the .chameleon-mock/ directory structure
type Directory struct {
	rootDir string
}

// NewDirectory creates a new directory manager
func NewDirectory(workDir string) *Directory {
	return &Directory{
		rootDir: filepath.Join(workDir, DirName),
	}
}

// Initialize creates the .chameleon-mock/ directory structure
func (d *Directory) Initialize() error {
	if err := os.MkdirAll(d.rootDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", DirName, err)
	}

	paths := d.GetPaths()
	for _, path := range []string{paths.State, paths.Snapshots, paths.Journal} {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
	}

	return d.createGitignore()
}

// IsInitialized reports whether the root directory exists
func (d *Directory) IsInitialized() bool {
	info, err := os.Stat(d.rootDir)
	return err == nil && info.IsDir()
}

// createGitignore creates .chameleon-mock/.gitignore
func (d *Directory) createGitignore() error {
	gitignorePath := filepath.Join(d.rootDir, ".gitignore")
	gitignoreContent := `# chameleon-mock working files
# Local to each developer
state/
journal/

# Snapshots are shareable fixtures; uncomment to keep them local
# snapshots/
`

	return os.WriteFile(gitignorePath, []byte(gitignoreContent), 0644)
}

// GetPaths returns all directory paths
func (d *Directory) GetPaths() DirectoryPaths {
	return DirectoryPaths{
		Root:      d.rootDir,
		State:     filepath.Join(d.rootDir, "state"),
		Snapshots: filepath.Join(d.rootDir, "snapshots"),
		Journal:   filepath.Join(d.rootDir, "journal"),
	}
}

// DirectoryPaths holds all important paths
type DirectoryPaths struct {
	Root      string
	State     string
	Snapshots string
	Journal   string
}

// ManagerFactory creates the managers backed by the project directory
type ManagerFactory struct {
	workDir string
	dir     *Directory
}

// NewManagerFactory creates a new manager factory
func NewManagerFactory(workDir string) *ManagerFactory {
	return &ManagerFactory{
		workDir: workDir,
		dir:     NewDirectory(workDir),
	}
}

// Directory returns the managed directory
func (mf *ManagerFactory) Directory() *Directory {
	return mf.dir
}

// Initialize initializes the entire .chameleon-mock/ structure
func (mf *ManagerFactory) Initialize() error {
	return mf.dir.Initialize()
}

// CreateConfigLoader creates a config loader
func (mf *ManagerFactory) CreateConfigLoader() *config.Loader {
	return config.NewLoader(mf.workDir)
}

// CreateJournalLogger creates a journal logger
func (mf *ManagerFactory) CreateJournalLogger() (*journal.Logger, error) {
	return journal.NewLogger(mf.dir.GetPaths().Journal)
}

// CreateSnapshotTracker creates a snapshot tracker
func (mf *ManagerFactory) CreateSnapshotTracker() (*state.Tracker, error) {
	return state.NewTracker(mf.dir.GetPaths().Snapshots)
}

// Status describes the directory structure
func (mf *ManagerFactory) Status() string {
	paths := mf.dir.GetPaths()

	if !mf.dir.IsInitialized() {
		return "not_initialized"
	}

	var b strings.Builder
	b.WriteString("initialized\n")
	fmt.Fprintf(&b, "  State: %s\n", paths.State)
	fmt.Fprintf(&b, "  Snapshots: %s\n", paths.Snapshots)
	fmt.Fprintf(&b, "  Journal: %s\n", paths.Journal)

	if _, err := os.Stat(mf.CreateConfigLoader().Path()); err == nil {
		b.WriteString("  Config loaded: yes\n")
	} else {
		b.WriteString("  Config loaded: no\n")
	}

	return b.String()
}
