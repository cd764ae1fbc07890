package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// SnapshotExt is the file extension of saved snapshots
const SnapshotExt = ".snapshot.msgpack"

// ErrSnapshotNotFound is returned when a named snapshot has no file
var ErrSnapshotNotFound = errors.New("snapshot not found")

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// SnapshotInfo summarizes a saved snapshot
type SnapshotInfo struct {
	Name       string
	CreatedAt  time.Time
	SchemaHash string
	Records    int
	SizeBytes  int64
}

// Tracker manages snapshot files in one directory
type Tracker struct {
	stateDir string
}

// NewTracker creates a new tracker
func NewTracker(stateDir string) (*Tracker, error) {
	// Create directory if not exists
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	return &Tracker{
		stateDir: stateDir,
	}, nil
}

// Dir returns the snapshot directory
func (t *Tracker) Dir() string {
	return t.stateDir
}

func (t *Tracker) path(name string) (string, error) {
	if !validName.MatchString(name) {
		return "", fmt.Errorf("invalid snapshot name %q: use letters, digits, '.', '_' or '-'", name)
	}
	return filepath.Join(t.stateDir, name+SnapshotExt), nil
}

// Save writes snap under its name, replacing an existing file. The file is
// written to a temporary name first and renamed into place.
func (t *Tracker) Save(snap *Snapshot) error {
	path, err := t.path(snap.Name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(t.stateDir, snap.Name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, snap); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot by name
func (t *Tracker) Load(name string) (*Snapshot, error) {
	path, err := t.path(name)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, name)
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	defer file.Close()

	snap, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return snap, nil
}

// Delete removes a snapshot by name
func (t *Tracker) Delete(name string) error {
	path, err := t.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSnapshotNotFound, name)
		}
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// List returns every saved snapshot, newest first
func (t *Tracker) List() ([]SnapshotInfo, error) {
	entries, err := os.ReadDir(t.stateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var infos []SnapshotInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), SnapshotExt) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), SnapshotExt)
		snap, err := t.Load(name)
		if err != nil {
			return nil, err
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat snapshot: %w", err)
		}
		infos = append(infos, SnapshotInfo{
			Name:       name,
			CreatedAt:  snap.CreatedAt,
			SchemaHash: snap.SchemaHash,
			Records:    snap.RecordCount(),
			SizeBytes:  info.Size(),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.After(infos[j].CreatedAt)
		}
		return infos[i].Name < infos[j].Name
	})
	return infos, nil
}
