package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Entry represents a single journal entry
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Status    string         `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
	Duration  int64          `json:"duration_ms,omitempty"`
}

// String formats an entry as a Unix-style log line
// Format: 2026-02-12T10:15:00Z [ACTION] status=ok key1=val1 error="msg"
func (e *Entry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] status=%s", e.Timestamp.UTC().Format(time.RFC3339), e.Action, e.Status)

	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Details[k])
	}

	if e.Duration > 0 {
		fmt.Fprintf(&b, " duration_ms=%d", e.Duration)
	}
	if e.Error != "" {
		fmt.Fprintf(&b, " error=%q", e.Error)
	}
	return b.String()
}

// Index counts today's entries per action
type Index struct {
	Date     string         `json:"date"`
	Entries  int            `json:"entries"`
	ByAction map[string]int `json:"by_action"`
}

// Logger is an append-only journal: one JSON line per entry in a daily
// file, plus index.json for the current day.
type Logger struct {
	journalDir string
	now        func() time.Time
	mu         sync.Mutex
}

// NewLogger creates a new journal logger
func NewLogger(journalDir string) (*Logger, error) {
	// Create directory if not exists
	if err := os.MkdirAll(journalDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	return &Logger{
		journalDir: journalDir,
		now:        time.Now,
	}, nil
}

// Log appends an entry to the journal
func (l *Logger) Log(action, status string, details map[string]any, err error) error {
	entry := Entry{
		Action:  action,
		Status:  status,
		Details: details,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	return l.logEntry(&entry)
}

// LogSnapshot logs a snapshot save / load / delete
func (l *Logger) LogSnapshot(action, name string, records int, duration time.Duration) error {
	entry := Entry{
		Action:   "snapshot." + action,
		Status:   StatusSuccess,
		Details:  map[string]any{"name": name, "records": records},
		Duration: duration.Milliseconds(),
	}
	return l.logEntry(&entry)
}

// LogSchema logs a schema event
func (l *Logger) LogSchema(action string, status string, details map[string]any) error {
	return l.Log(action, status, details, nil)
}

// LogError logs an error event
func (l *Logger) LogError(action string, err error, details map[string]any) error {
	return l.Log(action, StatusError, details, err)
}

// logEntry writes entry to file and updates index
func (l *Logger) logEntry(entry *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.Timestamp = l.now().UTC()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode journal entry: %w", err)
	}

	f, err := os.OpenFile(l.logFile(entry.Timestamp), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write to log: %w", err)
	}

	if err := l.updateIndex(entry); err != nil {
		// The entry is written; a stale index is only a warning
		fmt.Fprintf(os.Stderr, "warning: failed to update index: %v\n", err)
	}

	return nil
}

// logFile returns the path to the daily log file for t
func (l *Logger) logFile(t time.Time) string {
	return filepath.Join(l.journalDir, t.Format("2006-01-02")+".jsonl")
}

// updateIndex updates the daily index
func (l *Logger) updateIndex(e *Entry) error {
	indexFile := filepath.Join(l.journalDir, "index.json")

	var index Index
	if data, err := os.ReadFile(indexFile); err == nil {
		if err := json.Unmarshal(data, &index); err != nil {
			return err
		}
	}

	today := e.Timestamp.Format("2006-01-02")
	if index.Date != today || index.ByAction == nil {
		index = Index{Date: today, ByAction: map[string]int{}}
	}
	index.Entries++
	index.ByAction[e.Action]++

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(indexFile, data, 0644)
}

// ReadIndex returns the current day's index, or an empty one
func (l *Logger) ReadIndex() (Index, error) {
	data, err := os.ReadFile(filepath.Join(l.journalDir, "index.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return Index{ByAction: map[string]int{}}, nil
		}
		return Index{}, err
	}
	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return Index{}, fmt.Errorf("failed to parse journal index: %w", err)
	}
	return index, nil
}

// ============================================================
// READING
// ============================================================

// Last returns the last n entries across every daily file, oldest first
func (l *Logger) Last(n int) ([]*Entry, error) {
	entries, err := l.readAll(func(*Entry) bool { return true })
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// Errors returns every error entry
func (l *Logger) Errors() ([]*Entry, error) {
	return l.readAll(func(e *Entry) bool { return e.Status == StatusError })
}

// Snapshots returns every snapshot entry
func (l *Logger) Snapshots() ([]*Entry, error) {
	return l.readAll(func(e *Entry) bool { return strings.HasPrefix(e.Action, "snapshot.") })
}

func (l *Logger) readAll(keep func(*Entry) bool) ([]*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(l.journalDir, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	entries := []*Entry{}
	for _, file := range files {
		if err := readFile(file, func(e *Entry) {
			if keep(e) {
				entries = append(entries, e)
			}
		}); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func readFile(path string, fn func(*Entry)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(strings.TrimSpace(scanner.Text())) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return fmt.Errorf("%s:%d: invalid journal entry: %w", filepath.Base(path), line, err)
		}
		fn(&e)
	}
	return scanner.Err()
}
