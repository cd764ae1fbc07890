package journal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, now *time.Time) *Logger {
	t.Helper()
	l, err := NewLogger(filepath.Join(t.TempDir(), "journal"))
	require.NoError(t, err)
	l.now = func() time.Time { return *now }
	return l
}

func TestLogger_WriteAndRead(t *testing.T) {
	now := time.Date(2026, 2, 12, 10, 15, 0, 0, time.UTC)
	l := newTestLogger(t, &now)

	require.NoError(t, l.LogSchema("validate", StatusSuccess, map[string]any{"entities": 3}))
	now = now.Add(time.Minute)
	require.NoError(t, l.LogSnapshot("save", "base", 12, 40*time.Millisecond))
	now = now.Add(24 * time.Hour)
	require.NoError(t, l.LogError("query", errors.New("unknown entity"), map[string]any{"entity": "Order"}))

	files, err := filepath.Glob(filepath.Join(l.journalDir, "*.jsonl"))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	all, err := l.Last(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "validate", all[0].Action)
	assert.Equal(t, "query", all[2].Action)

	last, err := l.Last(2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "snapshot.save", last[0].Action)
	assert.EqualValues(t, 12, last[0].Details["records"])
	assert.Equal(t, int64(40), last[0].Duration)

	errs, err := l.Errors()
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "unknown entity", errs[0].Error)

	snaps, err := l.Snapshots()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "base", snaps[0].Details["name"])
}

func TestLogger_Index(t *testing.T) {
	now := time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC)
	l := newTestLogger(t, &now)

	index, err := l.ReadIndex()
	require.NoError(t, err)
	assert.Zero(t, index.Entries)

	require.NoError(t, l.Log("check", StatusSuccess, nil, nil))
	require.NoError(t, l.Log("check", StatusSuccess, nil, nil))
	require.NoError(t, l.Log("init", StatusSuccess, nil, nil))

	index, err = l.ReadIndex()
	require.NoError(t, err)
	assert.Equal(t, Index{Date: "2026-02-12", Entries: 3, ByAction: map[string]int{"check": 2, "init": 1}}, index)

	now = now.Add(24 * time.Hour)
	require.NoError(t, l.Log("init", StatusSuccess, nil, nil))
	index, err = l.ReadIndex()
	require.NoError(t, err)
	assert.Equal(t, Index{Date: "2026-02-13", Entries: 1, ByAction: map[string]int{"init": 1}}, index)
}

func TestLogger_EmptyAndCorrupt(t *testing.T) {
	now := time.Date(2026, 2, 12, 9, 0, 0, 0, time.UTC)
	l := newTestLogger(t, &now)

	entries, err := l.Last(5)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, os.WriteFile(filepath.Join(l.journalDir, "2026-02-11.jsonl"), []byte("{\"action\":\"ok\"}\n\nnot json\n"), 0644))
	_, err = l.Last(5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2026-02-11.jsonl:3: invalid journal entry")
}

func TestEntry_String(t *testing.T) {
	e := &Entry{
		Timestamp: time.Date(2026, 2, 12, 10, 15, 0, 0, time.UTC),
		Action:    "snapshot.load",
		Status:    StatusError,
		Details:   map[string]any{"name": "base", "records": 3},
		Error:     "snapshot not found",
		Duration:  5,
	}
	assert.Equal(t,
		`2026-02-12T10:15:00Z [snapshot.load] status=error name=base records=3 duration_ms=5 error="snapshot not found"`,
		e.String(),
	)
}
