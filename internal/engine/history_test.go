// internal/engine/history_test.go
package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

func TestHistory_TimestampsStrictlyIncreasing(t *testing.T) {
	r := newHistoryRecorder(zaptest.NewLogger(t), "")

	step := schemas.ActionStep{Action: schemas.ActionWait, Parameters: map[string]any{}}
	for i := 0; i < 100; i++ {
		r.Record("task", step, schemas.ActionResult{Success: true})
	}

	entries := r.All()
	require.Len(t, entries, 100)
	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i].Timestamp.After(entries[i-1].Timestamp),
			"entry %d timestamp must be strictly after entry %d", i, i-1)
	}
}

func TestHistory_AppendOnlyAndCopyOnRead(t *testing.T) {
	r := newHistoryRecorder(zaptest.NewLogger(t), "")
	step := schemas.ActionStep{Action: schemas.ActionWait, Parameters: map[string]any{}}

	r.Record("first", step, schemas.ActionResult{Success: true})
	view := r.All()
	r.Record("second", step, schemas.ActionResult{Success: false, Error: "nope"})

	assert.Len(t, view, 1, "earlier views must not grow")
	entries := r.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Task)
	assert.Equal(t, "second", entries[1].Task)

	// Mutating the returned slice must not corrupt the log.
	entries[0].Task = "mutated"
	assert.Equal(t, "first", r.All()[0].Task)
}

func TestHistory_EntriesHaveUniqueIDs(t *testing.T) {
	r := newHistoryRecorder(zaptest.NewLogger(t), "")
	step := schemas.ActionStep{Action: schemas.ActionWait, Parameters: map[string]any{}}

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		entry := r.Record("task", step, schemas.ActionResult{Success: true})
		assert.False(t, seen[entry.ID])
		seen[entry.ID] = true
	}
}

func TestHistory_FileSinkWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	r := newHistoryRecorder(zaptest.NewLogger(t), path)

	step := schemas.ActionStep{Action: schemas.ActionNavigate, Parameters: map[string]any{"url": "https://example.com"}}
	r.Record("open example", step, schemas.ActionResult{Success: true})
	r.Record("open example", step, schemas.ActionResult{Success: false, Error: "net down"})
	require.NoError(t, r.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"open example"`)
	assert.Contains(t, lines[1], "net down")
}

func TestHistory_BadFilePathDegradesToMemory(t *testing.T) {
	r := newHistoryRecorder(zaptest.NewLogger(t), filepath.Join(t.TempDir(), "missing", "history.jsonl"))

	step := schemas.ActionStep{Action: schemas.ActionWait, Parameters: map[string]any{}}
	r.Record("task", step, schemas.ActionResult{Success: true})

	assert.Equal(t, 1, r.Len())
	assert.NoError(t, r.Close())
}
