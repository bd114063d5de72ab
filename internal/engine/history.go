// internal/engine/history.go
package engine

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// historyRecorder owns the append-only action log for one engine instance.
// Entries are never removed or reordered, and timestamps are strictly
// increasing. Writes come from the single execution goroutine; the mutex
// only guards concurrent readers calling All.
type historyRecorder struct {
	mu      sync.Mutex
	entries []schemas.ActionHistoryEntry
	lastTS  time.Time
	logger  *zap.Logger

	// file is an optional JSON lines sink mirroring the in-memory log.
	// Write failures are logged and otherwise ignored.
	file *os.File
}

func newHistoryRecorder(logger *zap.Logger, filePath string) *historyRecorder {
	r := &historyRecorder{logger: logger.Named("history")}
	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			r.logger.Warn("Could not open history file, recording in memory only.",
				zap.String("path", filePath), zap.Error(err))
		} else {
			r.file = f
		}
	}
	return r
}

// Record appends one entry. The timestamp is forced strictly past the
// previous entry's so ordering survives coarse clocks.
func (r *historyRecorder) Record(task string, step schemas.ActionStep, result schemas.ActionResult) schemas.ActionHistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := time.Now()
	if !ts.After(r.lastTS) {
		ts = r.lastTS.Add(time.Nanosecond)
	}
	r.lastTS = ts

	entry := schemas.ActionHistoryEntry{
		ID:        uuid.NewString(),
		Task:      task,
		Step:      step,
		Result:    result,
		Timestamp: ts,
	}
	r.entries = append(r.entries, entry)

	if r.file != nil {
		line, err := json.Marshal(entry)
		if err == nil {
			line = append(line, '\n')
			_, err = r.file.Write(line)
		}
		if err != nil {
			r.logger.Warn("Failed to write history entry to file.", zap.Error(err))
		}
	}
	return entry
}

// All returns a copy of the log in insertion order.
func (r *historyRecorder) All() []schemas.ActionHistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schemas.ActionHistoryEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *historyRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *historyRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
