package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Ramsey-B/fictotum/pkg/models"
)

// HistoryRecorder persists the durable record of each run.
// internal/repositories/importrun.Repository satisfies it.
type HistoryRecorder interface {
	Record(ctx context.Context, run models.ImportRun) error
}

// DefaultHistoryPath is used when Postgres is not configured
const DefaultHistoryPath = "data/.ingestion-cache/import_history.jsonl"

// FileHistory appends one JSON line per run
type FileHistory struct {
	mu   sync.Mutex
	path string
}

// NewFileHistory creates a recorder writing to path
func NewFileHistory(path string) *FileHistory {
	if path == "" {
		path = DefaultHistoryPath
	}
	return &FileHistory{path: path}
}

// Record appends run to the history file
func (h *FileHistory) Record(_ context.Context, run models.ImportRun) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	line, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal import run: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append import run: %w", err)
	}
	return nil
}
