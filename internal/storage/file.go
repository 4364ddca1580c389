package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"

	"finnews-relay/internal/pipeline"
)

// FileSink appends every run to a local JSONL file, creating parent
// directories as needed.
type FileSink struct {
	path   string
	logger *log.Logger
	mu     sync.Mutex
}

// NewFileSink returns a sink appending to path.
func NewFileSink(path string, logger *log.Logger) *FileSink {
	if logger == nil {
		logger = log.Default()
	}
	return &FileSink{path: path, logger: logger}
}

// Upload appends results. runID is only logged.
func (f *FileSink) Upload(ctx context.Context, results []pipeline.SummaryResult, runID string) bool {
	body, err := EncodeJSONL(results)
	if err != nil {
		f.logger.Error("file.write.error", "path", f.path, "err", err)
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			f.logger.Error("file.write.error", "path", f.path, "err", err)
			return false
		}
	}
	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		f.logger.Error("file.write.error", "path", f.path, "err", err)
		return false
	}
	defer fh.Close()

	if _, err := fh.Write(body); err != nil {
		f.logger.Error("file.write.error", "path", f.path, "err", err)
		return false
	}
	f.logger.Info("file.write.ok", "path", f.path, "run_id", runID, "n_results", len(results))
	return true
}
