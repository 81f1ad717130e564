package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/IshaanNene/keibastalk/internal/types"
)

// TSVSink writes each table to <dir>/<table name>.tsv, replacing any
// previous file of the same name.
type TSVSink struct {
	dir    string
	count  int
	logger *slog.Logger
}

// NewTSVSink creates a TSV sink rooted at dir.
func NewTSVSink(dir string, logger *slog.Logger) (*TSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &TSVSink{
		dir:    dir,
		logger: logger.With("component", "tsv_sink"),
	}, nil
}

func (s *TSVSink) Name() string { return "tsv" }

// Path returns the file a table of the given name is written to.
func (s *TSVSink) Path(name string) string {
	return filepath.Join(s.dir, name+".tsv")
}

func (s *TSVSink) Write(_ context.Context, t *types.Table) error {
	finalPath := s.Path(t.Name)
	tmpPath := finalPath + ".tmp"

	// Write to temp file, then rename
	f, err := os.Create(tmpPath)
	if err != nil {
		return &types.StorageError{Backend: "tsv", Err: fmt.Errorf("create output file: %w", err)}
	}
	if err := t.WriteTSV(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return &types.StorageError{Backend: "tsv", Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return &types.StorageError{Backend: "tsv", Err: err}
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return &types.StorageError{Backend: "tsv", Err: fmt.Errorf("rename output file: %w", err)}
	}

	s.count++
	s.logger.Info("TSV written", "path", finalPath, "rows", t.Len())
	return nil
}

func (s *TSVSink) Close() error {
	s.logger.Debug("TSV sink closing", "tables", s.count)
	return nil
}
