package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yildizm/contractis/internal/config"
)

// Sink stores a finished report and returns where it went
type Sink interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// New builds the sink selected by cfg.Target
func New(cfg config.ExportConfig) (Sink, error) {
	switch cfg.Target {
	case "", "dir":
		return NewFileSink(config.ExpandPath(cfg.Dir)), nil
	case "s3":
		return NewS3Sink(cfg.S3)
	default:
		return nil, fmt.Errorf("unknown export target: %s", cfg.Target)
	}
}

// Write renders the report and stores it in sink
func Write(ctx context.Context, sink Sink, report Report) (string, error) {
	if report.Content == "" {
		return "", fmt.Errorf("no analysis to export")
	}
	return sink.Put(ctx, report.Name(), report.Markdown())
}

// FileSink writes reports into a directory
type FileSink struct {
	dir string
}

// NewFileSink creates a sink for dir. The directory is created on first use.
func NewFileSink(dir string) *FileSink {
	if dir == "" {
		dir = "."
	}
	return &FileSink{dir: dir}
}

// Put writes data to dir/name through a temporary file
func (s *FileSink) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name != filepath.Base(name) {
		return "", fmt.Errorf("invalid report name: %s", name)
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".report-*")
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	path := filepath.Join(s.dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	return path, nil
}
