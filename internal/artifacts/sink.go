// Package artifacts persists the outputs of each iteration: the report, the
// program and the execution result. Files land under a timestamped run
// directory and may be mirrored to an S3-compatible bucket.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Iteration is what one iteration leaves behind. Index is 0-based; file
// names use Index+1. Empty fields are not written.
type Iteration struct {
	Index     int
	Report    string
	Code      string
	Execution string
}

// File is one named artifact.
type File struct {
	Name    string
	Content string
}

// Files returns the artifacts of it in a fixed order.
func (it Iteration) Files() []File {
	n := it.Index + 1
	var files []File
	if it.Report != "" {
		files = append(files, File{
			Name:    fmt.Sprintf("research_report_iteration_%d.md", n),
			Content: fmt.Sprintf("# Research Report - Iteration %d\n\n%s\n", n, it.Report),
		})
	}
	if it.Code != "" {
		files = append(files, File{Name: fmt.Sprintf("code_iteration_%d.py", n), Content: it.Code})
	}
	if it.Execution != "" {
		files = append(files, File{Name: fmt.Sprintf("execution_result_%d.txt", n), Content: it.Execution})
	}
	return files
}

// Sink stores iteration artifacts and returns where they went.
type Sink interface {
	SaveIteration(ctx context.Context, it Iteration) ([]string, error)
}

// RunDir returns the timestamped directory for a run started at t.
func RunDir(outputDir string, t time.Time) string {
	return filepath.Join(outputDir, "run_"+t.Format("20060102_150405"))
}

// FileSink writes artifacts into a directory.
type FileSink struct {
	dir string
}

// NewFileSink creates a FileSink rooted at dir. The directory is created on
// first save.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Dir returns the sink's directory.
func (s *FileSink) Dir() string { return s.dir }

// SaveIteration writes the iteration's files and returns their paths.
func (s *FileSink) SaveIteration(ctx context.Context, it Iteration) ([]string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	var paths []string
	for _, f := range it.Files() {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		p := filepath.Join(s.dir, f.Name)
		if err := os.WriteFile(p, []byte(f.Content), 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", f.Name, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// MultiSink saves to every sink, continuing past failures.
type MultiSink []Sink

// SaveIteration saves to each sink in order and joins their errors.
func (m MultiSink) SaveIteration(ctx context.Context, it Iteration) ([]string, error) {
	var (
		paths []string
		errs  []error
	)
	for _, s := range m {
		p, err := s.SaveIteration(ctx, it)
		paths = append(paths, p...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return paths, errors.Join(errs...)
}
