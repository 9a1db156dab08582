package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/agentlab/internal/config"
	"github.com/Iron-Ham/agentlab/internal/testutil"
)

func TestIteration_Files(t *testing.T) {
	files := Iteration{Index: 0, Report: "Findings.", Code: "print(1)", Execution: "SUCCESS: true"}.Files()
	require.Len(t, files, 3)
	assert.Equal(t, "research_report_iteration_1.md", files[0].Name)
	assert.Equal(t, "# Research Report - Iteration 1\n\nFindings.\n", files[0].Content)
	assert.Equal(t, "code_iteration_1.py", files[1].Name)
	assert.Equal(t, "execution_result_1.txt", files[2].Name)

	files = Iteration{Index: 2, Code: "x"}.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "code_iteration_3.py", files[0].Name)

	assert.Empty(t, Iteration{Index: 1}.Files())
}

func TestRunDir(t *testing.T) {
	ts := time.Date(2026, 3, 4, 15, 6, 7, 0, time.UTC)
	assert.Equal(t, filepath.Join("output", "run_20260304_150607"), RunDir("output", ts))
}

func TestFileSink_SaveIteration(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run_x")
	sink := NewFileSink(dir)
	assert.Equal(t, dir, sink.Dir())

	paths, err := sink.SaveIteration(context.Background(), Iteration{Index: 1, Report: "r", Execution: "e"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "research_report_iteration_2.md"),
		filepath.Join(dir, "execution_result_2.txt"),
	}, paths)
	assert.Equal(t, "e", testutil.ReadFile(t, paths[1]))
	assert.NoFileExists(t, filepath.Join(dir, "code_iteration_2.py"))
}

func TestFileSink_Unwritable(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := NewFileSink(filepath.Join(blocker, "run")).SaveIteration(context.Background(), Iteration{Code: "x"})
	require.Error(t, err)
}

type recordingPut struct {
	mu    sync.Mutex
	keys  []string
	types []string
	fail  error
}

func (r *recordingPut) put(ctx context.Context, key, contentType, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.keys = append(r.keys, key)
	r.types = append(r.types, contentType)
	return nil
}

func TestObjectStoreSink_SaveIteration(t *testing.T) {
	rec := &recordingPut{}
	sink := newObjectStoreSink("lab", objectPrefix("/runs/", "abc"), rec.put)

	urls, err := sink.SaveIteration(context.Background(), Iteration{Index: 0, Report: "r", Code: "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"s3://lab/runs/abc/research_report_iteration_1.md",
		"s3://lab/runs/abc/code_iteration_1.py",
	}, urls)
	assert.Equal(t, []string{"runs/abc/research_report_iteration_1.md", "runs/abc/code_iteration_1.py"}, rec.keys)
	assert.Equal(t, "text/markdown; charset=utf-8", rec.types[0])
	assert.Equal(t, "text/x-python; charset=utf-8", rec.types[1])
}

func TestObjectStoreSink_UploadError(t *testing.T) {
	rec := &recordingPut{fail: errors.New("access denied")}
	sink := newObjectStoreSink("lab", "abc", rec.put)

	_, err := sink.SaveIteration(context.Background(), Iteration{Code: "c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "abc/code_iteration_1.py")
}

func TestObjectPrefix(t *testing.T) {
	assert.Equal(t, "abc", objectPrefix("", "abc"))
	assert.Equal(t, "a/b/abc", objectPrefix("/a/b/", "abc"))
}

func TestNewObjectStoreSink_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ObjectStoreConfig
	}{
		{"missing endpoint", config.ObjectStoreConfig{Bucket: "b"}},
		{"missing bucket", config.ObjectStoreConfig{Endpoint: "localhost:9000"}},
		{"scheme in endpoint", config.ObjectStoreConfig{Endpoint: "http://localhost:9000", Bucket: "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewObjectStoreSink(context.Background(), tt.cfg, "run")
			require.Error(t, err)
		})
	}
}

type failingSink struct{}

func (failingSink) SaveIteration(ctx context.Context, it Iteration) ([]string, error) {
	return nil, errors.New("mirror down")
}

func TestMultiSink(t *testing.T) {
	dir := t.TempDir()
	sinks := MultiSink{failingSink{}, NewFileSink(dir)}

	paths, err := sinks.SaveIteration(context.Background(), Iteration{Code: "c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mirror down")
	assert.Equal(t, []string{filepath.Join(dir, "code_iteration_1.py")}, paths)
}
