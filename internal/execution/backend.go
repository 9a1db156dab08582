package execution

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Iron-Ham/agentlab/internal/errors"
	"github.com/Iron-Ham/agentlab/internal/model"
)

// Back end names.
const (
	BackendLocal = "local"
	BackendBatch = "batch"
)

// ScriptDir is the subdirectory of the working directory that holds
// generated programs.
const ScriptDir = "generated_code"

// Request describes one execution attempt.
type Request struct {
	Code      string
	WorkDir   string
	Iteration int
	// EnvRoot is an optional environment root searched for the interpreter.
	EnvRoot string
}

// absolute returns the request with WorkDir and EnvRoot made absolute.
// Generated paths are handed to processes that run inside WorkDir, so a
// relative path would resolve twice.
func (r Request) absolute(backend string) (Request, error) {
	for _, p := range []*string{&r.WorkDir, &r.EnvRoot} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return Request{}, errors.NewExecutionError("resolve working directory",
				fmt.Errorf("%w: %v", errors.ErrWorkspace, err)).WithBackend(backend).WithIteration(r.Iteration)
		}
		*p = abs
	}
	return r, nil
}

// Backend runs a program and reports the outcome.
type Backend interface {
	Name() string
	Execute(ctx context.Context, req Request) (model.ExecutionResult, error)
}

// counter hands out the per-back-end sequence numbers embedded in generated
// file names so that no two attempts share a file.
type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

// Count returns how many numbers were handed out.
func (c *counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// writeScript writes code to <workDir>/generated_code/iteration_II_NN.py.
func writeScript(workDir, code string, iteration, seq int, backend string) (string, error) {
	dir := filepath.Join(workDir, ScriptDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.NewExecutionError("create script directory", fmt.Errorf("%w: %v", errors.ErrWorkspace, err)).
			WithBackend(backend).WithIteration(iteration)
	}
	path := filepath.Join(dir, fmt.Sprintf("iteration_%02d_%02d.py", iteration, seq))
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return "", errors.NewExecutionError("write script", fmt.Errorf("%w: %v", errors.ErrWorkspace, err)).
			WithBackend(backend).WithIteration(iteration)
	}
	return path, nil
}
