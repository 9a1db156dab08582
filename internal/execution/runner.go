package execution

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"golang.org/x/sync/semaphore"
)

// DefaultPoolSize bounds concurrent subprocesses.
const DefaultPoolSize = 8

// Command is a subprocess invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
}

// String renders the command line.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Output is the captured result of a Command. A command that could not be
// started reports ExitCode -1 with the start error in Stderr.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// OK reports whether the command exited with status 0.
func (o Output) OK() bool {
	return o.ExitCode == 0
}

// CommandRunner runs commands.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) Output
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes cmd and captures its output.
func (ExecRunner) Run(ctx context.Context, cmd Command) Output {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		out.ExitCode = exitErr.ExitCode()
		return out
	}
	out.ExitCode = -1
	if out.Stderr != "" && !strings.HasSuffix(out.Stderr, "\n") {
		out.Stderr += "\n"
	}
	out.Stderr += err.Error()
	return out
}

// PoolRunner bounds how many commands run at once.
type PoolRunner struct {
	sem  *semaphore.Weighted
	next CommandRunner
}

// NewPoolRunner wraps next so at most size commands run concurrently. A
// non-positive size selects DefaultPoolSize; a nil next selects ExecRunner.
func NewPoolRunner(size int64, next CommandRunner) *PoolRunner {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if next == nil {
		next = ExecRunner{}
	}
	return &PoolRunner{sem: semaphore.NewWeighted(size), next: next}
}

// Run waits for a slot and runs cmd. If ctx ends first the command is not
// started and the context error is reported as a start failure.
func (p *PoolRunner) Run(ctx context.Context, cmd Command) Output {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Output{ExitCode: -1, Stderr: err.Error()}
	}
	defer p.sem.Release(1)
	return p.next.Run(ctx, cmd)
}
