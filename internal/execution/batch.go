package execution

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Iron-Ham/agentlab/internal/config"
	"github.com/Iron-Ham/agentlab/internal/console"
	"github.com/Iron-Ham/agentlab/internal/errors"
	"github.com/Iron-Ham/agentlab/internal/event"
	"github.com/Iron-Ham/agentlab/internal/llm"
	"github.com/Iron-Ham/agentlab/internal/logging"
	"github.com/Iron-Ham/agentlab/internal/model"
	"github.com/Iron-Ham/agentlab/internal/prompt"
	"github.com/Iron-Ham/agentlab/internal/store"
	"github.com/Iron-Ham/agentlab/internal/util"
)

// JobDir is the subdirectory of the working directory that holds job
// scripts and their stdout and stderr logs.
const JobDir = "hpc_jobs"

// MaxStatusDisplay bounds the status output shown per poll.
const MaxStatusDisplay = 2000

// JobState is a state of the batch submission state machine:
//
//	SUBMITTING -> SUBMIT_FAILED
//	SUBMITTING -> QUEUED -> POLLING -> COMPLETED | TIMED_OUT
type JobState string

const (
	StateSubmitting   JobState = "SUBMITTING"
	StateSubmitFailed JobState = store.StateSubmitFailed
	StateQueued       JobState = store.StateQueued
	StatePolling      JobState = store.StatePolling
	StateCompleted    JobState = store.StateCompleted
	StateTimedOut     JobState = store.StateTimedOut
)

// Job is a submitted batch job.
type Job struct {
	ID         string
	Scheduler  string
	Iteration  int
	WorkDir    string
	JobScript  string
	Script     string
	StdoutPath string
	StderrPath string
	Code       string
	State      JobState
}

// JobFromRecord rebuilds a job from its registry record. The program text
// is read back from the script file when it still exists.
func JobFromRecord(r store.Job) Job {
	j := Job{
		ID:         r.ID,
		Scheduler:  r.Scheduler,
		Iteration:  r.Iteration,
		WorkDir:    r.WorkDir,
		JobScript:  r.JobScript,
		Script:     r.Script,
		StdoutPath: r.StdoutPath,
		StderrPath: r.StderrPath,
		State:      JobState(r.State),
	}
	if data, err := os.ReadFile(r.Script); err == nil {
		j.Code = string(data)
	}
	return j
}

func (j *Job) record(runID string) store.Job {
	return store.Job{
		ID:         j.ID,
		RunID:      runID,
		Scheduler:  j.Scheduler,
		Iteration:  j.Iteration,
		WorkDir:    j.WorkDir,
		JobScript:  j.JobScript,
		Script:     j.Script,
		StdoutPath: j.StdoutPath,
		StderrPath: j.StderrPath,
		State:      string(j.State),
	}
}

// Registry tracks submitted jobs so monitoring can be resumed later.
// *store.Store implements it.
type Registry interface {
	RecordJob(ctx context.Context, j store.Job) error
	UpdateJob(ctx context.Context, j store.Job) error
}

// BatchOptions configures a BatchBackend.
type BatchOptions struct {
	Config config.BatchConfig
	// Interpreter is used when the request's environment root has none.
	Interpreter string
	Runner      CommandRunner
	// Gateway explains failed jobs.
	Gateway     llm.Gateway
	Temperature float64
	Console     *console.Printer
	Logger      *logging.Logger
	Bus         *event.Bus
	Registry    Registry // optional
	RunID       string
	// Sleep waits between status checks. It returns early with an error
	// when ctx ends. Defaults to a timer-based wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// BatchBackend submits programs to a PBS or Slurm scheduler, polls until the
// job leaves the queue or the check budget runs out, then classifies the
// outcome from scheduler metadata and job logs.
type BatchBackend struct {
	opts    BatchOptions
	logger  *logging.Logger
	counter counter
}

// NewBatchBackend creates a BatchBackend.
func NewBatchBackend(opts BatchOptions) *BatchBackend {
	if opts.Runner == nil {
		opts.Runner = NewPoolRunner(DefaultPoolSize, nil)
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &BatchBackend{opts: opts, logger: logger.With("backend", BackendBatch)}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Name returns "batch".
func (b *BatchBackend) Name() string { return BackendBatch }

// Submissions returns how many programs this back end has written.
func (b *BatchBackend) Submissions() int { return b.counter.Count() }

// Execute writes the program and its job script, submits the job and
// monitors it to a classified outcome.
func (b *BatchBackend) Execute(ctx context.Context, req Request) (model.ExecutionResult, error) {
	req, err := req.absolute(BackendBatch)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	seq := b.counter.next()
	script, err := writeScript(req.WorkDir, req.Code, req.Iteration, seq, BackendBatch)
	if err != nil {
		return model.ExecutionResult{}, err
	}
	jobDir := filepath.Join(req.WorkDir, JobDir)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return model.ExecutionResult{}, errors.NewExecutionError("create job directory",
			fmt.Errorf("%w: %v", errors.ErrWorkspace, err)).WithBackend(BackendBatch).WithIteration(req.Iteration)
	}
	job := &Job{
		Scheduler:  schedulerName(b.opts.Config),
		Iteration:  req.Iteration,
		WorkDir:    req.WorkDir,
		Script:     script,
		StdoutPath: filepath.Join(jobDir, fmt.Sprintf("hpc_job_iter%02d_%02d.out", req.Iteration, seq)),
		StderrPath: filepath.Join(jobDir, fmt.Sprintf("hpc_job_iter%02d_%02d.err", req.Iteration, seq)),
		Code:       req.Code,
	}
	for _, p := range []string{job.StdoutPath, job.StderrPath} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			b.logger.Warn("could not remove stale log", "path", p, "error", err)
		}
	}

	job.JobScript = filepath.Join(jobDir, fmt.Sprintf("iteration_%02d_%02d.sh", req.Iteration, seq))
	body := RenderJobScript(JobSpec{
		Options:     b.opts.Config,
		Script:      script,
		WorkDir:     req.WorkDir,
		Interpreter: ResolveInterpreter(req.EnvRoot, b.opts.Interpreter),
		StdoutPath:  job.StdoutPath,
		StderrPath:  job.StderrPath,
	})
	if err := os.WriteFile(job.JobScript, []byte(body), 0o755); err != nil {
		return model.ExecutionResult{}, errors.NewExecutionError("write job script",
			fmt.Errorf("%w: %v", errors.ErrWorkspace, err)).WithBackend(BackendBatch).WithIteration(req.Iteration)
	}

	b.transition(job, StateSubmitting, job.JobScript)
	submit := b.submit(ctx, job)
	job.ID = ExtractJobID(submit.Stdout, submit.Stderr)
	if !submit.OK() || job.ID == "" {
		b.transition(job, StateSubmitFailed, fmt.Sprintf("exit code %d", submit.ExitCode))
		b.opts.Console.Role("executor", "batch submission failed")
		c := Classify(Observation{Submitted: false})
		return model.ExecutionResult{
			Stdout:    submit.Stdout,
			Stderr:    submit.Stderr,
			Kind:      c.Kind,
			Reasoning: c.Reasoning,
		}, nil
	}

	b.opts.Console.Role("executor", "submitted job %s", job.ID)
	b.transition(job, StateQueued, "")
	if b.opts.Registry != nil {
		if err := b.opts.Registry.RecordJob(ctx, job.record(b.opts.RunID)); err != nil {
			b.logger.Warn("could not record job", "error", b.registryError("record job", job, err))
		}
	}
	return b.finish(ctx, job, submit)
}

// Monitor resumes the poll, metadata and classify sequence for a job
// submitted earlier, typically by a previous process.
func (b *BatchBackend) Monitor(ctx context.Context, job Job) (model.ExecutionResult, error) {
	if job.ID == "" {
		return model.ExecutionResult{}, errors.NewValidationError("job id is required").WithField("id")
	}
	if job.Scheduler == "" {
		job.Scheduler = schedulerName(b.opts.Config)
	}
	b.logger.Info("resuming job", "job_id", job.ID, "state", job.State)
	return b.finish(ctx, &job, Output{})
}

// submit runs the submission command. An unknown scheduler without a
// configured command is reported as a failed submission.
func (b *BatchBackend) submit(ctx context.Context, job *Job) Output {
	cmd, err := SubmitCommand(b.opts.Config, job.JobScript, job.WorkDir)
	if err != nil {
		return Output{ExitCode: -1, Stderr: err.Error()}
	}
	out := b.opts.Runner.Run(ctx, cmd)
	b.logger.Info("submit finished", "command", cmd.String(), "exit_code", out.ExitCode)
	b.opts.Console.Preview("Submission output", out.Stdout+"\n"+out.Stderr)
	return out
}

// finish polls a queued job and classifies the outcome. Stdout and stderr
// of the result fall back to scheduler output when the logs are empty; the
// classification always uses the logs themselves.
func (b *BatchBackend) finish(ctx context.Context, job *Job, submit Output) (model.ExecutionResult, error) {
	status := b.poll(ctx, job)
	obs := Observation{Submitted: true, Poll: status, JobID: job.ID}
	stdout, stderr := submit.Stdout, submit.Stderr

	switch status {
	case PollCompleted:
		b.transition(job, StateCompleted, "")
		obs.Stdout = readTail(job.StdoutPath)
		obs.Stderr = readTail(job.StderrPath)
		metadata := b.metadata(ctx, job)
		obs.Metadata = ParseMetadata(job.Scheduler, metadata)

		stdout, stderr = obs.Stdout, obs.Stderr
		if stdout == "" {
			stdout = metadata
		}
		if stdout == "" {
			stdout = submit.Stdout
		}
		if stderr == "" {
			stderr = submit.Stderr
		}
	case PollTimedOut, PollInterrupted:
		b.transition(job, StateTimedOut, string(status))
		b.logger.Warn("job left pending", "job_id", job.ID, "error", b.pendingCause(job, status))
	}

	c := Classify(obs)
	if c.NeedsAnalysis {
		analysis, err := b.opts.Gateway.Generate(ctx, llm.Request{
			Prompt:      prompt.ExecutionFailureReasoning(job.Code, stdout, stderr),
			Temperature: b.opts.Temperature,
		})
		if err != nil {
			return model.ExecutionResult{}, err
		}
		c.Reasoning += "\nFailure analysis:\n" + util.StripThinking(analysis)
	}

	switch c.Kind {
	case model.KindJobSucceeded:
		b.opts.Console.Success("job %s completed successfully", job.ID)
	case model.KindPending:
		b.opts.Console.Warn("job %s is still pending; run `agentlab monitor %s` to resume", job.ID, job.ID)
	default:
		b.opts.Console.Role("executor", "job %s failed", job.ID)
	}
	b.logger.Info("job classified", "job_id", job.ID, "kind", c.Kind, "success", c.Success)

	if b.opts.Registry != nil {
		rec := job.record(b.opts.RunID)
		rec.Kind = string(c.Kind)
		rec.Success = c.Success
		rec.Reasoning = c.Reasoning
		if err := b.opts.Registry.UpdateJob(ctx, rec); err != nil {
			b.logger.Warn("could not update job", "error", b.registryError("update job", job, err))
		}
	}

	return model.ExecutionResult{
		Success:   c.Success,
		Stdout:    stdout,
		Stderr:    stderr,
		Kind:      c.Kind,
		Reasoning: c.Reasoning,
		JobID:     job.ID,
	}, nil
}

// poll checks the queue up to MaxChecks times, sleeping the poll interval
// between checks.
func (b *BatchBackend) poll(ctx context.Context, job *Job) PollStatus {
	cfg := b.opts.Config
	cmd, ok := StatusCommand(cfg, job.ID, job.WorkDir)
	if !ok {
		b.logger.Warn("no status command for scheduler", "scheduler", job.Scheduler)
		return PollUnconfirmed
	}
	b.transition(job, StatePolling, "")

	maxChecks := max(cfg.MaxChecks, 1)
	for check := 1; check <= maxChecks; check++ {
		if check > 1 {
			if err := b.opts.Sleep(ctx, cfg.PollInterval()); err != nil {
				return PollInterrupted
			}
		}
		out := b.opts.Runner.Run(ctx, cmd)
		if ctx.Err() != nil {
			return PollInterrupted
		}
		listed := JobStillListed(job.ID, job.Scheduler, out.Stdout, out.Stderr, out.ExitCode)
		b.logger.Debug("status check", "job_id", job.ID, "check", check, "listed", listed, "exit_code", out.ExitCode)
		b.opts.Console.Preview(fmt.Sprintf("Job %s status (check %d/%d)", job.ID, check, maxChecks),
			util.TruncateString(strings.TrimSpace(out.Stdout+"\n"+out.Stderr), MaxStatusDisplay))
		if !listed {
			return PollCompleted
		}
	}
	return PollTimedOut
}

// pendingCause explains why monitoring stopped before the job left the
// queue. Both causes can be resumed with Monitor.
func (b *BatchBackend) pendingCause(job *Job, status PollStatus) error {
	if status == PollInterrupted {
		return errors.NewExecutionError("monitoring interrupted", errors.ErrCanceled).
			WithBackend(BackendBatch).WithIteration(job.Iteration).WithJobID(job.ID).WithRetryable(true)
	}
	window := time.Duration(max(b.opts.Config.MaxChecks, 1)) * b.opts.Config.PollInterval()
	return errors.NewTimeoutError("monitor job "+job.ID, window)
}

func (b *BatchBackend) registryError(op string, job *Job, err error) error {
	return errors.NewExecutionError(op, err).
		WithBackend(BackendBatch).WithIteration(job.Iteration).WithJobID(job.ID)
}

// metadata returns the raw scheduler report for a finished job, or "" when
// none is available.
func (b *BatchBackend) metadata(ctx context.Context, job *Job) string {
	cmd, ok := MetadataCommand(b.opts.Config, job.ID, job.WorkDir)
	if !ok {
		return ""
	}
	out := b.opts.Runner.Run(ctx, cmd)
	if !out.OK() {
		b.logger.Warn("job metadata unavailable", "job_id", job.ID, "exit_code", out.ExitCode)
		return ""
	}
	return strings.TrimSpace(out.Stdout)
}

func (b *BatchBackend) transition(job *Job, to JobState, detail string) {
	from := job.State
	job.State = to
	b.logger.Debug("job state changed", "job_id", job.ID, "from", from, "to", to)
	b.opts.Bus.Publish(event.NewJobStateChangedEvent(job.ID, job.Iteration, string(from), string(to), detail))
}
