package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/agentlab/internal/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "registry", "agentlab.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testJob(id string) Job {
	return Job{
		ID:         id,
		RunID:      "run-1",
		Scheduler:  "pbs",
		Iteration:  1,
		WorkDir:    "/work",
		JobScript:  "/work/hpc_jobs/iteration_01_01.sh",
		Script:     "/work/generated_code/iteration_01_01.py",
		StdoutPath: "/work/hpc_job_iter01_01.out",
		StderrPath: "/work/hpc_job_iter01_01.err",
		State:      StateQueued,
	}
}

func TestStore_Runs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.CreateRun(ctx, Run{ID: "run-1", Topic: "graphs", Mode: "both", OutputDir: "output/run_1"}))
	require.NoError(t, s.FinishRun(ctx, "run-1", "succeeded", 2))

	r, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "graphs", r.Topic)
	assert.Equal(t, "succeeded", r.Outcome)
	assert.Equal(t, 2, r.Iterations)
	assert.False(t, r.StartedAt.IsZero())
	assert.False(t, r.FinishedAt.IsZero())

	_, err = s.GetRun(ctx, "missing")
	var nf *errors.NotFoundError
	assert.True(t, errors.As(err, &nf))

	err = s.FinishRun(ctx, "missing", "failed", 1)
	assert.True(t, errors.As(err, &nf))
}

func TestStore_JobLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.RecordJob(ctx, testJob("101.pbs")))

	got, err := s.GetJob(ctx, "101.pbs")
	require.NoError(t, err)
	assert.Equal(t, StateQueued, got.State)
	assert.Equal(t, "/work/hpc_job_iter01_01.out", got.StdoutPath)
	assert.True(t, got.Pending())

	got.State = StateCompleted
	got.Kind = "job_succeeded"
	got.Success = true
	got.Reasoning = "done"
	require.NoError(t, s.UpdateJob(ctx, got))

	got, err = s.GetJob(ctx, "101.pbs")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.State)
	assert.True(t, got.Success)
	assert.Equal(t, "done", got.Reasoning)
	assert.False(t, got.Pending())
}

func TestStore_RecordJobReplaces(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	j := testJob("7")
	require.NoError(t, s.RecordJob(ctx, j))
	j.Iteration = 3
	require.NoError(t, s.RecordJob(ctx, j))

	jobs, err := s.ListJobs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 3, jobs[0].Iteration)
}

func TestStore_UpdateJobNotFound(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateJob(context.Background(), testJob("nope"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrJobNotFound))

	_, err = s.GetJob(context.Background(), "nope")
	assert.True(t, errors.Is(err, errors.ErrJobNotFound))
}

func TestStore_PendingJobs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Now()

	queued := testJob("1")
	queued.SubmittedAt = base
	timedOut := testJob("2")
	timedOut.State = StateTimedOut
	timedOut.Kind = KindPending
	timedOut.SubmittedAt = base.Add(time.Second)
	done := testJob("3")
	done.State = StateCompleted
	done.Kind = "job_failed"
	done.SubmittedAt = base.Add(2 * time.Second)

	for _, j := range []Job{done, timedOut, queued} {
		require.NoError(t, s.RecordJob(ctx, j))
	}

	pending, err := s.PendingJobs(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "1", pending[0].ID)
	assert.Equal(t, "2", pending[1].ID)

	all, err := s.ListJobs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "3", all[0].ID)
}

func TestJob_Pending(t *testing.T) {
	tests := []struct {
		state, kind string
		want        bool
	}{
		{StateQueued, "", true},
		{StatePolling, "", true},
		{StateTimedOut, KindPending, true},
		{StateCompleted, "job_succeeded", false},
		{StateSubmitFailed, "submission_failed", false},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			assert.Equal(t, tt.want, Job{State: tt.state, Kind: tt.kind}.Pending())
		})
	}
}
