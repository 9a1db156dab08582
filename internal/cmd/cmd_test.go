package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/agentlab/internal/config"
	"github.com/Iron-Ham/agentlab/internal/console"
	"github.com/Iron-Ham/agentlab/internal/convlog"
	"github.com/Iron-Ham/agentlab/internal/errors"
	"github.com/Iron-Ham/agentlab/internal/execution"
	"github.com/Iron-Ham/agentlab/internal/logging"
	"github.com/Iron-Ham/agentlab/internal/store"
	"github.com/Iron-Ham/agentlab/internal/testutil"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// withRegistry points the configuration at a fresh registry and returns it.
func withRegistry(t *testing.T) *store.Store {
	t.Helper()
	viper.Reset()
	config.SetDefaults()
	path := filepath.Join(t.TempDir(), "registry.db")
	viper.Set("storage.registry_path", path)
	t.Cleanup(viper.Reset)

	st, err := store.Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "agentlab" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "agentlab")
	}

	expectedCmds := []string{"run", "jobs", "monitor", "logs", "config"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"topic", "pdfs", "links", "files_dir", "quick_search", "mode", "conda_env", "no-verbose", "yes", "batch-options", "backend", "max-rounds"} {
		if runCmd.Flags().Lookup(name) == nil {
			t.Errorf("run flag --%s not registered", name)
		}
	}
	if f := runCmd.Flags().ShorthandLookup("y"); f == nil || f.Name != "yes" {
		t.Error("-y should be shorthand for --yes")
	}
}

func TestValidateInputs(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{
		"paper.pdf":      "%PDF-1.4",
		"data/notes.txt": "notes",
	})
	pdf := filepath.Join(dir, "paper.pdf")
	data := filepath.Join(dir, "data")

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validateInputs([]string{pdf}, data))
		assert.NoError(t, validateInputs(nil, ""))
	})

	t.Run("missing pdf", func(t *testing.T) {
		missing := filepath.Join(dir, "nope.pdf")
		err := validateInputs([]string{pdf, missing}, "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInputNotFound))

		var inputErr *errors.InputError
		require.True(t, errors.As(err, &inputErr))
		assert.Equal(t, "pdf", inputErr.Kind)
		assert.Equal(t, []string{missing}, inputErr.Paths)
	})

	t.Run("directory given as pdf", func(t *testing.T) {
		err := validateInputs([]string{data}, "")
		assert.True(t, errors.Is(err, errors.ErrInputNotFound))
	})

	t.Run("files dir is a file", func(t *testing.T) {
		err := validateInputs(nil, pdf)
		require.Error(t, err)
		var inputErr *errors.InputError
		require.True(t, errors.As(err, &inputErr))
		assert.Equal(t, "files_dir", inputErr.Kind)
	})
}

func resetRunFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		runMode, runBackend, runCondaEnv, runBatchOptions = "", "", "", ""
		runMaxRounds = 0
		runYes, runNoVerbose = false, false
	})
}

func TestApplyRunFlags(t *testing.T) {
	resetRunFlags(t)
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{
		"hpc.yaml": "scheduler: slurm\naccount: physics\nmodules:\n  - cuda/12\n",
	})

	runMode = "code_only"
	runBackend = "batch"
	runCondaEnv = "/opt/envs/lab"
	runMaxRounds = 4
	runYes = true
	runNoVerbose = true
	runBatchOptions = filepath.Join(dir, "hpc.yaml")

	cfg := config.Default()
	require.NoError(t, applyRunFlags(cfg))

	assert.Equal(t, "code_only", cfg.Run.Mode)
	assert.Equal(t, "batch", cfg.Executor.Backend)
	assert.Equal(t, "/opt/envs/lab", cfg.Executor.EnvRoot)
	assert.Equal(t, 4, cfg.Run.MaxRounds)
	assert.True(t, cfg.Run.AutoApprove)
	assert.False(t, cfg.Run.Verbose)
	assert.Equal(t, "slurm", cfg.Batch.Scheduler)
	assert.Equal(t, "physics", cfg.Batch.Account)
	assert.Equal(t, []string{"cuda/12"}, cfg.Batch.Modules)
	assert.Equal(t, config.Default().Batch.Walltime, cfg.Batch.Walltime, "unset keys keep their defaults")
}

func TestApplyRunFlags_KeepsConfigWhenUnset(t *testing.T) {
	resetRunFlags(t)
	cfg := config.Default()
	require.NoError(t, applyRunFlags(cfg))
	assert.Equal(t, config.Default(), cfg)
}

func TestApplyRunFlags_MissingBatchOptions(t *testing.T) {
	resetRunFlags(t)
	runBatchOptions = filepath.Join(t.TempDir(), "missing.yaml")

	err := applyRunFlags(config.Default())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInputNotFound))
}

func TestNewBackend(t *testing.T) {
	d := backendDeps{gateway: testutil.NewGateway(), printer: console.Discard(), logger: logging.NopLogger()}

	t.Run("local", func(t *testing.T) {
		cfg := config.Default()
		b, err := newBackend(cfg, d)
		require.NoError(t, err)
		assert.Equal(t, execution.BackendLocal, b.Name())
	})

	t.Run("batch without registry", func(t *testing.T) {
		cfg := config.Default()
		cfg.Executor.Backend = "batch"
		b, err := newBackend(cfg, d)
		require.NoError(t, err)
		assert.Equal(t, execution.BackendBatch, b.Name())
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := config.Default()
		cfg.Executor.Backend = "kubernetes"
		_, err := newBackend(cfg, d)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kubernetes")
	})
}

type verbosityProbe struct {
	name string
	set  atomic.Int32
	val  atomic.Bool
}

func (v *verbosityProbe) Name() string { return v.name }
func (v *verbosityProbe) SetVerbose(b bool) {
	v.set.Add(1)
	v.val.Store(b)
}

func TestResolvePaths(t *testing.T) {
	root := t.TempDir()
	t.Chdir(root)

	cfg := config.Default()
	cfg.Executor.EnvRoot = "envs/lab"
	require.NoError(t, resolvePaths(cfg))

	wantWork, err := filepath.Abs("workspace_runs")
	require.NoError(t, err)
	wantEnv, err := filepath.Abs(filepath.Join("envs", "lab"))
	require.NoError(t, err)
	assert.Equal(t, wantWork, cfg.Run.WorkspaceDir)
	assert.Equal(t, wantEnv, cfg.Executor.EnvRoot)

	cfg.Executor.EnvRoot = ""
	require.NoError(t, resolvePaths(cfg))
	assert.Empty(t, cfg.Executor.EnvRoot)
}

func TestReportRunError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		contains  []string
		transient bool
	}{
		{
			name:      "gateway timeout",
			err:       errors.NewTimeoutError("generate", 2*time.Minute),
			contains:  []string{"generate", "2m0s"},
			transient: true,
		},
		{
			name:     "missing input",
			err:      errors.NewInputError("missing pdf", errors.ErrInputNotFound).WithPaths("paper.pdf"),
			contains: []string{"paper.pdf"},
		},
		{
			name:     "canceled",
			err:      errors.Wrap(errors.Join(errors.ErrCanceled, context.Canceled), "ollama: send request"),
			contains: []string{"Run canceled."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			reportRunError(console.New(&out, false), logging.NopLogger(), tt.err)
			for _, want := range tt.contains {
				assert.Contains(t, out.String(), want)
			}
			assert.Equal(t, tt.transient, bytes.Contains(out.Bytes(), []byte("running again may succeed")))
		})
	}
}

func TestSetVerbosity(t *testing.T) {
	probes := []*verbosityProbe{{name: "a"}, {name: "b"}, {name: "c"}}
	setVerbosity(true, probes[0], probes[1], probes[2])
	for _, p := range probes {
		assert.Equal(t, int32(1), p.set.Load(), p.name)
		assert.True(t, p.val.Load(), p.name)
	}

	setVerbosity(false)
}

func TestWriteJobs(t *testing.T) {
	var buf bytes.Buffer
	writeJobs(&buf, nil, false)
	assert.Contains(t, buf.String(), "No pending jobs.")

	buf.Reset()
	writeJobs(&buf, nil, true)
	assert.Contains(t, buf.String(), "No jobs recorded.")

	buf.Reset()
	writeJobs(&buf, []store.Job{
		{ID: "4242.pbs", Scheduler: "pbs", State: store.StateQueued, Iteration: 1, SubmittedAt: time.Now()},
	}, false)
	out := buf.String()
	assert.Contains(t, out, "4242.pbs")
	assert.Contains(t, out, "QUEUED")
	assert.Contains(t, out, "1 job(s)")
}

func TestJobsCommand_ListsPendingJobs(t *testing.T) {
	st := withRegistry(t)
	ctx := context.Background()
	require.NoError(t, st.RecordJob(ctx, store.Job{ID: "1.pbs", Scheduler: "pbs", State: store.StateQueued, Kind: store.KindPending}))
	require.NoError(t, st.RecordJob(ctx, store.Job{ID: "2.pbs", Scheduler: "pbs", State: store.StateCompleted, Kind: "job_succeeded", Success: true}))

	t.Cleanup(func() { jobsAll = false })

	out, err := executeCommand(rootCmd, "jobs")
	require.NoError(t, err)
	assert.Contains(t, out, "1.pbs")
	assert.NotContains(t, out, "2.pbs")

	out, err = executeCommand(rootCmd, "jobs", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "1.pbs")
	assert.Contains(t, out, "2.pbs")
}

func TestMonitorCommand_FinishedJobReportsStoredOutcome(t *testing.T) {
	st := withRegistry(t)
	require.NoError(t, st.RecordJob(context.Background(), store.Job{
		ID:        "77.pbs",
		Scheduler: "pbs",
		State:     store.StateCompleted,
		Kind:      "job_failed",
		Reasoning: "Exit_status = 1",
	}))

	out, err := executeCommand(rootCmd, "monitor", "77.pbs")
	require.NoError(t, err)
	assert.Contains(t, out, "Job 77.pbs failed (job_failed).")
	assert.Contains(t, out, "Exit_status = 1")
}

func TestMonitorCommand_UnknownJob(t *testing.T) {
	withRegistry(t)
	_, err := executeCommand(rootCmd, "monitor", "missing.pbs")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrJobNotFound))
}

func TestLatestRunDir(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{
		"run_20260101_090000/debug.log": "",
		"run_20260102_090000/debug.log": "",
		"stray.txt":                     "",
	})

	got, err := latestRunDir(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run_20260102_090000"), got)

	_, err = latestRunDir(filepath.Join(dir, "none"))
	assert.Error(t, err)
}

func TestFilterConversation(t *testing.T) {
	entries := []convlog.Entry{
		{Role: "planner", Iteration: 0, Message: "plan v1"},
		{Role: "critic", Iteration: 0, Message: "needs citations"},
		{Role: "critic", Iteration: 1, Message: "good"},
	}

	assert.Len(t, filterConversation(entries, "", -1, ""), 3)
	assert.Len(t, filterConversation(entries, "critic", -1, ""), 2)
	got := filterConversation(entries, "critic", 1, "")
	require.Len(t, got, 1)
	assert.Equal(t, "good", got[0].Message)
	assert.Len(t, filterConversation(entries, "", -1, "citations"), 1)
}

func TestWriteConversation(t *testing.T) {
	var buf bytes.Buffer
	writeConversation(&buf, []convlog.Entry{
		{Timestamp: time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC), Role: "coder", Operation: "create_code", Iteration: 0, Message: "line1\nline2"},
		{Role: "executor", Operation: "execute", Iteration: 1, Error: "boom"},
	})
	out := buf.String()
	assert.Contains(t, out, "[09:30:00] coder.create_code (iteration 1)")
	assert.Contains(t, out, "  line1\n  line2")
	assert.Contains(t, out, "executor.execute (iteration 2) ERROR: boom")
}

func TestTail(t *testing.T) {
	in := []int{1, 2, 3, 4}
	assert.Equal(t, in, tail(in, 0))
	assert.Equal(t, in, tail(in, 10))
	assert.Equal(t, []int{3, 4}, tail(in, 2))
}

func TestParseSetting(t *testing.T) {
	tests := []struct {
		name    string
		current any
		value   string
		want    any
		wantErr bool
	}{
		{"string", "pbs", "slurm", "slurm", false},
		{"bool", true, "false", false, false},
		{"bad bool", true, "maybe", nil, true},
		{"int", 3, "5", int64(5), false},
		{"negative int", 3, "-1", nil, true},
		{"float", 0.2, "0.7", 0.7, false},
		{"list", []string{}, "cuda/12, gcc", []string{"cuda/12", "gcc"}, false},
		{"empty list", []string{"x"}, "", []string{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSetting(tt.current, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderSettings_MasksSecrets(t *testing.T) {
	out, err := renderSettings(map[string]any{
		"storage": map[string]any{
			"object_store": map[string]any{
				"secret_key": "hunter2",
				"access_key": "",
				"bucket":     "artifacts",
			},
		},
	})
	require.NoError(t, err)
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "********")
	assert.Contains(t, out, "bucket: artifacts")
	assert.Contains(t, out, `access_key: ""`, "empty secrets stay empty")
}
