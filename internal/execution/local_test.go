package execution

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/agentlab/internal/errors"
	"github.com/Iron-Ham/agentlab/internal/model"
	"github.com/Iron-Ham/agentlab/internal/testutil"
)

func isPip(cmd Command) bool {
	return len(cmd.Args) >= 2 && cmd.Args[0] == "-m" && cmd.Args[1] == "pip"
}

func TestMissingModules(t *testing.T) {
	stderr := `Traceback (most recent call last):
ModuleNotFoundError: No module named 'numpy'
ImportError: No module named "scipy"
ModuleNotFoundError: No module named 'numpy'`
	assert.Equal(t, []string{"numpy", "scipy"}, MissingModules(stderr))
	assert.Empty(t, MissingModules("SyntaxError: invalid syntax"))
}

func TestLocalBackend_Success(t *testing.T) {
	dir := t.TempDir()
	runner := newFakeRunner(func(cmd Command) Output { return Output{Stdout: "42\n"} })
	gw := testutil.NewGateway()
	b := NewLocalBackend(LocalOptions{Runner: runner, Gateway: gw})

	res, err := b.Execute(context.Background(), Request{Code: "print(42)", WorkDir: dir, Iteration: 1})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "42\n", res.Stdout)
	assert.Equal(t, model.KindNone, res.Kind)
	assert.Empty(t, res.Reasoning)
	assert.Empty(t, gw.Requests())

	script := filepath.Join(dir, ScriptDir, "iteration_01_01.py")
	assert.Equal(t, "print(42)", testutil.ReadFile(t, script))
	calls := runner.commands()
	require.Len(t, calls, 1)
	assert.Equal(t, DefaultInterpreter, calls[0].Name)
	assert.Equal(t, []string{script}, calls[0].Args)
	assert.Equal(t, dir, calls[0].Dir)
}

func TestLocalBackend_RelativeWorkDir(t *testing.T) {
	root := t.TempDir()
	t.Chdir(root)
	b := NewLocalBackend(LocalOptions{Interpreter: "sh", Runner: ExecRunner{}, Gateway: testutil.NewGateway()})

	res, err := b.Execute(context.Background(), Request{Code: "echo hello", WorkDir: "workspace_runs", Iteration: 0})
	require.NoError(t, err)
	assert.True(t, res.Success, "stderr: %s", res.Stderr)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.FileExists(t, filepath.Join(root, "workspace_runs", ScriptDir, "iteration_00_01.py"))
}

func TestLocalBackend_RelativePathsResolvedOnce(t *testing.T) {
	root := t.TempDir()
	t.Chdir(root)
	testutil.WriteFiles(t, root, map[string]string{"envs/sci/bin/python": "#!/bin/sh\n"})
	runner := newFakeRunner(nil)
	b := NewLocalBackend(LocalOptions{Runner: runner, Gateway: testutil.NewGateway()})

	_, err := b.Execute(context.Background(), Request{Code: "pass", WorkDir: "work", EnvRoot: "envs/sci", Iteration: 1})
	require.NoError(t, err)

	calls := runner.commands()
	require.Len(t, calls, 1)
	work, err := filepath.Abs("work")
	require.NoError(t, err)
	assert.Equal(t, work, calls[0].Dir)
	assert.True(t, filepath.IsAbs(calls[0].Name), "interpreter %q", calls[0].Name)
	assert.Equal(t, []string{filepath.Join(work, ScriptDir, "iteration_01_01.py")}, calls[0].Args)
}

func TestLocalBackend_UniqueScriptNames(t *testing.T) {
	dir := t.TempDir()
	b := NewLocalBackend(LocalOptions{Runner: newFakeRunner(nil), Gateway: testutil.NewGateway()})

	for i := 0; i < 3; i++ {
		_, err := b.Execute(context.Background(), Request{Code: "pass", WorkDir: dir, Iteration: 2})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, b.Executions())
	for _, name := range []string{"iteration_02_01.py", "iteration_02_02.py", "iteration_02_03.py"} {
		assert.FileExists(t, filepath.Join(dir, ScriptDir, name))
	}
}

func TestLocalBackend_InstallsMissingModuleAndReruns(t *testing.T) {
	dir := t.TempDir()
	scriptRuns := 0
	runner := newFakeRunner(func(cmd Command) Output {
		if isPip(cmd) {
			return Output{Stdout: "Successfully installed foopkg"}
		}
		scriptRuns++
		if scriptRuns == 1 {
			return Output{Stderr: "ModuleNotFoundError: No module named 'foo'", ExitCode: 1}
		}
		return Output{Stdout: "done"}
	})
	gw := testutil.NewGateway().On("Which pip package", "foopkg")
	b := NewLocalBackend(LocalOptions{Runner: runner, Gateway: gw})

	res, err := b.Execute(context.Background(), Request{Code: "import foo", WorkDir: dir, Iteration: 0})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"foopkg"}, res.PackagesInstalled)
	assert.Equal(t, 2, scriptRuns)
	assert.Equal(t, 1, gw.Count("Which pip package"))

	var pip []Command
	for _, c := range runner.commands() {
		if isPip(c) {
			pip = append(pip, c)
		}
	}
	require.Len(t, pip, 1)
	assert.Equal(t, []string{"-m", "pip", "install", "foopkg"}, pip[0].Args)
}

func TestLocalBackend_OneInstallForManyModules(t *testing.T) {
	dir := t.TempDir()
	scriptRuns := 0
	runner := newFakeRunner(func(cmd Command) Output {
		if isPip(cmd) {
			return Output{}
		}
		scriptRuns++
		return Output{
			Stderr:   "No module named 'cv2'\nNo module named 'yaml'\nNo module named 'cv2'\nNo module named 'PIL'",
			ExitCode: 1,
		}
	})
	gw := testutil.NewGateway().
		On("module \"cv2\"", "opencv-python").
		On("module \"yaml\"", "pyyaml").
		On("module \"PIL\"", "  `pyyaml`  ").
		On("This Python program failed", "still broken")
	b := NewLocalBackend(LocalOptions{Runner: runner, Gateway: gw})

	res, err := b.Execute(context.Background(), Request{Code: "import cv2", WorkDir: dir})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"opencv-python", "pyyaml"}, res.PackagesInstalled)
	assert.Equal(t, 3, gw.Count("Which pip package"))
	assert.Equal(t, 2, scriptRuns, "the script is re-run exactly once")
	assert.Equal(t, model.KindExecutionError, res.Kind)
	assert.Equal(t, "still broken", res.Reasoning)
}

func TestLocalBackend_FailureWithoutMissingModules(t *testing.T) {
	runner := newFakeRunner(func(cmd Command) Output {
		return Output{Stderr: "ZeroDivisionError: division by zero", ExitCode: 1}
	})
	gw := testutil.NewGateway().On("This Python program failed", "<think>hmm</think>Divides by zero.")
	b := NewLocalBackend(LocalOptions{Runner: runner, Gateway: gw, Temperature: 0.1})

	res, err := b.Execute(context.Background(), Request{Code: "1/0", WorkDir: t.TempDir()})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, res.PackagesInstalled)
	assert.Equal(t, "Divides by zero.", res.Reasoning)
	assert.Equal(t, 1, len(runner.commands()))

	reqs := gw.Requests()
	require.Len(t, reqs, 1)
	assert.InDelta(t, 0.1, reqs[0].Temperature, 1e-9)
	assert.True(t, strings.Contains(reqs[0].Prompt, "1/0"))
}

func TestLocalBackend_BlankPackageSkipsInstall(t *testing.T) {
	runner := newFakeRunner(func(cmd Command) Output {
		return Output{Stderr: "No module named 'internal_mod'", ExitCode: 1}
	})
	gw := testutil.NewGateway().On("Which pip package", "   ")
	b := NewLocalBackend(LocalOptions{Runner: runner, Gateway: gw})

	res, err := b.Execute(context.Background(), Request{Code: "import internal_mod", WorkDir: t.TempDir()})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, res.PackagesInstalled)
	assert.Len(t, runner.commands(), 1)
}

func TestLocalBackend_GatewayErrorIsReturned(t *testing.T) {
	runner := newFakeRunner(func(cmd Command) Output { return Output{ExitCode: 1} })
	gw := testutil.NewGateway().Fail(errors.NewGatewayError("send request", errors.ErrGatewayUnavailable))
	b := NewLocalBackend(LocalOptions{Runner: runner, Gateway: gw})

	_, err := b.Execute(context.Background(), Request{Code: "x", WorkDir: t.TempDir()})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestLocalBackend_WorkspaceError(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	testutil.WriteFiles(t, filepath.Dir(file), map[string]string{"not-a-dir": "x"})
	b := NewLocalBackend(LocalOptions{Runner: newFakeRunner(nil), Gateway: testutil.NewGateway()})

	_, err := b.Execute(context.Background(), Request{Code: "x", WorkDir: file})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrWorkspace))
}
