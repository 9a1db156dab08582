package execution

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/agentlab/internal/config"
)

// JobSpec is everything a job script needs.
type JobSpec struct {
	Options     config.BatchConfig
	Script      string // program to run
	WorkDir     string
	Interpreter string
	StdoutPath  string
	StderrPath  string
}

// DefaultJobName is used when the options leave the job name empty.
const DefaultJobName = "agentlab_job"

// RenderJobScript renders a strict-mode bash job script with the
// scheduler's directives, module loads, pre-run commands and the
// interpreter invocation.
func RenderJobScript(spec JobSpec) string {
	opts := spec.Options
	name := opts.JobName
	if name == "" {
		name = DefaultJobName
	}

	lines := []string{"#!/bin/bash"}
	switch schedulerName(opts) {
	case SchedulerPBS:
		lines = append(lines, "#PBS -N "+name)
		if opts.Account != "" {
			lines = append(lines, "#PBS -A "+opts.Account)
		}
		if opts.Select != "" {
			lines = append(lines, "#PBS -l select="+opts.Select)
		}
		if opts.Filesystems != "" {
			lines = append(lines, "#PBS -l filesystems="+opts.Filesystems)
		}
		if opts.Walltime != "" {
			lines = append(lines, "#PBS -l walltime="+opts.Walltime)
		}
		if opts.Queue != "" {
			lines = append(lines, "#PBS -q "+opts.Queue)
		}
		lines = append(lines, "#PBS -o "+spec.StdoutPath, "#PBS -e "+spec.StderrPath)
	case SchedulerSlurm:
		lines = append(lines, "#SBATCH --job-name="+name)
		if opts.Account != "" {
			lines = append(lines, "#SBATCH --account="+opts.Account)
		}
		if opts.Walltime != "" {
			lines = append(lines, "#SBATCH --time="+opts.Walltime)
		}
		if opts.Queue != "" {
			lines = append(lines, "#SBATCH --partition="+opts.Queue)
		}
		lines = append(lines, "#SBATCH --output="+spec.StdoutPath, "#SBATCH --error="+spec.StderrPath)
	}

	lines = append(lines, "", "set -euo pipefail", "cd "+shellQuote(spec.WorkDir))
	for _, m := range opts.Modules {
		lines = append(lines, "module load "+m)
	}
	lines = append(lines, opts.PreRunCommands...)
	lines = append(lines, fmt.Sprintf("%s %s", shellQuote(spec.Interpreter), shellQuote(spec.Script)))
	return strings.Join(lines, "\n") + "\n"
}

// shellQuote single-quotes s when bash would otherwise split or expand it.
// An embedded ' becomes '\''.
func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n\r'\"\\$`!&;|<>()*?[]{}#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
