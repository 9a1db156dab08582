// Package workspace guards the directory that receives generated scripts and
// job logs. Script names are numbered per process, so two runs sharing a
// workspace would overwrite each other's files.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Iron-Ham/agentlab/internal/errors"
	"github.com/Iron-Ham/agentlab/internal/logging"
)

// LockFileName is the lock file created inside the workspace.
const LockFileName = ".agentlab.lock"

// ErrLocked is returned when another live process holds the workspace.
var ErrLocked = errors.New("workspace is in use by another run")

// Lock is a held workspace lock.
type Lock struct {
	RunID     string    `json:"run_id"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`

	path   string
	logger *logging.Logger
}

// Acquire creates the workspace if needed and takes its lock. A lock left by
// a process that is no longer running is replaced.
func Acquire(dir, runID string, logger *logging.Logger) (*Lock, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewExecutionError("create workspace", fmt.Errorf("%w: %v", errors.ErrWorkspace, err))
	}
	path := filepath.Join(dir, LockFileName)

	if held, err := Read(path); err == nil {
		if held.alive() {
			logger.Error("workspace locked", "dir", dir, "pid", held.PID, "run_id", held.RunID)
			return nil, held.lockedError()
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove stale workspace lock: %w", err)
		}
		logger.Warn("stale workspace lock removed", "dir", dir, "old_pid", held.PID, "old_run_id", held.RunID)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	l := &Lock{
		RunID:     runID,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		path:      path,
		logger:    logger,
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode workspace lock: %w", err)
	}

	// O_EXCL settles a race with a run that started at the same moment.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			if held, readErr := Read(path); readErr == nil {
				return nil, held.lockedError()
			}
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("create workspace lock: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(data); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write workspace lock: %w", err)
	}
	logger.Info("workspace lock acquired", "dir", dir, "pid", l.PID)
	return l, nil
}

// Release removes the lock if this process still owns it. Safe to call more
// than once and on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	held, err := Read(l.path)
	if err != nil || held.PID != l.PID || held.RunID != l.RunID {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	l.logger.Info("workspace lock released", "path", l.path)
	return nil
}

// Read parses the lock file at path.
func Read(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var l Lock
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse workspace lock: %w", err)
	}
	l.path = path
	l.logger = logging.NopLogger()
	return &l, nil
}

// Holder returns the lock on dir when a live process holds it.
func Holder(dir string) (*Lock, bool) {
	l, err := Read(filepath.Join(dir, LockFileName))
	if err != nil || !l.alive() {
		return nil, false
	}
	return l, true
}

func (l *Lock) lockedError() error {
	return fmt.Errorf("%w: run %s (PID %d on %s)", ErrLocked, l.RunID, l.PID, l.Hostname)
}

// alive reports whether the owning process is still running. Locks written
// on another host are assumed live.
func (l *Lock) alive() bool {
	if host, err := os.Hostname(); err == nil && l.Hostname != "" && l.Hostname != host {
		return true
	}
	p, err := os.FindProcess(l.PID)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
