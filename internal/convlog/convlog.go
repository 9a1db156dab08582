// Package convlog keeps the append-only conversation log of a run: one JSON
// record per line for every role invocation.
package convlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Iron-Ham/agentlab/internal/event"
)

// FileName is the conversation log's name inside a run directory.
const FileName = "conversation.jsonl"

// Entry is one record. Entries are never modified once written.
type Entry struct {
	Timestamp  time.Time      `json:"timestamp"`
	RunID      string         `json:"run_id,omitempty"`
	Role       string         `json:"role"`
	Operation  string         `json:"operation,omitempty"`
	Iteration  int            `json:"iteration"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Log appends entries to a file. It is safe for concurrent use.
type Log struct {
	mu    sync.Mutex
	runID string
	f     *os.File
	w     *bufio.Writer
	n     int
}

// Open opens path for appending, creating it and its directory if needed.
func Open(path, runID string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create conversation log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open conversation log: %w", err)
	}
	return &Log{runID: runID, f: f, w: bufio.NewWriter(f)}, nil
}

// Append writes one entry and flushes it. A zero timestamp is set to now.
func (l *Log) Append(e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.RunID == "" {
		e.RunID = l.runID
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode conversation entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return fmt.Errorf("conversation log is closed")
	}
	if _, err := l.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write conversation entry: %w", err)
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("flush conversation log: %w", err)
	}
	l.n++
	return nil
}

// Len returns how many entries this Log has written.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

// Subscribe appends an entry for every RoleInvokedEvent published on bus
// and returns the subscription id.
func (l *Log) Subscribe(bus *event.Bus) string {
	return bus.Subscribe(event.TypeRoleInvoked, func(ev event.Event) {
		e, ok := ev.(event.RoleInvokedEvent)
		if !ok {
			return
		}
		entry := Entry{
			Timestamp:  e.Timestamp(),
			Role:       e.Role,
			Operation:  e.Operation,
			Iteration:  e.Iteration,
			Message:    e.Message,
			Metadata:   e.Metadata,
			DurationMS: e.Duration.Milliseconds(),
		}
		if e.Err != nil {
			entry.Error = e.Err.Error()
		}
		_ = l.Append(entry)
	})
}

// Close flushes and closes the file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return nil
	}
	flushErr := l.w.Flush()
	closeErr := l.f.Close()
	l.w = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Read parses every entry from r. Malformed lines are skipped.
func Read(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// ReadFile parses the conversation log at path.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open conversation log: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}
