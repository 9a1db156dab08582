package execution

import (
	"context"
	"strings"
	"sync"
)

// fakeRunner answers commands from a handler and records every call.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []Command
	handler func(cmd Command) Output
}

func newFakeRunner(handler func(cmd Command) Output) *fakeRunner {
	return &fakeRunner{handler: handler}
}

func (f *fakeRunner) Run(ctx context.Context, cmd Command) Output {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()
	if f.handler == nil {
		return Output{}
	}
	return f.handler(cmd)
}

// count returns how many calls started with prefix, e.g. "qstat" or
// "qstat -fx".
func (f *fakeRunner) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.String() == prefix || strings.HasPrefix(c.String(), prefix+" ") {
			n++
		}
	}
	return n
}

func (f *fakeRunner) commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.calls))
	copy(out, f.calls)
	return out
}
