// Package console prints operator-facing progress: role banners, previews of
// generated text, batch status checks and the final run status.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/agentlab/internal/util"
)

// PreviewChars is how much of generated text a preview shows.
const PreviewChars = 1000

// Printer writes styled lines to an output stream. Verbose-only output is
// dropped when verbose is off; status, warnings and errors always print.
type Printer struct {
	mu      sync.Mutex
	out     io.Writer
	verbose atomic.Bool
}

// New creates a Printer writing to out; nil selects stdout.
func New(out io.Writer, verbose bool) *Printer {
	if out == nil {
		out = os.Stdout
	}
	p := &Printer{out: out}
	p.verbose.Store(verbose)
	return p
}

// Discard returns a Printer that writes nothing.
func Discard() *Printer {
	return New(io.Discard, false)
}

// SetVerbose toggles verbose output.
func (p *Printer) SetVerbose(v bool) {
	p.verbose.Store(v)
}

// Verbose reports whether verbose output is on.
func (p *Printer) Verbose() bool {
	return p.verbose.Load()
}

func (p *Printer) println(s string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.out, s)
}

// Header prints a section title.
func (p *Printer) Header(format string, args ...any) {
	p.println(Title.Render(fmt.Sprintf(format, args...)))
}

// Role prints a verbose line attributed to a role.
func (p *Printer) Role(role, format string, args ...any) {
	if p == nil || !p.Verbose() {
		return
	}
	p.println(Role.Render(role+":") + " " + fmt.Sprintf(format, args...))
}

// Preview prints a verbose, truncated block of generated text.
func (p *Printer) Preview(label, text string) {
	if p == nil || !p.Verbose() {
		return
	}
	p.println(Muted.Render(label))
	p.println(util.Preview(strings.TrimSpace(text), PreviewChars))
}

// Block prints text in full inside a bordered box regardless of verbosity.
func (p *Printer) Block(label, text string) {
	p.println(Title.Render(label))
	p.println(Box.Render(strings.TrimSpace(text)))
}

// Info prints a verbose plain line.
func (p *Printer) Info(format string, args ...any) {
	if p == nil || !p.Verbose() {
		return
	}
	p.println(fmt.Sprintf(format, args...))
}

// Success prints a success line.
func (p *Printer) Success(format string, args ...any) {
	p.println(Success.Render(fmt.Sprintf(format, args...)))
}

// Warn prints a warning line.
func (p *Printer) Warn(format string, args ...any) {
	p.println(Warning.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error line.
func (p *Printer) Error(format string, args ...any) {
	p.println(Error.Render(fmt.Sprintf(format, args...)))
}
