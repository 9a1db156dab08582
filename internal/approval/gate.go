package approval

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrNoInput is returned when the input ends before a valid answer.
var ErrNoInput = errors.New("no approval input")

// Question is one approval prompt and its follow-up request for changes.
type Question struct {
	Prompt        string
	ChangesPrompt string
	Invalid       string
}

// The two gates of a run.
var (
	PlanQuestion = Question{
		Prompt:        "PI: Do you want to proceed with the plan? (y/n): ",
		ChangesPrompt: "PI: Please input the suggested changes: ",
		Invalid:       "PI: Invalid input. Please enter 'y' or 'n'.",
	}
	CodingPlanQuestion = Question{
		Prompt:        "CodeWriter: Approve coding plan? (y/n): ",
		ChangesPrompt: "Provide feedback for coding plan: ",
		Invalid:       "Invalid input. Please respond with y/n.",
	}
)

// Decision is the operator's answer.
type Decision struct {
	Approved bool
	Changes  string // set when not approved
}

// Prompter asks a question and returns the raw answer line.
type Prompter interface {
	Prompt(ctx context.Context, question string) (string, error)
}

// LinePrompter writes questions to out and reads answers line by line from in.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLinePrompter creates a LinePrompter.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

type lineResult struct {
	line string
	err  error
}

// Prompt prints question and waits for one line. It returns ctx.Err() if
// the context ends first; the pending read is abandoned.
func (p *LinePrompter) Prompt(ctx context.Context, question string) (string, error) {
	if _, err := fmt.Fprint(p.out, question); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}
	ch := make(chan lineResult, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- lineResult{line: line, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			if !errors.Is(r.err, io.EOF) {
				return "", fmt.Errorf("read answer: %w", r.err)
			}
			// A final line without a newline is still an answer.
			if r.line == "" {
				return "", ErrNoInput
			}
		}
		return strings.TrimRight(r.line, "\r\n"), nil
	}
}

// Gate asks the operator to approve plans.
type Gate struct {
	mu          sync.Mutex
	prompter    Prompter
	out         io.Writer
	autoApprove bool
}

// NewGate creates a Gate. With autoApprove every question is answered yes
// without consulting the prompter.
func NewGate(prompter Prompter, autoApprove bool) *Gate {
	return &Gate{prompter: prompter, out: os.Stdout, autoApprove: autoApprove}
}

// SetOutput redirects the invalid-answer notices.
func (g *Gate) SetOutput(w io.Writer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.out = w
}

// AutoApprove reports whether the gate answers yes on its own.
func (g *Gate) AutoApprove() bool {
	return g.autoApprove
}

// Confirm asks q until the answer is y or n. On n it asks for the changes
// and returns them with the decision.
func (g *Gate) Confirm(ctx context.Context, q Question) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.autoApprove {
		return Decision{Approved: true}, nil
	}
	for {
		answer, err := g.prompter.Prompt(ctx, q.Prompt)
		if err != nil {
			return Decision{}, err
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return Decision{Approved: true}, nil
		case "n", "no":
			changes, err := g.prompter.Prompt(ctx, q.ChangesPrompt)
			if err != nil {
				return Decision{}, err
			}
			return Decision{Changes: strings.TrimSpace(changes)}, nil
		default:
			_, _ = fmt.Fprintln(g.out, q.Invalid)
		}
	}
}

// Interactive reports whether f is a terminal. Runs whose input is not a
// terminal need auto-approve or piped answers.
func Interactive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
