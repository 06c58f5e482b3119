// Package confirm asks the operator for decisions and credentials.
//
// The orchestrator only talks to the Prompter interface, so runs can be
// driven interactively, approved automatically or scripted in tests.
package confirm

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// ErrNonInteractive is returned when input is needed but no operator is available.
var ErrNonInteractive = errors.New("input required but running non-interactively")

// Prompter asks the operator questions at phase boundaries.
type Prompter interface {
	// Confirm asks a yes/no question. The default answer is no.
	Confirm(ctx context.Context, question string) (bool, error)

	// Input asks for a line of text. Secret input is not echoed.
	// An empty answer returns def.
	Input(ctx context.Context, question, def string, secret bool) (string, error)
}

// AutoApprove answers yes to every question and returns defaults for input.
type AutoApprove struct{}

// Compile-time check that AutoApprove implements Prompter.
var _ Prompter = AutoApprove{}

// Confirm always returns true.
func (AutoApprove) Confirm(ctx context.Context, question string) (bool, error) {
	return true, nil
}

// Input returns def, or ErrNonInteractive if there is no default.
func (AutoApprove) Input(ctx context.Context, question, def string, secret bool) (string, error) {
	if def == "" {
		return "", ErrNonInteractive
	}
	return def, nil
}

// NonInteractive fails every question with ErrNonInteractive.
type NonInteractive struct{}

// Compile-time check that NonInteractive implements Prompter.
var _ Prompter = NonInteractive{}

// Confirm returns ErrNonInteractive.
func (NonInteractive) Confirm(ctx context.Context, question string) (bool, error) {
	return false, ErrNonInteractive
}

// Input returns ErrNonInteractive.
func (NonInteractive) Input(ctx context.Context, question, def string, secret bool) (string, error) {
	return "", ErrNonInteractive
}

// Options selects a Prompter.
type Options struct {
	// Yes answers every confirmation with yes.
	Yes bool

	// NonInteractive refuses to ask anything.
	NonInteractive bool

	// In and Out are the terminal streams (default: os.Stdin and os.Stdout).
	In  *os.File
	Out io.Writer
}

// New returns the Prompter for opts: AutoApprove for Yes, NonInteractive when
// requested, a form based prompter on a terminal, and a line based prompter
// reading standard input otherwise.
func New(opts Options) Prompter {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	switch {
	case opts.Yes:
		return AutoApprove{}
	case opts.NonInteractive:
		return NonInteractive{}
	case IsTerminal(opts.In):
		return NewForm()
	default:
		return NewLine(opts.In, opts.Out)
	}
}

// IsTerminal reports whether f is a terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
