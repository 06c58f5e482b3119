package confirm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Line prompts on a writer and reads answers line by line.
// Secret input is read like any other line.
type Line struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// Compile-time check that Line implements Prompter.
var _ Prompter = (*Line)(nil)

// NewLine creates a line based prompter.
func NewLine(in io.Reader, out io.Writer) *Line {
	return &Line{in: bufio.NewReader(in), out: out}
}

// Confirm asks question and accepts y or yes, case-insensitively.
func (l *Line) Confirm(ctx context.Context, question string) (bool, error) {
	answer, err := l.ask(ctx, question+" [y/N]: ")
	if err != nil {
		return false, err
	}

	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Input asks question and returns the answer or def when it is empty.
func (l *Line) Input(ctx context.Context, question, def string, secret bool) (string, error) {
	prompt := question + ": "
	if def != "" && !secret {
		prompt = fmt.Sprintf("%s [%s]: ", question, def)
	}

	answer, err := l.ask(ctx, prompt)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

func (l *Line) ask(ctx context.Context, prompt string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if _, err := io.WriteString(l.out, prompt); err != nil {
		return "", err
	}

	line, err := l.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return "", ErrNonInteractive
		}
		return "", err
	}

	return strings.TrimSpace(line), nil
}
