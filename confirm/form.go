package confirm

import (
	"context"
	"errors"

	"github.com/charmbracelet/huh"
)

// Form prompts with terminal forms.
type Form struct{}

// Compile-time check that Form implements Prompter.
var _ Prompter = (*Form)(nil)

// NewForm creates a terminal form prompter.
func NewForm() *Form {
	return &Form{}
}

// Confirm shows a yes/no selector defaulting to no.
func (f *Form) Confirm(ctx context.Context, question string) (bool, error) {
	var answer bool
	field := huh.NewConfirm().
		Title(question).
		Affirmative("Yes").
		Negative("No").
		Value(&answer)

	if err := run(ctx, field); err != nil {
		return false, err
	}
	return answer, nil
}

// Input shows a text field. Secret fields mask the input.
func (f *Form) Input(ctx context.Context, question, def string, secret bool) (string, error) {
	var answer string
	field := huh.NewInput().
		Title(question).
		Value(&answer)
	if secret {
		field = field.EchoMode(huh.EchoModePassword)
	} else if def != "" {
		field = field.Placeholder(def)
	}

	if err := run(ctx, field); err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

func run(ctx context.Context, field huh.Field) error {
	err := huh.NewForm(huh.NewGroup(field)).RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return context.Canceled
	}
	return err
}
