package ui

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
)

// Confirm asks a yes/no question on the terminal. Off a terminal it returns
// def without prompting.
func Confirm(ctx context.Context, title, description string, def bool) (bool, error) {
	if !IsTerminal(os.Stdin) || !IsTerminal(os.Stdout) {
		return def, nil
	}

	answer := def
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&answer),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return false, fmt.Errorf("confirmation cancelled: %w", err)
	}
	return answer, nil
}

// DeactivationPrompt returns a confirm hook for the installer pipeline.
// assumeYes skips the prompt.
func DeactivationPrompt(assumeYes bool) func(ctx context.Context, id string) bool {
	return func(ctx context.Context, id string) bool {
		if assumeYes {
			return true
		}
		ok, err := Confirm(ctx, fmt.Sprintf("Deactivate %s?", id),
			"The descriptor now points at Mai Theme Engine.", true)
		return err == nil && ok
	}
}
