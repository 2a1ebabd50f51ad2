package interfaces

import (
	"context"

	"github.com/m-mizutani/vimeodl/pkg/domain/model"
)

// ProcessRunner defines operations for locating and running external tools
type ProcessRunner interface {
	// LookPath resolves an executable on PATH and returns its location
	LookPath(name string) (string, error)

	// Run executes the command, streams its output to the user and blocks
	// until it exits. A non-zero exit is reported through ExitOutcome, not err.
	Run(ctx context.Context, name string, args []string) (*model.ExitOutcome, error)
}

// Prompter defines the interactive console used to collect input
type Prompter interface {
	// Ask shows the prompt and returns the trimmed answer
	Ask(ctx context.Context, prompt string) (string, error)

	// Choose shows a menu of options and returns the trimmed answer. The
	// answer is not validated against options.
	Choose(ctx context.Context, prompt string, options []string, defaultValue string) (string, error)

	// Info prints a plain status line
	Info(format string, args ...any)

	// Success prints a success status line
	Success(format string, args ...any)

	// Failure prints a failure status line
	Failure(format string, args ...any)

	// Summary prints the settings box shown before invocation
	Summary(title string, rows [][2]string)
}
