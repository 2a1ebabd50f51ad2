package process

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vimeodl/pkg/domain/model"
)

const (
	defaultGracePeriod = 8 * time.Second
	defaultStderrLimit = 64 * 1024
)

// Runner starts external tools with their output relayed to the terminal
type Runner struct {
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	gracePeriod time.Duration
	stderrLimit int
}

// Option configures Runner
type Option func(*Runner)

// WithStdio replaces the streams wired to the child process
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdin = stdin
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithGracePeriod sets how long the child may take to exit after an interrupt
// before it is killed
func WithGracePeriod(d time.Duration) Option {
	return func(r *Runner) {
		r.gracePeriod = d
	}
}

// WithStderrLimit sets how many trailing bytes of stderr are kept for the
// failure report
func WithStderrLimit(n int) Option {
	return func(r *Runner) {
		r.stderrLimit = n
	}
}

// New creates a Runner wired to the process's own stdio
func New(opts ...Option) *Runner {
	r := &Runner{
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		gracePeriod: defaultGracePeriod,
		stderrLimit: defaultStderrLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LookPath resolves name with exec.LookPath
func (r *Runner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", goerr.Wrap(err, "executable not found", goerr.V("name", name))
	}
	return path, nil
}

// Run starts the command and waits for it. Output is streamed as it arrives;
// stderr is also kept (bounded) in the returned outcome. A non-zero exit status
// is not an error. When ctx is cancelled the child gets an interrupt and is
// killed if it has not exited within the grace period.
func (r *Runner) Run(ctx context.Context, name string, args []string) (*model.ExitOutcome, error) {
	logger := ctxlog.From(ctx)

	tail := newTailBuffer(r.stderrLimit)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = r.stdin
	cmd.Stdout = r.stdout
	cmd.Stderr = io.MultiWriter(r.stderr, tail)
	cmd.Cancel = func() error {
		return interrupt(cmd.Process)
	}
	cmd.WaitDelay = r.gracePeriod

	logger.Debug("Running command", "name", name, "args", redactArgs(args))

	err := cmd.Run()
	outcome := &model.ExitOutcome{Stderr: tail.String()}
	if err == nil {
		return outcome, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		outcome.ExitCode = exitErr.ExitCode()
	}

	if ctx.Err() != nil {
		if outcome.ExitCode == 0 {
			outcome.ExitCode = -1
		}
		return outcome, goerr.Wrap(ctx.Err(), "command interrupted",
			goerr.V("name", name),
			goerr.V("exit_code", outcome.ExitCode),
		)
	}

	if exitErr == nil {
		return nil, goerr.Wrap(err, "failed to run command", goerr.V("name", name))
	}

	return outcome, nil
}

func redactArgs(args []string) []string {
	redacted := make([]string, len(args))
	for i, arg := range args {
		redacted[i] = model.RedactPlayerURL(arg)
	}
	return redacted
}

func interrupt(p *os.Process) error {
	if p == nil {
		return nil
	}
	if err := p.Signal(os.Interrupt); err != nil {
		// os.Interrupt is not deliverable on every platform
		return p.Kill()
	}
	return nil
}
