package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/vimeodl/pkg/domain/types"
)

// Console is the interactive terminal used for prompts and status lines
type Console struct {
	in  *bufio.Reader
	out io.Writer

	prompt  *color.Color
	label   *color.Color
	success *color.Color
	failure *color.Color
}

// Option configures Console
type Option func(*Console)

// WithoutColor disables escape sequences regardless of terminal detection
func WithoutColor() Option {
	return func(c *Console) {
		for _, clr := range []*color.Color{c.prompt, c.label, c.success, c.failure} {
			clr.DisableColor()
		}
	}
}

// New creates a Console reading answers from in and writing to out
func New(in io.Reader, out io.Writer, opts ...Option) *Console {
	c := &Console{
		in:      bufio.NewReader(in),
		out:     out,
		prompt:  color.New(color.FgCyan, color.Bold),
		label:   color.New(color.FgMagenta),
		success: color.New(color.FgGreen, color.Bold),
		failure: color.New(color.FgRed, color.Bold),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Banner prints the program title
func (c *Console) Banner(title string) {
	c.prompt.Fprintln(c.out, title)
	fmt.Fprintln(c.out)
}

// Ask prints prompt and reads one line. EOF yields whatever was typed so far.
// Cancelling ctx returns ErrAborted.
func (c *Console) Ask(ctx context.Context, prompt string) (string, error) {
	c.prompt.Fprintln(c.out, prompt)
	fmt.Fprint(c.out, "> ")
	return c.readLine(ctx)
}

// Choose prints a menu of options with the default marked and reads one line
func (c *Console) Choose(ctx context.Context, prompt string, options []string, defaultValue string) (string, error) {
	c.prompt.Fprintf(c.out, "%s [default: %s]\n", prompt, defaultValue)

	marked := make([]string, len(options))
	for i, opt := range options {
		if opt == defaultValue {
			opt += "*"
		}
		marked[i] = opt
	}
	c.label.Fprintf(c.out, "  (%s)\n", strings.Join(marked, ", "))
	fmt.Fprint(c.out, "> ")

	return c.readLine(ctx)
}

func (c *Console) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}

	ch := make(chan result, 1)
	go func() {
		line, err := c.in.ReadString('\n')
		ch <- result{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(c.out)
		return "", goerr.Wrap(types.ErrAborted, "prompt interrupted", goerr.V("cause", ctx.Err().Error()))

	case r := <-ch:
		if r.err != nil && !errors.Is(r.err, io.EOF) {
			return "", goerr.Wrap(r.err, "failed to read answer")
		}
		return strings.TrimSpace(r.line), nil
	}
}

// Info prints a plain status line
func (c *Console) Info(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

// Success prints a green status line
func (c *Console) Success(format string, args ...any) {
	c.success.Fprintf(c.out, "✅ "+format+"\n", args...)
}

// Failure prints a red status line
func (c *Console) Failure(format string, args ...any) {
	c.failure.Fprintf(c.out, "❌ "+format+"\n", args...)
}

// Summary prints rows as an aligned settings box
func (c *Console) Summary(title string, rows [][2]string) {
	width := 0
	for _, row := range rows {
		width = max(width, len(row[0]))
	}

	header := fmt.Sprintf("=== %s ===", title)
	fmt.Fprintln(c.out)
	c.prompt.Fprintln(c.out, header)
	for _, row := range rows {
		c.label.Fprintf(c.out, "%-*s", width, row[0])
		fmt.Fprintf(c.out, " : %s\n", row[1])
	}
	fmt.Fprintln(c.out, strings.Repeat("=", len(header)))
	fmt.Fprintln(c.out)
}
