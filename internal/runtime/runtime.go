// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

var (
	// ErrInvalidTemplate is returned when a command template does not parse.
	ErrInvalidTemplate = errors.New("invalid command template")
	// ErrCommandFailed is the sentinel error wrapped by CommandError.
	ErrCommandFailed = errors.New("command failed")
)

// stderrTailLines bounds the stderr excerpt carried by CommandError.
const stderrTailLines = 20

type (
	// Command is one invocation of a command template.
	Command struct {
		// Name labels the command in errors and logs, e.g. "javac" or "antlr".
		Name   string
		Script string
		// Dir is the working directory. Empty means the process working directory.
		Dir string
		// Env is overlaid on the host environment.
		Env map[string]string
		// Args become the positional parameters "$@".
		Args   []string
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}

	// Result contains the outcome of Run.
	Result struct {
		ExitCode ExitCode
		Stdout   string
		Stderr   string
		Duration time.Duration
		// Error is set for infrastructure failures: unparsable template,
		// cancellation, or a tool that could not be started. A normal
		// non-zero exit leaves it nil.
		Error error
	}

	// TemplateError is returned for a command template with a syntax error.
	TemplateError struct {
		Name string
		Err  error
	}

	// CommandError describes a command that exited with a non-zero status.
	CommandError struct {
		Name     string
		ExitCode ExitCode
		// Stderr holds the last lines of the command's standard error.
		Stderr string
	}
)

// Error implements the error interface.
func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

// Unwrap returns ErrInvalidTemplate and the parser error.
func (e *TemplateError) Unwrap() []error { return []error{ErrInvalidTemplate, e.Err} }

// Error implements the error interface.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s exited with status %s", e.Name, e.ExitCode)
	if e.Stderr != "" {
		msg += ":\n" + e.Stderr
	}
	return msg
}

// Unwrap returns ErrCommandFailed for errors.Is() compatibility.
func (e *CommandError) Unwrap() error { return ErrCommandFailed }

// Parse parses a command template.
func Parse(name, script string) (*syntax.File, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(script), name)
	if err != nil {
		return nil, &TemplateError{Name: name, Err: err}
	}
	return prog, nil
}

// Validate reports whether script parses as a command template.
func Validate(name, script string) error {
	_, err := Parse(name, script)
	return err
}

// Run interprets cmd.Script. Output is captured in the Result and also
// written to cmd.Stdout and cmd.Stderr when they are set.
func Run(ctx context.Context, cmd Command) *Result {
	prog, err := Parse(cmd.Name, cmd.Script)
	if err != nil {
		return &Result{ExitCode: 1, Error: err}
	}

	var stdout, stderr bytes.Buffer
	opts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(EnvToSlice(BuildEnv(cmd.Env))...)),
		interp.StdIO(cmd.Stdin, tee(&stdout, cmd.Stdout), tee(&stderr, cmd.Stderr)),
	}
	if cmd.Dir != "" {
		opts = append(opts, interp.Dir(cmd.Dir))
	}
	// "--" keeps arguments such as "-visitor" from being read as shell options
	if len(cmd.Args) > 0 {
		opts = append(opts, interp.Params(append([]string{"--"}, cmd.Args...)...))
	}

	runner, err := interp.New(opts...)
	if err != nil {
		return &Result{ExitCode: 1, Error: fmt.Errorf("%s: create interpreter: %w", cmd.Name, err)}
	}

	start := time.Now()
	err = runner.Run(ctx, prog)
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		var status interp.ExitStatus
		if errors.As(err, &status) {
			res.ExitCode = ExitCode(status)
		} else {
			res.ExitCode = 1
			res.Error = fmt.Errorf("%s: %w", cmd.Name, err)
		}
	}
	slog.Debug("command finished", "name", cmd.Name, "exit", res.ExitCode, "duration", res.Duration)
	return res
}

// Err returns the infrastructure error, a CommandError for a non-zero exit,
// or nil on success.
func (r *Result) Err(name string) error {
	if r.Error != nil {
		return r.Error
	}
	if r.ExitCode.IsSuccess() {
		return nil
	}
	return &CommandError{Name: name, ExitCode: r.ExitCode, Stderr: tail(r.Stderr, stderrTailLines)}
}

func tee(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
