// Package tagger runs the external tag generator (ctags or a compatible
// program) as a subprocess.
//
// retags never looks inside source files itself. Every tag record comes from
// the tagger, invoked in one of two modes:
//
//	<cmd> -f <output> --recurse <root>                  # full build
//	<cmd> -f <output> --append <path> --append <path>   # incremental append
//
// The tagger must write the absolute source path verbatim into every line of
// its output. Stale-entry removal in package tagfile depends on it.
package tagger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
)

// DefaultCommand is the tagger used when neither the CLI nor the config
// file names one.
const DefaultCommand = "ctags"

// ErrNotFound is returned when the tagger executable cannot be located.
var ErrNotFound = errors.New("tagger executable not found")

// ExitError reports a tagger run that started but did not exit cleanly.
type ExitError struct {
	// Args is the full argv, command first.
	Args []string
	// Code is the exit status, or -1 when the process was killed by a signal.
	Code int
	// Stderr is whatever the tagger printed before failing.
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Args[0], e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// Runner invokes a tagger command.
type Runner struct {
	// Command is the executable name or path.
	Command string
	// Dir is the working directory for the subprocess. Empty means the
	// current directory.
	Dir string
	// Logger receives a "Running <argv>" line before every run.
	Logger *log.Logger
}

// NewRunner returns a Runner for command, run from dir. Runs are not logged
// until Logger is set.
func NewRunner(command, dir string) *Runner {
	if command == "" {
		command = DefaultCommand
	}
	return &Runner{
		Command: command,
		Dir:     dir,
		Logger:  log.New(io.Discard, "", 0),
	}
}

// BuildArgs returns the argv tail for a fresh recursive build of root into output.
func BuildArgs(output, root string) []string {
	return []string{"-f", output, "--recurse", root}
}

// AppendArgs returns the argv tail that appends entries for paths to output.
func AppendArgs(output string, paths []string) []string {
	args := make([]string, 0, 2+2*len(paths))
	args = append(args, "-f", output)
	for _, p := range paths {
		args = append(args, "--append", p)
	}
	return args
}

// Build creates a fresh tag file at output covering the whole tree under root.
func (r *Runner) Build(ctx context.Context, output, root string) error {
	return r.run(ctx, BuildArgs(output, root))
}

// Append adds entries for paths to the existing tag file at output. Entries
// for other files are left alone.
func (r *Runner) Append(ctx context.Context, output string, paths []string) error {
	return r.run(ctx, AppendArgs(output, paths))
}

// String renders the argv the runner would execute for args.
func (r *Runner) String(args []string) string {
	return strings.Join(append([]string{r.Command}, args...), " ")
}

func (r *Runner) run(ctx context.Context, args []string) error {
	if r.Logger != nil {
		r.Logger.Printf("Running %s", r.String(args))
	}

	cmd := exec.CommandContext(ctx, r.Command, args...)
	cmd.Dir = r.Dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, r.Command)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{
			Args:   append([]string{r.Command}, args...),
			Code:   exitErr.ExitCode(),
			Stderr: strings.TrimSpace(stderr.String()),
		}
	}

	return fmt.Errorf("failed to run %s: %w", r.Command, err)
}

// ExitCode returns the tagger exit status carried by err, 0 for nil and -1
// when err did not come from a finished tagger process.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}
