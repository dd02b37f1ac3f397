package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/zjrosen/ttr/internal/log"
)

// ErrExternalTool is wrapped by every *ToolError.
var ErrExternalTool = errors.New("external tool failed")

// ToolError reports a failed tool invocation with its output verbatim.
type ToolError struct {
	Argv     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s (exit %d): %s", strings.Join(e.Argv, " "), e.ExitCode, e.Err)
	if e.Stderr != "" {
		msg += "\nstderr:\n" + e.Stderr
	}
	if e.Stdout != "" {
		msg += "\nstdout:\n" + e.Stdout
	}
	return msg
}

func (e *ToolError) Unwrap() []error { return []error{ErrExternalTool, e.Err} }

// Output is what a tool invocation printed.
type Output struct {
	Stdout string
	Stderr string
}

// ToolRunner invokes an external tool synchronously.
type ToolRunner interface {
	Run(ctx context.Context, argv []string) (Output, error)
}

// Compile-time check that ExecRunner implements ToolRunner.
var _ ToolRunner = (*ExecRunner)(nil)

// ExecRunner runs argv as arguments to a fixed executable.
type ExecRunner struct {
	Executable string
	WorkDir    string
	// Echo, when set, receives the tool's stderr as it is produced.
	Echo io.Writer
}

// NewExecRunner creates a runner for executable.
func NewExecRunner(executable string) *ExecRunner {
	return &ExecRunner{Executable: executable}
}

// Run executes the tool and waits for it. A non-zero exit, a start failure or
// an expired context is returned as a *ToolError.
func (r *ExecRunner) Run(ctx context.Context, argv []string) (Output, error) {
	start := time.Now()
	defer func() {
		log.Debug(log.CatTool, "tool finished", "executable", r.Executable, "duration", time.Since(start))
	}()

	//nolint:gosec // G204: executable comes from settings, argv from the definition
	cmd := exec.CommandContext(ctx, r.Executable, argv...)
	if r.WorkDir != "" {
		cmd.Dir = r.WorkDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if r.Echo != nil {
		cmd.Stderr = io.MultiWriter(&stderr, r.Echo)
	}

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out, nil
	}

	toolErr := &ToolError{
		Argv:     append([]string{r.Executable}, argv...),
		ExitCode: -1,
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		Err:      err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		toolErr.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		toolErr.Err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	log.ErrorErr(log.CatTool, "tool failed", err, "executable", r.Executable, "exit", toolErr.ExitCode)
	return out, toolErr
}
