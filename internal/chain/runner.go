package chain

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
)

// Process is a single child process invocation
type Process struct {
	Path  string
	Args  []string
	Dir   string
	Stdin []byte // nil leaves stdin unattached
}

// Result is what a finished process produced
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner starts a process and waits for it to exit
type Runner interface {
	Run(ctx context.Context, p Process) (*Result, error)
}

// OSRunner runs processes with os/exec
type OSRunner struct{}

// NewOSRunner creates a runner backed by os/exec
func NewOSRunner() *OSRunner {
	return &OSRunner{}
}

// Run starts the process, writes Stdin (if any) and closes the pipe, then waits.
// A non-zero exit returns both the result and an error.
func (r *OSRunner) Run(ctx context.Context, p Process) (*Result, error) {
	cmd := exec.CommandContext(ctx, p.Path, p.Args...)
	cmd.Dir = p.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	var stdin io.WriteCloser
	if p.Stdin != nil {
		pipe, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("failed to open stdin: %w", err)
		}
		stdin = pipe
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	if stdin != nil {
		// the child may exit before reading; Wait reports the real outcome
		_, _ = stdin.Write(p.Stdin)
		_ = stdin.Close()
	}

	err := cmd.Wait()
	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: cmd.ProcessState.ExitCode(),
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, fmt.Errorf("%w: %v", ctxErr, err)
		}
		return result, err
	}
	return result, nil
}
