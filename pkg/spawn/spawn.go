// Package spawn isolates external process invocation behind a narrow
// capability interface so the execution engine is testable without real
// subprocesses.
package spawn

import (
	"context"
	"os"
	"os/exec"

	"github.com/arthur-debert/nativeinstall/pkg/errors"
	"github.com/arthur-debert/nativeinstall/pkg/logging"
)

// Outcome describes how a child process terminated.
type Outcome struct {
	// ExitCode is the child's exit status; -1 when terminated by signal
	ExitCode int

	// Signaled is true when the child was terminated by a signal
	Signaled bool

	// Signal names the terminating signal, when known
	Signal string
}

// Runner spawns a program and waits for it to terminate. The extra
// environment is appended on top of the caller's environment. An error
// return means the program could not be started at all.
type Runner interface {
	Run(ctx context.Context, program string, args []string, cwd string, extraEnv []string) (Outcome, error)
}

// execRunner runs real subprocesses with inherited standard streams.
type execRunner struct{}

// NewExec returns a Runner backed by os/exec.
func NewExec() Runner {
	return &execRunner{}
}

func (r *execRunner) Run(ctx context.Context, program string, args []string, cwd string, extraEnv []string) (Outcome, error) {
	logging.LogCommand(program, args)

	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), extraEnv...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err == nil {
		return Outcome{ExitCode: 0}, nil
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		outcome := Outcome{ExitCode: exitErr.ExitCode()}
		if outcome.ExitCode == -1 {
			outcome.Signaled = true
			outcome.Signal = exitErr.ProcessState.String()
		}
		return outcome, nil
	}

	return Outcome{}, errors.Wrapf(err, errors.ErrRunSpawn, "failed to run %s", program)
}

// Find resolves a program name through PATH.
func Find(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrProgramNotFound, "program %s not found", name)
	}
	return path, nil
}
