package engine

import (
	"context"
	"fmt"

	"github.com/arthur-debert/nativeinstall/pkg/types"
)

// Run-target exit codes. The table is a reserved-behavior contract:
// every unlisted code maps to fatal failure, never silent acceptance.
const (
	runExitSuccess    = 0
	runExitFatal      = 1
	runExitNonFatal   = 2
	runExitSkip       = 10
	runExitSkipSilent = 20
)

// executeRun invokes a run-type target: environment injection, working
// directory selection, and the exit-code outcome mapping. Returns true
// on a fatal outcome.
func (e *Engine) executeRun(ctx context.Context, target types.InstallTarget, report *Report) bool {
	logger := e.logger.With().
		Str("target", target.Name).
		Str("program", target.SourceFile).
		Logger()

	// No token substitution applies to install-dir for run targets; an
	// unset one runs in the current directory.
	cwd := target.InstallDir

	if e.opts.DryRun {
		logger.Info().Bool("dry_run", true).Msg("Would execute hook")
		return false
	}

	logger.Info().Msg("Executing hook")
	env := EnvBlock(e.table, e.opts.RunStateDir, e.opts.Verbose)
	outcome, err := e.runner.Run(ctx, target.SourceFile, nil, cwd, env)
	if err != nil {
		report.add(Result{Name: target.Name, Outcome: OutcomeFatal, Message: err.Error()})
		return true
	}

	if outcome.Signaled {
		report.add(Result{
			Name:    target.Name,
			Outcome: OutcomeSignaled,
			Message: fmt.Sprintf("hook terminated by signal %s", outcome.Signal),
		})
		return true
	}

	result, message := classifyExit(outcome.ExitCode)
	logger.Debug().Int("exit_code", outcome.ExitCode).Str("outcome", string(result)).Msg("Hook finished")

	// Success and silent skips produce no report entry.
	if result == OutcomeSuccess || result == OutcomeSkippedSilent {
		return false
	}
	report.add(Result{Name: target.Name, Outcome: result, Message: message})
	return result.Fatal()
}

// classifyExit maps a hook exit code to its outcome and report message.
func classifyExit(exitCode int) (Outcome, string) {
	switch exitCode {
	case runExitSuccess:
		return OutcomeSuccess, ""
	case runExitSkipSilent:
		return OutcomeSkippedSilent, ""
	case runExitNonFatal:
		return OutcomeNonFatal, "hook failed (exit code 2)"
	case runExitSkip:
		return OutcomeSkipped, "hook skipped"
	case runExitFatal:
		return OutcomeFatal, "hook failed (exit code 1)"
	}
	return OutcomeFatal, fmt.Sprintf("hook returned reserved exit code %d", exitCode)
}
