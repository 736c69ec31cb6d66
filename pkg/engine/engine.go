// Package engine walks the target catalog in deterministic order,
// resolving and performing one action per target, and aggregates the
// result report. A fatal outcome halts the remaining traversal; already
// installed targets stay in place (there is no rollback journal).
package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/nativeinstall/pkg/catalog"
	"github.com/arthur-debert/nativeinstall/pkg/dirs"
	"github.com/arthur-debert/nativeinstall/pkg/errors"
	"github.com/arthur-debert/nativeinstall/pkg/filesystem"
	"github.com/arthur-debert/nativeinstall/pkg/logging"
	"github.com/arthur-debert/nativeinstall/pkg/modespec"
	"github.com/arthur-debert/nativeinstall/pkg/spawn"
	"github.com/arthur-debert/nativeinstall/pkg/types"
)

// PrivilegeFilter controls what happens to privileged targets.
type PrivilegeFilter int

const (
	// PrivilegeAllow installs privileged targets normally
	PrivilegeAllow PrivilegeFilter = iota

	// PrivilegeExcludeUserPrefix skips privileged targets (reported,
	// not failed); the default under --user-prefix
	PrivilegeExcludeUserPrefix

	// PrivilegeForceInclude installs privileged targets even under a
	// user prefix (--privileged)
	PrivilegeForceInclude
)

// Options carries the execution policy derived from the CLI surface.
type Options struct {
	DryRun   bool
	Verbose  bool
	Force    bool
	NoCreate bool

	// ModeOverride forces every installed file's mode (--mode=)
	ModeOverride string

	// StripProgram is the resolved strip path, empty when disabled
	StripProgram string

	// InstallProgram is the resolved install(1) path, empty for the
	// internal native copy
	InstallProgram string

	// TargetFilter restricts execution to one named target
	TargetFilter string

	PrivilegeFilter PrivilegeFilter

	NoLibexec   bool
	NoSbin      bool
	SharedToBin bool

	// RunStateDir is passed through to run-target environments when the
	// caller's environment supplied one
	RunStateDir string
}

// Engine executes an install plan. Construction wires the capability
// interfaces; both the directory table and the catalog are immutable
// inputs.
type Engine struct {
	table  *dirs.Table
	opts   Options
	fs     types.FS
	runner spawn.Runner
	logger zerolog.Logger
	umask  uint32
}

// New creates an engine. A nil fsys or runner selects the real
// implementations.
func New(table *dirs.Table, opts Options, fsys types.FS, runner spawn.Runner) *Engine {
	if fsys == nil {
		fsys = filesystem.NewOS()
	}
	if runner == nil {
		runner = spawn.NewExec()
	}
	return &Engine{
		table:  table,
		opts:   opts,
		fs:     fsys,
		runner: runner,
		logger: logging.GetLogger("engine"),
		umask:  modespec.Umask(),
	}
}

// Run walks the catalog and returns the aggregated report. The only
// error return is a target filter naming no catalog entry; everything
// else is recorded in the report.
func (e *Engine) Run(ctx context.Context, targets []types.InstallTarget) (*Report, error) {
	if e.opts.TargetFilter != "" {
		target, ok := catalog.Find(targets, e.opts.TargetFilter)
		if !ok {
			return nil, errors.Newf(errors.ErrTargetNotFound,
				"cannot install target %s, no such target exists", e.opts.TargetFilter)
		}
		targets = []types.InstallTarget{target}
	}

	done := logging.LogOperationStart(e.logger, "install")
	defer done()

	report := &Report{DryRun: e.opts.DryRun}
	for _, target := range targets {
		if target.Excluded {
			e.logger.Debug().Str("target", target.Name).Msg("Target excluded, skipping silently")
			continue
		}

		if target.Privileged && e.skipPrivileged() {
			e.logger.Info().Str("target", target.Name).Msg("Skipping privileged target")
			report.add(Result{
				Name:    target.Name,
				Outcome: OutcomeSkipped,
				Message: "privileged target skipped under user prefix",
			})
			continue
		}

		var halt bool
		if target.Kind == types.KindRun {
			halt = e.executeRun(ctx, target, report)
		} else {
			halt = e.executeInstall(ctx, target, report)
		}
		if halt {
			e.logger.Error().Str("target", target.Name).Msg("Fatal outcome, halting traversal")
			break
		}
	}

	return report, nil
}

func (e *Engine) skipPrivileged() bool {
	return e.opts.PrivilegeFilter == PrivilegeExcludeUserPrefix
}

// executeInstall handles the copy-like kinds. Returns true on a fatal
// outcome.
func (e *Engine) executeInstall(ctx context.Context, target types.InstallTarget, report *Report) bool {
	act, err := e.plan(target)
	if err != nil {
		report.add(Result{Name: target.Name, Outcome: OutcomeFatal, Message: err.Error()})
		return true
	}

	logger := e.logger.With().
		Str("target", target.Name).
		Str("action", act.Type.String()).
		Str("dst", act.Dst).
		Logger()

	// The up-to-date skip is a decision, not a mutation, so it applies
	// under dry-run too and keeps the reports identical.
	if !e.opts.Force && e.destUpToDate(act) {
		logger.Info().Msg("Destination is up to date, skipping")
		message := "destination not older than source"
		if act.Type == actionMkdir {
			message = "destination directory already exists"
		}
		report.add(Result{
			Name:    target.Name,
			Outcome: OutcomeSkipped,
			Message: message,
			Dest:    act.Dst,
		})
		return false
	}

	if e.opts.DryRun {
		logger.Info().Bool("dry_run", true).Msg("Would install target")
		report.add(Result{
			Name:    target.Name,
			Outcome: OutcomeSuccess,
			Message: fmt.Sprintf("would %s to %s", act.Type, act.Dst),
			Dest:    act.Dst,
		})
		return false
	}

	if err := e.perform(ctx, act); err != nil {
		logger.Error().Err(err).Msg("Install failed")
		report.add(Result{
			Name:    target.Name,
			Outcome: OutcomeFatal,
			Message: err.Error(),
			Dest:    act.Dst,
		})
		return true
	}

	logger.Info().Msg("Target installed")
	report.add(Result{
		Name:    target.Name,
		Outcome: OutcomeSuccess,
		Message: fmt.Sprintf("installed to %s", act.Dst),
		Dest:    act.Dst,
	})
	return false
}

// upToDate reports whether dst exists and is not older than src.
func (e *Engine) upToDate(src, dst string) bool {
	srcInfo, err := e.fs.Stat(src)
	if err != nil {
		return false
	}
	dstInfo, err := e.fs.Stat(dst)
	if err != nil {
		return false
	}
	return !dstInfo.ModTime().Before(srcInfo.ModTime())
}

// destUpToDate reports whether the destination is already materialized
// for the given action: single copies compare timestamps, directory
// targets require the directory to exist, and tree copies additionally
// require that no source file is newer than its installed counterpart.
func (e *Engine) destUpToDate(act action) bool {
	switch act.Type {
	case actionCopy:
		return e.upToDate(act.Src, act.Dst)
	case actionMkdir:
		info, err := e.fs.Stat(act.Dst)
		return err == nil && info.IsDir()
	case actionCopyDir:
		return e.treeUpToDate(act.Src, act.Dst)
	}
	return false
}

// treeUpToDate walks the source tree and checks every file against its
// installed counterpart under dst.
func (e *Engine) treeUpToDate(src, dst string) bool {
	if info, err := e.fs.Stat(dst); err != nil || !info.IsDir() {
		return false
	}
	entries, err := e.fs.ReadDir(src)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		srcItem := filepath.Join(src, entry.Name())
		dstItem := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if !e.treeUpToDate(srcItem, dstItem) {
				return false
			}
			continue
		}
		if !e.upToDate(srcItem, dstItem) {
			return false
		}
	}
	return true
}

// EnvBlock builds the directory environment block injected into run
// targets and exposed to nested build tools: every table entry by its
// identifier, the runstatedir passthrough, and the verbosity marker.
func EnvBlock(table *dirs.Table, runStateDir string, verbose bool) []string {
	env := make([]string, 0, len(dirs.Names)+2)
	for _, name := range dirs.Names {
		env = append(env, name+"="+table.Path(name))
	}
	if runStateDir != "" {
		env = append(env, "runstatedir="+runStateDir)
	}
	if verbose {
		env = append(env, "_VERBOSE=1")
	}
	return env
}
