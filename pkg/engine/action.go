package engine

import (
	"path/filepath"

	"github.com/arthur-debert/nativeinstall/pkg/dirs"
	"github.com/arthur-debert/nativeinstall/pkg/pathres"
	"github.com/arthur-debert/nativeinstall/pkg/types"
)

// actionType distinguishes the materialization strategies.
type actionType int

const (
	actionCopy actionType = iota
	actionCopyDir
	actionMkdir
	actionRun
)

func (t actionType) String() string {
	switch t {
	case actionCopy:
		return "copy"
	case actionCopyDir:
		return "copy-dir"
	case actionMkdir:
		return "mkdir"
	case actionRun:
		return "run"
	}
	return "unknown"
}

// action is one fully resolved plan step. Derived per target, never
// persisted.
type action struct {
	Type   actionType
	Src    string
	Dst    string
	Mode   string
	Target types.InstallTarget
}

// defaultDirFor maps a target kind to its destination directory,
// honoring the --no-libexec, --no-sbin and --shared=bin redirections.
func (e *Engine) defaultDirFor(kind types.TargetKind) string {
	switch kind {
	case types.KindBin:
		return e.table.Path(dirs.BinDir)
	case types.KindSbin:
		if e.opts.NoSbin {
			return e.table.Path(dirs.BinDir)
		}
		return e.table.Path(dirs.SbinDir)
	case types.KindLibrary:
		return e.table.Path(dirs.LibDir)
	case types.KindShared:
		if e.opts.SharedToBin {
			return e.table.Path(dirs.BinDir)
		}
		return e.table.Path(dirs.LibDir)
	case types.KindLibexec:
		if e.opts.NoLibexec {
			return e.table.Path(dirs.BinDir)
		}
		return e.table.Path(dirs.LibexecDir)
	case types.KindInclude:
		return e.table.Path(dirs.IncludeDir)
	case types.KindData:
		return e.table.Path(dirs.DataDir)
	case types.KindDoc:
		return e.table.Path(dirs.DocDir)
	case types.KindMan:
		return e.table.Path(dirs.ManDir)
	case types.KindInfo:
		return e.table.Path(dirs.InfoDir)
	case types.KindSysconfig:
		return e.table.Path(dirs.SysconfDir)
	}
	return e.table.Path(dirs.DataDir)
}

// plan resolves a copy-like target to a concrete action. Token
// substitution runs on install-dir first, then the installed path is
// anchored to it.
func (e *Engine) plan(target types.InstallTarget) (action, error) {
	installDir := e.defaultDirFor(target.Kind)
	if target.InstallDir != "" {
		expanded, err := pathres.Expand(target.InstallDir, e.table, installDir)
		if err != nil {
			return action{}, err
		}
		installDir = expanded
	}

	template := target.InstalledPath
	if template == "" {
		template = filepath.Base(target.SourceFile)
	}
	dst, err := pathres.Expand(template, e.table, installDir)
	if err != nil {
		return action{}, err
	}

	act := action{
		Src:    target.SourceFile,
		Dst:    dst,
		Mode:   e.effectiveMode(target),
		Target: target,
	}
	switch {
	case target.Directory && target.SourceFile == "":
		act.Type = actionMkdir
	case target.Directory:
		act.Type = actionCopyDir
	default:
		act.Type = actionCopy
	}
	return act, nil
}

// effectiveMode picks the --mode override when present, else the
// target's own mode.
func (e *Engine) effectiveMode(target types.InstallTarget) string {
	if e.opts.ModeOverride != "" {
		return e.opts.ModeOverride
	}
	return target.Mode
}
