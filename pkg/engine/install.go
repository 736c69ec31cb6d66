package engine

import (
	"context"
	"path/filepath"

	"github.com/arthur-debert/nativeinstall/pkg/errors"
	"github.com/arthur-debert/nativeinstall/pkg/modespec"
)

// Directory creation permission before any explicit mode applies.
const dirPerm = 0o755

// perform materializes one resolved action: external or native install,
// then strip, then mode, then alias links.
func (e *Engine) perform(ctx context.Context, act action) error {
	var err error
	if e.opts.InstallProgram != "" {
		err = e.externalInstall(ctx, act)
	} else {
		err = e.nativeInstall(act)
	}
	if err != nil {
		return err
	}

	if err := e.applyAliases(act); err != nil {
		return err
	}
	return nil
}

// externalInstall shells out to install(1) with the conventional flags:
// -D to create leading directories, -T for exact-name file installs,
// -d for source-less directories.
func (e *Engine) externalInstall(ctx context.Context, act action) error {
	args := []string{}
	if e.opts.StripProgram != "" && act.Target.Kind.Strippable() && act.Type == actionCopy {
		args = append(args, "-s", "--strip-program="+e.opts.StripProgram)
	}
	if !e.opts.NoCreate {
		args = append(args, "-D")
	}
	if e.opts.Verbose {
		args = append(args, "-v")
	}
	if act.Mode != "" {
		args = append(args, "-m", act.Mode)
	}

	switch act.Type {
	case actionMkdir:
		args = append(args, "-d", act.Dst)
	case actionCopyDir:
		args = append(args, act.Src, act.Dst)
	default:
		args = append(args, "-T", act.Src, act.Dst)
	}

	outcome, err := e.runner.Run(ctx, e.opts.InstallProgram, args, "", nil)
	if err != nil {
		return err
	}
	if outcome.Signaled {
		return errors.Newf(errors.ErrInstallProgram,
			"install program received signal %s", outcome.Signal)
	}
	if outcome.ExitCode != 0 {
		return errors.Newf(errors.ErrInstallProgram,
			"install program exited with code %d", outcome.ExitCode)
	}
	return nil
}

// nativeInstall copies through the FS interface.
func (e *Engine) nativeInstall(act action) error {
	if !e.opts.NoCreate {
		parent := filepath.Dir(act.Dst)
		if act.Type == actionMkdir || act.Type == actionCopyDir {
			parent = act.Dst
		}
		if err := e.fs.MkdirAll(parent, dirPerm); err != nil {
			return errors.Wrapf(err, errors.ErrDirCreate, "failed to create %s", parent)
		}
	}

	switch act.Type {
	case actionMkdir:
		// Directory creation only; mode still applies below.
	case actionCopyDir:
		if err := e.copyTree(act.Src, act.Dst); err != nil {
			return err
		}
	default:
		if err := e.copyFile(act.Src, act.Dst); err != nil {
			return err
		}
		if err := e.strip(act); err != nil {
			return err
		}
	}

	return e.applyMode(act, act.Dst)
}

func (e *Engine) copyFile(src, dst string) error {
	data, err := e.fs.ReadFile(src)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileCopy, "failed to read %s", src)
	}
	if err := e.fs.WriteFile(dst, data, 0o644); err != nil {
		return errors.Wrapf(err, errors.ErrFileCopy, "failed to write %s", dst)
	}
	return nil
}

// copyTree recursively copies a directory. Files that are already up to
// date are skipped unless --force, matching the per-file policy of the
// top-level copy action.
func (e *Engine) copyTree(src, dst string) error {
	entries, err := e.fs.ReadDir(src)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileCopy, "failed to read directory %s", src)
	}
	for _, entry := range entries {
		srcItem := filepath.Join(src, entry.Name())
		dstItem := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := e.fs.MkdirAll(dstItem, dirPerm); err != nil {
				return errors.Wrapf(err, errors.ErrDirCreate, "failed to create %s", dstItem)
			}
			if err := e.copyTree(srcItem, dstItem); err != nil {
				return err
			}
			continue
		}
		if !e.opts.Force && e.upToDate(srcItem, dstItem) {
			continue
		}
		if err := e.copyFile(srcItem, dstItem); err != nil {
			return err
		}
	}
	return nil
}

// strip invokes the configured strip program on an installed binary.
// Runs after the copy and before mode application.
func (e *Engine) strip(act action) error {
	if e.opts.StripProgram == "" || !act.Target.Kind.Strippable() {
		return nil
	}
	outcome, err := e.runner.Run(context.Background(), e.opts.StripProgram, []string{"-s", act.Dst}, "", nil)
	if err != nil {
		return err
	}
	if outcome.Signaled || outcome.ExitCode != 0 {
		return errors.Newf(errors.ErrStripFailed, "strip failed on %s", act.Dst)
	}
	return nil
}

// applyMode resolves the chmod expression against the current bits of
// path and applies the result.
func (e *Engine) applyMode(act action, path string) error {
	if act.Mode == "" {
		return nil
	}
	spec, err := modespec.Parse(act.Mode)
	if err != nil {
		return err
	}

	info, err := e.fs.Stat(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileChmod, "failed to stat %s", path)
	}

	execHint := act.Target.Kind.BinaryLike() || act.Target.Directory
	bits := spec.Apply(modespec.UnixBits(info.Mode()), execHint, e.umask)
	if err := e.fs.Chmod(path, modespec.FileMode(bits)); err != nil {
		return errors.Wrapf(err, errors.ErrFileChmod, "failed to chmod %s", path)
	}
	return nil
}

// applyAliases creates one symlink per alias next to the installed path,
// pointing at the installed file, replacing an existing link.
func (e *Engine) applyAliases(act action) error {
	dir := filepath.Dir(act.Dst)
	for _, alias := range act.Target.Aliases {
		linkPath := filepath.Join(dir, alias)
		if _, err := e.fs.Lstat(linkPath); err == nil {
			if err := e.fs.Remove(linkPath); err != nil {
				return errors.Wrapf(err, errors.ErrSymlinkCreate,
					"failed to replace existing alias %s", linkPath)
			}
		}
		if err := e.fs.Symlink(filepath.Base(act.Dst), linkPath); err != nil {
			return errors.Wrapf(err, errors.ErrSymlinkCreate,
				"failed to create alias %s", linkPath)
		}
		e.logger.Debug().Str("alias", linkPath).Str("to", act.Dst).Msg("Alias created")
	}
	return nil
}
