// Package catalog builds the full set of install targets by merging
// implicit targets derived from build artifacts with explicit overrides
// from project metadata. Construction is all-or-nothing: any catalog
// error aborts before execution begins.
package catalog

import (
	"sort"

	"github.com/arthur-debert/nativeinstall/pkg/dirs"
	"github.com/arthur-debert/nativeinstall/pkg/errors"
	"github.com/arthur-debert/nativeinstall/pkg/logging"
	"github.com/arthur-debert/nativeinstall/pkg/manifest"
	"github.com/arthur-debert/nativeinstall/pkg/modespec"
	"github.com/arthur-debert/nativeinstall/pkg/pathres"
	"github.com/arthur-debert/nativeinstall/pkg/types"
)

// Default modes, in chmod symbolic syntax. The X bit in engine-applied
// specs resolves against the target kind.
const (
	defaultBinaryMode  = "=rwx"
	defaultLibraryMode = "=rw"
)

// Suffixes disambiguating the two produced forms of one library
// artifact. Frozen contract.
const (
	StaticSuffix  = "-static"
	DynamicSuffix = "-dynamic"
)

var log = logging.GetLogger("catalog")

// Build constructs the target catalog. Implicit targets appear first, in
// artifact-discovery order; wholly-explicit metadata entries follow,
// sorted by name. fsys is used to check that explicit source files
// resolve.
func Build(artifacts []manifest.Artifact, meta manifest.Metadata, table *dirs.Table, fsys types.FS) ([]types.InstallTarget, error) {
	b := &builder{
		meta:  meta,
		table: table,
		fsys:  fsys,
		seen:  make(map[string]bool),
	}

	for _, artifact := range artifacts {
		if err := b.addImplicit(artifact, libraryForms(artifacts, artifact.Name)); err != nil {
			return nil, err
		}
	}

	if err := b.addExplicitOnly(); err != nil {
		return nil, err
	}

	log.Debug().Int("targets", len(b.targets)).Msg("Catalog built")
	return b.targets, nil
}

// Find returns the target with the given name.
func Find(targets []types.InstallTarget, name string) (types.InstallTarget, bool) {
	for _, t := range targets {
		if t.Name == name {
			return t, true
		}
	}
	return types.InstallTarget{}, false
}

type builder struct {
	meta    manifest.Metadata
	table   *dirs.Table
	fsys    types.FS
	targets []types.InstallTarget
	seen    map[string]bool
	claimed []string
}

// libraryForms counts the linkage classes one artifact name produces.
type forms struct {
	static  bool
	dynamic bool
}

func libraryForms(artifacts []manifest.Artifact, name string) forms {
	var f forms
	for _, a := range artifacts {
		if a.Name != name {
			continue
		}
		if a.Kind.StaticLinkable() {
			f.static = true
		}
		if a.Kind.DynamicLinkable() {
			f.dynamic = true
		}
	}
	return f
}

func (b *builder) addImplicit(artifact manifest.Artifact, f forms) error {
	if !artifact.Kind.Installable() {
		log.Trace().Str("artifact", artifact.Name).Str("kind", string(artifact.Kind)).
			Msg("Skipping non-installable artifact form")
		return nil
	}

	name := artifact.Name
	defaults := types.InstallTarget{
		Name:       name,
		Privileged: artifact.Privileged,
		SourceFile: artifact.BuiltPath,
	}

	switch {
	case artifact.Kind == manifest.ArtifactBinary:
		defaults.Kind = types.KindBin
		if artifact.Privileged {
			defaults.Kind = types.KindSbin
		}
		defaults.Mode = defaultBinaryMode
		defaults.InstalledPath = manifest.InstalledFileName(name, artifact.Kind, nil)
	case artifact.Kind.StaticLinkable():
		if f.dynamic {
			name += StaticSuffix
		}
		defaults.Name = name
		defaults.Kind = types.KindLibrary
		defaults.Mode = defaultLibraryMode
		defaults.InstalledPath = manifest.InstalledFileName(artifact.Name, artifact.Kind, b.libPrefix(name))
	default: // dynamically linkable
		if f.static {
			name += DynamicSuffix
		}
		defaults.Name = name
		defaults.Kind = types.KindShared
		defaults.Mode = defaultLibraryMode
		defaults.InstalledPath = manifest.InstalledFileName(artifact.Name, artifact.Kind, b.libPrefix(name))
	}

	target, err := b.merge(defaults, name)
	if err != nil {
		return err
	}
	return b.append(target)
}

// libPrefix returns the metadata lib-prefix override for name, if any.
func (b *builder) libPrefix(name string) *string {
	if meta, ok := b.meta.Targets[name]; ok {
		return meta.LibPrefix
	}
	return nil
}

// merge applies a sparse metadata override on top of computed defaults.
func (b *builder) merge(defaults types.InstallTarget, name string) (types.InstallTarget, error) {
	meta, ok := b.meta.Targets[name]
	if !ok {
		return defaults, nil
	}
	b.claimed = append(b.claimed, name)

	if meta.Exclude {
		// Exclusion short-circuits: every sibling field is disregarded.
		return types.InstallTarget{Name: name, Excluded: true}, nil
	}

	target := defaults
	if meta.Type != nil {
		kind := types.TargetKind(*meta.Type)
		if !kind.Valid() {
			return target, errors.Newf(errors.ErrTargetInvalid,
				"target %s: unknown type %q", name, *meta.Type)
		}
		target.Kind = kind
	}
	if meta.Privileged != nil {
		target.Privileged = *meta.Privileged
	}
	if meta.Directory != nil {
		target.Directory = *meta.Directory
	}
	if meta.InstallDir != nil {
		target.InstallDir = *meta.InstallDir
	}
	if meta.Mode != nil {
		target.Mode = *meta.Mode
	}
	if meta.InstalledPath != nil {
		target.InstalledPath = *meta.InstalledPath
	}
	if meta.TargetFile != nil {
		target.SourceFile = *meta.TargetFile
	}
	if len(meta.Aliases) > 0 {
		target.Aliases = append([]string(nil), meta.Aliases...)
	}
	return target, nil
}

func (b *builder) append(target types.InstallTarget) error {
	if b.seen[target.Name] {
		return errors.Newf(errors.ErrTargetDuplicate, "duplicate target %s", target.Name)
	}
	if !target.Excluded {
		if err := b.validate(target); err != nil {
			return err
		}
	}
	b.seen[target.Name] = true
	b.targets = append(b.targets, target)
	return nil
}

// validate enforces the catalog-level invariants: parsable mode,
// reserved-token-clean paths, and a usable source.
func (b *builder) validate(target types.InstallTarget) error {
	if target.Mode != "" {
		if _, err := modespec.Parse(target.Mode); err != nil {
			return errors.Wrapf(err, errors.ErrModeInvalid,
				"target %s: invalid mode", target.Name)
		}
	}

	// Run targets take no token substitution on install-dir, so only the
	// copy-like kinds are checked for reserved-token misuse.
	if target.Kind != types.KindRun {
		if target.InstalledPath != "" {
			if err := pathres.Validate(target.InstalledPath, b.table); err != nil {
				return errors.Wrapf(err, errors.ErrReservedToken,
					"target %s: invalid installed-path", target.Name)
			}
		}
		if target.InstallDir != "" {
			if err := pathres.Validate(target.InstallDir, b.table); err != nil {
				return errors.Wrapf(err, errors.ErrReservedToken,
					"target %s: invalid install-dir", target.Name)
			}
		}
	}

	if target.SourceFile == "" {
		if target.Kind == types.KindRun {
			return errors.Newf(errors.ErrSourceMissing,
				"target %s: run targets require a target-file", target.Name)
		}
		if !target.Directory {
			return errors.Newf(errors.ErrSourceMissing,
				"target %s: no source file given, but one is expected", target.Name)
		}
	}
	return nil
}

// addExplicitOnly appends metadata entries that matched no artifact,
// sorted by name for deterministic order.
func (b *builder) addExplicitOnly() error {
	claimed := make(map[string]bool, len(b.claimed))
	for _, name := range b.claimed {
		claimed[name] = true
	}

	names := make([]string, 0, len(b.meta.Targets))
	for name := range b.meta.Targets {
		if !claimed[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		meta := b.meta.Targets[name]
		if meta.Exclude {
			if err := b.append(types.InstallTarget{Name: name, Excluded: true}); err != nil {
				return err
			}
			continue
		}

		target, err := b.explicitTarget(name, meta)
		if err != nil {
			return err
		}
		if err := b.append(target); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) explicitTarget(name string, meta manifest.TargetMeta) (types.InstallTarget, error) {
	target := types.InstallTarget{Name: name, Kind: types.KindData}
	if meta.Type != nil {
		kind := types.TargetKind(*meta.Type)
		if !kind.Valid() {
			return target, errors.Newf(errors.ErrTargetInvalid,
				"target %s: unknown type %q", name, *meta.Type)
		}
		target.Kind = kind
	}
	if meta.Privileged != nil {
		target.Privileged = *meta.Privileged
	}
	if meta.Directory != nil {
		target.Directory = *meta.Directory
	}
	if meta.InstallDir != nil {
		target.InstallDir = *meta.InstallDir
	}
	if meta.Mode != nil {
		target.Mode = *meta.Mode
	}
	if meta.InstalledPath != nil {
		target.InstalledPath = *meta.InstalledPath
	}
	if meta.TargetFile != nil {
		target.SourceFile = *meta.TargetFile
	}
	if len(meta.Aliases) > 0 {
		target.Aliases = append([]string(nil), meta.Aliases...)
	}
	if target.InstalledPath == "" {
		target.InstalledPath = name
	}

	// A wholly-explicit entry must be a directory, a run hook, or point
	// at a source file that actually resolves.
	if target.SourceFile != "" && !target.Directory && target.Kind != types.KindRun {
		if _, err := b.fsys.Stat(target.SourceFile); err != nil {
			return target, errors.Wrapf(err, errors.ErrSourceMissing,
				"target %s: target-file %s does not resolve", name, target.SourceFile)
		}
	}
	return target, nil
}
