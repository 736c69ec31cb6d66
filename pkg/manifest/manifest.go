// Package manifest defines the inputs handed to the catalog: the ordered
// build-artifact list produced by build discovery, and the sparse
// per-target metadata block parsed from the project manifest.
package manifest

import (
	"path/filepath"
	"runtime"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/arthur-debert/nativeinstall/pkg/errors"
)

// ArtifactKind is the produced form of a build artifact.
type ArtifactKind string

const (
	ArtifactBinary    ArtifactKind = "binary"
	ArtifactStaticLib ArtifactKind = "staticlib"
	ArtifactCDylib    ArtifactKind = "cdylib"
	ArtifactDylib     ArtifactKind = "dylib"
	ArtifactRlib      ArtifactKind = "rlib"
	ArtifactProcMacro ArtifactKind = "proc-macro"
)

// StaticLinkable reports whether the artifact form installs as a static
// library.
func (k ArtifactKind) StaticLinkable() bool {
	return k == ArtifactStaticLib
}

// DynamicLinkable reports whether the artifact form installs as a shared
// library.
func (k ArtifactKind) DynamicLinkable() bool {
	return k == ArtifactCDylib || k == ArtifactDylib
}

// Installable reports whether the form produces an implicit install
// target at all. Intermediate forms (rlib, proc-macro) do not.
func (k ArtifactKind) Installable() bool {
	return k == ArtifactBinary || k.StaticLinkable() || k.DynamicLinkable()
}

// Artifact is one compiled build product, as reported by build discovery.
type Artifact struct {
	Name       string
	Kind       ArtifactKind
	BuiltPath  string
	Privileged bool
}

// TargetMeta is a sparse per-target override from the project manifest.
// Unset fields keep the computed default for the matching implicit
// target; an entry with no matching artifact is wholly explicit.
type TargetMeta struct {
	Type          *string  `toml:"type"`
	Privileged    *bool    `toml:"privileged"`
	Directory     *bool    `toml:"directory"`
	InstallDir    *string  `toml:"install-dir"`
	Mode          *string  `toml:"mode"`
	InstalledPath *string  `toml:"installed-path"`
	TargetFile    *string  `toml:"target-file"`
	Aliases       []string `toml:"installed-aliases"`
	Exclude       bool     `toml:"exclude"`
	LibPrefix     *string  `toml:"prefix"`
}

// Metadata is the full explicit-target block.
type Metadata struct {
	Targets map[string]TargetMeta `toml:"targets"`
}

// ParseMetadata decodes a TOML metadata block.
func ParseMetadata(data []byte) (Metadata, error) {
	var m Metadata
	if err := toml.Unmarshal(data, &m); err != nil {
		return Metadata{}, errors.Wrap(err, errors.ErrConfigParse, "failed to parse target metadata")
	}
	if m.Targets == nil {
		m.Targets = map[string]TargetMeta{}
	}
	return m, nil
}

// BuildLayout locates built artifacts on disk.
type BuildLayout struct {
	// ManifestDir is the project root (--manifest-dir, default cwd)
	ManifestDir string

	// OutDir replaces <manifest-dir>/target when set (--out-dir)
	OutDir string

	// Debug selects the debug build directory instead of release
	Debug bool
}

// Dir returns the directory holding built artifacts.
func (l BuildLayout) Dir() string {
	base := l.OutDir
	if base == "" {
		base = filepath.Join(l.ManifestDir, "target")
	}
	profile := "release"
	if l.Debug {
		profile = "debug"
	}
	return filepath.Join(base, profile)
}

// ArtifactPath computes the on-disk path of a built artifact.
func (l BuildLayout) ArtifactPath(name string, kind ArtifactKind) string {
	return filepath.Join(l.Dir(), ArtifactFileName(name, kind))
}

// ArtifactFileName returns the platform file name a build produces for
// the artifact form.
func ArtifactFileName(name string, kind ArtifactKind) string {
	switch {
	case kind == ArtifactBinary:
		return name + exeSuffix()
	case kind.StaticLinkable():
		return "lib" + name + staticSuffix()
	case kind.DynamicLinkable():
		return "lib" + name + dylibSuffix()
	case kind == ArtifactRlib:
		return "lib" + name + ".rlib"
	}
	return name
}

// InstalledFileName returns the default installed name for a library
// form, honoring an explicit lib-prefix override.
func InstalledFileName(name string, kind ArtifactKind, libPrefix *string) string {
	prefix := "lib"
	if libPrefix != nil {
		prefix = *libPrefix
	}
	switch {
	case kind.StaticLinkable():
		return prefix + name + staticSuffix()
	case kind.DynamicLinkable():
		return prefix + name + dylibSuffix()
	}
	return name + exeSuffix()
}

func exeSuffix() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}

func staticSuffix() string {
	if runtime.GOOS == "windows" {
		return ".lib"
	}
	return ".a"
}

func dylibSuffix() string {
	switch runtime.GOOS {
	case "windows":
		return ".dll"
	case "darwin":
		return ".dylib"
	}
	return ".so"
}
