package types

// TargetKind classifies an install target and selects its default
// destination directory and permission policy.
type TargetKind string

const (
	KindBin       TargetKind = "bin"
	KindSbin      TargetKind = "sbin"
	KindLibrary   TargetKind = "library"
	KindShared    TargetKind = "shared"
	KindLibexec   TargetKind = "libexec"
	KindInclude   TargetKind = "include"
	KindData      TargetKind = "data"
	KindDoc       TargetKind = "doc"
	KindMan       TargetKind = "man"
	KindInfo      TargetKind = "info"
	KindSysconfig TargetKind = "sysconfig"
	KindRun       TargetKind = "run"
)

// BinaryLike reports whether targets of this kind are executable programs.
// The ModeSpec X bit resolves to execute permission for these kinds.
func (k TargetKind) BinaryLike() bool {
	switch k {
	case KindBin, KindSbin, KindLibexec:
		return true
	}
	return false
}

// Strippable reports whether the strip program applies to this kind.
func (k TargetKind) Strippable() bool {
	return k.BinaryLike() || k == KindShared
}

// Valid reports whether k is one of the known kinds.
func (k TargetKind) Valid() bool {
	switch k {
	case KindBin, KindSbin, KindLibrary, KindShared, KindLibexec, KindInclude,
		KindData, KindDoc, KindMan, KindInfo, KindSysconfig, KindRun:
		return true
	}
	return false
}

// InstallTarget is one named unit of installable content. Targets are
// constructed once by the catalog and immutable afterwards. An excluded
// target stays in the catalog but never reaches the execution engine.
type InstallTarget struct {
	// Name uniquely identifies the target within the catalog
	Name string

	// Kind selects destination and policy defaults
	Kind TargetKind

	// Privileged marks targets meant for administrator-only locations
	Privileged bool

	// Directory marks targets installed as whole directories
	Directory bool

	// InstallDir is the destination directory; may contain substitution
	// tokens. Empty means the kind's default directory.
	InstallDir string

	// Mode is a chmod-style permission expression applied after install
	Mode string

	// InstalledPath is the destination path template, resolved against
	// InstallDir when not absolute after substitution
	InstalledPath string

	// SourceFile is the built artifact to copy, or the program to execute
	// for run targets
	SourceFile string

	// Aliases are symlink names created next to the installed file,
	// in order
	Aliases []string

	// Excluded targets are retained for bookkeeping but never executed
	Excluded bool
}
