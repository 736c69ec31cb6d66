// Package dirs resolves the installation directory table: the sixteen
// named directories of a Unix install prefix, each with a provenance and
// an absolute path, derived bottom-up from the prefix with cascading
// precedence (CLI flag, environment variable, config file, derived
// default).
package dirs

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/nativeinstall/pkg/errors"
	"github.com/arthur-debert/nativeinstall/pkg/logging"
	"github.com/arthur-debert/nativeinstall/pkg/pathres"
)

// Source records where a directory's value came from.
type Source string

const (
	SourceCLI        Source = "cli"
	SourceEnv        Source = "env"
	SourceConfigFile Source = "config"
	SourceDerived    Source = "derived"
)

// Directory identifiers, in canonical resolution order. The order is the
// topological order of the derivation graph: every directory appears
// after its parent.
const (
	Prefix         = "prefix"
	ExecPrefix     = "exec_prefix"
	BinDir         = "bindir"
	SbinDir        = "sbindir"
	LibDir         = "libdir"
	LibexecDir     = "libexecdir"
	IncludeDir     = "includedir"
	DataRootDir    = "datarootdir"
	DataDir        = "datadir"
	ManDir         = "mandir"
	InfoDir        = "infodir"
	DocDir         = "docdir"
	LocaleDir      = "localedir"
	SysconfDir     = "sysconfdir"
	LocalStateDir  = "localstatedir"
	SharedStateDir = "sharedstatedir"
)

// Names lists all directory identifiers in resolution order.
var Names = []string{
	Prefix, ExecPrefix, BinDir, SbinDir, LibDir, LibexecDir, IncludeDir,
	DataRootDir, DataDir, ManDir, InfoDir, DocDir, LocaleDir, SysconfDir,
	LocalStateDir, SharedStateDir,
}

// DefaultSystemPrefix is the prefix used when nothing selects one.
const DefaultSystemPrefix = "/usr/local"

// IsName reports whether s is one of the sixteen directory identifiers.
func IsName(s string) bool {
	for _, n := range Names {
		if n == s {
			return true
		}
	}
	return false
}

// Entry is one resolved directory with its provenance.
type Entry struct {
	Path   string
	Source Source
}

// Table holds the fully resolved directory namespace. It is immutable
// after Resolve returns.
type Table struct {
	entries map[string]Entry
}

// Lookup implements pathres.Lookup.
func (t *Table) Lookup(name string) (string, bool) {
	e, ok := t.entries[name]
	return e.Path, ok
}

// Path returns the resolved absolute path for name, or "" if unknown.
func (t *Table) Path(name string) string {
	return t.entries[name].Path
}

// Entry returns the full entry for name.
func (t *Table) Entry(name string) (Entry, bool) {
	e, ok := t.entries[name]
	return e, ok
}

// Overrides carries the three explicit configuration sources, keyed by
// directory identifier. Values may be absolute, relative to the
// directory's parent, or reference other directories through the marker
// syntaxes.
type Overrides struct {
	CLI    map[string]string
	Env    map[string]string
	Config map[string]string
}

// Options adjusts default derivation.
type Options struct {
	// PackageName qualifies docdir (<datarootdir>/doc/<package>)
	PackageName string

	// UserPrefix defaults the prefix to the user's home-local directory
	UserPrefix string

	// ArchTriple, when set, inserts an architecture segment into the
	// defaults of bindir, sbindir, libdir, libexecdir and includedir
	ArchTriple string
}

// derivation describes a directory's default: parent identifier plus
// relative segment. An empty segment means "same as parent". The arch
// flag marks directories whose default gains the architecture segment.
type derivation struct {
	parent  string
	segment string
	arch    bool
}

var derivations = map[string]derivation{
	ExecPrefix:     {parent: Prefix},
	BinDir:         {parent: ExecPrefix, segment: "bin", arch: true},
	SbinDir:        {parent: ExecPrefix, segment: "sbin", arch: true},
	LibDir:         {parent: ExecPrefix, segment: "lib", arch: true},
	LibexecDir:     {parent: ExecPrefix, segment: "libexec", arch: true},
	IncludeDir:     {parent: Prefix, segment: "include", arch: true},
	DataRootDir:    {parent: Prefix, segment: "share"},
	DataDir:        {parent: DataRootDir},
	ManDir:         {parent: DataRootDir, segment: "man"},
	InfoDir:        {parent: DataRootDir, segment: "info"},
	DocDir:         {parent: DataRootDir}, // segment computed from package name
	LocaleDir:      {parent: DataRootDir, segment: "locale"},
	SysconfDir:     {parent: Prefix, segment: "etc"}, // special-cased below
	LocalStateDir:  {parent: Prefix, segment: "var"}, // special-cased below
	SharedStateDir: {parent: Prefix, segment: "com"},
}

var log = logging.GetLogger("dirs")

// Resolve builds the directory table. Precedence per directory is
// CLI > environment > config file > derived default. Every entry is
// absolute when Resolve returns, or a configuration error is reported.
func Resolve(overrides Overrides, opts Options) (*Table, error) {
	r := &resolver{
		overrides: overrides,
		opts:      opts,
		table:     &Table{entries: make(map[string]Entry, len(Names))},
		state:     make(map[string]int, len(Names)),
	}

	for _, name := range Names {
		if _, err := r.resolve(name); err != nil {
			return nil, err
		}
	}

	for _, name := range Names {
		e := r.table.entries[name]
		if !filepath.IsAbs(e.Path) {
			return nil, errors.Newf(errors.ErrDirNotAbsolute,
				"directory %s resolved to non-absolute path %q", name, e.Path)
		}
		log.Debug().
			Str("dir", name).
			Str("path", e.Path).
			Str("source", string(e.Source)).
			Msg("Directory resolved")
	}

	return r.table, nil
}

const (
	stateUnresolved = iota
	stateResolving
	stateResolved
)

type resolver struct {
	overrides Overrides
	opts      Options
	table     *Table
	state     map[string]int

	// lookupErr carries a resolution failure (typically a cycle) out of
	// the boolean Lookup interface
	lookupErr error
}

// Lookup lets override values reference other directories via the marker
// syntaxes; referenced directories resolve on demand.
func (r *resolver) Lookup(name string) (string, bool) {
	if !IsName(name) {
		return "", false
	}
	p, err := r.resolve(name)
	if err != nil {
		if r.lookupErr == nil {
			r.lookupErr = err
		}
		return "", false
	}
	return p, true
}

func (r *resolver) resolve(name string) (string, error) {
	switch r.state[name] {
	case stateResolved:
		return r.table.entries[name].Path, nil
	case stateResolving:
		return "", errors.Newf(errors.ErrDirCycle,
			"cyclic directory override involving %s", name)
	}
	r.state[name] = stateResolving

	entry, err := r.compute(name)
	if err != nil {
		return "", err
	}

	r.table.entries[name] = entry
	r.state[name] = stateResolved
	return entry.Path, nil
}

func (r *resolver) compute(name string) (Entry, error) {
	value, source, ok := r.override(name)
	if ok {
		expanded, err := pathres.Substitute(value, r)
		if r.lookupErr != nil {
			return Entry{}, r.lookupErr
		}
		if err != nil {
			return Entry{}, err
		}
		resolved, err := r.anchor(name, expanded)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Path: resolved, Source: source}, nil
	}

	p, err := r.defaultFor(name)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Path: p, Source: SourceDerived}, nil
}

// override returns the highest-precedence explicit value for name.
func (r *resolver) override(name string) (string, Source, bool) {
	if v, ok := r.overrides.CLI[name]; ok && v != "" {
		return v, SourceCLI, true
	}
	if v, ok := r.overrides.Env[name]; ok && v != "" {
		return v, SourceEnv, true
	}
	if v, ok := r.overrides.Config[name]; ok && v != "" {
		return v, SourceConfigFile, true
	}
	return "", "", false
}

// anchor resolves a relative override against the directory's parent per
// the derivation table, never against the working directory.
func (r *resolver) anchor(name, value string) (string, error) {
	if filepath.IsAbs(value) {
		return filepath.Clean(value), nil
	}
	if name == Prefix {
		return "", errors.Newf(errors.ErrDirNotAbsolute,
			"prefix must be an absolute path, got %q", value)
	}
	parent, err := r.resolve(derivations[name].parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(parent, value), nil
}

func (r *resolver) defaultFor(name string) (string, error) {
	if name == Prefix {
		if r.opts.UserPrefix != "" {
			return r.opts.UserPrefix, nil
		}
		return DefaultSystemPrefix, nil
	}

	d := derivations[name]
	parent, err := r.resolve(d.parent)
	if err != nil {
		return "", err
	}

	switch name {
	case DocDir:
		return filepath.Join(parent, "doc", r.opts.PackageName), nil
	case SysconfDir:
		if special, ok := statePrefixFor(parentPrefix(r, "/etc")); ok {
			return special, nil
		}
		return filepath.Join(parent, "etc"), nil
	case LocalStateDir:
		if special, ok := statePrefixFor(parentPrefix(r, "/var")); ok {
			return special, nil
		}
		return filepath.Join(parent, "var"), nil
	}

	segment := d.segment
	if d.arch && r.opts.ArchTriple != "" {
		segment = path.Join(r.opts.ArchTriple, segment)
	}
	return filepath.Join(parent, segment), nil
}

// parentPrefix pairs the resolved prefix with the system root the
// special case maps to (/etc for sysconfdir, /var for localstatedir).
type specialCase struct {
	prefix string
	root   string
}

func parentPrefix(r *resolver, root string) specialCase {
	p, _ := r.resolve(Prefix)
	return specialCase{prefix: p, root: root}
}

// statePrefixFor implements the /usr and /opt special cases: prefixes
// equal to or nested under /usr keep system configuration and state in
// /etc and /var; prefixes under /opt map to /etc/opt/... and /var/opt/...
func statePrefixFor(c specialCase) (string, bool) {
	switch {
	case c.prefix == "/usr" || strings.HasPrefix(c.prefix, "/usr/"):
		return c.root, true
	case strings.HasPrefix(c.prefix, "/opt/"):
		return filepath.Join(c.root, c.prefix), true
	}
	return "", false
}
