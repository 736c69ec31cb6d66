// Package pathres expands symbolic directory tokens inside destination
// path templates. Three marker syntaxes are accepted: <name>, @name@ and
// ${name}. Identifiers ending in "dir" (case-insensitive) are reserved:
// a marker naming an unknown directory, or a bare path component that
// matches the reserved pattern, is an error rather than literal text.
package pathres

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/arthur-debert/nativeinstall/pkg/errors"
)

// Lookup resolves a directory identifier to its absolute path.
type Lookup interface {
	Lookup(name string) (string, bool)
}

var (
	markerRe   = regexp.MustCompile(`<([A-Za-z_][A-Za-z0-9_]*)>|@([A-Za-z_][A-Za-z0-9_]*)@|\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	reservedRe = regexp.MustCompile(`(?i)^[a-z_][a-z0-9_]*dir$`)
)

// Reserved reports whether the identifier falls under the frozen
// reserved-token rule.
func Reserved(ident string) bool {
	return reservedRe.MatchString(ident)
}

// Substitute replaces every marker in template with the looked-up
// directory path. Unknown identifiers inside a marker, and bare reserved
// identifiers appearing as whole path components, are errors.
func Substitute(template string, table Lookup) (string, error) {
	var substErr error
	result := markerRe.ReplaceAllStringFunc(template, func(match string) string {
		ident := markerIdent(match)
		path, ok := table.Lookup(ident)
		if !ok {
			if substErr == nil {
				substErr = errors.Newf(errors.ErrReservedToken,
					"unknown directory token %q in %q", ident, template)
			}
			return match
		}
		return path
	})
	if substErr != nil {
		return "", substErr
	}

	// A bare *dir component outside any marker is reserved, never literal.
	for _, component := range strings.Split(template, "/") {
		if markerRe.MatchString(component) {
			continue
		}
		if Reserved(component) {
			return "", errors.Newf(errors.ErrReservedToken,
				"reserved identifier %q used as literal path component in %q", component, template)
		}
	}

	return result, nil
}

// Expand substitutes tokens and anchors the result: a path that is not
// absolute after substitution resolves against installDir, which must
// itself be absolute. Expanding an absolute marker-free template is the
// identity up to lexical cleaning: redundant separators and trailing
// slashes are normalized, so the law holds exactly for already-clean
// templates.
func Expand(template string, table Lookup, installDir string) (string, error) {
	substituted, err := Substitute(template, table)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(substituted) {
		return filepath.Clean(substituted), nil
	}
	if !filepath.IsAbs(installDir) {
		return "", errors.Newf(errors.ErrDirNotAbsolute,
			"install dir %q for template %q is not absolute", installDir, template)
	}
	return filepath.Join(installDir, substituted), nil
}

// Validate checks a template for reserved-token misuse without needing
// resolved directory values. Used at catalog-build time.
func Validate(template string, table Lookup) error {
	_, err := Substitute(template, table)
	return err
}

func markerIdent(match string) string {
	groups := markerRe.FindStringSubmatch(match)
	for _, g := range groups[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}
