package manifest

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/arthur-debert/nativeinstall/pkg/errors"
	"github.com/arthur-debert/nativeinstall/pkg/logging"
)

// DefaultFileName is the project manifest read from the manifest
// directory.
const DefaultFileName = "install.toml"

var log = logging.GetLogger("manifest")

// File is the on-disk project manifest: the package block, the declared
// build artifacts, and the sparse per-target metadata.
type File struct {
	Package   PackageBlock          `toml:"package"`
	Artifacts []ArtifactDecl        `toml:"artifacts"`
	Targets   map[string]TargetMeta `toml:"targets"`
}

// PackageBlock names the project.
type PackageBlock struct {
	Name string `toml:"name"`
}

// ArtifactDecl declares one build product. Path defaults to the build
// layout's artifact location for the name and kind.
type ArtifactDecl struct {
	Name       string `toml:"name"`
	Kind       string `toml:"kind"`
	Path       string `toml:"path"`
	Privileged bool   `toml:"privileged"`
}

// Load reads and decodes the manifest, resolving each artifact's built
// path against the layout.
func Load(manifestDir string, layout BuildLayout) (File, []Artifact, error) {
	path := filepath.Join(manifestDir, DefaultFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, nil, errors.Wrapf(err, errors.ErrConfigLoad,
			"failed to read manifest %s", path)
	}

	var file File
	if err := toml.Unmarshal(data, &file); err != nil {
		return File{}, nil, errors.Wrapf(err, errors.ErrConfigParse,
			"failed to parse manifest %s", path)
	}
	if file.Targets == nil {
		file.Targets = map[string]TargetMeta{}
	}
	if file.Package.Name == "" {
		return File{}, nil, errors.Newf(errors.ErrInvalidInput,
			"manifest %s has no package name", path)
	}

	artifacts := make([]Artifact, 0, len(file.Artifacts))
	for _, decl := range file.Artifacts {
		kind := ArtifactKind(decl.Kind)
		switch kind {
		case ArtifactBinary, ArtifactStaticLib, ArtifactCDylib, ArtifactDylib,
			ArtifactRlib, ArtifactProcMacro:
		default:
			return File{}, nil, errors.Newf(errors.ErrInvalidInput,
				"artifact %s: unknown kind %q", decl.Name, decl.Kind)
		}

		builtPath := decl.Path
		if builtPath == "" {
			builtPath = layout.ArtifactPath(decl.Name, kind)
		} else if !filepath.IsAbs(builtPath) {
			builtPath = filepath.Join(manifestDir, builtPath)
		}

		artifacts = append(artifacts, Artifact{
			Name:       decl.Name,
			Kind:       kind,
			BuiltPath:  builtPath,
			Privileged: decl.Privileged,
		})
	}

	log.Debug().
		Str("path", path).
		Str("package", file.Package.Name).
		Int("artifacts", len(artifacts)).
		Int("targets", len(file.Targets)).
		Msg("Manifest loaded")
	return file, artifacts, nil
}
