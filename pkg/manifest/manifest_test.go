package manifest_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/nativeinstall/pkg/errors"
	"github.com/arthur-debert/nativeinstall/pkg/manifest"
)

func TestParseMetadataSparse(t *testing.T) {
	data := []byte(`
[targets.demo]
privileged = true
mode = "=rx"

[targets.extra]
exclude = true

[targets.conf]
target-file = "demo.conf"
install-dir = "<sysconfdir>"
installed-aliases = ["demo.conf.sample"]
`)

	m, err := manifest.ParseMetadata(data)
	require.NoError(t, err)
	require.Len(t, m.Targets, 3)

	demo := m.Targets["demo"]
	require.NotNil(t, demo.Privileged)
	assert.True(t, *demo.Privileged)
	require.NotNil(t, demo.Mode)
	assert.Equal(t, "=rx", *demo.Mode)
	assert.Nil(t, demo.Type)
	assert.Nil(t, demo.InstallDir)
	assert.False(t, demo.Exclude)

	assert.True(t, m.Targets["extra"].Exclude)

	conf := m.Targets["conf"]
	require.NotNil(t, conf.TargetFile)
	assert.Equal(t, "demo.conf", *conf.TargetFile)
	assert.Equal(t, []string{"demo.conf.sample"}, conf.Aliases)
}

func TestParseMetadataEmpty(t *testing.T) {
	m, err := manifest.ParseMetadata(nil)
	require.NoError(t, err)
	assert.NotNil(t, m.Targets)
	assert.Empty(t, m.Targets)
}

func TestParseMetadataMalformed(t *testing.T) {
	_, err := manifest.ParseMetadata([]byte(`[targets.`))
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrConfigParse))
}

func TestBuildLayoutDir(t *testing.T) {
	tests := []struct {
		name   string
		layout manifest.BuildLayout
		want   string
	}{
		{
			name:   "release_default",
			layout: manifest.BuildLayout{ManifestDir: "/proj"},
			want:   filepath.Join("/proj", "target", "release"),
		},
		{
			name:   "debug",
			layout: manifest.BuildLayout{ManifestDir: "/proj", Debug: true},
			want:   filepath.Join("/proj", "target", "debug"),
		},
		{
			name:   "out_dir_replaces_target",
			layout: manifest.BuildLayout{ManifestDir: "/proj", OutDir: "/build"},
			want:   filepath.Join("/build", "release"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.layout.Dir())
		})
	}
}

func TestArtifactFileName(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("platform suffixes differ on windows")
	}

	assert.Equal(t, "demo", manifest.ArtifactFileName("demo", manifest.ArtifactBinary))
	assert.Equal(t, "libdemo.a", manifest.ArtifactFileName("demo", manifest.ArtifactStaticLib))
	assert.Equal(t, "libdemo.rlib", manifest.ArtifactFileName("demo", manifest.ArtifactRlib))

	dyn := manifest.ArtifactFileName("demo", manifest.ArtifactCDylib)
	if runtime.GOOS == "darwin" {
		assert.Equal(t, "libdemo.dylib", dyn)
	} else {
		assert.Equal(t, "libdemo.so", dyn)
	}
}

func TestInstalledFileNameLibPrefix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("platform suffixes differ on windows")
	}

	empty := ""
	assert.Equal(t, "libdemo.a",
		manifest.InstalledFileName("demo", manifest.ArtifactStaticLib, nil))
	assert.Equal(t, "demo.a",
		manifest.InstalledFileName("demo", manifest.ArtifactStaticLib, &empty))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	content := `
[package]
name = "demo"

[[artifacts]]
name = "demo"
kind = "binary"

[[artifacts]]
name = "demo"
kind = "cdylib"
path = "out/libdemo.so"

[targets.demo]
mode = "=rx"
`
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, manifest.DefaultFileName), []byte(content), 0o644))

	file, artifacts, err := manifest.Load(dir, manifest.BuildLayout{ManifestDir: dir})
	require.NoError(t, err)
	assert.Equal(t, "demo", file.Package.Name)
	require.Len(t, artifacts, 2)

	bin := artifacts[0]
	assert.Equal(t, manifest.ArtifactBinary, bin.Kind)
	assert.Equal(t, filepath.Join(dir, "target", "release",
		manifest.ArtifactFileName("demo", manifest.ArtifactBinary)), bin.BuiltPath)

	lib := artifacts[1]
	assert.Equal(t, manifest.ArtifactCDylib, lib.Kind)
	// Relative explicit paths anchor to the manifest directory.
	assert.Equal(t, filepath.Join(dir, "out", "libdemo.so"), lib.BuiltPath)

	require.Contains(t, file.Targets, "demo")
}

func TestLoadMissingManifest(t *testing.T) {
	_, _, err := manifest.Load(t.TempDir(), manifest.BuildLayout{})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrConfigLoad))
}

func TestLoadUnknownArtifactKind(t *testing.T) {
	dir := t.TempDir()
	content := `
[package]
name = "demo"

[[artifacts]]
name = "demo"
kind = "wasm"
`
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, manifest.DefaultFileName), []byte(content), 0o644))

	_, _, err := manifest.Load(dir, manifest.BuildLayout{ManifestDir: dir})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
}

func TestLoadMissingPackageName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, manifest.DefaultFileName), []byte("[package]\n"), 0o644))

	_, _, err := manifest.Load(dir, manifest.BuildLayout{ManifestDir: dir})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
}
