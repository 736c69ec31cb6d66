// Package config loads the optional installer configuration file. The
// file is TOML; its [dir] table supplies per-directory overrides that
// rank below CLI flags and environment variables.
package config

import (
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/arthur-debert/nativeinstall/pkg/dirs"
	"github.com/arthur-debert/nativeinstall/pkg/errors"
	"github.com/arthur-debert/nativeinstall/pkg/logging"
)

var log = logging.GetLogger("config")

// DefaultFileName is the config file looked up next to the manifest when
// no --config override is given.
const DefaultFileName = "config.toml"

// DirOverrides holds the [dir] table of the config file, keyed by
// directory identifier.
type DirOverrides map[string]string

// Load reads the configuration file and returns its directory overrides.
// configPath is the explicit --config value; when empty, DefaultFileName
// under searchDir is tried and a missing file is not an error. Unknown
// keys in the [dir] table are configuration errors.
func Load(configPath, searchDir string) (DirOverrides, error) {
	explicit := configPath != ""
	if !explicit {
		configPath = filepath.Join(searchDir, DefaultFileName)
		if _, err := os.Stat(configPath); err != nil {
			log.Debug().Str("path", configPath).Msg("No config file found")
			return DirOverrides{}, nil
		}
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
		code := errors.ErrConfigParse
		if explicit {
			if _, statErr := os.Stat(configPath); statErr != nil {
				code = errors.ErrConfigLoad
			}
		}
		return nil, errors.Wrapf(err, code, "failed to load config from %s", configPath)
	}

	overrides := DirOverrides{}
	for key, value := range k.StringMap("dir") {
		if !dirs.IsName(key) {
			return nil, errors.Newf(errors.ErrDirUnknown,
				"unknown directory %q in [dir] table of %s", key, configPath)
		}
		overrides[key] = value
	}

	log.Debug().
		Str("path", configPath).
		Int("overrides", len(overrides)).
		Msg("Config file loaded")
	return overrides, nil
}
