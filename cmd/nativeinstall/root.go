package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/nativeinstall/pkg/catalog"
	"github.com/arthur-debert/nativeinstall/pkg/config"
	"github.com/arthur-debert/nativeinstall/pkg/dirs"
	"github.com/arthur-debert/nativeinstall/pkg/engine"
	"github.com/arthur-debert/nativeinstall/pkg/errors"
	"github.com/arthur-debert/nativeinstall/pkg/filesystem"
	"github.com/arthur-debert/nativeinstall/pkg/logging"
	"github.com/arthur-debert/nativeinstall/pkg/manifest"
	"github.com/arthur-debert/nativeinstall/pkg/spawn"
	"github.com/arthur-debert/nativeinstall/pkg/types"
)

// Populated at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type cliOptions struct {
	verbosity int

	dirFlags map[string]*string

	userPrefix      bool
	archPrefix      string
	dryRun          bool
	force           bool
	noCreate        bool
	internalInstall bool
	noStrip         bool
	stripProgram    string
	installProgram  string
	mode            string
	target          string
	noLibexec       bool
	noSbin          bool
	shared          string
	privileged      bool
	noPrivileged    bool
	configPath      string
	manifestDir     string
	outDir          string
	debug           bool
	printEnv        bool
}

var opts = cliOptions{dirFlags: make(map[string]*string)}

var rootCmd = &cobra.Command{
	Use:   "nativeinstall",
	Short: "Install built artifacts into native system directories",
	Long: `nativeinstall installs a project's compiled artifacts into the
conventional Unix installation directories (like GNU make install or
cmake --install), resolving the directory layout from CLI flags,
environment variables, an optional config file and derived defaults.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.SetupLogger(opts.verbosity)
		log.Debug().Str("command", cmd.Name()).Msg("Command started")
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runInstall,
}

func init() {
	flags := rootCmd.Flags()

	rootCmd.PersistentFlags().CountVarP(&opts.verbosity, "verbose", "v",
		"Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")

	for _, name := range dirs.Names {
		value := new(string)
		opts.dirFlags[name] = value
		flags.StringVar(value, flagName(name), "",
			fmt.Sprintf("Override the %s installation directory", name))
	}

	flags.BoolVar(&opts.userPrefix, "user-prefix", false,
		"Default the prefix to ~/.local instead of a system-wide directory")
	flags.StringVar(&opts.archPrefix, "arch-prefix", "",
		"Install bin, sbin, lib, libexec and include targets to an architecture-specific prefix")
	flags.Lookup("arch-prefix").NoOptDefVal = hostTriple()
	flags.BoolVar(&opts.dryRun, "dry-run", false,
		"Show the results of each install operation without performing any")
	flags.BoolVar(&opts.force, "force", false,
		"Install all files, even if this would replace files that are newer")
	flags.BoolVar(&opts.noCreate, "no-create", false,
		"Do not create installation directories")
	flags.BoolVar(&opts.internalInstall, "internal-install", false,
		"Copy files natively instead of invoking an install program")
	flags.BoolVar(&opts.noStrip, "no-strip", false,
		"Do not strip programs, even if strip is found")
	flags.StringVar(&opts.stripProgram, "strip", "",
		"Use this program to strip binaries instead of the default (strip)")
	flags.StringVar(&opts.installProgram, "install", "",
		"Use this program to install files instead of the default (install)")
	flags.StringVar(&opts.mode, "mode", "",
		"Force installed files to use this chmod mode")
	flags.StringVar(&opts.target, "target", "",
		"Install only this target")
	flags.BoolVar(&opts.noLibexec, "no-libexec", false,
		"Install libexec targets to bin instead")
	flags.BoolVar(&opts.noSbin, "no-sbin", false,
		"Install privileged binaries to bin instead of sbin")
	flags.StringVar(&opts.shared, "shared", "lib",
		"Treat shared library targets as libraries (lib) or binaries (bin)")
	flags.BoolVar(&opts.privileged, "privileged", false,
		"Install privileged binaries even under a user-specific prefix")
	flags.BoolVar(&opts.noPrivileged, "no-privileged", false,
		"Do not install privileged binaries")
	flags.StringVar(&opts.configPath, "config", "",
		"Path to the configuration file")
	flags.StringVar(&opts.manifestDir, "manifest-dir", "",
		"Directory containing the project manifest (defaults to the working directory)")
	flags.StringVar(&opts.outDir, "out-dir", "",
		"Directory holding built artifacts instead of <manifest-dir>/target")
	flags.BoolVar(&opts.debug, "debug", false,
		"Consider artifacts to have been built in debug mode")
	flags.BoolVar(&opts.printEnv, "print-env", false,
		"Print the resolved directory environment block and exit")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nativeinstall version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

// flagName maps a directory identifier to its flag spelling. The
// identifiers use underscores (exec_prefix); flags use dashes.
func flagName(name string) string {
	if name == dirs.ExecPrefix {
		return "exec-prefix"
	}
	return name
}

func hostTriple() string {
	return runtime.GOARCH + "-" + runtime.GOOS
}

func runInstall(cmd *cobra.Command, args []string) error {
	manifestDir := opts.manifestDir
	if manifestDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return errors.Wrap(err, errors.ErrInternal, "cannot determine working directory")
		}
		manifestDir = cwd
	}

	layout := manifest.BuildLayout{
		ManifestDir: manifestDir,
		OutDir:      opts.outDir,
		Debug:       opts.debug,
	}
	file, artifacts, err := manifest.Load(manifestDir, layout)
	if err != nil {
		return err
	}

	table, err := resolveDirs(file.Package.Name, manifestDir)
	if err != nil {
		return err
	}

	runStateDir := os.Getenv("runstatedir")

	if opts.printEnv {
		for _, line := range engine.EnvBlock(table, runStateDir, opts.verbosity > 0) {
			fmt.Println(line)
		}
		return nil
	}

	targets, err := catalog.Build(artifacts, manifest.Metadata{Targets: file.Targets}, table, filesystem.NewOS())
	if err != nil {
		return err
	}

	engineOpts, err := engineOptions(runStateDir)
	if err != nil {
		return err
	}

	eng := engine.New(table, engineOpts, nil, nil)
	report, err := eng.Run(cmd.Context(), targets)
	if err != nil {
		return err
	}

	if opts.dryRun {
		for _, line := range hookAnnouncements(targets, engineOpts) {
			fmt.Println(line)
		}
	}
	renderReport(report)
	os.Exit(report.ExitCode())
	return nil
}

// hookAnnouncements lists the run hooks a dry run would execute, after
// the same filtering the engine applies. Hooks never enter the report
// (their exit codes are unknowable without spawning), so the dry run
// surfaces them separately.
func hookAnnouncements(targets []types.InstallTarget, engineOpts engine.Options) []string {
	var lines []string
	for _, target := range targets {
		if target.Kind != types.KindRun || target.Excluded {
			continue
		}
		if engineOpts.TargetFilter != "" && target.Name != engineOpts.TargetFilter {
			continue
		}
		if target.Privileged && engineOpts.PrivilegeFilter == engine.PrivilegeExcludeUserPrefix {
			continue
		}
		lines = append(lines, fmt.Sprintf("-- %s: would execute hook %s", target.Name, target.SourceFile))
	}
	return lines
}

// resolveDirs gathers the three override sources and resolves the
// directory table.
func resolveDirs(packageName, manifestDir string) (*dirs.Table, error) {
	cli := make(map[string]string)
	for name, value := range opts.dirFlags {
		if *value != "" {
			cli[name] = *value
		}
	}

	env := make(map[string]string)
	for _, name := range dirs.Names {
		if value := os.Getenv(name); value != "" {
			env[name] = value
		}
	}

	fileOverrides, err := config.Load(opts.configPath, manifestDir)
	if err != nil {
		return nil, err
	}

	resolveOpts := dirs.Options{
		PackageName: packageName,
		ArchTriple:  opts.archPrefix,
	}
	if opts.userPrefix {
		resolveOpts.UserPrefix = filepath.Join(xdg.Home, ".local")
	}

	return dirs.Resolve(dirs.Overrides{CLI: cli, Env: env, Config: fileOverrides}, resolveOpts)
}

// engineOptions maps the flag surface onto the execution policy,
// resolving the external programs through PATH.
func engineOptions(runStateDir string) (engine.Options, error) {
	engineOpts := engine.Options{
		DryRun:       opts.dryRun,
		Verbose:      opts.verbosity > 0,
		Force:        opts.force,
		NoCreate:     opts.noCreate,
		ModeOverride: opts.mode,
		TargetFilter: opts.target,
		NoLibexec:    opts.noLibexec,
		NoSbin:       opts.noSbin,
		SharedToBin:  opts.shared == "bin",
		RunStateDir:  runStateDir,
	}

	switch {
	case opts.noPrivileged:
		engineOpts.PrivilegeFilter = engine.PrivilegeExcludeUserPrefix
	case opts.privileged:
		engineOpts.PrivilegeFilter = engine.PrivilegeForceInclude
	case opts.userPrefix:
		engineOpts.PrivilegeFilter = engine.PrivilegeExcludeUserPrefix
	default:
		engineOpts.PrivilegeFilter = engine.PrivilegeAllow
	}

	if opts.shared != "lib" && opts.shared != "bin" {
		return engineOpts, errors.Newf(errors.ErrInvalidInput,
			"--shared must be lib or bin, got %q", opts.shared)
	}

	// An explicitly named program must resolve; the defaults degrade to
	// disabled strip and the internal native copy.
	if !opts.noStrip {
		name := opts.stripProgram
		if name != "" {
			path, err := spawn.Find(name)
			if err != nil {
				return engineOpts, err
			}
			engineOpts.StripProgram = path
		} else if path, err := spawn.Find("strip"); err == nil {
			engineOpts.StripProgram = path
		}
	}

	if !opts.internalInstall {
		name := opts.installProgram
		if name != "" {
			path, err := spawn.Find(name)
			if err != nil {
				return engineOpts, err
			}
			engineOpts.InstallProgram = path
		} else if path, err := spawn.Find("install"); err == nil {
			engineOpts.InstallProgram = path
		}
	}

	return engineOpts, nil
}

func renderReport(report *engine.Report) {
	for _, result := range report.Results {
		fmt.Printf("-- %s: %s (%s)\n", result.Name, result.Message, result.Outcome)
	}
}
