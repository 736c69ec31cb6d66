package engine_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/nativeinstall/pkg/dirs"
	"github.com/arthur-debert/nativeinstall/pkg/engine"
	"github.com/arthur-debert/nativeinstall/pkg/errors"
	"github.com/arthur-debert/nativeinstall/pkg/filesystem"
	"github.com/arthur-debert/nativeinstall/pkg/spawn"
	"github.com/arthur-debert/nativeinstall/pkg/types"
)

// fakeRunner records spawn calls and returns a canned outcome.
type fakeRunner struct {
	calls   []runnerCall
	outcome spawn.Outcome
	err     error
}

type runnerCall struct {
	Program string
	Args    []string
	Cwd     string
	Env     []string
}

func (r *fakeRunner) Run(_ context.Context, program string, args []string, cwd string, extraEnv []string) (spawn.Outcome, error) {
	r.calls = append(r.calls, runnerCall{Program: program, Args: args, Cwd: cwd, Env: extraEnv})
	return r.outcome, r.err
}

type fixture struct {
	mem    afero.Fs
	fs     types.FS
	runner *fakeRunner
	table  *dirs.Table
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	table, err := dirs.Resolve(dirs.Overrides{
		CLI: map[string]string{dirs.Prefix: "/test/prefix"},
	}, dirs.Options{PackageName: "demo"})
	require.NoError(t, err)

	mem := afero.NewMemMapFs()
	return &fixture{
		mem:    mem,
		fs:     filesystem.NewAferoFS(mem),
		runner: &fakeRunner{},
		table:  table,
	}
}

func (f *fixture) engine(opts engine.Options) *engine.Engine {
	return engine.New(f.table, opts, f.fs, f.runner)
}

func (f *fixture) write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(f.mem, path, []byte(content), 0o644))
}

func (f *fixture) read(t *testing.T, path string) string {
	t.Helper()
	data, err := afero.ReadFile(f.mem, path)
	require.NoError(t, err)
	return string(data)
}

func binTarget(name, src string) types.InstallTarget {
	return types.InstallTarget{
		Name:          name,
		Kind:          types.KindBin,
		SourceFile:    src,
		InstalledPath: name,
		Mode:          "u=rwx,go=rx",
	}
}

func TestInstallBinary(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/build/demo", "payload")

	report, err := f.engine(engine.Options{}).Run(context.Background(),
		[]types.InstallTarget{binTarget("demo", "/build/demo")})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, engine.OutcomeSuccess, report.Results[0].Outcome)
	assert.Equal(t, "/test/prefix/bin/demo", report.Results[0].Dest)
	assert.Equal(t, "payload", f.read(t, "/test/prefix/bin/demo"))

	info, err := f.mem.Stat("/test/prefix/bin/demo")
	require.NoError(t, err)
	assert.Equal(t, "-rwxr-xr-x", info.Mode().String())

	assert.Equal(t, engine.ExitSuccess, report.ExitCode())
	assert.Empty(t, f.runner.calls)
}

func TestInstallDirOverrideExpansion(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/build/helper", "x")

	target := binTarget("helper", "/build/helper")
	target.InstallDir = "<libexecdir>/demo"

	report, err := f.engine(engine.Options{}).Run(context.Background(),
		[]types.InstallTarget{target})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, "/test/prefix/libexec/demo/helper", report.Results[0].Dest)
	assert.Equal(t, "x", f.read(t, "/test/prefix/libexec/demo/helper"))
}

func TestUpToDateSkip(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/build/demo", "new")
	f.write(t, "/test/prefix/bin/demo", "old")

	old := time.Now().Add(-time.Hour)
	require.NoError(t, f.mem.Chtimes("/build/demo", old, old))

	report, err := f.engine(engine.Options{}).Run(context.Background(),
		[]types.InstallTarget{binTarget("demo", "/build/demo")})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, engine.OutcomeSkipped, report.Results[0].Outcome)
	assert.Equal(t, "old", f.read(t, "/test/prefix/bin/demo"))
	assert.Equal(t, engine.ExitSuccess, report.ExitCode())
}

func TestForceOverridesUpToDate(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/build/demo", "new")
	f.write(t, "/test/prefix/bin/demo", "old")

	old := time.Now().Add(-time.Hour)
	require.NoError(t, f.mem.Chtimes("/build/demo", old, old))

	report, err := f.engine(engine.Options{Force: true}).Run(context.Background(),
		[]types.InstallTarget{binTarget("demo", "/build/demo")})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, engine.OutcomeSuccess, report.Results[0].Outcome)
	assert.Equal(t, "new", f.read(t, "/test/prefix/bin/demo"))
}

func TestDryRunReportParity(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/build/demo", "new")
	f.write(t, "/build/other", "x")
	f.write(t, "/test/prefix/bin/demo", "old")
	old := time.Now().Add(-time.Hour)
	require.NoError(t, f.mem.Chtimes("/build/demo", old, old))

	targets := []types.InstallTarget{
		binTarget("demo", "/build/demo"),
		binTarget("other", "/build/other"),
	}

	dry, err := f.engine(engine.Options{DryRun: true}).Run(context.Background(), targets)
	require.NoError(t, err)

	// Nothing materialized.
	_, statErr := f.mem.Stat("/test/prefix/bin/other")
	assert.Error(t, statErr)
	assert.Equal(t, "old", f.read(t, "/test/prefix/bin/demo"))

	wet, err := f.engine(engine.Options{}).Run(context.Background(), targets)
	require.NoError(t, err)

	// Same targets, same outcomes: the up-to-date skip decision applies
	// under dry-run too.
	require.Len(t, dry.Results, len(wet.Results))
	for i := range dry.Results {
		assert.Equal(t, wet.Results[i].Name, dry.Results[i].Name)
		assert.Equal(t, wet.Results[i].Outcome, dry.Results[i].Outcome)
	}
	assert.True(t, dry.DryRun)
	assert.False(t, wet.DryRun)
}

func TestExcludedTargetIsSilent(t *testing.T) {
	f := newFixture(t)

	report, err := f.engine(engine.Options{}).Run(context.Background(),
		[]types.InstallTarget{{Name: "demo", Excluded: true}})
	require.NoError(t, err)
	assert.Empty(t, report.Results)
}

func TestPrivilegedSkippedUnderUserPrefix(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/build/demod", "x")

	target := binTarget("demod", "/build/demod")
	target.Kind = types.KindSbin
	target.Privileged = true

	report, err := f.engine(engine.Options{
		PrivilegeFilter: engine.PrivilegeExcludeUserPrefix,
	}).Run(context.Background(), []types.InstallTarget{target})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, engine.OutcomeSkipped, report.Results[0].Outcome)
	_, statErr := f.mem.Stat("/test/prefix/sbin/demod")
	assert.Error(t, statErr)
}

func TestPrivilegedForceInclude(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/build/demod", "x")

	target := binTarget("demod", "/build/demod")
	target.Kind = types.KindSbin
	target.Privileged = true

	report, err := f.engine(engine.Options{
		PrivilegeFilter: engine.PrivilegeForceInclude,
	}).Run(context.Background(), []types.InstallTarget{target})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, engine.OutcomeSuccess, report.Results[0].Outcome)
	assert.Equal(t, "x", f.read(t, "/test/prefix/sbin/demod"))
}

func TestTargetFilter(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/build/one", "1")
	f.write(t, "/build/two", "2")

	targets := []types.InstallTarget{
		binTarget("one", "/build/one"),
		binTarget("two", "/build/two"),
	}

	report, err := f.engine(engine.Options{TargetFilter: "two"}).Run(context.Background(), targets)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "two", report.Results[0].Name)
	_, statErr := f.mem.Stat("/test/prefix/bin/one")
	assert.Error(t, statErr)
}

func TestTargetFilterUnknownName(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine(engine.Options{TargetFilter: "ghost"}).Run(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrTargetNotFound))
}

func TestMkdirTarget(t *testing.T) {
	f := newFixture(t)

	target := types.InstallTarget{
		Name:          "state",
		Kind:          types.KindData,
		Directory:     true,
		InstalledPath: "demo/cache",
		Mode:          "u=rwx,go=rx",
	}

	report, err := f.engine(engine.Options{}).Run(context.Background(),
		[]types.InstallTarget{target})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, engine.OutcomeSuccess, report.Results[0].Outcome)
	info, err := f.mem.Stat("/test/prefix/share/demo/cache")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCopyDirTarget(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/proj/assets/a.txt", "a")
	f.write(t, "/proj/assets/sub/b.txt", "b")

	target := types.InstallTarget{
		Name:          "assets",
		Kind:          types.KindData,
		Directory:     true,
		SourceFile:    "/proj/assets",
		InstalledPath: "demo/assets",
	}

	report, err := f.engine(engine.Options{}).Run(context.Background(),
		[]types.InstallTarget{target})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, engine.OutcomeSuccess, report.Results[0].Outcome)
	assert.Equal(t, "a", f.read(t, "/test/prefix/share/demo/assets/a.txt"))
	assert.Equal(t, "b", f.read(t, "/test/prefix/share/demo/assets/sub/b.txt"))
}

func TestMkdirTargetIdempotent(t *testing.T) {
	f := newFixture(t)

	target := types.InstallTarget{
		Name:          "state",
		Kind:          types.KindData,
		Directory:     true,
		InstalledPath: "demo/cache",
		Mode:          "u=rwx,go=rx",
	}

	first, err := f.engine(engine.Options{}).Run(context.Background(),
		[]types.InstallTarget{target})
	require.NoError(t, err)
	require.Len(t, first.Results, 1)
	assert.Equal(t, engine.OutcomeSuccess, first.Results[0].Outcome)

	// A second pass must not touch the existing directory, including its
	// permission bits.
	require.NoError(t, f.mem.Chmod("/test/prefix/share/demo/cache", 0o700))

	second, err := f.engine(engine.Options{}).Run(context.Background(),
		[]types.InstallTarget{target})
	require.NoError(t, err)
	require.Len(t, second.Results, 1)
	assert.Equal(t, engine.OutcomeSkipped, second.Results[0].Outcome)

	info, err := f.mem.Stat("/test/prefix/share/demo/cache")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestCopyDirTargetIdempotent(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/proj/assets/a.txt", "a")
	f.write(t, "/proj/assets/sub/b.txt", "b")

	target := types.InstallTarget{
		Name:          "assets",
		Kind:          types.KindData,
		Directory:     true,
		SourceFile:    "/proj/assets",
		InstalledPath: "demo/assets",
	}

	first, err := f.engine(engine.Options{}).Run(context.Background(),
		[]types.InstallTarget{target})
	require.NoError(t, err)
	require.Len(t, first.Results, 1)
	assert.Equal(t, engine.OutcomeSuccess, first.Results[0].Outcome)

	second, err := f.engine(engine.Options{}).Run(context.Background(),
		[]types.InstallTarget{target})
	require.NoError(t, err)
	require.Len(t, second.Results, 1)
	assert.Equal(t, engine.OutcomeSkipped, second.Results[0].Outcome)

	// A newer source file in the tree re-enables the copy; force does too.
	future := time.Now().Add(time.Hour)
	require.NoError(t, f.mem.Chtimes("/proj/assets/sub/b.txt", future, future))

	third, err := f.engine(engine.Options{}).Run(context.Background(),
		[]types.InstallTarget{target})
	require.NoError(t, err)
	require.Len(t, third.Results, 1)
	assert.Equal(t, engine.OutcomeSuccess, third.Results[0].Outcome)

	forced, err := f.engine(engine.Options{Force: true}).Run(context.Background(),
		[]types.InstallTarget{target})
	require.NoError(t, err)
	require.Len(t, forced.Results, 1)
	assert.Equal(t, engine.OutcomeSuccess, forced.Results[0].Outcome)
}

func TestAliases(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/build/demo", "x")

	target := binTarget("demo", "/build/demo")
	target.Aliases = []string{"demo-compat"}

	_, err := f.engine(engine.Options{}).Run(context.Background(),
		[]types.InstallTarget{target})
	require.NoError(t, err)

	// The alias links to the installed file by its base name.
	link, err := f.fs.Readlink("/test/prefix/bin/demo-compat")
	require.NoError(t, err)
	assert.Equal(t, "demo", link)
}

func TestMissingSourceIsFatal(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/build/after", "x")

	targets := []types.InstallTarget{
		binTarget("demo", "/build/missing"),
		binTarget("after", "/build/after"),
	}

	report, err := f.engine(engine.Options{}).Run(context.Background(), targets)
	require.NoError(t, err)

	// Fatal halts traversal: the second target never runs.
	require.Len(t, report.Results, 1)
	assert.Equal(t, engine.OutcomeFatal, report.Results[0].Outcome)
	assert.Equal(t, engine.ExitFatal, report.ExitCode())
	assert.True(t, report.Failed())
	_, statErr := f.mem.Stat("/test/prefix/bin/after")
	assert.Error(t, statErr)
}

func TestStripInvokedForBinaries(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/build/demo", "x")
	f.write(t, "/proj/readme", "r")

	targets := []types.InstallTarget{
		binTarget("demo", "/build/demo"),
		{Name: "readme", Kind: types.KindDoc, SourceFile: "/proj/readme", InstalledPath: "readme"},
	}

	report, err := f.engine(engine.Options{StripProgram: "/usr/bin/strip"}).Run(
		context.Background(), targets)
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	// Strip runs once, on the binary only.
	require.Len(t, f.runner.calls, 1)
	assert.Equal(t, "/usr/bin/strip", f.runner.calls[0].Program)
	assert.Equal(t, []string{"-s", "/test/prefix/bin/demo"}, f.runner.calls[0].Args)
}

func TestStripFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/build/demo", "x")
	f.runner.outcome = spawn.Outcome{ExitCode: 1}

	report, err := f.engine(engine.Options{StripProgram: "/usr/bin/strip"}).Run(
		context.Background(), []types.InstallTarget{binTarget("demo", "/build/demo")})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, engine.OutcomeFatal, report.Results[0].Outcome)
	assert.Contains(t, report.Results[0].Message, "strip failed")
}

func TestExternalInstallProgram(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/build/demo", "x")

	target := binTarget("demo", "/build/demo")
	_, err := f.engine(engine.Options{
		InstallProgram: "/usr/bin/install",
		StripProgram:   "/usr/bin/strip",
		Verbose:        true,
	}).Run(context.Background(), []types.InstallTarget{target})
	require.NoError(t, err)

	require.Len(t, f.runner.calls, 1)
	call := f.runner.calls[0]
	assert.Equal(t, "/usr/bin/install", call.Program)
	assert.Equal(t, []string{
		"-s", "--strip-program=/usr/bin/strip",
		"-D", "-v",
		"-m", "u=rwx,go=rx",
		"-T", "/build/demo", "/test/prefix/bin/demo",
	}, call.Args)
}

func TestExternalInstallFailure(t *testing.T) {
	f := newFixture(t)
	f.write(t, "/build/demo", "x")
	f.runner.outcome = spawn.Outcome{ExitCode: 2}

	report, err := f.engine(engine.Options{InstallProgram: "/usr/bin/install"}).Run(
		context.Background(), []types.InstallTarget{binTarget("demo", "/build/demo")})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, engine.OutcomeFatal, report.Results[0].Outcome)
	assert.Equal(t, engine.ExitFatal, report.ExitCode())
}

func runTarget(name string) types.InstallTarget {
	return types.InstallTarget{
		Name:       name,
		Kind:       types.KindRun,
		SourceFile: "/proj/hook.sh",
	}
}

func TestRunHookExitCodes(t *testing.T) {
	tests := []struct {
		name        string
		exit        int
		wantOutcome engine.Outcome
		wantEntry   bool
		wantHalt    bool
	}{
		{name: "success_no_entry", exit: 0, wantEntry: false, wantHalt: false},
		{name: "fatal", exit: 1, wantOutcome: engine.OutcomeFatal, wantEntry: true, wantHalt: true},
		{name: "non_fatal", exit: 2, wantOutcome: engine.OutcomeNonFatal, wantEntry: true, wantHalt: false},
		{name: "reported_skip", exit: 10, wantOutcome: engine.OutcomeSkipped, wantEntry: true, wantHalt: false},
		{name: "silent_skip", exit: 20, wantEntry: false, wantHalt: false},
		{name: "reserved_code", exit: 42, wantOutcome: engine.OutcomeFatal, wantEntry: true, wantHalt: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.write(t, "/build/after", "x")
			f.runner.outcome = spawn.Outcome{ExitCode: tt.exit}

			targets := []types.InstallTarget{
				runTarget("hook"),
				binTarget("after", "/build/after"),
			}
			report, err := f.engine(engine.Options{}).Run(context.Background(), targets)
			require.NoError(t, err)

			_, afterErr := f.mem.Stat("/test/prefix/bin/after")
			if tt.wantHalt {
				assert.Error(t, afterErr, "traversal should have halted")
			} else {
				assert.NoError(t, afterErr, "traversal should have continued")
			}

			var hookResults []engine.Result
			for _, r := range report.Results {
				if r.Name == "hook" {
					hookResults = append(hookResults, r)
				}
			}
			if !tt.wantEntry {
				assert.Empty(t, hookResults)
				return
			}
			require.Len(t, hookResults, 1)
			assert.Equal(t, tt.wantOutcome, hookResults[0].Outcome)
		})
	}
}

func TestRunHookSignaled(t *testing.T) {
	f := newFixture(t)
	f.runner.outcome = spawn.Outcome{ExitCode: -1, Signaled: true, Signal: "signal: killed"}

	report, err := f.engine(engine.Options{}).Run(context.Background(),
		[]types.InstallTarget{runTarget("hook")})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, engine.OutcomeSignaled, report.Results[0].Outcome)
	assert.Equal(t, engine.ExitFatal, report.ExitCode())
}

func TestRunHookSpawnFailure(t *testing.T) {
	f := newFixture(t)
	f.runner.err = errors.New(errors.ErrRunSpawn, "no such program")

	report, err := f.engine(engine.Options{}).Run(context.Background(),
		[]types.InstallTarget{runTarget("hook")})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, engine.OutcomeFatal, report.Results[0].Outcome)
}

func TestRunHookEnvironment(t *testing.T) {
	f := newFixture(t)

	target := runTarget("hook")
	target.InstallDir = "/proj"

	_, err := f.engine(engine.Options{
		Verbose:     true,
		RunStateDir: "/run/demo",
	}).Run(context.Background(), []types.InstallTarget{target})
	require.NoError(t, err)

	require.Len(t, f.runner.calls, 1)
	call := f.runner.calls[0]
	assert.Equal(t, "/proj/hook.sh", call.Program)
	assert.Equal(t, "/proj", call.Cwd)
	assert.Contains(t, call.Env, "prefix=/test/prefix")
	assert.Contains(t, call.Env, "bindir=/test/prefix/bin")
	assert.Contains(t, call.Env, "sysconfdir=/test/prefix/etc")
	assert.Contains(t, call.Env, "runstatedir=/run/demo")
	assert.Contains(t, call.Env, "_VERBOSE=1")
}

func TestRunHookDryRun(t *testing.T) {
	f := newFixture(t)

	report, err := f.engine(engine.Options{DryRun: true}).Run(context.Background(),
		[]types.InstallTarget{runTarget("hook")})
	require.NoError(t, err)

	// Hooks never spawn under dry-run, and are assumed successful.
	assert.Empty(t, f.runner.calls)
	assert.Empty(t, report.Results)
	assert.Equal(t, engine.ExitSuccess, report.ExitCode())
}

func TestNonFatalHookExitCode(t *testing.T) {
	f := newFixture(t)
	f.runner.outcome = spawn.Outcome{ExitCode: 2}

	report, err := f.engine(engine.Options{}).Run(context.Background(),
		[]types.InstallTarget{runTarget("hook")})
	require.NoError(t, err)

	assert.Equal(t, engine.OutcomeNonFatal, report.Worst())
	assert.Equal(t, engine.ExitErrors, report.ExitCode())
	assert.False(t, report.Failed())
}

func TestEnvBlock(t *testing.T) {
	f := newFixture(t)

	env := engine.EnvBlock(f.table, "", false)
	assert.Len(t, env, len(dirs.Names))
	assert.Contains(t, env, "prefix=/test/prefix")
	assert.Contains(t, env, "datarootdir=/test/prefix/share")
	assert.NotContains(t, env, "_VERBOSE=1")

	env = engine.EnvBlock(f.table, "/run/demo", true)
	assert.Len(t, env, len(dirs.Names)+2)
	assert.Contains(t, env, "runstatedir=/run/demo")
	assert.Contains(t, env, "_VERBOSE=1")
}
